// SPDX-License-Identifier: GPL-3.0-or-later
package session

import (
	"testing"

	"github.com/CrawX/go-imap-mailstore/domain"

	"github.com/stretchr/testify/assert"
)

func chunk(seqNum uint32, data string) domain.FetchEvent {
	return domain.FetchEvent{Kind: domain.EventBodyChunk, SeqNum: seqNum, Chunk: []byte(data)}
}

func attributes(seqNum, uid uint32, flags ...string) domain.FetchEvent {
	return domain.FetchEvent{Kind: domain.EventAttributes, SeqNum: seqNum, Attributes: &domain.Attributes{Uid: uid, Flags: flags}}
}

func kind(seqNum uint32, k domain.FetchEventKind) domain.FetchEvent {
	return domain.FetchEvent{Kind: k, SeqNum: seqNum}
}

func TestCollector_AttributesBeforeBody(t *testing.T) {
	c := newCollector(1)
	for _, e := range []domain.FetchEvent{
		attributes(1, 10, "\\Seen"),
		chunk(1, "Subject: a\r\n"),
		chunk(1, "\r\nbody"),
		kind(1, domain.EventBodyEnd),
		kind(1, domain.EventMessageEnd),
	} {
		assert.NoError(t, c.handle(e))
	}

	record, ok := c.record()
	assert.True(t, ok)
	assert.Equal(t, domain.RawRecord{
		Raw:        []byte("Subject: a\r\n\r\nbody"),
		Attributes: domain.Attributes{Uid: 10, Flags: []string{"\\Seen"}},
		SeqNum:     1,
	}, record)
}

func TestCollector_BodyBeforeAttributes(t *testing.T) {
	c := newCollector(2)
	for _, e := range []domain.FetchEvent{
		chunk(2, "x"),
		kind(2, domain.EventBodyEnd),
		attributes(2, 20),
		kind(2, domain.EventMessageEnd),
	} {
		assert.NoError(t, c.handle(e))
	}

	record, ok := c.record()
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), record.Raw)
	assert.Equal(t, uint32(20), record.Attributes.Uid)
}

func TestCollector_WithoutBody(t *testing.T) {
	c := newCollector(3)
	assert.NoError(t, c.handle(attributes(3, 30)))
	assert.NoError(t, c.handle(kind(3, domain.EventMessageEnd)))

	record, ok := c.record()
	assert.True(t, ok)
	assert.Empty(t, record.Raw)
}

func TestCollector_Incomplete(t *testing.T) {
	c := newCollector(4)
	assert.NoError(t, c.handle(attributes(4, 40)))

	_, ok := c.record()
	assert.False(t, ok)
}

func TestCollector_AttributesAreCopied(t *testing.T) {
	flags := []string{"\\Seen"}
	c := newCollector(5)
	assert.NoError(t, c.handle(domain.FetchEvent{Kind: domain.EventAttributes, SeqNum: 5, Attributes: &domain.Attributes{Uid: 50, Flags: flags}}))
	assert.NoError(t, c.handle(kind(5, domain.EventMessageEnd)))
	flags[0] = "\\Deleted"

	record, _ := c.record()
	assert.Equal(t, []string{"\\Seen"}, record.Attributes.Flags)
}

func TestCollector_Errors(t *testing.T) {
	tests := []struct {
		name   string
		events []domain.FetchEvent
	}{
		{"afterend", []domain.FetchEvent{attributes(1, 1), kind(1, domain.EventMessageEnd), chunk(1, "late")}},
		{"chunkafterbodyend", []domain.FetchEvent{chunk(1, "a"), kind(1, domain.EventBodyEnd), chunk(1, "b")}},
		{"bodyendtwice", []domain.FetchEvent{chunk(1, "a"), kind(1, domain.EventBodyEnd), kind(1, domain.EventBodyEnd)}},
		{"nilattributes", []domain.FetchEvent{{Kind: domain.EventAttributes, SeqNum: 1}}},
		{"attributestwice", []domain.FetchEvent{attributes(1, 1), attributes(1, 1)}},
		{"endwhilestreaming", []domain.FetchEvent{attributes(1, 1), chunk(1, "a"), kind(1, domain.EventMessageEnd)}},
		{"endwithoutattributes", []domain.FetchEvent{kind(1, domain.EventMessageEnd)}},
		{"unexpectedkind", []domain.FetchEvent{kind(1, domain.EventMessage)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newCollector(1)
			var err error
			for _, e := range tc.events {
				err = c.handle(e)
				if err != nil {
					break
				}
			}
			assert.ErrorIs(t, err, domain.ErrProtocol)
		})
	}
}
