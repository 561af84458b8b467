// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"fmt"
	"io"

	"github.com/CrawX/go-imap-mailstore/domain"

	"github.com/emersion/go-imap"
)

const chunkSize = 32 * 1024

// HeaderFields are the header fields fetched for domain.SelectHeaders.
var HeaderFields = []string{"From", "To", "Cc", "Bcc", "Subject", "Date", "Message-Id"}

// fetchItems returns the items to fetch for a selector and the body section, nil if no body is fetched.
func fetchItems(selector domain.BodySelector) ([]imap.FetchItem, *imap.BodySectionName) {
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags}

	var section *imap.BodySectionName
	switch selector {
	case domain.SelectFull:
		section = &imap.BodySectionName{Peek: true}
	case domain.SelectHeaders:
		section = &imap.BodySectionName{
			BodyPartName: imap.BodyPartName{
				Specifier: imap.HeaderSpecifier,
				Fields:    HeaderFields,
			},
			Peek: true,
		}
	case domain.SelectFlags:
		return items, nil
	}

	return append(items, section.FetchItem()), section
}

// emit reports a received message as a sequence of events.
func emit(msg *imap.Message, section *imap.BodySectionName, events chan<- domain.FetchEvent) error {
	events <- domain.FetchEvent{Kind: domain.EventMessage, SeqNum: msg.SeqNum}
	events <- domain.FetchEvent{
		Kind:   domain.EventAttributes,
		SeqNum: msg.SeqNum,
		Attributes: &domain.Attributes{
			Uid:   msg.Uid,
			Flags: msg.Flags,
		},
	}

	if section != nil {
		if r := msg.GetBody(section); r != nil {
			err := emitBody(msg.SeqNum, r, events)
			if err != nil {
				return fmt.Errorf("message %d: %w", msg.SeqNum, err)
			}
		}
	}

	events <- domain.FetchEvent{Kind: domain.EventMessageEnd, SeqNum: msg.SeqNum}
	return nil
}

func emitBody(seqNum uint32, r io.Reader, events chan<- domain.FetchEvent) error {
	for {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			events <- domain.FetchEvent{Kind: domain.EventBodyChunk, SeqNum: seqNum, Chunk: buf[:n]}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return err
		}
	}

	events <- domain.FetchEvent{Kind: domain.EventBodyEnd, SeqNum: seqNum}
	return nil
}
