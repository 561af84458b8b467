// SPDX-License-Identifier: GPL-3.0-or-later
package session

import (
	"bytes"
	"fmt"

	"github.com/CrawX/go-imap-mailstore/domain"
)

// collector buffers the events of a single message until the server reports it as complete.
type collector struct {
	seqNum uint32

	body       bytes.Buffer
	bodyOpen   bool
	bodyEnded  bool
	attributes *domain.Attributes
	complete   bool
}

func newCollector(seqNum uint32) *collector {
	return &collector{seqNum: seqNum}
}

func (c *collector) handle(event domain.FetchEvent) error {
	if c.complete {
		return fmt.Errorf("%w: %s for message %d after it completed", domain.ErrProtocol, event.Kind, c.seqNum)
	}

	switch event.Kind {
	case domain.EventBodyChunk:
		if c.bodyEnded {
			return fmt.Errorf("%w: body chunk for message %d after its body ended", domain.ErrProtocol, c.seqNum)
		}
		c.bodyOpen = true
		c.body.Write(event.Chunk)
	case domain.EventBodyEnd:
		if c.bodyEnded {
			return fmt.Errorf("%w: body of message %d ended twice", domain.ErrProtocol, c.seqNum)
		}
		c.bodyOpen = false
		c.bodyEnded = true
	case domain.EventAttributes:
		if event.Attributes == nil {
			return fmt.Errorf("%w: empty attributes for message %d", domain.ErrProtocol, c.seqNum)
		}
		if c.attributes != nil {
			return fmt.Errorf("%w: attributes for message %d delivered twice", domain.ErrProtocol, c.seqNum)
		}
		attributes := *event.Attributes
		attributes.Flags = append([]string(nil), event.Attributes.Flags...)
		c.attributes = &attributes
	case domain.EventMessageEnd:
		if c.bodyOpen {
			return fmt.Errorf("%w: message %d completed while its body was still streaming", domain.ErrProtocol, c.seqNum)
		}
		if c.attributes == nil {
			return fmt.Errorf("%w: message %d completed without attributes", domain.ErrProtocol, c.seqNum)
		}
		c.complete = true
	default:
		return fmt.Errorf("%w: unexpected %s for message %d", domain.ErrProtocol, event.Kind, c.seqNum)
	}

	return nil
}

// record returns the frozen message, ok is false until the message completed.
func (c *collector) record() (domain.RawRecord, bool) {
	if !c.complete {
		return domain.RawRecord{}, false
	}

	return domain.RawRecord{
		Raw:        c.body.Bytes(),
		Attributes: *c.attributes,
		SeqNum:     c.seqNum,
	}, true
}
