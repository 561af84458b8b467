// SPDX-License-Identifier: GPL-3.0-or-later
package session

import (
	"github.com/CrawX/go-imap-mailstore/domain"
	"github.com/CrawX/go-imap-mailstore/log"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
)

func nullLogger() *logrus.Logger {
	return log.Discard()
}

func nullEntry() *logrus.Entry {
	return logrus.NewEntry(nullLogger())
}

// messageEvents renders a message the way a transport reports it, the body is split into chunks of chunkSize.
func messageEvents(seqNum, uid uint32, flags []string, body []byte, chunkSize int) []domain.FetchEvent {
	events := []domain.FetchEvent{
		{Kind: domain.EventMessage, SeqNum: seqNum},
		{Kind: domain.EventAttributes, SeqNum: seqNum, Attributes: &domain.Attributes{Uid: uid, Flags: flags}},
	}

	if body != nil {
		for len(body) > chunkSize {
			events = append(events, domain.FetchEvent{Kind: domain.EventBodyChunk, SeqNum: seqNum, Chunk: body[:chunkSize]})
			body = body[chunkSize:]
		}
		events = append(events,
			domain.FetchEvent{Kind: domain.EventBodyChunk, SeqNum: seqNum, Chunk: body},
			domain.FetchEvent{Kind: domain.EventBodyEnd, SeqNum: seqNum},
		)
	}

	return append(events, domain.FetchEvent{Kind: domain.EventMessageEnd, SeqNum: seqNum})
}

// sendAll returns a Fetch implementation that reports events and finishes with err.
func sendAll(events []domain.FetchEvent, err error) func(*imap.SeqSet, domain.BodySelector, chan<- domain.FetchEvent) error {
	return func(_ *imap.SeqSet, _ domain.BodySelector, out chan<- domain.FetchEvent) error {
		for _, e := range events {
			out <- e
		}
		close(out)
		return err
	}
}

func concat(events ...[]domain.FetchEvent) []domain.FetchEvent {
	var all []domain.FetchEvent
	for _, e := range events {
		all = append(all, e...)
	}
	return all
}
