// SPDX-License-Identifier: GPL-3.0-or-later
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CrawX/go-imap-mailstore/domain"
	"github.com/CrawX/go-imap-mailstore/metrics"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
)

const eventBuffer = 64

type rangeFetcher struct {
	idleTimeout time.Duration
	l           *logrus.Entry
}

// sequenceSet translates a range into the wire range, start 0 is treated as 1 and an open range ends at "*".
func sequenceSet(r domain.Range) (*imap.SeqSet, error) {
	start := r.Start
	if start == 0 {
		start = 1
	}

	if !r.OpenEnded() && r.Stop < start {
		return nil, fmt.Errorf("%w: %d:%d", domain.ErrInvalidRange, r.Start, r.Stop)
	}

	seqset := &imap.SeqSet{}
	seqset.AddRange(start, r.Stop)
	return seqset, nil
}

// clampRange fits a range to a folder with the given number of messages. ok is false if no message is in range.
// Without it "n:*" with n beyond the last message would be answered with the last message.
func clampRange(r domain.Range, messages uint32) (domain.Range, bool) {
	if r.Start == 0 {
		r.Start = 1
	}

	if messages == 0 || r.Start > messages {
		return r, false
	}

	if !r.OpenEnded() && r.Stop > messages {
		r.Stop = messages
	}

	return r, true
}

func (f *rangeFetcher) fetch(ctx context.Context, transport domain.Transport, request domain.FetchRequest) ([]domain.RawRecord, error) {
	seqset, err := sequenceSet(request.Range)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("could not fetch %s: %w", seqset, err)
	}

	logger := f.l.WithFields(logrus.Fields{"range": seqset.String(), "selector": request.Selector})
	logger.Debug("Fetching range")

	events := make(chan domain.FetchEvent, eventBuffer)
	done := make(chan error, 1)
	go func() {
		done <- transport.Fetch(seqset, request.Selector, events)
	}()

	idle := time.NewTimer(f.idleTimeout)
	defer idle.Stop()

	b := newBatch()
	var fetchErr, batchErr error
	for events != nil || done != nil {
		select {
		case event, ok := <-events:
			if !ok {
				events = nil
				break
			}
			resetTimer(idle, f.idleTimeout)

			// keep consuming after a broken event so the transport can finish the command
			if batchErr == nil {
				batchErr = b.handle(event)
			}
		case err := <-done:
			done = nil
			fetchErr = err
		case <-idle.C:
			abandon(events)
			metrics.FetchErrors.WithLabelValues("timeout").Inc()
			logger.WithField("timeout", f.idleTimeout).Warn("Fetch stalled")
			return nil, fmt.Errorf("%w: no response to fetch %s within %s", domain.ErrTimeout, seqset, f.idleTimeout)
		case <-ctx.Done():
			abandon(events)
			metrics.FetchErrors.WithLabelValues("canceled").Inc()
			return nil, fmt.Errorf("could not fetch %s: %w", seqset, ctx.Err())
		}
	}

	if fetchErr != nil {
		metrics.FetchErrors.WithLabelValues("protocol").Inc()
		return nil, fmt.Errorf("%w: could not fetch %s: %w", domain.ErrProtocol, seqset, fetchErr)
	}
	if batchErr != nil {
		metrics.FetchErrors.WithLabelValues("protocol").Inc()
		return nil, batchErr
	}

	records, err := b.records()
	if err != nil {
		metrics.FetchErrors.WithLabelValues("protocol").Inc()
		return nil, err
	}

	metrics.FetchedRecords.WithLabelValues(request.Selector.String()).Add(float64(len(records)))
	logger.WithField("messages", len(records)).Debug("Fetched range")
	return records, nil
}

// batch keeps one collector per reported message in the order the server reported them.
type batch struct {
	collectors map[uint32]*collector
	order      []*collector
}

func newBatch() *batch {
	return &batch{collectors: map[uint32]*collector{}}
}

func (b *batch) handle(event domain.FetchEvent) error {
	if event.Kind == domain.EventMessage {
		if _, ok := b.collectors[event.SeqNum]; ok {
			return fmt.Errorf("%w: message %d reported twice", domain.ErrProtocol, event.SeqNum)
		}

		c := newCollector(event.SeqNum)
		b.collectors[event.SeqNum] = c
		b.order = append(b.order, c)
		return nil
	}

	c, ok := b.collectors[event.SeqNum]
	if !ok {
		return fmt.Errorf("%w: %s for unreported message %d", domain.ErrProtocol, event.Kind, event.SeqNum)
	}

	return c.handle(event)
}

func (b *batch) records() ([]domain.RawRecord, error) {
	records := make([]domain.RawRecord, 0, len(b.order))
	for _, c := range b.order {
		record, ok := c.record()
		if !ok {
			return nil, fmt.Errorf("%w: message %d never completed", domain.ErrProtocol, c.seqNum)
		}
		records = append(records, record)
	}

	return records, nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// abandon drains the remaining events of a fetch nobody waits for anymore.
func abandon(events chan domain.FetchEvent) {
	if events == nil {
		return
	}
	go func() {
		for range events {
		}
	}()
}

// isAbandoned reports whether fetch gave up on a command that may still be running.
func isAbandoned(err error) bool {
	return errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
