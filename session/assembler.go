// SPDX-License-Identifier: GPL-3.0-or-later
package session

import (
	"context"
	"fmt"

	"github.com/CrawX/go-imap-mailstore/domain"
	"github.com/CrawX/go-imap-mailstore/metrics"

	"golang.org/x/sync/errgroup"
)

type deleteBinder func(uid uint32) func() error

type assembler struct {
	decoder     domain.Decoder
	concurrency int
}

// assemble decodes all records with at most concurrency decoders at a time. The first decode error fails the
// whole batch and no message is returned. Messages keep the order of the records.
func (a *assembler) assemble(ctx context.Context, records []domain.RawRecord, bind deleteBinder) ([]*domain.Message, error) {
	messages := make([]*domain.Message, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range records {
		index := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			record := records[index]
			msg, err := a.decoder.Decode(record.Raw)
			if err != nil {
				metrics.DecodeFailures.Inc()
				return fmt.Errorf("%w: could not decode message %d (uid %d): %w", domain.ErrDecode, record.SeqNum, record.Attributes.Uid, err)
			}
			if msg == nil {
				msg = &domain.Message{}
			}

			msg.Flags = ParseFlags(record.Attributes.Flags)
			msg.Id = record.Attributes.Uid
			msg.SeqNum = record.SeqNum
			msg.BindDelete(bind(msg.Id))

			messages[index] = msg
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return messages, nil
}
