// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"fmt"
	"time"

	"github.com/CrawX/go-imap-mailstore/domain"
	"github.com/CrawX/go-imap-mailstore/log"

	"github.com/sirupsen/logrus"
)

// Tracker resumes fetches of an account where the previous run stopped.
type Tracker struct {
	store   domain.CheckpointStore
	account string
	l       *logrus.Entry
}

// Position is where a resumed fetch starts.
type Position struct {
	// SeqNum is the first sequence number that can hold a message not fetched yet
	SeqNum uint32
	// NextUid is the lowest uid not fetched yet, 0 if nothing was fetched before
	NextUid uint32
}

// Unseen drops the messages fetched by a previous run.
func (p Position) Unseen(messages []*domain.Message) []*domain.Message {
	unseen := make([]*domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.Id >= p.NextUid {
			unseen = append(unseen, m)
		}
	}
	return unseen
}

func NewTracker(store domain.CheckpointStore, account string) *Tracker {
	return &Tracker{
		store:   store,
		account: account,
		l:       log.Logger(log.LOG_PERSISTENCE).WithField("account", account),
	}
}

// Start returns the position to resume the folder from. Uids below UidNext are assigned already, so at most
// UidNext - NextUid messages at the end of the folder are new. A checkpoint is dropped when the uid validity changed,
// the folder is then read from the beginning.
func (t *Tracker) Start(status *domain.FolderStatus) (Position, error) {
	cp, err := t.store.Checkpoint(t.account, status.Name)
	if err != nil {
		return Position{}, fmt.Errorf("could not load checkpoint: %w", err)
	}

	if cp == nil || cp.NextUid == 0 {
		return Position{SeqNum: 1}, nil
	}

	logger := t.l.WithFields(logrus.Fields{"folder": status.Name, "next": cp.NextUid})

	stale := ""
	if cp.UidValidity != status.UidValidity {
		stale = "uid validity changed"
	} else if status.UidNext != 0 && cp.NextUid > status.UidNext {
		stale = "uid beyond next uid of folder"
	}

	if len(stale) > 0 {
		logger.WithField("reason", stale).Info("Dropping checkpoint")
		err = t.store.DeleteCheckpoint(t.account, status.Name)
		if err != nil {
			return Position{}, fmt.Errorf("could not delete stale checkpoint: %w", err)
		}
		return Position{SeqNum: 1}, nil
	}

	// without UIDNEXT every message has to be looked at
	if status.UidNext == 0 {
		logger.Debug("Resuming folder without next uid")
		return Position{SeqNum: 1, NextUid: cp.NextUid}, nil
	}

	start := uint32(1)
	newer := status.UidNext - cp.NextUid
	if newer < status.Messages {
		start = status.Messages - newer + 1
	}

	logger.WithField("start", start).Debug("Resuming folder")
	return Position{SeqNum: start, NextUid: cp.NextUid}, nil
}

// Advance moves the checkpoint behind the fetched messages. status has to be taken before the fetch, every uid below
// its UidNext was present then and has been fetched.
func (t *Tracker) Advance(status *domain.FolderStatus, messages []*domain.Message) error {
	next := status.UidNext
	for _, m := range messages {
		if m.Id >= next {
			next = m.Id + 1
		}
	}

	if next == 0 {
		return nil
	}

	err := t.store.SaveCheckpoint(domain.Checkpoint{
		Account:     t.account,
		Folder:      status.Name,
		UidValidity: status.UidValidity,
		NextUid:     next,
		Updated:     time.Now(),
	})
	if err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}

	return nil
}
