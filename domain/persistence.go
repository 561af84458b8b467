// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "time"

//go:generate mockgen -destination=mocks/persistence.go -package=mocks . CheckpointStore

// Checkpoint remembers where the last fetch of a folder stopped. No message data is stored.
type Checkpoint struct {
	Account     string
	Folder      string
	UidValidity uint32
	// NextUid is the lowest uid not fetched yet
	NextUid     uint32
	Updated     time.Time
}

type CheckpointStore interface {
	Close() error
	Checkpoints(account string) ([]*Checkpoint, error)
	Checkpoint(account, folder string) (*Checkpoint, error)
	SaveCheckpoint(cp Checkpoint) error
	DeleteCheckpoint(account, folder string) error
}
