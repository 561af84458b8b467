// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import "github.com/emersion/go-imap"

//go:generate mockgen -destination=delete_move_mocks_test.go -package=imapconnection -source delete_move.go

// Deleter and mover interfaces share one file so mockgen source mode sees the embedded interface.

type deleter interface {
	delete(uid uint32) error
}

type mover interface {
	move(uid uint32, folder string) error
}

type copyAndDeleteMoveClient interface {
	deleter
	UidCopy(seqset *imap.SeqSet, dest string) error
}
