// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"time"

	"github.com/emersion/go-imap"
)

//go:generate mockgen -destination=mocks/imap.go -package=mocks . Dialer,Transport,Decoder

type ConnectConfig struct {
	// Address is host:port of the imap server
	Address string
	User    string
	// Password is never logged
	Password string

	// TLS dials with implicit TLS, otherwise STARTTLS is used when the server offers it
	TLS                bool
	InsecureSkipVerify bool
	Compress           bool

	DialTimeout time.Duration
}

type Dialer interface {
	Dial(cfg ConnectConfig) (Transport, error)
}

// Transport is a single connection to an imap server. Fetch must close events before it returns.
type Transport interface {
	Login(user, password string) error
	Logout() error
	LoggedOut() <-chan struct{}

	ListFolders() ([]*FolderInfo, error)
	FolderStatus(name string) (*FolderStatus, error)
	OpenFolder(name string, readOnly bool) (*FolderStatus, error)
	CloseFolder(expunge bool) error

	Fetch(seqset *imap.SeqSet, selector BodySelector, events chan<- FetchEvent) error
	AddFlag(uid uint32, flag string) error
	Move(uid uint32, dest string) error
}

type Decoder interface {
	Decode(raw []byte) (*Message, error)
}
