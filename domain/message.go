// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"errors"
	"time"
)

type Flags struct {
	Answered bool
	Deleted  bool
	Draft    bool
	Flagged  bool
	New      bool
	Recent   bool
	Seen     bool
}

type Address struct {
	Name    string
	Address string
}

type Attachment struct {
	Filename    string
	ContentType string
	Size        int
}

type Message struct {
	// Id is the server assigned uid, stable for the session
	Id uint32
	// SeqNum is the position within the fetch that produced the message
	SeqNum uint32
	Flags

	MessageId string
	Subject   string
	Date      time.Time
	From      []*Address
	To        []*Address
	Cc        []*Address
	Bcc       []*Address

	Text        string
	HTML        string
	Attachments []Attachment

	delete func() error
}

var ErrNotBound = errors.New("message is not bound to a session")

// Delete flags the message as deleted on the server. The message itself is not changed, re-fetch to observe it.
func (m *Message) Delete() error {
	if m.delete == nil {
		return ErrNotBound
	}
	return m.delete()
}

func (m *Message) BindDelete(f func() error) {
	m.delete = f
}
