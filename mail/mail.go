// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/CrawX/go-imap-mailstore/domain"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	msgmail "github.com/emersion/go-message/mail"
)

// Decoder turns raw RFC 5322 bytes into messages, it has no state and is safe for concurrent use.
type Decoder struct{}

func (Decoder) Decode(raw []byte) (*domain.Message, error) {
	return Parse(raw)
}

// Parse decodes a full message, a header-only message or nothing at all (flag fetches carry no body).
func Parse(raw []byte) (*domain.Message, error) {
	msg := &domain.Message{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return msg, nil
	}

	mr, err := msgmail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("could not parse mail: %w", err)
	}

	readHeader(&mr.Header, msg)

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !(message.IsUnknownCharset(err) && p != nil) {
			return nil, fmt.Errorf("could not read mail part: %w", err)
		}

		switch h := p.Header.(type) {
		case *msgmail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := ioutil.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("could not read inline part: %w", err)
			}

			switch {
			case strings.EqualFold(contentType, "text/html"):
				if len(msg.HTML) == 0 {
					msg.HTML = string(body)
				}
			case len(contentType) == 0 || strings.EqualFold(contentType, "text/plain"):
				if len(msg.Text) == 0 {
					msg.Text = string(body)
				}
			}
		case *msgmail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, err := io.Copy(ioutil.Discard, p.Body)
			if err != nil {
				return nil, fmt.Errorf("could not read attachment %s: %w", filename, err)
			}

			msg.Attachments = append(msg.Attachments, domain.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        int(size),
			})
		}
	}

	return msg, nil
}

// Malformed optional headers are left empty instead of failing the whole message.
func readHeader(h *msgmail.Header, msg *domain.Message) {
	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	msg.Subject = subject

	msg.MessageId = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")

	if date, err := h.Date(); err == nil {
		msg.Date = date
	}

	msg.From = addressList(h, "From")
	msg.To = addressList(h, "To")
	msg.Cc = addressList(h, "Cc")
	msg.Bcc = addressList(h, "Bcc")
}

func addressList(h *msgmail.Header, key string) []*domain.Address {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}

	addresses := make([]*domain.Address, 0, len(list))
	for _, a := range list {
		addresses = append(addresses, &domain.Address{Name: a.Name, Address: a.Address})
	}
	return addresses
}

func ShortSubject(subject string) string {
	runes := []rune(subject)
	if len(runes) > 30 {
		subject = string(runes[:30]) + "..."
	}
	return subject
}
