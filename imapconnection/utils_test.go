// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"github.com/CrawX/go-imap-mailstore/log"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
)

func nullEntry() *logrus.Entry {
	return logrus.NewEntry(log.Discard())
}

func uidSet(uid uint32) *imap.SeqSet {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uid)
	return seqset
}
