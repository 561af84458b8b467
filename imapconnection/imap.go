// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/CrawX/go-imap-mailstore/domain"
	"github.com/CrawX/go-imap-mailstore/log"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap-compress"
	"github.com/emersion/go-imap-move"
	"github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

type Dialer struct {
	l *logrus.Logger
}

func NewDialer() *Dialer {
	return &Dialer{l: log.Logger(log.LOG_IMAP)}
}

// Dial connects to the server without logging in. Plain connections are upgraded with STARTTLS when the server
// offers it.
func (d *Dialer) Dial(cfg domain.ConnectConfig) (domain.Transport, error) {
	conn, err := d.dial(cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) dial(cfg domain.ConnectConfig) (*ImapConnection, error) {
	logger := d.l.WithFields(logrus.Fields{"server": cfg.Address})

	tlsConfig := &tls.Config{
		ServerName:         serverName(cfg.Address),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	netDialer := &net.Dialer{Timeout: cfg.DialTimeout}

	var imapClient *client.Client
	var err error
	if cfg.TLS {
		imapClient, err = client.DialWithDialerTLS(netDialer, cfg.Address, tlsConfig)
	} else {
		imapClient, err = client.DialWithDialer(netDialer, cfg.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("could not dial to imap: %w", err)
	}

	if !cfg.TLS {
		startTLS, err := imapClient.SupportStartTLS()
		if err != nil {
			imapClient.Logout()
			return nil, fmt.Errorf("could not check for STARTTLS support: %w", err)
		}

		if startTLS {
			err = imapClient.StartTLS(tlsConfig)
			if err != nil {
				imapClient.Logout()
				return nil, fmt.Errorf("could not upgrade with STARTTLS: %w", err)
			}
			logger.Debug("Upgraded connection with STARTTLS")
		} else {
			logger.Warn("Server does not offer STARTTLS, continuing without encryption")
		}
	}

	logger.Debug("Connected to server")
	return &ImapConnection{
		connection: imapClient,
		compress:   cfg.Compress,
		l:          logger,
	}, nil
}

func serverName(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}

type ImapConnection struct {
	connection  *client.Client
	uidPlus     *uidplus.Client
	mailDeleter deleter
	mailMover   mover

	compress bool

	l *logrus.Entry
}

// Login authenticates and picks the delete and move strategies from the server capabilities.
func (ic *ImapConnection) Login(user, password string) error {
	err := ic.connection.Login(user, password)
	if err != nil {
		return fmt.Errorf("could not login to imap: %w", err)
	}

	ic.l = ic.l.WithField("user", user)
	ic.l.Debug("Logged in to server")

	if ic.compress {
		err = ic.enableCompression()
		if err != nil {
			return err
		}
	}

	ic.uidPlus = uidplus.NewClient(ic.connection)
	uidPlusSupported, err := ic.uidPlus.SupportUidPlus()
	if err != nil {
		return fmt.Errorf("could not check for UIDPLUS support: %w", err)
	}

	moveClient := move.NewClient(ic.connection)
	moveSupported, err := moveClient.SupportMove()
	if err != nil {
		return fmt.Errorf("could not check for MOVE support: %w", err)
	}

	if uidPlusSupported {
		ic.l.Debug("UIDPLUS supported on server, using UID expunge")
		ic.mailDeleter = &uidPlusDeleter{imapConn: ic}
	} else {
		ic.l.Info("UIDPLUS not supported on server, falling back to flag&expunge")
		ic.mailDeleter = &compatibilityDeleter{imapConn: ic, l: ic.l}
	}

	if moveSupported {
		ic.l.Debug("MOVE supported on server")
		ic.mailMover = &moveMover{moveClient: moveClient}
	} else {
		ic.l.Info("MOVE not supported on server, falling back to copy&delete")
		ic.mailMover = &compatibilityMover{imapConn: ic}
	}

	return nil
}

func (ic *ImapConnection) enableCompression() error {
	compressClient := compress.NewClient(ic.connection)
	supported, err := compressClient.SupportCompress(compress.Deflate)
	if err != nil {
		return fmt.Errorf("could not check for COMPRESS support: %w", err)
	}

	if !supported {
		ic.l.Info("COMPRESS=DEFLATE not supported on server, continuing uncompressed")
		return nil
	}

	err = compressClient.Compress(compress.Deflate)
	if err != nil {
		return fmt.Errorf("could not enable compression: %w", err)
	}

	ic.l.Debug("Enabled COMPRESS=DEFLATE")
	return nil
}

func (ic *ImapConnection) Logout() error {
	return ic.connection.Logout()
}

func (ic *ImapConnection) LoggedOut() <-chan struct{} {
	return ic.connection.LoggedOut()
}

func (ic *ImapConnection) ListFolders() ([]*domain.FolderInfo, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.List("", "*", mailboxes)
	}()

	folders := []*domain.FolderInfo{}
	for m := range mailboxes {
		folders = append(folders, &domain.FolderInfo{
			Name:       m.Name,
			Delimiter:  m.Delimiter,
			Attributes: m.Attributes,
		})
	}

	err := <-done
	if err != nil {
		return nil, fmt.Errorf("could not list folders: %w", err)
	}

	return folders, nil
}

func (ic *ImapConnection) FolderStatus(name string) (*domain.FolderStatus, error) {
	status, err := ic.connection.Status(name, []imap.StatusItem{imap.StatusMessages, imap.StatusUidNext, imap.StatusUidValidity})
	if err != nil {
		return nil, fmt.Errorf("could not get folder status: %w", err)
	}

	return folderStatus(name, status), nil
}

func (ic *ImapConnection) OpenFolder(name string, readOnly bool) (*domain.FolderStatus, error) {
	status, err := ic.connection.Select(name, readOnly)
	if err != nil {
		return nil, fmt.Errorf("could not select folder: %w", err)
	}

	ic.l.WithFields(logrus.Fields{"folder": name, "readonly": status.ReadOnly}).Trace("Selected folder")
	return folderStatus(name, status), nil
}

// CloseFolder leaves the selected folder. Without expunge a writable folder is re-selected read-only first, CLOSE
// on a read-only folder does not expunge.
func (ic *ImapConnection) CloseFolder(expunge bool) error {
	mailbox := ic.connection.Mailbox()
	if mailbox == nil {
		return nil
	}

	if !expunge && !mailbox.ReadOnly {
		_, err := ic.connection.Select(mailbox.Name, true)
		if err != nil {
			return fmt.Errorf("could not examine folder before close: %w", err)
		}
	}

	err := ic.connection.Close()
	if err != nil {
		return fmt.Errorf("could not close folder: %w", err)
	}

	return nil
}

func (ic *ImapConnection) Fetch(seqset *imap.SeqSet, selector domain.BodySelector, events chan<- domain.FetchEvent) error {
	defer close(events)

	items, section := fetchItems(selector)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.Fetch(seqset, items, messages)
	}()

	var emitErr error
	for msg := range messages {
		// the command has to run to completion before the connection can be used again
		if emitErr != nil {
			continue
		}
		emitErr = emit(msg, section, events)
	}

	err := <-done
	if err != nil {
		return fmt.Errorf("could not fetch mails: %w", err)
	}
	if emitErr != nil {
		return fmt.Errorf("could not read mail: %w", emitErr)
	}

	return nil
}

func (ic *ImapConnection) AddFlag(uid uint32, flag string) error {
	_, err := ic.storeFlag(uid, flag)
	return err
}

func (ic *ImapConnection) Move(uid uint32, dest string) error {
	if ic.mailMover == nil {
		return fmt.Errorf("not logged in")
	}
	return ic.mailMover.move(uid, dest)
}

func (ic *ImapConnection) delete(uid uint32) error {
	return ic.mailDeleter.delete(uid)
}

func (ic *ImapConnection) flagDeleted(uid uint32) (*imap.SeqSet, error) {
	return ic.storeFlag(uid, imap.DeletedFlag)
}

func (ic *ImapConnection) storeFlag(uid uint32, flag string) (*imap.SeqSet, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uid)
	err := ic.connection.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{flag}, nil)
	if err != nil {
		return nil, fmt.Errorf("could not set %s flag: %w", flag, err)
	}

	return seqset, nil
}

func (ic *ImapConnection) UidCopy(seqset *imap.SeqSet, dest string) error {
	return ic.connection.UidCopy(seqset, dest)
}

func (ic *ImapConnection) UidExpunge(seqset *imap.SeqSet, ch chan uint32) error {
	return ic.uidPlus.UidExpunge(seqset, ch)
}

func (ic *ImapConnection) Expunge(ch chan uint32) error {
	return ic.connection.Expunge(ch)
}

func (ic *ImapConnection) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	return ic.connection.UidSearch(criteria)
}

func folderStatus(name string, status *imap.MailboxStatus) *domain.FolderStatus {
	if status == nil {
		return &domain.FolderStatus{Name: name}
	}

	return &domain.FolderStatus{
		Name:        name,
		ReadOnly:    status.ReadOnly,
		Messages:    status.Messages,
		UidValidity: status.UidValidity,
		UidNext:     status.UidNext,
	}
}
