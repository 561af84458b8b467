// SPDX-License-Identifier: GPL-3.0-or-later
package session

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/CrawX/go-imap-mailstore/domain"
	"github.com/CrawX/go-imap-mailstore/log"
	"github.com/CrawX/go-imap-mailstore/metrics"

	"github.com/emersion/go-imap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const Inbox = "INBOX"

// Session is a single logged in connection to an imap server. It is safe for concurrent use, folder operations
// are executed one at a time.
type Session struct {
	dialer    domain.Dialer
	fetcher   *rangeFetcher
	assembler *assembler

	// ops serialises everything that selects a folder
	ops sync.Mutex

	mu          sync.Mutex
	state       domain.State
	transport   domain.Transport
	credentials domain.ConnectConfig
	selected    *domain.FolderStatus
	// lastFolder is the folder most recently opened, it outlives the selection
	lastFolder string

	configuration *configuration

	l *logrus.Entry
}

func NewSession(dialer domain.Dialer, decoder domain.Decoder, configFunc ...ConfigFunc) (*Session, error) {
	config := &configuration{
		DecodeConcurrency: runtime.GOMAXPROCS(0),
		FetchIdleTimeout:  DefaultFetchIdleTimeout,
	}
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}
	if config.Logger == nil {
		config.Logger = log.Logger(log.LOG_SESSION)
	}

	l := config.Logger.WithField("session", uuid.New().String())
	return &Session{
		dialer: dialer,
		fetcher: &rangeFetcher{
			idleTimeout: config.FetchIdleTimeout,
			l:           l,
		},
		assembler: &assembler{
			decoder:     decoder,
			concurrency: config.DecodeConcurrency,
		},
		state:         domain.StateClosed,
		configuration: config,
		l:             l,
	}, nil
}

func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Account identifies the user and server of the last connect.
func (s *Session) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credentials.User + "@" + s.credentials.Address
}

// Connect dials and logs in. It returns once, after the login succeeded or anything before it failed.
func (s *Session) Connect(credentials domain.ConnectConfig) error {
	s.mu.Lock()
	if s.state != domain.StateClosed {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: session is already %s", domain.ErrConnection, state)
	}
	s.credentials = credentials
	s.setState(domain.StateConnecting)
	s.mu.Unlock()

	logger := s.l.WithFields(logrus.Fields{"server": credentials.Address, "user": credentials.User})
	logger.Debug("Connecting")

	transport, err := s.dialer.Dial(credentials)
	if err != nil {
		s.transition(domain.StateClosed)
		return fmt.Errorf("%w: could not dial %s: %w", domain.ErrConnection, credentials.Address, err)
	}
	s.transition(domain.StateConnected)

	err = transport.Login(credentials.User, credentials.Password)
	if err != nil {
		logoutErr := transport.Logout()
		if logoutErr != nil {
			logger.WithField("error", logoutErr).Debug("Could not log out after failed login")
		}
		s.transition(domain.StateClosed)
		return fmt.Errorf("%w: could not login as %s: %w", domain.ErrConnection, credentials.User, err)
	}

	loggedOut := transport.LoggedOut()

	s.mu.Lock()
	s.transport = transport
	s.selected = nil
	s.lastFolder = ""
	s.setState(domain.StateLoggedIn)
	s.mu.Unlock()

	go s.watch(transport, loggedOut)

	logger.Info("Logged in")
	return nil
}

// watch closes the session when the connection ends, whatever the reason.
func (s *Session) watch(transport domain.Transport, loggedOut <-chan struct{}) {
	<-loggedOut

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != transport {
		return
	}

	s.transport = nil
	s.selected = nil
	s.setState(domain.StateClosed)
	s.l.Info("Connection ended")
}

func (s *Session) ListFolders() ([]*domain.Folder, error) {
	transport, err := s.loggedIn()
	if err != nil {
		return nil, err
	}

	infos, err := transport.ListFolders()
	if err != nil {
		return nil, fmt.Errorf("%w: could not list folders: %w", domain.ErrProtocol, err)
	}

	folders := make([]*domain.Folder, 0, len(infos))
	for _, info := range infos {
		folders = append(folders, &domain.Folder{
			Name:       info.Name,
			Delimiter:  info.Delimiter,
			Attributes: info.Attributes,
			NoSelect:   hasAttribute(info.Attributes, imap.NoSelectAttr),
		})
	}

	s.l.WithField("folders", len(folders)).Debug("Listed folders")
	return folders, nil
}

// FolderStatus asks for the size and uid validity of a folder without selecting it.
func (s *Session) FolderStatus(folder string) (*domain.FolderStatus, error) {
	transport, err := s.loggedIn()
	if err != nil {
		return nil, err
	}

	status, err := transport.FolderStatus(folder)
	if err != nil {
		return nil, fmt.Errorf("%w: could not get status of %s: %w", domain.ErrProtocol, folder, err)
	}

	return status, nil
}

// GetHeaders fetches the address, subject, date and message id headers from start to the newest message.
func (s *Session) GetHeaders(ctx context.Context, folder string, start uint32) ([]*domain.Message, error) {
	return s.fetchFolder(ctx, folderFetch{
		folder:   folder,
		readOnly: true,
		request:  domain.FetchRequest{Range: domain.From(start), Selector: domain.SelectHeaders},
	})
}

// GetMessages fetches full messages from start to the newest message. The folder is closed afterwards which
// expunges messages flagged as deleted.
func (s *Session) GetMessages(ctx context.Context, folder string, start uint32) ([]*domain.Message, error) {
	return s.fetchFolder(ctx, folderFetch{
		folder:  folder,
		expunge: true,
		request: domain.FetchRequest{Range: domain.From(start), Selector: domain.SelectFull},
	})
}

func (s *Session) GetInboxMessages(ctx context.Context, start uint32) ([]*domain.Message, error) {
	return s.GetMessages(ctx, Inbox, start)
}

// GetFlags fetches uid and flags only, the returned messages carry no headers or body.
func (s *Session) GetFlags(ctx context.Context, folder string, r domain.Range) ([]*domain.Message, error) {
	return s.fetchFolder(ctx, folderFetch{
		folder:   folder,
		readOnly: true,
		request:  domain.FetchRequest{Range: r, Selector: domain.SelectFlags},
	})
}

// DeleteMessage flags the message with the given uid as deleted in the folder opened last. The folder is selected
// writable again if a read closed it.
func (s *Session) DeleteMessage(id uint32) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	transport, err := s.loggedIn()
	if err != nil {
		return err
	}

	folder := s.lastOpenedFolder()
	if len(folder) == 0 {
		return fmt.Errorf("%w: cannot delete message %d", domain.ErrNoFolder, id)
	}

	err = s.ensureWritable(transport, folder)
	if err != nil {
		return err
	}

	return s.flagDeleted(transport, id)
}

// DeleteMessageIn flags the message as deleted in folder, selecting it writable when necessary.
func (s *Session) DeleteMessageIn(folder string, id uint32) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	transport, err := s.loggedIn()
	if err != nil {
		return err
	}

	err = s.ensureWritable(transport, folder)
	if err != nil {
		return err
	}

	return s.flagDeleted(transport, id)
}

// MoveMessage moves the message with the given uid from folder to dest.
func (s *Session) MoveMessage(folder string, id uint32, dest string) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	transport, err := s.loggedIn()
	if err != nil {
		return err
	}

	err = s.ensureWritable(transport, folder)
	if err != nil {
		return err
	}

	err = transport.Move(id, dest)
	if err != nil {
		return fmt.Errorf("%w: could not move message %d to %s: %w", domain.ErrProtocol, id, dest, err)
	}

	s.l.WithFields(logrus.Fields{"folder": folder, "uid": id, "destination": dest}).Info("Moved message")
	return nil
}

// CloseSession closes the selected folder, expunging deleted messages, and logs out. Errors while closing the
// folder are only logged.
func (s *Session) CloseSession() error {
	s.ops.Lock()
	defer s.ops.Unlock()

	transport, err := s.loggedIn()
	if err != nil {
		return err
	}

	if selected := s.selectedFolder(); selected != nil {
		err = transport.CloseFolder(true)
		if err != nil {
			s.l.WithFields(logrus.Fields{"folder": selected.Name, "error": err}).Warn("Could not close folder")
		}
	}

	s.mu.Lock()
	s.transport = nil
	s.selected = nil
	s.setState(domain.StateClosed)
	s.mu.Unlock()

	err = transport.Logout()
	if err != nil {
		return fmt.Errorf("%w: could not log out: %w", domain.ErrConnection, err)
	}

	s.l.Info("Logged out")
	return nil
}

type folderFetch struct {
	folder   string
	readOnly bool
	expunge  bool
	request  domain.FetchRequest
}

// fetchFolder opens the folder, fetches and decodes the request and closes the folder again.
func (s *Session) fetchFolder(ctx context.Context, ff folderFetch) ([]*domain.Message, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	transport, err := s.loggedIn()
	if err != nil {
		return nil, err
	}

	// reject broken ranges before talking to the server
	_, err = sequenceSet(ff.request.Range)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger := s.l.WithFields(logrus.Fields{"folder": ff.folder, "selector": ff.request.Selector})

	status, err := s.open(transport, ff.folder, ff.readOnly)
	if err != nil {
		return nil, err
	}

	messages, err := s.fetchAndAssemble(ctx, transport, status, ff.request)
	if err != nil && isAbandoned(err) {
		// the abandoned fetch still owns the connection, the selection is unknown until the next open
		s.mu.Lock()
		s.selected = nil
		s.mu.Unlock()
		logger.WithField("error", err).Warn("Not closing folder after abandoned fetch")
		return nil, err
	}

	closeErr := s.closeFolder(transport, ff.expunge)
	if closeErr != nil {
		logger.WithField("error", closeErr).Warn("Could not close folder")
	}
	if err != nil {
		return nil, err
	}

	metrics.FetchDuration.WithLabelValues(ff.request.Selector.String()).Observe(time.Since(start).Seconds())
	logger.WithFields(logrus.Fields{"messages": len(messages), "duration": time.Since(start)}).Debug("Fetched messages")
	return messages, nil
}

func (s *Session) fetchAndAssemble(ctx context.Context, transport domain.Transport, status *domain.FolderStatus, request domain.FetchRequest) ([]*domain.Message, error) {
	r, ok := clampRange(request.Range, status.Messages)
	if !ok {
		s.l.WithFields(logrus.Fields{"folder": status.Name, "messages": status.Messages, "start": request.Range.Start}).Debug("No messages in range")
		return []*domain.Message{}, nil
	}
	request.Range = r

	records, err := s.fetcher.fetch(ctx, transport, request)
	if err != nil {
		return nil, err
	}

	return s.assembler.assemble(ctx, records, s.deleterFor(status.Name))
}

// deleterFor binds deletion to the session, the state is checked when the message is deleted.
func (s *Session) deleterFor(folder string) deleteBinder {
	return func(uid uint32) func() error {
		return func() error {
			return s.DeleteMessageIn(folder, uid)
		}
	}
}

func (s *Session) open(transport domain.Transport, folder string, readOnly bool) (*domain.FolderStatus, error) {
	status, err := transport.OpenFolder(folder, readOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open folder %s: %w", domain.ErrProtocol, folder, err)
	}

	selected := &domain.FolderStatus{}
	if status != nil {
		*selected = *status
	}
	selected.Name = folder
	selected.ReadOnly = selected.ReadOnly || readOnly

	s.mu.Lock()
	s.selected = selected
	s.lastFolder = folder
	s.mu.Unlock()

	s.l.WithFields(logrus.Fields{"folder": folder, "readonly": selected.ReadOnly, "messages": selected.Messages}).Debug("Opened folder")
	return selected, nil
}

func (s *Session) ensureWritable(transport domain.Transport, folder string) error {
	selected := s.selectedFolder()
	if selected != nil && selected.Name == folder && !selected.ReadOnly {
		return nil
	}

	_, err := s.open(transport, folder, false)
	return err
}

func (s *Session) closeFolder(transport domain.Transport, expunge bool) error {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()

	err := transport.CloseFolder(expunge)
	if err != nil {
		return fmt.Errorf("%w: could not close folder: %w", domain.ErrProtocol, err)
	}
	return nil
}

func (s *Session) flagDeleted(transport domain.Transport, id uint32) error {
	err := transport.AddFlag(id, imap.DeletedFlag)
	if err != nil {
		return fmt.Errorf("%w: could not flag message %d as deleted: %w", domain.ErrProtocol, id, err)
	}

	s.l.WithField("uid", id).Debug("Flagged message as deleted")
	return nil
}

func (s *Session) loggedIn() (domain.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateLoggedIn || s.transport == nil {
		return nil, fmt.Errorf("%w: session is %s", domain.ErrNotAuthenticated, s.state)
	}
	return s.transport, nil
}

func (s *Session) selectedFolder() *domain.FolderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) lastOpenedFolder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFolder
}

func (s *Session) transition(state domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(state)
}

// setState must be called with mu held
func (s *Session) setState(state domain.State) {
	s.l.WithFields(logrus.Fields{"from": s.state, "to": state}).Debug("State change")
	s.state = state
	metrics.StateTransitions.WithLabelValues(state.String()).Inc()
}

func hasAttribute(attributes []string, attribute string) bool {
	for _, a := range attributes {
		if strings.EqualFold(a, attribute) {
			return true
		}
	}
	return false
}
