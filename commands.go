// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/CrawX/go-imap-mailstore/config"
	"github.com/CrawX/go-imap-mailstore/domain"
	"github.com/CrawX/go-imap-mailstore/log"
	"github.com/CrawX/go-imap-mailstore/mail"
	"github.com/CrawX/go-imap-mailstore/persistence"
	"github.com/CrawX/go-imap-mailstore/session"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var out io.Writer = os.Stdout

func cmdFolders() *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List all folders of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, conf *config.Config, s *session.Session) error {
				folders, err := s.ListFolders()
				if err != nil {
					return err
				}
				printFolders(out, folders)
				return nil
			})
		},
	}
}

func cmdStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status FOLDER",
		Short: "Show number of messages and uid validity of a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, conf *config.Config, s *session.Session) error {
				status, err := s.FolderStatus(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\tmessages=%d\tuidvalidity=%d\tuidnext=%d\n", args[0], status.Messages, status.UidValidity, status.UidNext)
				return nil
			})
		},
	}
}

func cmdHeaders() *cobra.Command {
	return &cobra.Command{
		Use:     "headers FOLDER START",
		Short:   "Print the headers of all messages from sequence number START on",
		Example: "go-imap-mailstore headers INBOX 1",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseUint32(args[1], "START")
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, conf *config.Config, s *session.Session) error {
				messages, err := s.GetHeaders(ctx, args[0], start)
				if err != nil {
					return err
				}
				printMessages(out, messages, false)
				return nil
			})
		},
	}
}

func cmdMessages() *cobra.Command {
	var resume bool

	c := &cobra.Command{
		Use:   "messages FOLDER [START]",
		Short: "Print all messages from sequence number START on",
		Long: `Print all messages from sequence number START on.

With --resume START is taken from the checkpoint of the previous run and the checkpoint is
moved behind the last printed message. Checkpoints are kept in the configured Database.`,
		Example: "go-imap-mailstore messages --resume Archive",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !resume && len(args) < 2 {
				return fmt.Errorf("START is required without --resume")
			}

			start := uint32(1)
			if len(args) == 2 {
				var err error
				start, err = parseUint32(args[1], "START")
				if err != nil {
					return err
				}
			}

			return withSession(func(ctx context.Context, conf *config.Config, s *session.Session) error {
				if !resume {
					messages, err := s.GetMessages(ctx, args[0], start)
					if err != nil {
						return err
					}
					printMessages(out, messages, true)
					return nil
				}

				return resumeMessages(ctx, conf, s, args[0])
			})
		},
	}
	c.Flags().BoolVar(&resume, "resume", false, "continue after the last message printed by a previous run")

	return c
}

func resumeMessages(ctx context.Context, conf *config.Config, s *session.Session, folder string) error {
	p, err := persistence.NewPersistence(conf.Database)
	if err != nil {
		return err
	}
	defer p.Close()

	status, err := s.FolderStatus(folder)
	if err != nil {
		return err
	}
	status.Name = folder

	tracker := persistence.NewTracker(p, s.Account())
	position, err := tracker.Start(status)
	if err != nil {
		return err
	}

	messages, err := s.GetMessages(ctx, folder, position.SeqNum)
	if err != nil {
		return err
	}
	unseen := position.Unseen(messages)
	printMessages(out, unseen, true)

	log.Logger(log.LOG_MAIN).WithFields(logrus.Fields{"folder": folder, "start": position.SeqNum, "messages": len(unseen)}).Info("Resumed folder")
	return tracker.Advance(status, messages)
}

func cmdInbox() *cobra.Command {
	return &cobra.Command{
		Use:   "inbox START",
		Short: "Print all INBOX messages from sequence number START on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseUint32(args[0], "START")
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, conf *config.Config, s *session.Session) error {
				messages, err := s.GetInboxMessages(ctx, start)
				if err != nil {
					return err
				}
				printMessages(out, messages, true)
				return nil
			})
		},
	}
}

func cmdFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "flags FOLDER START [STOP]",
		Short: "Print uid and flags of messages START to STOP, STOP defaults to the newest message",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Range{}
			var err error
			r.Start, err = parseUint32(args[1], "START")
			if err != nil {
				return err
			}
			if len(args) == 3 {
				r.Stop, err = parseUint32(args[2], "STOP")
				if err != nil {
					return err
				}
			}

			return withSession(func(ctx context.Context, conf *config.Config, s *session.Session) error {
				messages, err := s.GetFlags(ctx, args[0], r)
				if err != nil {
					return err
				}
				for _, m := range messages {
					fmt.Fprintf(out, "%d\t%d\t%s\n", m.SeqNum, m.Id, flagString(m.Flags))
				}
				return nil
			})
		},
	}
}

func cmdDelete() *cobra.Command {
	return &cobra.Command{
		Use:   "delete FOLDER UID",
		Short: "Delete the message with the given uid, it is expunged when the session closes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUint32(args[1], "UID")
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, conf *config.Config, s *session.Session) error {
				return s.DeleteMessageIn(args[0], uid)
			})
		},
	}
}

func cmdMove() *cobra.Command {
	return &cobra.Command{
		Use:   "move FOLDER UID DEST",
		Short: "Move the message with the given uid to folder DEST",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUint32(args[1], "UID")
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, conf *config.Config, s *session.Session) error {
				return s.MoveMessage(args[0], uid, args[2])
			})
		},
	}
}

func parseUint32(s, name string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be a positive number: %w", name, err)
	}
	return uint32(v), nil
}

func printFolders(w io.Writer, folders []*domain.Folder) {
	for _, f := range folders {
		selectable := ""
		if f.NoSelect {
			selectable = " (not selectable)"
		}
		fmt.Fprintf(w, "%s%s\t%s\n", f.Name, selectable, strings.Join(f.Attributes, " "))
	}
}

func printMessages(w io.Writer, messages []*domain.Message, withBody bool) {
	for _, m := range messages {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			m.SeqNum, m.Id, flagString(m.Flags), m.Date.Format("2006-01-02 15:04"), addresses(m.From), mail.ShortSubject(m.Subject))

		if !withBody {
			continue
		}
		if len(m.Text) > 0 {
			fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(m.Text))
		}
		for _, a := range m.Attachments {
			fmt.Fprintf(w, "\tattachment %s (%s, %d bytes)\n", a.Filename, a.ContentType, a.Size)
		}
		fmt.Fprintln(w)
	}
}

func addresses(list []*domain.Address) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		if len(a.Name) > 0 {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Address))
		} else {
			parts = append(parts, a.Address)
		}
	}
	return strings.Join(parts, ", ")
}

func flagString(f domain.Flags) string {
	flags := []string{}
	for _, flag := range []struct {
		set  bool
		name string
	}{
		{f.Answered, "answered"},
		{f.Deleted, "deleted"},
		{f.Draft, "draft"},
		{f.Flagged, "flagged"},
		{f.New, "new"},
		{f.Recent, "recent"},
		{f.Seen, "seen"},
	} {
		if flag.set {
			flags = append(flags, flag.name)
		}
	}

	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
