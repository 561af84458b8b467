// SPDX-License-Identifier: GPL-3.0-or-later
package session

import (
	"strings"

	"github.com/CrawX/go-imap-mailstore/domain"

	"github.com/emersion/go-imap"
)

const NewFlag = "\\New"

// keys are lower case, imap flags are case-insensitive
var flagFields = map[string]func(f *domain.Flags){
	strings.ToLower(imap.AnsweredFlag): func(f *domain.Flags) { f.Answered = true },
	strings.ToLower(imap.DeletedFlag):  func(f *domain.Flags) { f.Deleted = true },
	strings.ToLower(imap.DraftFlag):    func(f *domain.Flags) { f.Draft = true },
	strings.ToLower(imap.FlaggedFlag):  func(f *domain.Flags) { f.Flagged = true },
	strings.ToLower(NewFlag):           func(f *domain.Flags) { f.New = true },
	strings.ToLower(imap.RecentFlag):   func(f *domain.Flags) { f.Recent = true },
	strings.ToLower(imap.SeenFlag):     func(f *domain.Flags) { f.Seen = true },
}

// ParseFlags maps flag tokens to the message status fields, unknown tokens and keywords are ignored.
func ParseFlags(tokens []string) domain.Flags {
	flags := domain.Flags{}
	for _, token := range tokens {
		if set, ok := flagFields[strings.ToLower(token)]; ok {
			set(&flags)
		}
	}
	return flags
}
