// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "errors"

var (
	ErrConnection       = errors.New("connection error")
	ErrNotAuthenticated = errors.New("not logged in")
	ErrProtocol         = errors.New("protocol error")
	ErrDecode           = errors.New("decode error")
	ErrTimeout          = errors.New("timeout")

	ErrInvalidRange = errors.New("invalid range")
	ErrNoFolder     = errors.New("no folder selected")
)
