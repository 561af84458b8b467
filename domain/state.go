// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "fmt"

type State int

const (
	StateClosed     = State(0)
	StateConnecting = State(1)
	StateConnected  = State(3)
	StateLoggedIn   = State(4)
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLoggedIn:
		return "logged in"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
