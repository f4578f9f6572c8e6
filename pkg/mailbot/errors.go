// Copyright 2024-2026 Aiku AI

package mailbot

import "errors"

// Session-start failures, checked in this order by the Registry. All
// of them are reported to the initiating user and leave no session
// behind.
var (
	ErrNoCommunity     = errors.New("modmail: community not resolvable")
	ErrAlreadyActive   = errors.New("modmail: user already has an active session")
	ErrNotConfigured   = errors.New("modmail: community has no relay category configured")
	ErrCategoryInvalid = errors.New("modmail: configured relay category is not a category channel")
)

// startFailureText maps a session-start failure to the message shown
// to the initiating user.
func startFailureText(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyActive):
		return "You already have an open modmail session"
	case errors.Is(err, ErrNoCommunity), errors.Is(err, ErrNotConfigured), errors.Is(err, ErrCategoryInvalid):
		return "This server is not set up for modmail"
	default:
		return "Failed to create the modmail session"
	}
}
