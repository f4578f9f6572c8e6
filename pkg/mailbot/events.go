// Copyright 2024-2026 Aiku AI

package mailbot

import "time"

// Attachment is one file carried by an inbound message.
type Attachment struct {
	URL  string
	Name string
}

// MessageEvent is a new or edited message as seen by the router.
// Direct is true for messages in a direct-message channel with the
// bot; everything else is treated as a staff-side channel message.
type MessageEvent struct {
	ID          string
	ChannelID   string
	UserID      string
	UserName    string
	AvatarURL   string
	Content     string
	Attachments []Attachment
	Direct      bool
	FromBot     bool
	Timestamp   time.Time
}

// TypingEvent is a typing notification.
type TypingEvent struct {
	UserID    string
	ChannelID string
	Direct    bool
}

// ActionEvent is a button press or select-menu choice delivered through
// the interactive callback endpoint. Value carries the selected option
// for menus and is empty for buttons.
type ActionEvent struct {
	UserID    string
	ChannelID string
	TriggerID string
	Token     string
	Value     string
}

// FormEvent is a submitted interactive dialog.
type FormEvent struct {
	UserID    string
	ChannelID string
	Token     string
	Values    map[string]string
}

// ActionReply is the optional ephemeral response to an ActionEvent,
// shown only to the acting user.
type ActionReply struct {
	Ephemeral string
}
