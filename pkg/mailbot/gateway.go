// Copyright 2024-2026 Aiku AI

package mailbot

import "context"

// ChannelKind classifies a platform channel for routing and
// configuration validation.
type ChannelKind int

const (
	ChannelUnknown ChannelKind = iota
	ChannelDirect
	ChannelText
	ChannelCategory
)

// Community is a staff community (a Mattermost team) the bot serves.
type Community struct {
	ID          string
	Name        string
	Description string
}

// Embed is a rich message card. The Mattermost gateway renders it as a
// message attachment.
type Embed struct {
	Title         string
	Description   string
	AuthorName    string
	AuthorIconURL string
	ImageURL      string
}

// Button is an interactive button carrying an action token.
type Button struct {
	Label string
	Token string
	Style string
}

// SelectOption is one choice in a select menu.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// SelectMenu is an interactive select menu carrying an action token;
// the chosen option's Value comes back in the ActionEvent.
type SelectMenu struct {
	Token       string
	Placeholder string
	Options     []SelectOption
}

// OutgoingMessage is a platform-neutral message the engine asks the
// gateway to deliver.
type OutgoingMessage struct {
	Text    string
	Embed   *Embed
	Buttons []Button
	Menu    *SelectMenu
}

// Form describes an interactive dialog with a single bounded text
// input, used for the ban confirmation flow.
type Form struct {
	Token       string
	Title       string
	Label       string
	Field       string
	Placeholder string
	MaxLength   int
}

// Gateway is the outbound platform port. The engine performs every
// side effect through it; the production implementation wraps the
// Mattermost REST API.
type Gateway interface {
	// BotUserID returns the bot's own user id, used for echo prevention.
	BotUserID() string

	UserDisplay(ctx context.Context, userID string) (name, avatarURL string, err error)
	Communities(ctx context.Context) ([]Community, error)
	CommunityByID(ctx context.Context, communityID string) (*Community, error)
	ChannelKind(ctx context.Context, communityID, channelID string) (ChannelKind, error)

	SendDirect(ctx context.Context, userID string, msg *OutgoingMessage) error
	SendChannel(ctx context.Context, channelID string, msg *OutgoingMessage) error
	SendEphemeral(ctx context.Context, userID, channelID, text string) error
	// SendViaEndpoint posts into the relay channel under the user's
	// display identity.
	SendViaEndpoint(ctx context.Context, endpointID, content, displayName, avatarURL string) error

	CreateRelayChannel(ctx context.Context, communityID, categoryID, name string) (channelID string, err error)
	CreateEndpoint(ctx context.Context, channelID, name string) (endpointID string, err error)
	DeleteChannel(ctx context.Context, channelID string) error

	ApplyBan(ctx context.Context, communityID, userID, reason string) error

	AddReaction(ctx context.Context, messageID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, emoji string) error

	TriggerTyping(ctx context.Context, channelID string) error
	TriggerDirectTyping(ctx context.Context, userID string) error

	OpenForm(ctx context.Context, triggerID string, form Form) error
}
