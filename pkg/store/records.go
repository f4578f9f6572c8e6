// Copyright 2024-2026 Aiku AI

package store

import "time"

// Document kinds. Each kind maps to one logical collection in the
// underlying document store.
const (
	KindSession    = "sessions"
	KindTranscript = "transcripts"
	KindInsight    = "insights"
	KindBlacklist  = "blacklist"
	KindConfig     = "config"
)

// Session is the persisted link between one user's direct messages and
// one staff relay channel. At most one session exists per user and per
// relay channel; presence in the store is authoritative.
type Session struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	EndpointID  string `json:"endpoint_id"`
	CommunityID string `json:"community_id"`
}

// TranscriptRecord is one audit row per routed or commented message,
// keyed by the originating message id. Rows are append-only except for
// content rewrites when the same message is edited, and they outlive
// the session they belong to.
type TranscriptRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CommunityID string    `json:"community_id"`
	Kind        string    `json:"kind"`
	Comment     bool      `json:"comment,omitempty"`
}

// InsightRecord is the derived activity summary for one high-activity
// session. It is stored under the session id, so repeated upserts can
// never produce a duplicate.
type InsightRecord struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	Member       string `json:"member"`
	Messages     int    `json:"messages"`
	Participants int    `json:"participants"`
	Date         int64  `json:"date"`
	CommunityID  string `json:"community_id"`
	Tagline      string `json:"tagline"`
	URL          string `json:"url"`
}

// BlacklistEntry blocks a user from a command. An empty CommunityID
// matches every community; the command "all" matches every command.
// Entries are owned by external moderation tooling and read-only here.
type BlacklistEntry struct {
	CommunityID string `json:"community_id"`
	UserID      string `json:"user_id"`
	Command     string `json:"command"`
}

// CommunityConfig is the per-community settings map read by the bot.
// Known keys: modmailchannel (relay category), transcriptchannel,
// prioritymail (alert group), modmailtyping ("true" enables the
// staff-to-user typing relay). The bot never writes these.
type CommunityConfig struct {
	CommunityID string            `json:"community_id"`
	Settings    map[string]string `json:"settings"`
}
