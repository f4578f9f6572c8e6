// Copyright 2024-2026 Aiku AI

// Package mailbot implements a mod-mail bot for Mattermost: each user
// who asks for help over a direct message gets a private staff relay
// channel, messages are forwarded in both directions, and the whole
// exchange is journaled for audit.
//
// # Core Types
//
// [Bot] is the session engine. It classifies inbound events (messages,
// edits, typing, interactive actions, dialog submissions), owns the
// [Registry] of active sessions, and drives forwarding, transcript
// journaling and activity insights. It only ever talks to the
// [Gateway] port, so every routing rule is testable without a server.
//
// [Client] maintains the Mattermost connection: token verification,
// the WebSocket event loop with reconnect, and translation of raw
// WebSocket events into engine events.
//
// [CallbackServer] receives interactive message actions and dialog
// submissions over HTTP and feeds them to the dispatcher.
//
// # Echo Prevention
//
// The bot's own posts, reactions and typing events must never be
// routed back through the engine. The Client filters its own user id
// and webhook-originated posts before anything reaches the router;
// these checks must not be removed.
package mailbot
