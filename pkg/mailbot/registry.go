// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/modmail/pkg/store"
)

// Registry owns the active-session index, keyed by user id and by
// relay-channel id. Presence in the registry is authoritative for
// "is this user/channel currently in mod-mail". All access goes
// through the mutex; handlers run concurrently.
type Registry struct {
	log   zerolog.Logger
	gw    Gateway
	store *store.Store

	mu        sync.Mutex
	byUser    map[string]*store.Session
	byChannel map[string]*store.Session
	// pending holds user ids with a session start in flight, so two
	// near-simultaneous triggers from the same user cannot race past
	// the existence check while the first start is suspended on I/O.
	pending map[string]struct{}
}

// NewRegistry creates an empty registry. Call Load to rebuild the
// index from the store.
func NewRegistry(gw Gateway, st *store.Store, log zerolog.Logger) *Registry {
	return &Registry{
		log:       log.With().Str("component", "registry").Logger(),
		gw:        gw,
		store:     st,
		byUser:    make(map[string]*store.Session),
		byChannel: make(map[string]*store.Session),
		pending:   make(map[string]struct{}),
	}
}

// Load rebuilds the in-memory index from persisted sessions.
func (r *Registry) Load(ctx context.Context) error {
	sessions, err := r.store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range sessions {
		r.byUser[sess.UserID] = sess
		r.byChannel[sess.ChannelID] = sess
	}
	return nil
}

// ByUser returns the active session for a user, or nil.
func (r *Registry) ByUser(userID string) *store.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byUser[userID]
}

// ByChannel returns the session tracking a relay channel, or nil.
func (r *Registry) ByChannel(channelID string) *store.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byChannel[channelID]
}

// ByID returns the active session with the given id, or nil.
func (r *Registry) ByID(id string) *store.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range r.byUser {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// reserve marks a session start in flight for the user. It fails with
// ErrAlreadyActive when the user has an active session or another
// start is already in flight.
func (r *Registry) reserve(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, active := r.byUser[userID]; active {
		return ErrAlreadyActive
	}
	if _, inflight := r.pending[userID]; inflight {
		return ErrAlreadyActive
	}
	r.pending[userID] = struct{}{}
	return nil
}

func (r *Registry) release(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, userID)
}

// StartSession creates a relay channel and posting endpoint for the
// user in the given community, persists the session and indexes it.
// Failure causes, checked in order: ErrNoCommunity, ErrAlreadyActive,
// ErrNotConfigured, ErrCategoryInvalid. Partially created platform
// resources are unwound best-effort on failure.
func (r *Registry) StartSession(ctx context.Context, userID, userName, communityID string) (*store.Session, error) {
	if _, err := r.gw.CommunityByID(ctx, communityID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCommunity, communityID)
	}

	if err := r.reserve(userID); err != nil {
		return nil, err
	}
	defer r.release(userID)

	cfgs, err := r.store.CommunityConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load community configs: %w", err)
	}
	categoryID, ok := cfgs[communityID][cfgRelayCategory]
	if !ok || categoryID == "" {
		return nil, ErrNotConfigured
	}

	kind, err := r.gw.ChannelKind(ctx, communityID, categoryID)
	if err != nil || kind != ChannelCategory {
		return nil, ErrCategoryInvalid
	}

	channelID, err := r.gw.CreateRelayChannel(ctx, communityID, categoryID, relayChannelName(userName))
	if err != nil {
		return nil, fmt.Errorf("failed to create relay channel: %w", err)
	}

	endpointID, err := r.gw.CreateEndpoint(ctx, channelID, userName)
	if err != nil {
		r.teardownChannel(ctx, channelID)
		return nil, fmt.Errorf("failed to create posting endpoint: %w", err)
	}

	sess := &store.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChannelID:   channelID,
		EndpointID:  endpointID,
		CommunityID: communityID,
	}
	if err := r.store.InsertSession(ctx, sess); err != nil {
		r.teardownChannel(ctx, channelID)
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	r.mu.Lock()
	r.byUser[sess.UserID] = sess
	r.byChannel[sess.ChannelID] = sess
	r.mu.Unlock()

	r.log.Info().
		Str("session_id", sess.ID).
		Str("user_id", userID).
		Str("channel_id", channelID).
		Str("community_id", communityID).
		Msg("Session started")
	return sess, nil
}

// CloseSession removes the session from the index, deletes the
// persisted record and tears down the relay channel. Channel deletion
// is advisory cleanup: its failure is logged and does not roll back
// the record deletion.
func (r *Registry) CloseSession(ctx context.Context, sess *store.Session) error {
	r.mu.Lock()
	delete(r.byUser, sess.UserID)
	delete(r.byChannel, sess.ChannelID)
	r.mu.Unlock()

	if err := r.store.DeleteSession(ctx, sess.ID); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}

	if err := r.gw.DeleteChannel(ctx, sess.ChannelID); err != nil {
		r.log.Warn().Err(err).
			Str("session_id", sess.ID).
			Str("channel_id", sess.ChannelID).
			Msg("Failed to delete relay channel")
	}

	r.log.Info().Str("session_id", sess.ID).Str("user_id", sess.UserID).Msg("Session closed")
	return nil
}

func (r *Registry) teardownChannel(ctx context.Context, channelID string) {
	if err := r.gw.DeleteChannel(ctx, channelID); err != nil {
		r.log.Warn().Err(err).Str("channel_id", channelID).Msg("Failed to clean up relay channel")
	}
}

// relayChannelName derives the relay channel name deterministically
// from the user's name, sanitized to the platform's channel-name
// charset.
func relayChannelName(userName string) string {
	name := strings.ToLower(userName)
	var sb strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			sb.WriteRune(c)
		default:
			sb.WriteRune('-')
		}
	}
	return "modmail-" + sb.String()
}
