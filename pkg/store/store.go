// Copyright 2024-2026 Aiku AI

// Package store persists mod-mail state as JSON documents grouped by
// kind. The Documents interface is the raw persistence port; Store
// layers the typed operations the bot uses on top of it. Two Documents
// implementations ship with the package: a mutex-guarded in-memory map
// and a SQLite database managed with dbutil.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document addressed by (kind, id) does
// not exist.
var ErrNotFound = errors.New("store: document not found")

// Documents is the abstract document store consumed by Store. Every
// operation is atomic at single-document granularity; there are no
// multi-document transactions.
type Documents interface {
	FetchAll(ctx context.Context, kind string) ([]json.RawMessage, error)
	Get(ctx context.Context, kind, id string) (json.RawMessage, error)
	Insert(ctx context.Context, kind, id string, doc any) error
	Update(ctx context.Context, kind, id string, doc any) error
	Upsert(ctx context.Context, kind, id string, doc any) error
	Delete(ctx context.Context, kind, id string) error
}

// Store exposes the typed collections of the mod-mail engine over an
// abstract document store.
type Store struct {
	docs Documents
}

// New wraps a Documents implementation in the typed Store API.
func New(docs Documents) *Store {
	return &Store{docs: docs}
}

func fetchAll[T any](ctx context.Context, docs Documents, kind string) ([]*T, error) {
	raws, err := docs.FetchAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", kind, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

// Sessions returns every persisted session.
func (s *Store) Sessions(ctx context.Context) ([]*Session, error) {
	return fetchAll[Session](ctx, s.docs, KindSession)
}

// InsertSession persists a newly created session.
func (s *Store) InsertSession(ctx context.Context, sess *Session) error {
	return s.docs.Insert(ctx, KindSession, sess.ID, sess)
}

// DeleteSession removes a session record. Transcript rows are kept.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.docs.Delete(ctx, KindSession, id)
}

// Transcripts returns all transcript rows belonging to a session.
func (s *Store) Transcripts(ctx context.Context, sessionID string) ([]*TranscriptRecord, error) {
	all, err := fetchAll[TranscriptRecord](ctx, s.docs, KindTranscript)
	if err != nil {
		return nil, err
	}
	rows := make([]*TranscriptRecord, 0, len(all))
	for _, rec := range all {
		if rec.SessionID == sessionID {
			rows = append(rows, rec)
		}
	}
	return rows, nil
}

// InsertTranscript appends a transcript row keyed by message id.
func (s *Store) InsertTranscript(ctx context.Context, rec *TranscriptRecord) error {
	return s.docs.Insert(ctx, KindTranscript, rec.ID, rec)
}

// UpdateTranscriptContent rewrites the content of the row keyed by the
// given message id. Returns ErrNotFound when no such row exists.
func (s *Store) UpdateTranscriptContent(ctx context.Context, messageID, content string) error {
	raw, err := s.docs.Get(ctx, KindTranscript, messageID)
	if err != nil {
		return err
	}
	var rec TranscriptRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("failed to decode transcript document: %w", err)
	}
	rec.Content = content
	return s.docs.Update(ctx, KindTranscript, rec.ID, &rec)
}

// InsightBySession returns the insight record for a session, or
// (nil, nil) when the session has none yet.
func (s *Store) InsightBySession(ctx context.Context, sessionID string) (*InsightRecord, error) {
	raw, err := s.docs.Get(ctx, KindInsight, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var rec InsightRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode insight document: %w", err)
	}
	return &rec, nil
}

// UpsertInsight creates or replaces the insight record for a session.
// The document id is the session id, so the upsert enforces the
// one-record-per-session identity.
func (s *Store) UpsertInsight(ctx context.Context, rec *InsightRecord) error {
	return s.docs.Upsert(ctx, KindInsight, rec.SessionID, rec)
}

// Blacklist returns a snapshot of every blacklist entry.
func (s *Store) Blacklist(ctx context.Context) ([]*BlacklistEntry, error) {
	return fetchAll[BlacklistEntry](ctx, s.docs, KindBlacklist)
}

// CommunityConfigs returns the per-community settings maps keyed by
// community id.
func (s *Store) CommunityConfigs(ctx context.Context) (map[string]map[string]string, error) {
	all, err := fetchAll[CommunityConfig](ctx, s.docs, KindConfig)
	if err != nil {
		return nil, err
	}
	cfgs := make(map[string]map[string]string, len(all))
	for _, cfg := range all {
		cfgs[cfg.CommunityID] = cfg.Settings
	}
	return cfgs, nil
}
