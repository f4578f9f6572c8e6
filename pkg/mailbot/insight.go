// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/modmail/pkg/store"
)

// Activity thresholds for creating an insight record. Both are strict:
// a session qualifies with more than 30 messages or more than 5
// distinct participants.
const (
	insightMessageThreshold     = 30
	insightParticipantThreshold = 5
)

const insightType = "modmail"

// Aggregator derives session-level activity metrics from transcript
// rows. Once a session crosses an activity threshold it gets exactly
// one insight record; all later activity updates that record in place.
type Aggregator struct {
	log   zerolog.Logger
	store *store.Store
}

// Gather recomputes the session's message and participant counts and
// creates or updates its insight record. Safe to call on every
// forwarded message; the upsert is idempotent.
func (a *Aggregator) Gather(ctx context.Context, sess *store.Session) error {
	rows, err := a.store.Transcripts(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to load transcripts: %w", err)
	}

	messages := len(rows)
	senders := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		senders[row.SenderID] = struct{}{}
	}
	participants := len(senders)

	existing, err := a.store.InsightBySession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to load insight: %w", err)
	}
	if existing != nil {
		existing.Messages = messages
		existing.Participants = participants
		existing.Date = time.Now().Unix()
		return a.store.UpsertInsight(ctx, existing)
	}

	if messages <= insightMessageThreshold && participants <= insightParticipantThreshold {
		return nil
	}

	rec := &store.InsightRecord{
		ID:           uuid.NewString(),
		Type:         insightType,
		SessionID:    sess.ID,
		Member:       sess.UserID,
		Messages:     messages,
		Participants: participants,
		Date:         time.Now().Unix(),
		CommunityID:  sess.CommunityID,
		Tagline:      "Modmail has high activity",
		URL:          fmt.Sprintf("/%s/transcripts/%s", sess.CommunityID, sess.ID),
	}
	a.log.Info().
		Str("session_id", sess.ID).
		Int("messages", messages).
		Int("participants", participants).
		Msg("Session crossed activity threshold")
	return a.store.UpsertInsight(ctx, rec)
}
