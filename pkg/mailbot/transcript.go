// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"
	"fmt"
	"time"

	"github.com/aiku/modmail/pkg/store"
)

// saveTranscriptPointer posts a transcript link for the session into
// the community's configured transcript channel. The transcript rows
// themselves are already in the store and survive session close; this
// only leaves a staff-visible pointer.
func (b *Bot) saveTranscriptPointer(ctx context.Context, sess *store.Session, actorID string) {
	settings := b.communitySettings(ctx, sess.CommunityID)
	channelID := settings[cfgTranscriptChannel]
	if channelID == "" {
		b.log.Warn().
			Str("session_id", sess.ID).
			Str("community_id", sess.CommunityID).
			Msg("No transcript channel configured, skipping transcript pointer")
		return
	}

	userName, _, err := b.gw.UserDisplay(ctx, sess.UserID)
	if err != nil {
		userName = sess.UserID
	}
	actorName, _, err := b.gw.UserDisplay(ctx, actorID)
	if err != nil {
		actorName = actorID
	}

	desc := fmt.Sprintf(
		"**Modmail with:** @%s\n**Saved** at %s **by** @%s\n\n[Transcript](%s)",
		userName,
		time.Now().UTC().Format(time.RFC1123),
		actorName,
		b.transcriptURL(sess),
	)
	err = b.gw.SendChannel(ctx, channelID, &OutgoingMessage{Embed: &Embed{
		Title:       "Modmail Transcript",
		Description: desc,
	}})
	if err != nil {
		b.log.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to post transcript pointer")
	}
}

func (b *Bot) transcriptURL(sess *store.Session) string {
	return fmt.Sprintf("%s/%s/transcripts/%s", b.hostedURL, sess.CommunityID, sess.ID)
}
