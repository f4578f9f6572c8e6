// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/aiku/modmail/pkg/store"
)

// Delivery feedback markers, by Mattermost emoji name.
const (
	reactionPending    = "outbox_tray"
	reactionDelivered  = "incoming_envelope"
	reactionFailed     = "red_circle"
	reactionEdit       = "pencil2"
	reactionEditFailed = "large_yellow_circle"
)

// commentPrefix marks a relay-channel message as staff-internal: it is
// journaled but never forwarded to the user.
const commentPrefix = "#"

// transcriptKind is the record kind written for relayed and commented
// messages.
const transcriptKind = "Modmail"

// triggerWords is the vocabulary that makes a session-less direct
// message eligible for the community picker.
var triggerWords = []string{"modmail", "mod", "mail"}

// HandleMessage routes a new inbound message.
func (b *Bot) HandleMessage(ctx context.Context, evt *MessageEvent) {
	if evt.FromBot {
		return
	}
	if evt.Direct {
		b.handleDirectMessage(ctx, evt)
		return
	}
	b.handleChannelMessage(ctx, evt)
}

// HandleEdit routes an edited message.
func (b *Bot) HandleEdit(ctx context.Context, evt *MessageEvent) {
	if evt.FromBot {
		return
	}
	if evt.Direct {
		b.handleUserEdit(ctx, evt)
		return
	}
	b.handleStaffEdit(ctx, evt)
}

// HandleTyping relays typing indicators between the two sides of a
// session. The staff-to-user direction is gated per community.
func (b *Bot) HandleTyping(ctx context.Context, evt *TypingEvent) {
	if evt.UserID == b.gw.BotUserID() {
		return
	}

	if evt.Direct {
		if sess := b.registry.ByUser(evt.UserID); sess != nil {
			if err := b.gw.TriggerTyping(ctx, sess.ChannelID); err != nil {
				b.log.Debug().Err(err).Str("session_id", sess.ID).Msg("Failed to relay typing to channel")
			}
		}
		return
	}

	sess := b.registry.ByChannel(evt.ChannelID)
	if sess == nil {
		return
	}
	if b.communitySettings(ctx, sess.CommunityID)[cfgTypingRelay] != "true" {
		return
	}
	if err := b.gw.TriggerDirectTyping(ctx, sess.UserID); err != nil {
		b.log.Debug().Err(err).Str("session_id", sess.ID).Msg("Failed to relay typing to user")
	}
}

func (b *Bot) handleDirectMessage(ctx context.Context, evt *MessageEvent) {
	sess := b.registry.ByUser(evt.UserID)
	if sess == nil {
		if !containsTrigger(evt.Content) {
			return
		}
		b.sendCommunityPicker(ctx, evt.UserID)
		return
	}

	b.addReaction(ctx, evt.ID, reactionPending)

	if strings.EqualFold(strings.TrimSpace(evt.Content), "close session") {
		b.saveTranscriptPointer(ctx, sess, evt.UserID)
		b.closeSession(ctx, sess, evt.UserID)
		return
	}

	b.relayToStaff(ctx, sess, evt, false)
}

func (b *Bot) handleChannelMessage(ctx context.Context, evt *MessageEvent) {
	sess := b.registry.ByChannel(evt.ChannelID)
	if sess == nil {
		return
	}

	if strings.HasPrefix(evt.Content, commentPrefix) {
		rec := transcriptFrom(sess, evt)
		rec.Comment = true
		if err := b.store.InsertTranscript(ctx, rec); err != nil {
			b.log.Error().Err(err).Str("message_id", evt.ID).Msg("Failed to record comment transcript")
		}
		return
	}

	b.forwardToUser(ctx, sess, evt, false)
}

func (b *Bot) handleUserEdit(ctx context.Context, evt *MessageEvent) {
	sess := b.registry.ByUser(evt.UserID)
	if sess == nil {
		return
	}
	b.updateTranscript(ctx, evt)
	b.relayToStaff(ctx, sess, evt, true)
}

func (b *Bot) handleStaffEdit(ctx context.Context, evt *MessageEvent) {
	sess := b.registry.ByChannel(evt.ChannelID)
	if sess == nil {
		return
	}
	b.updateTranscript(ctx, evt)
	if !strings.HasPrefix(evt.Content, commentPrefix) {
		b.forwardToUser(ctx, sess, evt, true)
	}
}

// relayToStaff forwards a user's direct message into the relay channel
// through the session's posting endpoint, so it appears under the
// user's display identity. The delivered marker is applied in the
// cleanup path on both outcomes, mirroring the historical behavior;
// the failed marker still distinguishes errors.
func (b *Bot) relayToStaff(ctx context.Context, sess *store.Session, evt *MessageEvent, edit bool) {
	content := evt.Content
	if edit {
		content = "EDIT: " + content
	}

	if err := b.sendViaEndpoint(ctx, sess, evt, content, edit); err != nil {
		b.log.Warn().Err(err).
			Str("session_id", sess.ID).
			Str("message_id", evt.ID).
			Msg("Failed to relay message to staff")
		b.addReaction(ctx, evt.ID, reactionFailed)
		b.removeReaction(ctx, evt.ID, reactionPending)
	}
	b.addReaction(ctx, evt.ID, reactionDelivered)
	b.removeReaction(ctx, evt.ID, reactionPending)

	if !edit {
		if err := b.store.InsertTranscript(ctx, transcriptFrom(sess, evt)); err != nil {
			b.log.Error().Err(err).Str("message_id", evt.ID).Msg("Failed to record transcript")
		}
	}
}

func (b *Bot) sendViaEndpoint(ctx context.Context, sess *store.Session, evt *MessageEvent, content string, edit bool) error {
	if len(evt.Attachments) > 0 && !edit {
		for i, att := range evt.Attachments {
			caption := "Image:"
			if i == 0 && content != "" {
				caption = content
			}
			text := caption + "\n" + att.URL
			if err := b.gw.SendViaEndpoint(ctx, sess.EndpointID, text, evt.UserName, evt.AvatarURL); err != nil {
				return err
			}
		}
		return nil
	}
	return b.gw.SendViaEndpoint(ctx, sess.EndpointID, content, evt.UserName, evt.AvatarURL)
}

// forwardToUser delivers a staff message to the user as a direct
// message embed, records the transcript row and feeds the insight
// aggregator. Shares the relay marker semantics with relayToStaff,
// including the unconditional delivered marker in cleanup.
func (b *Bot) forwardToUser(ctx context.Context, sess *store.Session, evt *MessageEvent, edit bool) {
	b.addReaction(ctx, evt.ID, reactionPending)

	desc := evt.Content
	if edit {
		desc = "EDIT: " + desc
	}

	if err := b.sendUserEmbeds(ctx, sess, evt, desc); err != nil {
		b.log.Warn().Err(err).
			Str("session_id", sess.ID).
			Str("message_id", evt.ID).
			Msg("Failed to forward message to user")
		b.addReaction(ctx, evt.ID, reactionFailed)
		b.removeReaction(ctx, evt.ID, reactionPending)
	}
	b.addReaction(ctx, evt.ID, reactionDelivered)
	b.removeReaction(ctx, evt.ID, reactionPending)

	if edit {
		return
	}
	if err := b.store.InsertTranscript(ctx, transcriptFrom(sess, evt)); err != nil {
		b.log.Error().Err(err).Str("message_id", evt.ID).Msg("Failed to record transcript")
	}
	if err := b.insights.Gather(ctx, sess); err != nil {
		b.log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to gather insights")
	}
}

func (b *Bot) sendUserEmbeds(ctx context.Context, sess *store.Session, evt *MessageEvent, desc string) error {
	if len(evt.Attachments) == 0 {
		return b.gw.SendDirect(ctx, sess.UserID, &OutgoingMessage{Embed: &Embed{
			AuthorName:    evt.UserName,
			AuthorIconURL: evt.AvatarURL,
			Description:   desc,
		}})
	}
	for i, att := range evt.Attachments {
		caption := "Image:"
		if i == 0 && desc != "" {
			caption = desc
		}
		err := b.gw.SendDirect(ctx, sess.UserID, &OutgoingMessage{Embed: &Embed{
			AuthorName:    evt.UserName,
			AuthorIconURL: evt.AvatarURL,
			Description:   caption,
			ImageURL:      att.URL,
		}})
		if err != nil {
			return err
		}
	}
	return nil
}

// updateTranscript rewrites the transcript row matching an edited
// message. A missing row is recoverable: the edit marker is swapped
// for the edit-failed marker and no retry happens.
func (b *Bot) updateTranscript(ctx context.Context, evt *MessageEvent) {
	b.addReaction(ctx, evt.ID, reactionEdit)
	if err := b.store.UpdateTranscriptContent(ctx, evt.ID, evt.Content); err != nil {
		b.log.Warn().Err(err).Str("message_id", evt.ID).Msg("Failed to update transcript row")
		b.removeReaction(ctx, evt.ID, reactionEdit)
		b.addReaction(ctx, evt.ID, reactionEditFailed)
	}
}

// sendCommunityPicker DMs the user a select menu with one option per
// community that has a relay category configured.
func (b *Bot) sendCommunityPicker(ctx context.Context, userID string) {
	communities, err := b.gw.Communities(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to list communities for picker")
		return
	}
	cfgs, err := b.store.CommunityConfigs(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load community configs")
		return
	}

	var opts []SelectOption
	for _, community := range communities {
		if cfgs[community.ID][cfgRelayCategory] == "" {
			continue
		}
		opts = append(opts, SelectOption{
			Label:       community.Name,
			Value:       community.ID,
			Description: truncate(community.Description, 90),
		})
	}
	if len(opts) == 0 {
		b.log.Warn().Str("user_id", userID).Msg("No communities configured for modmail")
		return
	}

	err = b.gw.SendDirect(ctx, userID, &OutgoingMessage{
		Text: "Please select a server to modmail",
		Menu: &SelectMenu{
			Token:       TokenSelectCommunity,
			Placeholder: "Select a server",
			Options:     opts,
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to send community picker")
	}
}

// closeSession notifies the user and tears the session down. The
// notice is best-effort; closure proceeds regardless.
func (b *Bot) closeSession(ctx context.Context, sess *store.Session, actorID string) {
	actorName, _, err := b.gw.UserDisplay(ctx, actorID)
	if err != nil || actorName == "" {
		actorName = "a staff member"
	}
	b.sendUserSystem(ctx, sess, "Your mod mail session was closed by "+actorName+"!", nil)
	if err := b.registry.CloseSession(ctx, sess); err != nil {
		b.log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to close session")
	}
}

// sendUserSystem DMs the user an embed under the bot's own identity.
func (b *Bot) sendUserSystem(ctx context.Context, sess *store.Session, content string, buttons []Button) {
	botName, botAvatar, err := b.gw.UserDisplay(ctx, b.gw.BotUserID())
	if err != nil {
		botName = "modmail"
	}
	err = b.gw.SendDirect(ctx, sess.UserID, &OutgoingMessage{
		Embed: &Embed{
			AuthorName:    botName,
			AuthorIconURL: botAvatar,
			Description:   content,
		},
		Buttons: buttons,
	})
	if err != nil {
		b.log.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to send system message to user")
	}
}

func transcriptFrom(sess *store.Session, evt *MessageEvent) *store.TranscriptRecord {
	urls := make([]string, 0, len(evt.Attachments))
	for _, att := range evt.Attachments {
		urls = append(urls, att.URL)
	}
	return &store.TranscriptRecord{
		ID:          evt.ID,
		SessionID:   sess.ID,
		SenderID:    evt.UserID,
		Content:     evt.Content,
		Attachments: urls,
		CreatedAt:   evt.Timestamp,
		CommunityID: sess.CommunityID,
		Kind:        transcriptKind,
	}
}

func containsTrigger(content string) bool {
	lower := strings.ToLower(content)
	for _, word := range triggerWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}

func (b *Bot) addReaction(ctx context.Context, messageID, emoji string) {
	if err := b.gw.AddReaction(ctx, messageID, emoji); err != nil {
		b.log.Debug().Err(err).Str("message_id", messageID).Str("emoji", emoji).Msg("Failed to add reaction")
	}
}

func (b *Bot) removeReaction(ctx context.Context, messageID, emoji string) {
	if err := b.gw.RemoveReaction(ctx, messageID, emoji); err != nil {
		b.log.Debug().Err(err).Str("message_id", messageID).Str("emoji", emoji).Msg("Failed to remove reaction")
	}
}
