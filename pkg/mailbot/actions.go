// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"
	"strings"

	"github.com/aiku/modmail/pkg/store"
)

// Action tokens are '.'-delimited strings of the form
// modmail.<verb>[.<subverb>].<sessionID>, attached to interactive
// components when they are built and decoded once here on activation.
const tokenPrefix = "modmail"

// TokenSelectCommunity is the community picker token. It carries no
// session id; the chosen community comes back as the option value.
const TokenSelectCommunity = "modmail.select.server"

// Verb identifies a session transition requested through the UI.
type Verb string

const (
	VerbClose      Verb = "close"
	VerbSave       Verb = "save"
	VerbBan        Verb = "ban"
	VerbBanConfirm Verb = "ban.confirm"
	VerbPing       Verb = "ping"
	VerbPriority   Verb = "priority"
)

// Action is a decoded action token.
type Action struct {
	Verb      Verb
	SessionID string
}

// ParseAction decodes an action token. The final segment is the
// session id; the middle segments joined back together are the verb.
// Returns ok=false for tokens outside the modmail namespace or with
// too few segments.
func ParseAction(token string) (Action, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 3 || parts[0] != tokenPrefix {
		return Action{}, false
	}
	return Action{
		Verb:      Verb(strings.Join(parts[1:len(parts)-1], ".")),
		SessionID: parts[len(parts)-1],
	}, true
}

// Token encodes the action back to its wire form.
func (a Action) Token() string {
	return tokenPrefix + "." + string(a.Verb) + "." + a.SessionID
}

// Ban confirmation form parameters. The reason is free text bounded to
// banReasonMaxLength characters.
const (
	banReasonField     = "reason"
	banReasonMaxLength = 30
)

func banForm(sessionID string) Form {
	return Form{
		Token:       Action{Verb: VerbBanConfirm, SessionID: sessionID}.Token(),
		Title:       "Are you sure you want to ban this user?",
		Label:       "Enter a reason for the ban",
		Field:       banReasonField,
		Placeholder: "reason",
		MaxLength:   banReasonMaxLength,
	}
}

// HandleAction dispatches a button press or select-menu choice. The
// returned reply, if any, is shown ephemerally to the acting user.
// Unknown verbs are ignored.
func (b *Bot) HandleAction(ctx context.Context, evt *ActionEvent) *ActionReply {
	if evt.Token == TokenSelectCommunity {
		return b.handleCommunitySelect(ctx, evt)
	}

	action, ok := ParseAction(evt.Token)
	if !ok {
		return nil
	}
	sess := b.registry.ByID(action.SessionID)
	if sess == nil {
		b.log.Warn().Str("token", evt.Token).Msg("Action for unknown session")
		return nil
	}

	switch action.Verb {
	case VerbClose:
		b.closeSession(ctx, sess, evt.UserID)
	case VerbSave:
		b.saveTranscriptPointer(ctx, sess, evt.UserID)
		b.closeSession(ctx, sess, evt.UserID)
	case VerbBan:
		if err := b.gw.OpenForm(ctx, evt.TriggerID, banForm(sess.ID)); err != nil {
			b.log.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to open ban form")
		}
	case VerbPing:
		b.sendUserSystem(ctx, sess, "This is a reminder to check this ticket!", nil)
	case VerbPriority:
		return b.handlePriority(ctx, sess, evt)
	default:
		b.log.Debug().Str("token", evt.Token).Msg("Ignoring unknown action verb")
	}
	return nil
}

// HandleForm dispatches a submitted dialog. Only the ban confirmation
// form exists today.
func (b *Bot) HandleForm(ctx context.Context, evt *FormEvent) {
	action, ok := ParseAction(evt.Token)
	if !ok || action.Verb != VerbBanConfirm {
		return
	}
	sess := b.registry.ByID(action.SessionID)
	if sess == nil {
		b.log.Warn().Str("token", evt.Token).Msg("Form submission for unknown session")
		return
	}

	reason := evt.Values[banReasonField]
	if len(reason) > banReasonMaxLength {
		reason = reason[:banReasonMaxLength]
	}
	b.confirmBan(ctx, sess, evt.UserID, reason)

	if err := b.gw.SendEphemeral(ctx, evt.UserID, evt.ChannelID, "\U0001f44d\U0001f3fe"); err != nil {
		b.log.Debug().Err(err).Msg("Failed to acknowledge ban form")
	}
}

// confirmBan runs the full ban flow: save the transcript pointer,
// close the session, notify the user best-effort and then apply the
// ban unconditionally. Ban application is not contingent on the
// notification succeeding.
func (b *Bot) confirmBan(ctx context.Context, sess *store.Session, actorID, reason string) {
	community, err := b.gw.CommunityByID(ctx, sess.CommunityID)
	communityName := sess.CommunityID
	if err == nil {
		communityName = community.Name
	}

	b.saveTranscriptPointer(ctx, sess, actorID)
	b.closeSession(ctx, sess, actorID)

	notice := "You have been banned in " + communityName + " for: ``" + reason + "``"
	if err := b.gw.SendDirect(ctx, sess.UserID, &OutgoingMessage{Embed: &Embed{Description: notice}}); err != nil {
		b.log.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to notify user of ban")
	}

	if err := b.gw.ApplyBan(ctx, sess.CommunityID, sess.UserID, "Banned during modmail for: "+reason); err != nil {
		b.log.Error().Err(err).
			Str("session_id", sess.ID).
			Str("user_id", sess.UserID).
			Msg("Failed to apply ban")
	}
}

// handleCommunitySelect runs the precondition gate and starts a
// session for the chosen community, then sends the welcome message and
// the staff action menu.
func (b *Bot) handleCommunitySelect(ctx context.Context, evt *ActionEvent) *ActionReply {
	blocked, err := b.gate.IsBlocked(ctx, commandModmail, evt.Value, evt.UserID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to evaluate blacklist")
		return &ActionReply{Ephemeral: "Failed to create the modmail session"}
	}
	if blocked {
		return &ActionReply{Ephemeral: "You are blacklisted from using modmail"}
	}

	userName, _, err := b.gw.UserDisplay(ctx, evt.UserID)
	if err != nil {
		userName = evt.UserID
	}

	sess, err := b.registry.StartSession(ctx, evt.UserID, userName, evt.Value)
	if err != nil {
		b.log.Warn().Err(err).
			Str("user_id", evt.UserID).
			Str("community_id", evt.Value).
			Msg("Failed to start session")
		return &ActionReply{Ephemeral: startFailureText(err)}
	}

	b.sendWelcome(ctx, sess)
	b.sendMailMenu(ctx, sess, userName)
	return nil
}

// sendWelcome DMs the user a confirmation, with the priority button
// only when the community configures a priority alert group.
func (b *Bot) sendWelcome(ctx context.Context, sess *store.Session) {
	var buttons []Button
	alert := ""
	if b.communitySettings(ctx, sess.CommunityID)[cfgPriorityGroup] != "" {
		buttons = []Button{{
			Label: "Priority Ping",
			Token: Action{Verb: VerbPriority, SessionID: sess.ID}.Token(),
			Style: "danger",
		}}
		alert = "If your message is urgent please use the priority ping button below, " +
			"misuse of this feature will result in blacklisting from modmail and possibly " +
			"more action taken at the moderation team's discretion."
	}
	b.sendUserSystem(ctx, sess,
		"Your modmail request was recieved! Please wait and a staff member will assist you shortly.\n\n"+alert,
		buttons)
}

// sendMailMenu posts the staff action menu into the new relay channel.
// The Close button maps to the save verb so a transcript pointer is
// always kept on normal closes.
func (b *Bot) sendMailMenu(ctx context.Context, sess *store.Session, userName string) {
	err := b.gw.SendChannel(ctx, sess.ChannelID, &OutgoingMessage{
		Embed: &Embed{
			Title:       "Modmail",
			Description: "A Modmail session was opened by @" + userName,
		},
		Buttons: []Button{
			{Label: "Close", Token: Action{Verb: VerbSave, SessionID: sess.ID}.Token()},
			{Label: "Ban", Token: Action{Verb: VerbBan, SessionID: sess.ID}.Token(), Style: "danger"},
			{Label: "Ping", Token: Action{Verb: VerbPing, SessionID: sess.ID}.Token(), Style: "success"},
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to post mail menu")
	}
}

// handlePriority re-runs the gate for prioritymail and posts an alert
// mentioning the community's configured group into the relay channel.
func (b *Bot) handlePriority(ctx context.Context, sess *store.Session, evt *ActionEvent) *ActionReply {
	blocked, err := b.gate.IsBlocked(ctx, commandPriorityMail, sess.CommunityID, evt.UserID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to evaluate blacklist")
		return nil
	}
	if blocked {
		return &ActionReply{Ephemeral: "You are blacklisted from using priority mail"}
	}

	group := b.communitySettings(ctx, sess.CommunityID)[cfgPriorityGroup]
	if group == "" {
		b.log.Warn().Str("session_id", sess.ID).Msg("Priority ping without configured alert group")
		return nil
	}
	err = b.gw.SendChannel(ctx, sess.ChannelID, &OutgoingMessage{
		Text: "Priority Mail Alert @" + group,
	})
	if err != nil {
		b.log.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to post priority alert")
	}
	return nil
}
