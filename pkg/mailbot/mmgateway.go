// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

// MattermostGateway implements Gateway against a Mattermost server.
// Interactive elements (buttons, menus, dialogs) call back into the
// engine through the CallbackServer, whose public base URL is
// callbackURL.
type MattermostGateway struct {
	client      *model.Client4
	http        *http.Client
	serverURL   string
	callbackURL string
	botUserID   string
	log         zerolog.Logger
}

var _ Gateway = (*MattermostGateway)(nil)

func NewGateway(api *model.Client4, serverURL, callbackURL, botUserID string, log zerolog.Logger) *MattermostGateway {
	return &MattermostGateway{
		client:      api,
		http:        &http.Client{},
		serverURL:   strings.TrimSuffix(serverURL, "/"),
		callbackURL: strings.TrimSuffix(callbackURL, "/"),
		botUserID:   botUserID,
		log:         log.With().Str("component", "mm_gateway").Logger(),
	}
}

func (g *MattermostGateway) BotUserID() string {
	return g.botUserID
}

func (g *MattermostGateway) UserDisplay(ctx context.Context, userID string) (string, string, error) {
	user, _, err := g.client.GetUser(ctx, userID, "")
	if err != nil {
		return "", "", fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	name := user.Username
	if user.Nickname != "" {
		name = user.Nickname
	}
	return name, g.serverURL + "/api/v4/users/" + userID + "/image", nil
}

func (g *MattermostGateway) Communities(ctx context.Context) ([]Community, error) {
	teams, _, err := g.client.GetAllTeams(ctx, "", 0, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	communities := make([]Community, 0, len(teams))
	for _, team := range teams {
		communities = append(communities, Community{
			ID:          team.Id,
			Name:        team.DisplayName,
			Description: team.Description,
		})
	}
	return communities, nil
}

func (g *MattermostGateway) CommunityByID(ctx context.Context, communityID string) (*Community, error) {
	team, _, err := g.client.GetTeam(ctx, communityID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get team %s: %w", communityID, err)
	}
	return &Community{
		ID:          team.Id,
		Name:        team.DisplayName,
		Description: team.Description,
	}, nil
}

// ChannelKind classifies an ID as a direct channel, a text channel, or
// a sidebar category. Categories are not channels in Mattermost, so a
// failed channel lookup falls back to scanning the bot's sidebar
// categories for the team.
func (g *MattermostGateway) ChannelKind(ctx context.Context, communityID, channelID string) (ChannelKind, error) {
	channel, _, err := g.client.GetChannel(ctx, channelID, "")
	if err == nil {
		switch channel.Type {
		case model.ChannelTypeDirect:
			return ChannelDirect, nil
		case model.ChannelTypeOpen, model.ChannelTypePrivate:
			return ChannelText, nil
		default:
			return ChannelUnknown, nil
		}
	}

	categories, _, err := g.client.GetSidebarCategoriesForTeamForUser(ctx, g.botUserID, communityID, "")
	if err != nil {
		return ChannelUnknown, fmt.Errorf("failed to get sidebar categories: %w", err)
	}
	for _, category := range categories.Categories {
		if category.Id == channelID {
			return ChannelCategory, nil
		}
	}
	return ChannelUnknown, nil
}

func (g *MattermostGateway) SendDirect(ctx context.Context, userID string, msg *OutgoingMessage) error {
	channel, _, err := g.client.CreateDirectChannel(ctx, g.botUserID, userID)
	if err != nil {
		return fmt.Errorf("failed to open direct channel with %s: %w", userID, err)
	}
	return g.SendChannel(ctx, channel.Id, msg)
}

func (g *MattermostGateway) SendChannel(ctx context.Context, channelID string, msg *OutgoingMessage) error {
	post := g.buildPost(channelID, msg)
	_, _, err := g.client.CreatePost(ctx, post)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func (g *MattermostGateway) SendEphemeral(ctx context.Context, userID, channelID, text string) error {
	_, _, err := g.client.CreatePostEphemeral(ctx, &model.PostEphemeral{
		UserID: userID,
		Post: &model.Post{
			ChannelId: channelID,
			Message:   text,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create ephemeral post: %w", err)
	}
	return nil
}

// SendViaEndpoint posts through an incoming webhook so the message
// shows up under the user's name and avatar instead of the bot's.
func (g *MattermostGateway) SendViaEndpoint(ctx context.Context, endpointID, content, displayName, avatarURL string) error {
	payload, err := json.Marshal(&model.IncomingWebhookRequest{
		Text:     content,
		Username: displayName,
		IconURL:  avatarURL,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.serverURL+"/hooks/"+endpointID, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (g *MattermostGateway) CreateRelayChannel(ctx context.Context, communityID, categoryID, name string) (string, error) {
	channel, _, err := g.client.CreateChannel(ctx, &model.Channel{
		TeamId:      communityID,
		Name:        name,
		DisplayName: name,
		Type:        model.ChannelTypePrivate,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create channel: %w", err)
	}

	if err := g.fileUnderCategory(ctx, communityID, categoryID, channel.Id); err != nil {
		g.log.Warn().Err(err).
			Str("channel_id", channel.Id).
			Str("category_id", categoryID).
			Msg("Failed to file channel under sidebar category")
	}
	return channel.Id, nil
}

func (g *MattermostGateway) fileUnderCategory(ctx context.Context, communityID, categoryID, channelID string) error {
	categories, _, err := g.client.GetSidebarCategoriesForTeamForUser(ctx, g.botUserID, communityID, "")
	if err != nil {
		return fmt.Errorf("failed to get sidebar categories: %w", err)
	}
	for _, category := range categories.Categories {
		if category.Id != categoryID {
			continue
		}
		category.Channels = append([]string{channelID}, category.Channels...)
		_, _, err = g.client.UpdateSidebarCategoryForTeamForUser(ctx, g.botUserID, communityID, categoryID, category)
		if err != nil {
			return fmt.Errorf("failed to update sidebar category: %w", err)
		}
		return nil
	}
	return fmt.Errorf("sidebar category %s not found", categoryID)
}

func (g *MattermostGateway) CreateEndpoint(ctx context.Context, channelID, name string) (string, error) {
	hook, _, err := g.client.CreateIncomingWebhook(ctx, &model.IncomingWebhook{
		ChannelId:   channelID,
		DisplayName: name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create incoming webhook: %w", err)
	}
	return hook.Id, nil
}

func (g *MattermostGateway) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := g.client.DeleteChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", channelID, err)
	}
	return nil
}

func (g *MattermostGateway) ApplyBan(ctx context.Context, communityID, userID, reason string) error {
	g.log.Info().
		Str("team_id", communityID).
		Str("user_id", userID).
		Str("reason", reason).
		Msg("Removing user from team")
	_, err := g.client.RemoveTeamMember(ctx, communityID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	return nil
}

func (g *MattermostGateway) AddReaction(ctx context.Context, messageID, emoji string) error {
	_, _, err := g.client.SaveReaction(ctx, &model.Reaction{
		UserId:    g.botUserID,
		PostId:    messageID,
		EmojiName: emoji,
	})
	if err != nil {
		return fmt.Errorf("failed to save reaction: %w", err)
	}
	return nil
}

func (g *MattermostGateway) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	_, err := g.client.DeleteReaction(ctx, &model.Reaction{
		UserId:    g.botUserID,
		PostId:    messageID,
		EmojiName: emoji,
	})
	if err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

func (g *MattermostGateway) TriggerTyping(ctx context.Context, channelID string) error {
	_, err := g.client.PublishUserTyping(ctx, g.botUserID, model.TypingRequest{
		ChannelId: channelID,
	})
	if err != nil {
		return fmt.Errorf("failed to publish typing: %w", err)
	}
	return nil
}

func (g *MattermostGateway) TriggerDirectTyping(ctx context.Context, userID string) error {
	channel, _, err := g.client.CreateDirectChannel(ctx, g.botUserID, userID)
	if err != nil {
		return fmt.Errorf("failed to open direct channel with %s: %w", userID, err)
	}
	return g.TriggerTyping(ctx, channel.Id)
}

func (g *MattermostGateway) OpenForm(ctx context.Context, triggerID string, form Form) error {
	_, err := g.client.OpenInteractiveDialog(ctx, model.OpenDialogRequest{
		TriggerId: triggerID,
		URL:       g.callbackURL + "/dialogs",
		Dialog: model.Dialog{
			CallbackId: form.Token,
			Title:      form.Title,
			Elements: []model.DialogElement{{
				DisplayName: form.Label,
				Name:        form.Field,
				Type:        "text",
				Placeholder: form.Placeholder,
				MaxLength:   form.MaxLength,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open dialog: %w", err)
	}
	return nil
}

// buildPost assembles a Mattermost post from an outgoing message.
// Embeds render as Slack attachments; buttons and menus become
// interactive message actions routed through the callback server.
func (g *MattermostGateway) buildPost(channelID string, msg *OutgoingMessage) *model.Post {
	post := &model.Post{
		ChannelId: channelID,
		Message:   msg.Text,
	}

	var attachment *model.SlackAttachment
	if msg.Embed != nil {
		attachment = &model.SlackAttachment{
			Title:      msg.Embed.Title,
			Text:       msg.Embed.Description,
			AuthorName: msg.Embed.AuthorName,
			AuthorIcon: msg.Embed.AuthorIconURL,
			ImageURL:   msg.Embed.ImageURL,
		}
	}

	if len(msg.Buttons) > 0 || msg.Menu != nil {
		if attachment == nil {
			attachment = &model.SlackAttachment{}
		}
		for _, button := range msg.Buttons {
			attachment.Actions = append(attachment.Actions, &model.PostAction{
				Name:  button.Label,
				Style: button.Style,
				Type:  model.PostActionTypeButton,
				Integration: &model.PostActionIntegration{
					URL:     g.callbackURL + "/actions",
					Context: map[string]any{"token": button.Token},
				},
			})
		}
		if msg.Menu != nil {
			options := make([]*model.PostActionOptions, 0, len(msg.Menu.Options))
			for _, opt := range msg.Menu.Options {
				options = append(options, &model.PostActionOptions{
					Text:  opt.Label,
					Value: opt.Value,
				})
			}
			attachment.Actions = append(attachment.Actions, &model.PostAction{
				Name:    msg.Menu.Placeholder,
				Type:    model.PostActionTypeSelect,
				Options: options,
				Integration: &model.PostActionIntegration{
					URL:     g.callbackURL + "/actions",
					Context: map[string]any{"token": msg.Menu.Token},
				},
			})
		}
	}

	if attachment != nil {
		post.AddProp("attachments", []*model.SlackAttachment{attachment})
	}
	return post
}
