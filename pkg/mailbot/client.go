// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

// Client maintains the bot's Mattermost connection: REST API for
// verification and lookups, WebSocket for real-time events. Raw
// events are translated into engine events and handed to the Bot;
// each handler runs on its own goroutine.
type Client struct {
	bot       *Bot
	client    *model.Client4
	wsClient  *model.WebSocketClient
	serverURL string
	userID    string

	chanTypeMu    sync.Mutex
	chanTypeCache map[string]model.ChannelType

	stopOnce sync.Once
	stopChan chan struct{}
	log      zerolog.Logger
}

// NewClient wraps an authenticated API client. Connect must be called
// before events flow.
func NewClient(bot *Bot, api *model.Client4, serverURL string, log zerolog.Logger) *Client {
	return &Client{
		bot:           bot,
		client:        api,
		serverURL:     strings.TrimSuffix(serverURL, "/"),
		chanTypeCache: make(map[string]model.ChannelType),
		stopChan:      make(chan struct{}),
		log:           log.With().Str("component", "mm_client").Logger(),
	}
}

// Connect verifies the token and starts the WebSocket event loop.
func (c *Client) Connect(ctx context.Context) error {
	me, _, err := c.client.GetMe(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to verify Mattermost session: %w", err)
	}
	c.userID = me.Id
	c.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")

	if err := c.connectWebSocket(ctx); err != nil {
		return fmt.Errorf("websocket connection failed: %w", err)
	}
	return nil
}

func (c *Client) connectWebSocket(ctx context.Context) error {
	wsURL := httpToWS(c.serverURL)
	var err error
	c.wsClient, err = model.NewWebSocketClient4(wsURL, c.client.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to create websocket client: %w", err)
	}
	c.wsClient.Listen()

	go c.listenWebSocket(ctx)

	c.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

func (c *Client) listenWebSocket(ctx context.Context) {
	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		case event, ok := <-c.wsClient.EventChannel:
			if !ok {
				c.log.Warn().Msg("WebSocket event channel closed, reconnecting")
				c.handleWebSocketDisconnect(ctx)
				return
			}
			if event == nil {
				continue
			}
			c.handleEvent(ctx, event)
		}
	}
}

func (c *Client) handleWebSocketDisconnect(ctx context.Context) {
	select {
	case <-c.stopChan:
		return
	case <-ctx.Done():
		return
	case <-time.After(5 * time.Second):
	}
	if err := c.connectWebSocket(ctx); err != nil {
		c.log.Error().Err(err).Msg("Failed to reconnect WebSocket")
	}
}

// Disconnect closes the WebSocket connection and stops the event loop.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	// The field stays set; the event loop still reads it while it winds
	// down on the closed stop channel.
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}

// handleEvent dispatches a WebSocket event to the engine. Handlers run
// concurrently; there is no ordering guarantee between two events
// arriving close together.
func (c *Client) handleEvent(ctx context.Context, evt *model.WebSocketEvent) {
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		c.handlePosted(ctx, evt)
	case model.WebsocketEventPostEdited:
		c.handlePostEdited(ctx, evt)
	case model.WebsocketEventTyping:
		c.handleTyping(ctx, evt)
	default:
		c.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
	}
}

// parsePostEvent extracts and validates a post from a WebSocket event,
// applying echo prevention. Returns (nil, nil) to skip silently,
// (nil, err) to log an error, or (post, nil) to proceed.
func (c *Client) parsePostEvent(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("post event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	// Echo prevention: skip own posts.
	if post.UserId == c.userID {
		return nil, nil
	}

	// Echo prevention: skip webhook posts. Relayed user messages enter
	// the relay channel through the session endpoint and must not be
	// routed back.
	if post.GetProp("from_webhook") == "true" {
		return nil, nil
	}

	// Echo prevention: skip non-default post types (system messages).
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}

	return &post, nil
}

func (c *Client) handlePosted(ctx context.Context, evt *model.WebSocketEvent) {
	post, err := c.parsePostEvent(evt)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to parse posted event")
		return
	}
	if post == nil {
		return
	}

	c.log.Debug().
		Str("post_id", post.Id).
		Str("channel_id", post.ChannelId).
		Str("user_id", post.UserId).
		Msg("Received new message")

	msgEvt := c.messageEventFrom(ctx, evt, post)
	go c.bot.HandleMessage(ctx, msgEvt)
}

func (c *Client) handlePostEdited(ctx context.Context, evt *model.WebSocketEvent) {
	post, err := c.parsePostEvent(evt)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to parse post edited event")
		return
	}
	if post == nil {
		return
	}

	msgEvt := c.messageEventFrom(ctx, evt, post)
	go c.bot.HandleEdit(ctx, msgEvt)
}

func (c *Client) handleTyping(ctx context.Context, evt *model.WebSocketEvent) {
	userID, ok := evt.GetData()["user_id"].(string)
	if !ok || userID == c.userID {
		return
	}
	channelID := evt.GetBroadcast().ChannelId

	typingEvt := &TypingEvent{
		UserID:    userID,
		ChannelID: channelID,
		Direct:    c.channelType(ctx, channelID) == model.ChannelTypeDirect,
	}
	go c.bot.HandleTyping(ctx, typingEvt)
}

// messageEventFrom converts a Mattermost post into an engine event.
func (c *Client) messageEventFrom(ctx context.Context, evt *model.WebSocketEvent, post *model.Post) *MessageEvent {
	channelType, _ := evt.GetData()["channel_type"].(string)
	if channelType == "" {
		channelType = string(c.channelType(ctx, post.ChannelId))
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	senderName = strings.TrimPrefix(senderName, "@")
	if senderName == "" {
		if name, _, err := c.bot.gw.UserDisplay(ctx, post.UserId); err == nil {
			senderName = name
		} else {
			senderName = post.UserId
		}
	}

	var attachments []Attachment
	for _, fileID := range post.FileIds {
		att := Attachment{URL: c.serverURL + "/api/v4/files/" + fileID}
		if info, _, err := c.client.GetFileInfo(ctx, fileID); err == nil {
			att.Name = info.Name
		}
		attachments = append(attachments, att)
	}

	return &MessageEvent{
		ID:          post.Id,
		ChannelID:   post.ChannelId,
		UserID:      post.UserId,
		UserName:    senderName,
		AvatarURL:   c.serverURL + "/api/v4/users/" + post.UserId + "/image",
		Content:     post.Message,
		Attachments: attachments,
		Direct:      channelType == string(model.ChannelTypeDirect),
		FromBot:     post.GetProp("from_bot") == "true",
		Timestamp:   time.UnixMilli(post.CreateAt),
	}
}

// channelType resolves and caches a channel's type. Channel types
// never change, so the cache has no expiry.
func (c *Client) channelType(ctx context.Context, channelID string) model.ChannelType {
	c.chanTypeMu.Lock()
	cached, ok := c.chanTypeCache[channelID]
	c.chanTypeMu.Unlock()
	if ok {
		return cached
	}

	channel, _, err := c.client.GetChannel(ctx, channelID, "")
	if err != nil {
		c.log.Debug().Err(err).Str("channel_id", channelID).Msg("Failed to resolve channel type")
		return ""
	}

	c.chanTypeMu.Lock()
	c.chanTypeCache[channelID] = channel.Type
	c.chanTypeMu.Unlock()
	return channel.Type
}
