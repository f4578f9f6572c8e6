// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aiku/modmail/pkg/store"
)

var errMock = errors.New("mock failure")

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type sentMessage struct {
	Target string
	Msg    *OutgoingMessage
}

type endpointSend struct {
	EndpointID  string
	Content     string
	DisplayName string
	AvatarURL   string
}

type reactionOp struct {
	MessageID string
	Emoji     string
	Added     bool
}

type banOp struct {
	CommunityID string
	UserID      string
	Reason      string
}

type createdChannel struct {
	ID          string
	CommunityID string
	CategoryID  string
	Name        string
}

// mockGateway records every outbound call so tests can assert on the
// exact side effects of a handler.
type mockGateway struct {
	mu sync.Mutex

	botUserID    string
	communities  []Community
	users        map[string][2]string // id -> {name, avatar}
	channelKinds map[string]ChannelKind

	failCreateChannel  bool
	failCreateEndpoint bool
	failEndpointSend   bool
	failDirectSend     bool
	failChannelSend    bool
	failDeleteChannel  bool
	failBan            bool
	failOpenForm       bool

	nextID           int
	directs          []sentMessage
	channelPosts     []sentMessage
	ephemerals       []sentMessage
	endpointSends    []endpointSend
	reactionLog      []reactionOp
	typingChannels   []string
	typingUsers      []string
	forms            []Form
	bans             []banOp
	deletedChannels  []string
	createdChannels  []createdChannel
	createdEndpoints []string
}

var _ Gateway = (*mockGateway)(nil)

func newMockGateway() *mockGateway {
	return &mockGateway{
		botUserID:    "bot",
		users:        map[string][2]string{"bot": {"modmail", "https://mm.example.com/bot.png"}},
		channelKinds: make(map[string]ChannelKind),
	}
}

func (g *mockGateway) BotUserID() string { return g.botUserID }

func (g *mockGateway) UserDisplay(_ context.Context, userID string) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[userID]
	if !ok {
		return "", "", fmt.Errorf("no such user %s: %w", userID, errMock)
	}
	return u[0], u[1], nil
}

func (g *mockGateway) Communities(_ context.Context) ([]Community, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Community(nil), g.communities...), nil
}

func (g *mockGateway) CommunityByID(_ context.Context, communityID string) (*Community, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.communities {
		if c.ID == communityID {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("no such community %s: %w", communityID, errMock)
}

func (g *mockGateway) ChannelKind(_ context.Context, _, channelID string) (ChannelKind, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.channelKinds[channelID], nil
}

func (g *mockGateway) SendDirect(_ context.Context, userID string, msg *OutgoingMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failDirectSend {
		return errMock
	}
	g.directs = append(g.directs, sentMessage{Target: userID, Msg: msg})
	return nil
}

func (g *mockGateway) SendChannel(_ context.Context, channelID string, msg *OutgoingMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failChannelSend {
		return errMock
	}
	g.channelPosts = append(g.channelPosts, sentMessage{Target: channelID, Msg: msg})
	return nil
}

func (g *mockGateway) SendEphemeral(_ context.Context, userID, _ string, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ephemerals = append(g.ephemerals, sentMessage{Target: userID, Msg: &OutgoingMessage{Text: text}})
	return nil
}

func (g *mockGateway) SendViaEndpoint(_ context.Context, endpointID, content, displayName, avatarURL string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failEndpointSend {
		return errMock
	}
	g.endpointSends = append(g.endpointSends, endpointSend{
		EndpointID:  endpointID,
		Content:     content,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
	})
	return nil
}

func (g *mockGateway) CreateRelayChannel(_ context.Context, communityID, categoryID, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreateChannel {
		return "", errMock
	}
	g.nextID++
	id := fmt.Sprintf("chan-%d", g.nextID)
	g.createdChannels = append(g.createdChannels, createdChannel{
		ID:          id,
		CommunityID: communityID,
		CategoryID:  categoryID,
		Name:        name,
	})
	return id, nil
}

func (g *mockGateway) CreateEndpoint(_ context.Context, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreateEndpoint {
		return "", errMock
	}
	g.nextID++
	id := fmt.Sprintf("hook-%d", g.nextID)
	g.createdEndpoints = append(g.createdEndpoints, id)
	return id, nil
}

func (g *mockGateway) DeleteChannel(_ context.Context, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failDeleteChannel {
		return errMock
	}
	g.deletedChannels = append(g.deletedChannels, channelID)
	return nil
}

func (g *mockGateway) ApplyBan(_ context.Context, communityID, userID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failBan {
		return errMock
	}
	g.bans = append(g.bans, banOp{CommunityID: communityID, UserID: userID, Reason: reason})
	return nil
}

func (g *mockGateway) AddReaction(_ context.Context, messageID, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactionLog = append(g.reactionLog, reactionOp{MessageID: messageID, Emoji: emoji, Added: true})
	return nil
}

func (g *mockGateway) RemoveReaction(_ context.Context, messageID, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactionLog = append(g.reactionLog, reactionOp{MessageID: messageID, Emoji: emoji, Added: false})
	return nil
}

func (g *mockGateway) TriggerTyping(_ context.Context, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.typingChannels = append(g.typingChannels, channelID)
	return nil
}

func (g *mockGateway) TriggerDirectTyping(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.typingUsers = append(g.typingUsers, userID)
	return nil
}

func (g *mockGateway) OpenForm(_ context.Context, _ string, form Form) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOpenForm {
		return errMock
	}
	g.forms = append(g.forms, form)
	return nil
}

// reactionsOn replays the reaction log for one message and returns the
// emoji still present.
func (g *mockGateway) reactionsOn(messageID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	current := make(map[string]bool)
	var order []string
	for _, op := range g.reactionLog {
		if op.MessageID != messageID {
			continue
		}
		if op.Added && !current[op.Emoji] {
			current[op.Emoji] = true
			order = append(order, op.Emoji)
		} else if !op.Added {
			current[op.Emoji] = false
		}
	}
	var out []string
	for _, emoji := range order {
		if current[emoji] {
			out = append(out, emoji)
		}
	}
	return out
}

type testEnv struct {
	bot  *Bot
	gw   *mockGateway
	docs *store.Memory
	st   *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gw := newMockGateway()
	docs := store.NewMemory()
	st := store.New(docs)
	bot := New(gw, st, Options{HostedURL: "https://mail.example.com", Log: zerolog.Nop()})
	if err := bot.Start(context.Background()); err != nil {
		t.Fatalf("failed to start bot: %v", err)
	}
	return &testEnv{bot: bot, gw: gw, docs: docs, st: st}
}

func (e *testEnv) addCommunity(t *testing.T, id, name string, settings map[string]string) {
	t.Helper()
	e.gw.mu.Lock()
	e.gw.communities = append(e.gw.communities, Community{ID: id, Name: name})
	e.gw.mu.Unlock()
	if settings != nil {
		err := e.docs.Insert(context.Background(), store.KindConfig, id, &store.CommunityConfig{
			CommunityID: id,
			Settings:    settings,
		})
		if err != nil {
			t.Fatalf("failed to seed config: %v", err)
		}
		if cat := settings[cfgRelayCategory]; cat != "" {
			e.gw.mu.Lock()
			e.gw.channelKinds[cat] = ChannelCategory
			e.gw.mu.Unlock()
		}
	}
}

func (e *testEnv) addUser(id, name string) {
	e.gw.mu.Lock()
	defer e.gw.mu.Unlock()
	e.gw.users[id] = [2]string{name, "https://mm.example.com/" + id + ".png"}
}

func (e *testEnv) addBlacklist(t *testing.T, id string, entry *store.BlacklistEntry) {
	t.Helper()
	if err := e.docs.Insert(context.Background(), store.KindBlacklist, id, entry); err != nil {
		t.Fatalf("failed to seed blacklist: %v", err)
	}
}

func (e *testEnv) hasCommunity(id string) bool {
	e.gw.mu.Lock()
	defer e.gw.mu.Unlock()
	for _, c := range e.gw.communities {
		if c.ID == id {
			return true
		}
	}
	return false
}

// startSession opens a session for the user, seeding the community
// with a valid relay category first unless the test already did.
func (e *testEnv) startSession(t *testing.T, userID, userName, communityID string) *store.Session {
	t.Helper()
	if !e.hasCommunity(communityID) {
		e.addCommunity(t, communityID, communityID, map[string]string{cfgRelayCategory: "cat-" + communityID})
	}
	e.addUser(userID, userName)
	sess, err := e.bot.Registry().StartSession(context.Background(), userID, userName, communityID)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	return sess
}
