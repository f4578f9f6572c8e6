// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestStartSession_UnknownCommunity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.bot.Registry().StartSession(context.Background(), "user1", "alice", "nowhere")
	if !errors.Is(err, ErrNoCommunity) {
		t.Fatalf("expected ErrNoCommunity, got %v", err)
	}
}

func TestStartSession_NoRelayCategory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addCommunity(t, "team1", "Team One", map[string]string{})

	_, err := env.bot.Registry().StartSession(context.Background(), "user1", "alice", "team1")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStartSession_CategoryNotACategory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addCommunity(t, "team1", "Team One", map[string]string{cfgRelayCategory: "ch-text"})
	env.gw.channelKinds["ch-text"] = ChannelText

	_, err := env.bot.Registry().StartSession(context.Background(), "user1", "alice", "team1")
	if !errors.Is(err, ErrCategoryInvalid) {
		t.Fatalf("expected ErrCategoryInvalid, got %v", err)
	}
}

func TestStartSession_Success(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	sess := env.startSession(t, "user1", "Alice", "team1")

	if sess.UserID != "user1" || sess.CommunityID != "team1" {
		t.Errorf("session fields wrong: %+v", sess)
	}
	if sess.ChannelID == "" || sess.EndpointID == "" {
		t.Errorf("session missing platform resources: %+v", sess)
	}
	if got := env.bot.Registry().ByUser("user1"); got == nil || got.ID != sess.ID {
		t.Error("session not indexed by user")
	}
	if got := env.bot.Registry().ByChannel(sess.ChannelID); got == nil || got.ID != sess.ID {
		t.Error("session not indexed by channel")
	}

	persisted, err := env.st.Sessions(context.Background())
	if err != nil {
		t.Fatalf("failed to load sessions: %v", err)
	}
	if len(persisted) != 1 || persisted[0].ID != sess.ID {
		t.Errorf("expected 1 persisted session, got %d", len(persisted))
	}

	if len(env.gw.createdChannels) != 1 {
		t.Fatalf("expected 1 created channel, got %d", len(env.gw.createdChannels))
	}
	created := env.gw.createdChannels[0]
	if created.Name != "modmail-alice" {
		t.Errorf("channel name: got %q, want %q", created.Name, "modmail-alice")
	}
	if created.CategoryID != "cat-team1" {
		t.Errorf("category: got %q, want %q", created.CategoryID, "cat-team1")
	}
}

func TestStartSession_SecondStartRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.startSession(t, "user1", "alice", "team1")

	_, err := env.bot.Registry().StartSession(context.Background(), "user1", "alice", "team1")
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if env.bot.Registry().Len() != 1 {
		t.Errorf("expected 1 active session, got %d", env.bot.Registry().Len())
	}
}

func TestStartSession_ConcurrentDuplicatesYieldOneSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addCommunity(t, "team1", "Team One", map[string]string{cfgRelayCategory: "cat1"})
	env.addUser("user1", "alice")

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.bot.Registry().StartSession(context.Background(), "user1", "alice", "team1")
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrAlreadyActive) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly 1 successful start, got %d", succeeded)
	}
	if env.bot.Registry().Len() != 1 {
		t.Errorf("expected 1 active session, got %d", env.bot.Registry().Len())
	}
}

func TestStartSession_EndpointFailureUnwindsChannel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addCommunity(t, "team1", "Team One", map[string]string{cfgRelayCategory: "cat1"})
	env.gw.failCreateEndpoint = true

	_, err := env.bot.Registry().StartSession(context.Background(), "user1", "alice", "team1")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(env.gw.deletedChannels) != 1 {
		t.Fatalf("expected orphaned channel to be deleted, got %d deletions", len(env.gw.deletedChannels))
	}
	if env.bot.Registry().ByUser("user1") != nil {
		t.Error("failed start left a session in the registry")
	}
}

func TestCloseSession_ChannelDeleteFailureStillCloses(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.startSession(t, "user1", "alice", "team1")
	env.gw.failDeleteChannel = true

	if err := env.bot.Registry().CloseSession(context.Background(), sess); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if env.bot.Registry().ByUser("user1") != nil {
		t.Error("session still indexed after close")
	}
	persisted, err := env.st.Sessions(context.Background())
	if err != nil {
		t.Fatalf("failed to load sessions: %v", err)
	}
	if len(persisted) != 0 {
		t.Errorf("expected 0 persisted sessions, got %d", len(persisted))
	}
}

func TestCloseSession_AllowsRestart(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.startSession(t, "user1", "alice", "team1")

	if err := env.bot.Registry().CloseSession(context.Background(), sess); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	again, err := env.bot.Registry().StartSession(context.Background(), "user1", "alice", "team1")
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if again.ID == sess.ID {
		t.Error("restarted session reused the old id")
	}
}

func TestRegistry_LoadRebuildsIndex(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.startSession(t, "user1", "alice", "team1")

	// A second engine over the same store sees the session after Load.
	reborn := NewRegistry(env.gw, env.st, testLogger())
	if err := reborn.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := reborn.ByUser("user1"); got == nil || got.ID != sess.ID {
		t.Error("reloaded registry missing session by user")
	}
	if got := reborn.ByChannel(sess.ChannelID); got == nil || got.ID != sess.ID {
		t.Error("reloaded registry missing session by channel")
	}
}

func TestRelayChannelName_Sanitizes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"Alice", "modmail-alice"},
		{"bob_42", "modmail-bob_42"},
		{"weird name!", "modmail-weird-name-"},
		{"ÜSER", "modmail--ser"},
	}
	for _, tt := range tests {
		got := relayChannelName(tt.in)
		if got != tt.want {
			t.Errorf("relayChannelName(%q): got %q, want %q", tt.in, got, tt.want)
		}
		if !strings.HasPrefix(got, "modmail-") {
			t.Errorf("relayChannelName(%q) missing prefix: %q", tt.in, got)
		}
	}
}
