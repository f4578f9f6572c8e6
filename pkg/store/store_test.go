// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(NewMemory())
}

func TestSessions_RoundTrip(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	sess := &Session{
		ID:          "sess1",
		UserID:      "user1",
		ChannelID:   "chan1",
		EndpointID:  "hook1",
		CommunityID: "team1",
	}
	if err := st.InsertSession(ctx, sess); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	all, err := st.Sessions(ctx)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(all) != 1 || *all[0] != *sess {
		t.Errorf("got %+v, want %+v", all, sess)
	}

	if err := st.DeleteSession(ctx, "sess1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	all, err = st.Sessions(ctx)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected 0 sessions after delete, got %d", len(all))
	}
}

func TestInsertSession_DuplicateIDRejected(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ID: "sess1", UserID: "user1"}
	if err := st.InsertSession(ctx, sess); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := st.InsertSession(ctx, sess); err == nil {
		t.Fatal("duplicate insert succeeded")
	}
}

func TestDeleteSession_MissingIsIdempotent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	if err := st.DeleteSession(context.Background(), "nope"); err != nil {
		t.Errorf("deleting a missing session errored: %v", err)
	}
}

func TestTranscripts_FilteredBySession(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	for _, rec := range []*TranscriptRecord{
		{ID: "m1", SessionID: "sess1", SenderID: "user1", Content: "one", CreatedAt: time.Now()},
		{ID: "m2", SessionID: "sess1", SenderID: "staff1", Content: "two", CreatedAt: time.Now()},
		{ID: "m3", SessionID: "sess2", SenderID: "user2", Content: "other", CreatedAt: time.Now()},
	} {
		if err := st.InsertTranscript(ctx, rec); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	rows, err := st.Transcripts(ctx, "sess1")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for sess1, got %d", len(rows))
	}
	for _, row := range rows {
		if row.SessionID != "sess1" {
			t.Errorf("row from wrong session: %+v", row)
		}
	}
}

func TestUpdateTranscriptContent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	rec := &TranscriptRecord{ID: "m1", SessionID: "sess1", SenderID: "user1", Content: "before"}
	if err := st.InsertTranscript(ctx, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := st.UpdateTranscriptContent(ctx, "m1", "after"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	rows, err := st.Transcripts(ctx, "sess1")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("update changed row count: %d", len(rows))
	}
	if rows[0].Content != "after" {
		t.Errorf("content: got %q, want %q", rows[0].Content, "after")
	}
	if rows[0].SenderID != "user1" {
		t.Errorf("update clobbered other fields: %+v", rows[0])
	}
}

func TestUpdateTranscriptContent_MissingRow(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	err := st.UpdateTranscriptContent(context.Background(), "nope", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsightBySession_AbsentIsNilNil(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	rec, err := st.InsightBySession(context.Background(), "sess1")
	if err != nil {
		t.Fatalf("lookup errored: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestUpsertInsight_KeyedBySession(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	first := &InsightRecord{ID: "i1", SessionID: "sess1", Messages: 31}
	if err := st.UpsertInsight(ctx, first); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	// Same session, different record id: must replace, not duplicate.
	second := &InsightRecord{ID: "i2", SessionID: "sess1", Messages: 40}
	if err := st.UpsertInsight(ctx, second); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	rec, err := st.InsightBySession(ctx, "sess1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if rec == nil || rec.ID != "i2" || rec.Messages != 40 {
		t.Errorf("got %+v, want the replacing record", rec)
	}
}

func TestCommunityConfigs(t *testing.T) {
	t.Parallel()
	docs := NewMemory()
	st := New(docs)
	ctx := context.Background()

	err := docs.Insert(ctx, KindConfig, "team1", &CommunityConfig{
		CommunityID: "team1",
		Settings:    map[string]string{"modmailchannel": "cat1", "modmailtyping": "true"},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	cfgs, err := st.CommunityConfigs(ctx)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if cfgs["team1"]["modmailchannel"] != "cat1" {
		t.Errorf("settings wrong: %+v", cfgs)
	}
	if _, ok := cfgs["team2"]; ok {
		t.Error("unexpected community in configs")
	}
}

func TestBlacklist_Snapshot(t *testing.T) {
	t.Parallel()
	docs := NewMemory()
	st := New(docs)
	ctx := context.Background()

	entries := []*BlacklistEntry{
		{CommunityID: "team1", UserID: "user1", Command: "modmail"},
		{CommunityID: "", UserID: "user2", Command: "all"},
	}
	for i, e := range entries {
		if err := docs.Insert(ctx, KindBlacklist, string(rune('a'+i)), e); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	got, err := st.Blacklist(ctx)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 entries, got %d", len(got))
	}
}
