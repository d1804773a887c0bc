package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramlabs/engram-go-sdk/core"
	"github.com/engramlabs/engram-go-sdk/memory"
	"github.com/engramlabs/engram-go-sdk/memory/store/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "engram.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestItemRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	touched := time.Date(2026, 3, 1, 10, 30, 0, 123456789, time.UTC)
	item := &memory.Item{
		ID:              "abc123",
		Content:         "prefers dark roast coffee",
		Context:         "morning chat",
		Type:            memory.TypeSemantic,
		Importance:      0.8,
		CreatedAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		LastAccessedAt:  &touched,
		AccessCount:     3,
		IsSummary:       true,
		SourceIDs:       []string{"s1", "s2", "s3"},
		OriginalContent: "line one\nline two",
	}
	if err := s.Upsert(ctx, "sess", item); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	items, err := s.LoadItems(ctx, "sess")
	if err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	got := items[0]
	if got.ID != item.ID || got.Content != item.Content || got.Context != item.Context {
		t.Errorf("identity fields differ: %+v", got)
	}
	if got.Type != memory.TypeSemantic || got.Importance != 0.8 {
		t.Errorf("type/importance differ: %q %v", got.Type, got.Importance)
	}
	if !got.CreatedAt.Equal(item.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, item.CreatedAt)
	}
	if got.LastAccessedAt == nil || !got.LastAccessedAt.Equal(touched) {
		t.Errorf("LastAccessedAt = %v, want %v", got.LastAccessedAt, touched)
	}
	if got.AccessCount != 3 || !got.IsSummary {
		t.Errorf("access/summary differ: %d %v", got.AccessCount, got.IsSummary)
	}
	if len(got.SourceIDs) != 3 || got.SourceIDs[0] != "s1" {
		t.Errorf("SourceIDs = %v", got.SourceIDs)
	}
	if got.OriginalContent != item.OriginalContent {
		t.Errorf("OriginalContent = %q", got.OriginalContent)
	}
}

func TestItemRoundTripNilOptionals(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	item, err := memory.NewItem("user asked about pricing", "", memory.TypeEpisodic, 0.5, time.Now())
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	if err := s.Upsert(ctx, "sess", item); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	items, err := s.LoadItems(ctx, "sess")
	if err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	got := items[0]
	if got.LastAccessedAt != nil {
		t.Errorf("LastAccessedAt = %v, want nil", got.LastAccessedAt)
	}
	if got.SourceIDs != nil {
		t.Errorf("SourceIDs = %v, want nil", got.SourceIDs)
	}
}

func TestUpsertReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	item, _ := memory.NewItem("likes hiking", "", memory.TypeSemantic, 0.5, time.Now())
	if err := s.Upsert(ctx, "sess", item); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	item.AccessCount = 7
	item.Importance = 0.9
	if err := s.Upsert(ctx, "sess", item); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	items, err := s.LoadItems(ctx, "sess")
	if err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].AccessCount != 7 || items[0].Importance != 0.9 {
		t.Errorf("update not applied: %+v", items[0])
	}
}

func TestQueryRankingAndFilter(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()

	seed := []struct {
		content string
		typ     memory.Type
	}{
		{"user lives in Lisbon and works remotely", memory.TypeSemantic},
		{"asked about the weather in Lisbon today", memory.TypeEpisodic},
		{"always answer with metric units", memory.TypeProcedural},
	}
	for i, sd := range seed {
		item, err := memory.NewItem(sd.content, "", sd.typ, 0.5, now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("new item: %v", err)
		}
		if err := s.Upsert(ctx, "sess", item); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := s.Query(ctx, "sess", "weather in Lisbon", 2, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Content != "asked about the weather in Lisbon today" {
		t.Errorf("top result = %q", got[0].Content)
	}

	filter := memory.TypeProcedural
	got, err = s.Query(ctx, "sess", "anything", 10, &filter)
	if err != nil {
		t.Fatalf("filtered query: %v", err)
	}
	if len(got) != 1 || got[0].Type != memory.TypeProcedural {
		t.Errorf("filter leaked: %+v", got)
	}

	if got, _ := s.Query(ctx, "sess", "weather", 0, nil); got != nil {
		t.Errorf("topK 0 should return nil, got %v", got)
	}
	if got, _ := s.Query(ctx, "other-session", "weather", 5, nil); len(got) != 0 {
		t.Errorf("wrong session returned %d items", len(got))
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()

	a, _ := memory.NewItem("first", "", memory.TypeEpisodic, 0.5, now)
	b, _ := memory.NewItem("second", "", memory.TypeEpisodic, 0.5, now)
	for _, it := range []*memory.Item{a, b} {
		if err := s.Upsert(ctx, "sess", it); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if err := s.Delete(ctx, "sess", a.ID, "no-such-id"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, err := s.LoadItems(ctx, "sess")
	if err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 1 || items[0].ID != b.ID {
		t.Errorf("remaining = %+v", items)
	}

	if err := s.Delete(ctx, "sess"); err != nil {
		t.Errorf("empty delete should be a no-op, got %v", err)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	msgs := []core.Message{
		{Role: core.RoleUser, Content: "hi there", Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{Role: core.RoleAssistant, Content: "hello!", Timestamp: time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC)},
	}
	if err := s.SaveMessages(ctx, "sess", msgs); err != nil {
		t.Fatalf("save messages: %v", err)
	}

	got, err := s.LoadMessages(ctx, "sess")
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	for i := range msgs {
		if got[i].Role != msgs[i].Role || got[i].Content != msgs[i].Content || !got[i].Timestamp.Equal(msgs[i].Timestamp) {
			t.Errorf("message %d = %+v, want %+v", i, got[i], msgs[i])
		}
	}

	// Saving again replaces, not appends.
	if err := s.SaveMessages(ctx, "sess", msgs[:1]); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err = s.LoadMessages(ctx, "sess")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d messages after resave, want 1", len(got))
	}
}

func TestSessionRestoreFromSnapshot(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()

	original := memory.NewSession()
	original.AppendMessage(core.Message{Role: core.RoleUser, Content: "hi", Timestamp: now})
	item, _ := memory.NewItem("lives near the harbor", "", memory.TypeSemantic, 0.7, now)
	original.InsertItem(item)

	if err := s.SaveMessages(ctx, original.ID(), original.Messages()); err != nil {
		t.Fatalf("save messages: %v", err)
	}
	for _, it := range original.Pool() {
		if err := s.Upsert(ctx, original.ID(), it); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	// Simulate a restart: rebuild the session from the store.
	restored := memory.NewSession()
	msgs, err := s.LoadMessages(ctx, original.ID())
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	items, err := s.LoadItems(ctx, original.ID())
	if err != nil {
		t.Fatalf("load items: %v", err)
	}
	restored.RestoreHistory(msgs)
	if n := restored.RestoreItems(items); n != 1 {
		t.Errorf("restored %d items, want 1", n)
	}

	if len(restored.Messages()) != 1 || restored.Messages()[0].Content != "hi" {
		t.Errorf("messages = %+v", restored.Messages())
	}
	back, err := restored.Item(item.ID)
	if err != nil {
		t.Fatalf("restored item missing: %v", err)
	}
	if back.Content != item.Content || back.Importance != item.Importance {
		t.Errorf("restored item = %+v", back)
	}
}
