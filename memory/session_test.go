package memory_test

import (
	"testing"
	"time"

	"github.com/engramlabs/engram-go-sdk/core"
	"github.com/engramlabs/engram-go-sdk/memory"
)

func TestRegistryLifecycle(t *testing.T) {
	reg := memory.NewRegistry()

	s1 := reg.Create()
	s2 := reg.Create()
	if s1.ID() == s2.ID() {
		t.Error("sessions share an id")
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}

	got, err := reg.Get(s1.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s1 {
		t.Error("Get returned a different session")
	}

	_, err = reg.Get("no-such-session")
	if err == nil {
		t.Fatal("expected NotFoundError")
	}
	if nf, ok := err.(*core.NotFoundError); !ok || nf.Kind != "session" {
		t.Errorf("error = %v, want session NotFoundError", err)
	}

	reg.Delete(s1.ID())
	reg.Delete(s1.ID()) // second delete is a no-op
	if reg.Len() != 1 {
		t.Errorf("Len() after delete = %d, want 1", reg.Len())
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := memory.NewRegistry()
	b := memory.NewRegistry()
	s := a.Create()
	if _, err := b.Get(s.ID()); err == nil {
		t.Error("session leaked across registries")
	}
}

func TestSessionMessages(t *testing.T) {
	reg := memory.NewRegistry()
	s := reg.Create()

	s.AppendMessage(core.NewMessage(core.RoleUser, "hello"))
	s.AppendMessage(core.NewMessage(core.RoleAssistant, "hi there"))

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != core.RoleUser || msgs[1].Role != core.RoleAssistant {
		t.Error("roles out of order")
	}

	// The returned slice is a copy.
	msgs[0].Content = "mutated"
	if s.Messages()[0].Content != "hello" {
		t.Error("Messages() exposed internal state")
	}
}

func TestSessionItems(t *testing.T) {
	reg := memory.NewRegistry()
	s := reg.Create()
	now := time.Now().UTC()

	item := mustItem(t, "an observation", memory.TypeEpisodic, 0.5, now)
	if !s.InsertItem(item) {
		t.Fatal("insert failed")
	}
	dup := mustItem(t, "an observation", memory.TypeEpisodic, 0.5, now)
	if s.InsertItem(dup) {
		t.Error("duplicate insert should report false")
	}
	if s.PoolSize() != 1 {
		t.Errorf("PoolSize() = %d, want 1", s.PoolSize())
	}

	got, err := s.Item(item.ID)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if got.Content != "an observation" {
		t.Errorf("content = %q", got.Content)
	}

	if _, err := s.Item("missing"); err == nil {
		t.Error("missing item should return NotFoundError")
	}

	resolved := s.ItemsByID([]string{item.ID, "missing"})
	if len(resolved) != 1 || resolved[0].ID != item.ID {
		t.Errorf("ItemsByID resolved %d items", len(resolved))
	}
}

func TestSnapshotStats(t *testing.T) {
	now := time.Now().UTC()
	pool := memory.Pool{}
	pool.Insert(mustItem(t, "a fact worth keeping", memory.TypeSemantic, 0.8, now))
	pool.Insert(mustItem(t, "an event", memory.TypeEpisodic, 0.4, now))

	accessed := mustItem(t, "a popular rule", memory.TypeProcedural, 0.6, now)
	accessed.Touch(now.Add(time.Minute))
	accessed.Touch(now.Add(2 * time.Minute))
	pool.Insert(accessed)

	stats := memory.Snapshot(pool)
	if stats.TotalItems != 3 {
		t.Errorf("TotalItems = %d, want 3", stats.TotalItems)
	}
	if stats.ByType[memory.TypeSemantic] != 1 || stats.ByType[memory.TypeEpisodic] != 1 || stats.ByType[memory.TypeProcedural] != 1 {
		t.Errorf("ByType = %v", stats.ByType)
	}
	if stats.MostAccessedID != accessed.ID {
		t.Errorf("MostAccessedID = %s, want %s", stats.MostAccessedID, accessed.ID)
	}
	want := (0.8 + 0.4 + 0.6) / 3
	if diff := stats.AvgImportance - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AvgImportance = %g, want %g", stats.AvgImportance, want)
	}
	if stats.Summaries != 0 {
		t.Errorf("Summaries = %d, want 0", stats.Summaries)
	}
}

func TestSnapshotEmptyPool(t *testing.T) {
	stats := memory.Snapshot(memory.Pool{})
	if stats.TotalItems != 0 || stats.MostAccessedID != "" || stats.AvgImportance != 0 {
		t.Errorf("empty pool stats = %+v", stats)
	}
}
