package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramlabs/engram-go-sdk/core"
)

// Session holds the ordered message history and the live memory pool for
// one conversation. It is the unit of isolation: a session exclusively
// owns its pool and messages for its lifetime, and no memory item is
// shared across sessions.
type Session struct {
	id        string
	createdAt time.Time

	// turnMu serializes whole turns: at most one in-flight turn per
	// session. Held across the LLM call; different sessions proceed in
	// parallel with no shared state.
	turnMu sync.Mutex

	mu       sync.RWMutex
	messages []core.Message
	pool     Pool
}

// NewSession creates an empty session with a fresh id.
func NewSession() *Session {
	return &Session{
		id:        uuid.New().String(),
		createdAt: time.Now().UTC(),
		pool:      make(Pool),
	}
}

// ID returns the session's unique handle. Ids are never reused.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// BeginTurn blocks until no other turn is in flight for this session,
// then claims the session for the caller. Every classify/store/retrieve/
// compress/append sequence must run between BeginTurn and EndTurn.
func (s *Session) BeginTurn() {
	s.turnMu.Lock()
}

// EndTurn releases the session claimed by BeginTurn.
func (s *Session) EndTurn() {
	s.turnMu.Unlock()
}

// AppendMessage appends to the conversation history. Messages are
// append-only and never mutated afterward.
func (s *Session) AppendMessage(msg core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Messages returns a copy of the conversation history.
func (s *Session) Messages() []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// RestoreHistory replaces the message log, for rebuilding a session
// from a snapshot store. The caller must hold the turn.
func (s *Session) RestoreHistory(msgs []core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]core.Message, len(msgs))
	copy(s.messages, msgs)
}

// RestoreItems bulk-inserts items loaded from a snapshot store. Items
// whose ids are already present are skipped. Returns how many were
// inserted.
func (s *Session) RestoreItems(items []*Item) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range items {
		if s.pool.Insert(it) {
			n++
		}
	}
	return n
}

// InsertItem adds an item to the pool; silent no-op on id collision.
// Reports whether the item was added.
func (s *Session) InsertItem(item *Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Insert(item)
}

// Item looks up a single item by id. Returns *core.NotFoundError when
// the id is absent.
func (s *Session) Item(id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if it, ok := s.pool[id]; ok {
		return it, nil
	}
	return nil, &core.NotFoundError{Kind: "memory", ID: id}
}

// ItemsByID resolves a batch of ids, skipping any that are no longer
// in the pool (a compression pass may have replaced them).
func (s *Session) ItemsByID(ids []string) []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]*Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := s.pool[id]; ok {
			items = append(items, it)
		}
	}
	return items
}

// Pool returns the live memory pool. The caller must hold the turn
// (BeginTurn) for the duration of any use, including retrieval: access
// tracking makes retrieval a mutating operation.
func (s *Session) Pool() Pool {
	return s.pool
}

// PoolSize returns the current number of items in the pool.
func (s *Session) PoolSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pool)
}

// Registry maps session ids to live sessions. It is explicit injected
// state with its own lifecycle, so tests and multi-tenant deployments can
// run independent registries side by side.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers and returns a new session.
func (r *Registry) Create() *Session {
	s := NewSession()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
	return s
}

// Get returns the session for id, or *core.NotFoundError.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, &core.NotFoundError{Kind: "session", ID: id}
}

// Delete tears down a session. Removing an unknown id is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
