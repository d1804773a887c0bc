// Package chromem persists memory items in chromem-go, an embedded
// pure-Go vector database. It backs the Store interface for local
// deployments where similarity search should work offline.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/engramlabs/engram-go-sdk/memory"
)

// Store keeps one chromem collection per session, so sessions stay
// fully isolated from each other.
type Store struct {
	db          *chromem.DB
	embedder    memory.Embedder
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// New creates an in-memory chromem store. The embedder supplies vectors
// for both upserts and queries.
func New(embedder memory.Embedder) *Store {
	return &Store{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}
}

func (s *Store) collection(sessionID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[sessionID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[sessionID]; ok {
		return col, nil
	}

	col, err := s.db.CreateCollection("session_"+sessionID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[sessionID] = col
	return col, nil
}

// Upsert writes an item and its embedding, replacing any document with
// the same id.
func (s *Store) Upsert(ctx context.Context, sessionID string, item *memory.Item) error {
	col, err := s.collection(sessionID)
	if err != nil {
		return err
	}

	vec, err := s.embedder.Embed(ctx, item.Content)
	if err != nil {
		return fmt.Errorf("embed item %s: %w", item.ID, err)
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", item.ID, err)
	}

	doc := chromem.Document{
		ID:        item.ID,
		Content:   string(payload),
		Embedding: vec,
		Metadata: map[string]string{
			"type":       string(item.Type),
			"is_summary": fmt.Sprintf("%t", item.IsSummary),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document %s: %w", item.ID, err)
	}
	return nil
}

// Query returns up to topK items by vector similarity to the query
// text, highest first. Documents that fail to decode are skipped.
func (s *Store) Query(ctx context.Context, sessionID string, query string, topK int, filter *memory.Type) ([]*memory.Item, error) {
	col, err := s.collection(sessionID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	if n := col.Count(); topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var where map[string]string
	if filter != nil {
		where = map[string]string{"type": string(*filter)}
	}

	results, err := col.QueryEmbedding(ctx, vec, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", sessionID, err)
	}

	items := make([]*memory.Item, 0, len(results))
	for _, res := range results {
		var it memory.Item
		if err := json.Unmarshal([]byte(res.Content), &it); err != nil {
			log.Printf("[CHROMEM] skipping undecodable document %s: %v", res.ID, err)
			continue
		}
		items = append(items, &it)
	}
	return items, nil
}

// Delete removes items by id. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, sessionID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(sessionID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete from session %s: %w", sessionID, err)
	}
	return nil
}

// Close is a no-op; chromem keeps everything in process memory.
func (s *Store) Close() error { return nil }
