// Package engine orchestrates the per-turn memory lifecycle around an
// LLM call: store what the user said, retrieve what matters, generate,
// store what came back, and compress when the pool grows stale.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/engramlabs/engram-go-sdk/core"
	"github.com/engramlabs/engram-go-sdk/llm"
	"github.com/engramlabs/engram-go-sdk/memory"
)

// Engine runs conversational turns against a session registry. One
// Engine serves many sessions; turns within a session are serialized,
// different sessions proceed in parallel.
type Engine struct {
	registry   *memory.Registry
	generator  llm.Generator
	classifier memory.Classifier
	retriever  *memory.Retriever
	compressor *memory.Compressor
	store      memory.Store
	topK       int

	syncRetries int
	syncBackoff time.Duration
}

// Option configures the engine.
type Option func(*Engine)

// WithClassifier overrides the default rule-based classifier.
func WithClassifier(c memory.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithRetriever overrides the default keyword retriever.
func WithRetriever(r *memory.Retriever) Option {
	return func(e *Engine) { e.retriever = r }
}

// WithCompressor overrides the default compressor.
func WithCompressor(c *memory.Compressor) Option {
	return func(e *Engine) { e.compressor = c }
}

// WithStore attaches a persistence collaborator. Pool mutations are
// mirrored to it after each turn, fire-and-forget with retry.
func WithStore(s memory.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithTopK sets how many items are retrieved into the prompt per turn.
func WithTopK(k int) Option {
	return func(e *Engine) { e.topK = k }
}

// New creates an engine from a generator and a config, with defaults
// for everything else.
func New(registry *memory.Registry, generator llm.Generator, cfg *memory.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = memory.DefaultConfig
	}
	e := &Engine{
		registry:    registry,
		generator:   generator,
		classifier:  memory.NewRuleClassifier(),
		retriever:   memory.NewRetrieverWith(memory.KeywordRelevance, memory.ExpDecay(cfg.DecayHalfLife)),
		compressor:  memory.NewCompressor(cfg.Compression),
		topK:        cfg.TopK,
		syncRetries: 3,
		syncBackoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Output reports what one turn produced.
type Output struct {
	// Text is the assistant's response.
	Text string

	// Retrieved is the memory context handed to the model, in
	// retrieval order.
	Retrieved []*memory.Item

	// StoredIDs lists pool items inserted this turn, including any
	// accepted remember-tool writes and the compression summary.
	StoredIDs []string

	// Compression reports the compression pass evaluated at the end of
	// the turn.
	Compression memory.Stats
}

// Turn runs one full conversational turn for a session. The memory
// pool stays valid on every failure path: the user's message and its
// classified item are already stored when the LLM call fails, and no
// assistant message is appended.
func (e *Engine) Turn(ctx context.Context, sessionID, userText string) (*Output, error) {
	session, err := e.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	session.BeginTurn()
	defer session.EndTurn()

	now := time.Now().UTC()
	out := &Output{}
	var deletedIDs []string

	session.AppendMessage(core.NewMessage(core.RoleUser, userText))

	// Store the user's side of the exchange before calling out: a
	// failed or retried turn then re-derives the same item ids.
	if id := e.classifyAndStore(session, userText, "", now); id != "" {
		out.StoredIDs = append(out.StoredIDs, id)
	}

	out.Retrieved = e.retriever.Retrieve(session.Pool(), userText, e.topK, &memory.RetrieveOptions{Now: now})
	log.Printf("[ENGINE] session=%s retrieved %d items for turn", sessionID, len(out.Retrieved))

	resp, err := e.generator.Generate(ctx, llm.Request{
		Messages: session.Messages(),
		Context:  out.Retrieved,
	})
	if err != nil {
		e.sync(sessionID, session.ItemsByID(out.StoredIDs), nil)
		return nil, fmt.Errorf("generate: %w", err)
	}
	out.Text = resp.Text

	session.AppendMessage(core.NewMessage(core.RoleAssistant, resp.Text))
	if id := e.classifyAndStore(session, userText, resp.Text, now); id != "" {
		out.StoredIDs = append(out.StoredIDs, id)
	}

	for _, call := range resp.ToolCalls {
		id, err := e.applyMemoryWrite(session, call, now)
		if err != nil {
			log.Printf("[MEMORY] session=%s rejected write request: %v", sessionID, err)
			continue
		}
		if id != "" {
			out.StoredIDs = append(out.StoredIDs, id)
		}
	}

	stats, err := e.compressor.Run(ctx, session.Pool(), now)
	if err != nil {
		// The pool is untouched on a failed pass; report the turn as
		// successful but surface the failure in the log.
		log.Printf("[COMPRESS] session=%s pass failed: %v", sessionID, err)
	} else {
		out.Compression = stats
		if stats.ItemsCompressed > 0 {
			deletedIDs = e.compressedSourceIDs(session, stats.SummaryID)
			out.StoredIDs = append(out.StoredIDs, stats.SummaryID)
		}
	}

	e.sync(sessionID, session.ItemsByID(out.StoredIDs), deletedIDs)
	return out, nil
}

// Compact runs a manual compression pass for a session, outside any
// turn.
func (e *Engine) Compact(ctx context.Context, sessionID string) (memory.Stats, error) {
	session, err := e.registry.Get(sessionID)
	if err != nil {
		return memory.Stats{}, err
	}
	session.BeginTurn()
	defer session.EndTurn()

	now := time.Now().UTC()
	stats, err := e.compressor.RunNow(ctx, session.Pool(), now)
	if err != nil {
		return stats, err
	}
	if stats.ItemsCompressed > 0 {
		deleted := e.compressedSourceIDs(session, stats.SummaryID)
		e.sync(sessionID, session.ItemsByID([]string{stats.SummaryID}), deleted)
	}
	return stats, nil
}

// classifyAndStore builds an item from one exchange and inserts it.
// Returns the inserted id, or "" when the insert was an id-collision
// no-op (the memory already exists).
func (e *Engine) classifyAndStore(session *memory.Session, userText, assistantText string, now time.Time) string {
	content := userText
	if assistantText != "" {
		content = assistantText
	}
	typ, importance := e.classifier.Classify(userText, assistantText)

	item, err := memory.NewItem(content, "", typ, importance, now)
	if err != nil {
		log.Printf("[MEMORY] dropping unstorable exchange: %v", err)
		return ""
	}
	if !session.InsertItem(item) {
		return ""
	}
	log.Printf("[MEMORY] stored %s item %s (importance %.2f)", typ, item.ID, importance)
	return item.ID
}

// applyMemoryWrite validates a remember tool call through the
// classifier and inserts the resulting item. The model's type and
// importance hints only apply when the classifier agrees the content
// is storable and the hints are within range.
func (e *Engine) applyMemoryWrite(session *memory.Session, call llm.ToolCall, now time.Time) (string, error) {
	req, err := llm.ParseMemoryWrite(call)
	if err != nil {
		return "", err
	}

	typ, importance := e.classifier.Classify(req.Content, "")
	if hinted := memory.Type(req.Type); memory.ValidTypes[hinted] {
		typ = hinted
	}
	if req.Importance > 0 && req.Importance <= 1 {
		importance = req.Importance
	}

	item, err := memory.NewItem(req.Content, req.Context, typ, importance, now)
	if err != nil {
		return "", err
	}
	if !session.InsertItem(item) {
		return "", nil
	}
	log.Printf("[MEMORY] stored requested %s item %s", typ, item.ID)
	return item.ID, nil
}

// compressedSourceIDs reads the provenance of a fresh summary so the
// superseded items can be removed from the persistent store.
func (e *Engine) compressedSourceIDs(session *memory.Session, summaryID string) []string {
	summary, err := session.Item(summaryID)
	if err != nil {
		return nil
	}
	return summary.SourceIDs
}

// sync mirrors pool mutations to the persistence collaborator in the
// background, retrying transient failures. Items are copied first so
// the next turn's mutations cannot race the writes.
func (e *Engine) sync(sessionID string, upserts []*memory.Item, deletes []string) {
	if e.store == nil || (len(upserts) == 0 && len(deletes) == 0) {
		return
	}

	copies := make([]*memory.Item, len(upserts))
	for i, it := range upserts {
		c := *it
		copies[i] = &c
	}

	go func() {
		ctx := context.Background()
		for _, it := range copies {
			e.withRetry(func() error { return e.store.Upsert(ctx, sessionID, it) },
				fmt.Sprintf("upsert %s", it.ID))
		}
		if len(deletes) > 0 {
			e.withRetry(func() error { return e.store.Delete(ctx, sessionID, deletes...) },
				fmt.Sprintf("delete %d items", len(deletes)))
		}
	}()
}

func (e *Engine) withRetry(op func() error, what string) {
	var err error
	for attempt := 1; attempt <= e.syncRetries; attempt++ {
		if err = op(); err == nil {
			return
		}
		time.Sleep(e.syncBackoff * time.Duration(attempt))
	}
	log.Printf("[ENGINE] store sync gave up on %s: %v", what, err)
}
