package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/engramlabs/engram-go-sdk/core"
)

// Type categorizes a memory item following the cognitive-science split.
type Type string

const (
	// TypeSemantic marks durable facts and concepts, time-independent.
	TypeSemantic Type = "semantic"

	// TypeEpisodic marks time-bound events and conversation turns.
	TypeEpisodic Type = "episodic"

	// TypeProcedural marks behavioral preferences and style rules.
	TypeProcedural Type = "procedural"
)

// ValidTypes lists the allowed memory types.
var ValidTypes = map[Type]bool{
	TypeSemantic:   true,
	TypeEpisodic:   true,
	TypeProcedural: true,
}

// IDBucket is the time-bucket granularity folded into item ids.
// Identical content recorded within the same bucket produces the same id,
// making re-insertion idempotent.
const IDBucket = time.Minute

// tokenRatio approximates tokens as characters/4; no tokenizer call.
const tokenRatio = 4

// Item is one stored unit of remembered information plus its lifecycle
// metadata. All fields round-trip losslessly through JSON.
type Item struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Context    string  `json:"context,omitempty"`
	Type       Type    `json:"type"`
	Importance float64 `json:"importance"`

	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	AccessCount    int        `json:"access_count"`

	IsSummary       bool     `json:"is_summary,omitempty"`
	SourceIDs       []string `json:"source_ids,omitempty"`
	OriginalContent string   `json:"original_content,omitempty"`
}

// NewItem builds a validated memory item with a deterministic id derived
// from (content, context, coarse time bucket).
func NewItem(content, context string, typ Type, importance float64, now time.Time) (*Item, error) {
	item := &Item{
		ID:         ItemID(content, context, now),
		Content:    content,
		Context:    context,
		Type:       typ,
		Importance: importance,
		CreatedAt:  now.UTC(),
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// ItemID computes the deterministic id for (content, context, time bucket).
func ItemID(content, context string, at time.Time) string {
	bucket := at.UTC().Truncate(IDBucket).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(content + "|" + context + "|" + bucket))
	return hex.EncodeToString(sum[:])[:16]
}

// Validate checks the item invariants. It returns *core.ValidationError
// on the first violation found.
func (it *Item) Validate() error {
	if strings.TrimSpace(it.Content) == "" {
		return &core.ValidationError{Field: "content", Message: "must not be empty"}
	}
	if !ValidTypes[it.Type] {
		return &core.ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", it.Type)}
	}
	if it.Importance < 0 || it.Importance > 1 {
		return &core.ValidationError{
			Field:   "importance",
			Message: fmt.Sprintf("%g outside [0,1]", it.Importance),
		}
	}
	if it.AccessCount < 0 {
		return &core.ValidationError{Field: "access_count", Message: "must be non-negative"}
	}
	if it.IsSummary != (len(it.SourceIDs) > 0) {
		return &core.ValidationError{
			Field:   "source_ids",
			Message: "must be non-empty exactly when is_summary is set",
		}
	}
	if it.LastAccessedAt != nil && it.LastAccessedAt.Before(it.CreatedAt) {
		return &core.ValidationError{Field: "last_accessed_at", Message: "precedes created_at"}
	}
	return nil
}

// Touch records a retrieval hit: access count up, last access set to now.
// This is the documented mutation performed by Retrieve.
func (it *Item) Touch(now time.Time) {
	it.AccessCount++
	t := now.UTC()
	it.LastAccessedAt = &t
}

// EstimateTokens approximates the item's token cost from its content
// length, rounded to the nearest token.
func (it *Item) EstimateTokens() int {
	return (len(it.Content) + tokenRatio/2) / tokenRatio
}

// lastTouched returns the reference time for recency scoring: the last
// access when set, the creation time otherwise.
func (it *Item) lastTouched() time.Time {
	if it.LastAccessedAt != nil {
		return *it.LastAccessedAt
	}
	return it.CreatedAt
}
