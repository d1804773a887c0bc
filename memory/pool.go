package memory

// Pool is a session's live memory pool keyed by item id.
//
// A Pool has no internal locking. It is owned by exactly one Session and
// mutated only by operations serialized per session: retrieval touches
// access tracking and compression removes-then-inserts, neither of which
// is safe under concurrent access. See Session.BeginTurn.
type Pool map[string]*Item

// Insert adds the item unless its id is already present. An id collision
// means identical content was recorded in the same time bucket, so the
// memory already exists; the insert is a silent no-op. Reports whether
// the item was added.
func (p Pool) Insert(item *Item) bool {
	if _, exists := p[item.ID]; exists {
		return false
	}
	p[item.ID] = item
	return true
}

// ByType returns all items of the given type, in no particular order.
func (p Pool) ByType(typ Type) []*Item {
	var items []*Item
	for _, it := range p {
		if it.Type == typ {
			items = append(items, it)
		}
	}
	return items
}

// Items returns every item in the pool, in no particular order.
func (p Pool) Items() []*Item {
	items := make([]*Item, 0, len(p))
	for _, it := range p {
		items = append(items, it)
	}
	return items
}

// EstimateTokens sums the token estimates of every item in the pool.
func (p Pool) EstimateTokens() int {
	total := 0
	for _, it := range p {
		total += it.EstimateTokens()
	}
	return total
}
