package anchor

// List is the ordered set of anchors in the active session. Order is
// placement order. It is owned by a single goroutine and not locked.
type List struct {
	items []Anchor
}

// Append adds a to the end of the list.
func (l *List) Append(a Anchor) {
	l.items = append(l.items, a)
}

// Remove deletes the anchor with the given id and reports whether it
// was present.
func (l *List) Remove(id string) bool {
	for i, a := range l.items {
		if a.ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the anchor with the given id.
func (l *List) Get(id string) (Anchor, bool) {
	for _, a := range l.items {
		if a.ID == id {
			return a, true
		}
	}
	return Anchor{}, false
}

// Set replaces the anchor with the same id.
func (l *List) Set(a Anchor) bool {
	for i := range l.items {
		if l.items[i].ID == a.ID {
			l.items[i] = a
			return true
		}
	}
	return false
}

// Len returns the number of anchors.
func (l *List) Len() int { return len(l.items) }

// All returns a copy of the anchors in order.
func (l *List) All() []Anchor {
	out := make([]Anchor, len(l.items))
	copy(out, l.items)
	return out
}

// Snapshot returns the persisted form of every anchor, in order.
func (l *List) Snapshot() []Record {
	out := make([]Record, 0, len(l.items))
	for _, a := range l.items {
		out = append(out, a.Record())
	}
	return out
}

// Reset empties the list.
func (l *List) Reset() {
	l.items = nil
}
