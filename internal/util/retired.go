package util

import "container/list"

// DefaultRetiredLimit caps how many ended session ids are remembered.
const DefaultRetiredLimit = 4096

// Retired remembers ids that must not be reused, evicting the oldest once
// the limit is reached. An evicted id can be bound again, so the limit must
// exceed the number of sessions that end while their stale events can still
// arrive. Not safe for concurrent use; callers hold their own lock.
type Retired struct {
	limit int
	order *list.List
	ids   map[string]*list.Element
}

// NewRetired creates a set holding at most limit ids. A non-positive limit
// selects DefaultRetiredLimit.
func NewRetired(limit int) *Retired {
	if limit <= 0 {
		limit = DefaultRetiredLimit
	}
	return &Retired{
		limit: limit,
		order: list.New(),
		ids:   make(map[string]*list.Element),
	}
}

// Add records id, evicting the oldest entry when full.
func (r *Retired) Add(id string) {
	if _, ok := r.ids[id]; ok {
		return
	}
	r.ids[id] = r.order.PushBack(id)
	for r.order.Len() > r.limit {
		oldest := r.order.Front()
		r.order.Remove(oldest)
		delete(r.ids, oldest.Value.(string))
	}
}

// Has reports whether id is remembered.
func (r *Retired) Has(id string) bool {
	_, ok := r.ids[id]
	return ok
}

// Len returns the number of remembered ids.
func (r *Retired) Len() int { return r.order.Len() }
