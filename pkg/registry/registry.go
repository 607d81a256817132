package registry

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Record struct {
	LastSeen     time.Time
	Name         string
	Addr         string
	ID           int64
	RegisteredAt uint64
}

type Registry struct {
	log *zap.SugaredLogger
	m   map[int64]*Record
	mu  sync.RWMutex
}

func New() *Registry {
	return &Registry{
		log: zap.S().Named("registry"),
		m:   make(map[int64]*Record),
	}
}

// Register inserts or overwrites the record for id. It reports whether an
// existing record was replaced.
func (r *Registry) Register(id int64, name, addr string, now time.Time, registeredAt uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.m[id]
	r.m[id] = &Record{
		ID:           id,
		Name:         name,
		Addr:         addr,
		LastSeen:     now,
		RegisteredAt: registeredAt,
	}
	if replaced {
		r.log.Debugw("re-registered", "id", id, "addr", addr)
	}
	return replaced
}

// Touch refreshes lastSeen and the reply address of a registered id. Unknown
// ids are ignored.
func (r *Registry) Touch(id int64, addr string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.m[id]
	if !ok {
		return false
	}
	if now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
	if addr != "" {
		rec.Addr = addr
	}
	return true
}

// Sweep removes every record whose lastSeen is older than timeout and returns
// the evicted records.
func (r *Registry) Sweep(now time.Time, timeout time.Duration) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []Record
	for id, rec := range r.m {
		if now.Sub(rec.LastSeen) > timeout {
			evicted = append(evicted, *rec)
			delete(r.m, id)
		}
	}
	slices.SortFunc(evicted, byID)
	return evicted
}

func (r *Registry) get(id int64) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.m[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Snapshot returns a copy of all records ordered by id.
func (r *Registry) Snapshot() []Record {
	return r.Recipients(nil)
}

// Recipients returns copies of all records except those matching exclude,
// ordered by id. The copies are safe to use after the lock is released.
func (r *Registry) Recipients(exclude func(Record) bool) []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.m))
	for _, rec := range r.m {
		if exclude != nil && exclude(*rec) {
			continue
		}
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, byID)
	return out
}

func byID(a, b Record) int {
	return cmp.Compare(a.ID, b.ID)
}
