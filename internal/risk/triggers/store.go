package triggers

import (
	"github.com/tidwall/btree"
)

// roleStop and roleTP partition the store key space so a position can hold
// one protective stop and one take-profit program at a time.
const (
	roleStop = "stop"
	roleTP   = "tp"
)

func storeKey(positionID, role string) string {
	return positionID + "/" + role
}

// Store is the active-trigger arena, keyed by position id and role over an
// ordered map so per-tick scans evaluate in a deterministic order. Writes are
// versioned: every mutation bumps the trigger's version.
type Store struct {
	m *btree.Map[string, *Trigger]
}

// NewStore creates an empty trigger store.
func NewStore() *Store {
	return &Store{m: btree.NewMap[string, *Trigger](32)}
}

// Put inserts or replaces the trigger for its position/role slot and bumps
// the version.
func (s *Store) Put(t *Trigger) {
	t.Version++
	s.m.Set(storeKey(t.PositionID, t.role()), t)
}

// Get returns the trigger in the given slot.
func (s *Store) Get(positionID, role string) (*Trigger, bool) {
	return s.m.Get(storeKey(positionID, role))
}

// Scan visits every trigger in key order. Returning false stops the scan.
func (s *Store) Scan(fn func(t *Trigger) bool) {
	s.m.Scan(func(_ string, t *Trigger) bool {
		return fn(t)
	})
}

// Len returns the number of stored triggers, terminal ones included.
func (s *Store) Len() int {
	return s.m.Len()
}

// ActiveCount returns the number of triggers still in the active state.
func (s *Store) ActiveCount() int {
	count := 0
	s.m.Scan(func(_ string, t *Trigger) bool {
		if t.Status == StatusActive {
			count++
		}
		return true
	})
	return count
}
