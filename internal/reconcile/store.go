// Package reconcile holds the session's authoritative message set and merges bulk fetches,
// pushed inserts and optimistic sends into it.
package reconcile

import (
	"sync"

	"github.com/matheus3301/wppcrm/internal/normalize"
)

// Store is safe for concurrent use. Every mutation funnels through the same merge rules, so
// the final state does not depend on the order in which fetches, pushes and sends arrive:
//
//   - entries are unique by id; a remote row replaces the entry with its id
//   - a remote row whose clientMessageId matches an optimistic entry replaces it in place
//   - nothing is removed, except a placeholder whose confirmed copy is already held
type Store struct {
	mu      sync.Mutex
	norm    *normalize.Normalizer
	msgs    []normalize.Message
	byID    map[string]int
	byCID   map[string]int
	changes chan struct{}
}

// New creates an empty store that normalizes rows with norm.
func New(norm *normalize.Normalizer) *Store {
	if norm == nil {
		norm = normalize.New(nil)
	}
	return &Store{
		norm:    norm,
		byID:    make(map[string]int),
		byCID:   make(map[string]int),
		changes: make(chan struct{}, 1),
	}
}

// LoadAll merges a bulk fetch. Remote rows win on id conflict and take over optimistic
// entries that share their clientMessageId. Entries not present in rows are kept.
func (s *Store) LoadAll(rows []normalize.Row) {
	s.mu.Lock()
	changed := false
	for _, row := range rows {
		if s.mergeRemote(s.norm.Normalize(row)) {
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// ApplyRemoteInsert merges one pushed row. Applying the same row twice is a no-op.
func (s *Store) ApplyRemoteInsert(row normalize.Row) normalize.Message {
	m := s.norm.Normalize(row)
	s.mu.Lock()
	changed := s.mergeRemote(m)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return m
}

// AppendOptimistic shows a locally authored message before the server confirms it. It is
// tagged pending; if a confirmed copy already arrived, the optimistic one is dropped.
func (s *Store) AppendOptimistic(m normalize.Message) {
	m.Pending = true
	s.mu.Lock()
	if m.ClientMessageID != "" {
		if _, ok := s.byCID[m.ClientMessageID]; ok {
			s.mu.Unlock()
			return
		}
	}
	if _, ok := s.byID[m.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.insert(m)
	s.mu.Unlock()
	s.notify()
}

// MarkFailed flags the optimistic entry for clientMessageID as failed to send. It reports
// whether such a pending entry existed; confirmed entries are never marked.
func (s *Store) MarkFailed(clientMessageID string) bool {
	s.mu.Lock()
	i, ok := s.byCID[clientMessageID]
	if !ok || !s.msgs[i].Pending {
		s.mu.Unlock()
		return false
	}
	s.msgs[i].Failed = true
	s.mu.Unlock()
	s.notify()
	return true
}

// Snapshot returns a copy of the working set in store order.
func (s *Store) Snapshot() []normalize.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]normalize.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of held messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Changes signals after mutations. Signals coalesce: one receive may cover several changes.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// mergeRemote must be called with mu held. It reports whether the set changed.
func (s *Store) mergeRemote(m normalize.Message) bool {
	m.Pending, m.Failed = false, false

	if i, ok := s.byID[m.ID]; ok {
		if j, dup := s.byCID[m.ClientMessageID]; dup && j != i && s.msgs[j].Optimistic() {
			// The confirmed copy is already held under its id; the placeholder is superseded.
			s.removeAt(j)
			i = s.byID[m.ID]
		} else if s.msgs[i] == m {
			return false
		}
		s.replace(i, m)
		return true
	}
	if m.ClientMessageID != "" {
		if i, ok := s.byCID[m.ClientMessageID]; ok {
			s.replace(i, m)
			return true
		}
	}
	s.insert(m)
	return true
}

func (s *Store) insert(m normalize.Message) {
	s.msgs = append(s.msgs, m)
	i := len(s.msgs) - 1
	s.byID[m.ID] = i
	if m.ClientMessageID != "" {
		s.byCID[m.ClientMessageID] = i
	}
}

// removeAt drops a superseded optimistic entry and reindexes.
func (s *Store) removeAt(j int) {
	s.msgs = append(s.msgs[:j], s.msgs[j+1:]...)
	clear(s.byID)
	clear(s.byCID)
	for i, m := range s.msgs {
		s.byID[m.ID] = i
		if m.ClientMessageID != "" {
			s.byCID[m.ClientMessageID] = i
		}
	}
}

// replace swaps the entry at i for m, keeping its position.
func (s *Store) replace(i int, m normalize.Message) {
	old := s.msgs[i]
	if old.ID != m.ID {
		delete(s.byID, old.ID)
	}
	if old.ClientMessageID != "" && old.ClientMessageID != m.ClientMessageID {
		delete(s.byCID, old.ClientMessageID)
	}
	s.msgs[i] = m
	s.byID[m.ID] = i
	if m.ClientMessageID != "" {
		s.byCID[m.ClientMessageID] = i
	}
}
