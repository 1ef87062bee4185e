package conflict

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"miniups-gateway/internal/domain"
)

var (
	ErrConflictNotFound     = errors.New("conflict not found")
	ErrResolutionInProgress = errors.New("conflict resolution already in progress")
)

const defaultHistoryLimit = 100

// Store holds one user's pending conflicts in arrival order. At most one of
// them is active at a time; adding a record never activates it.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*domain.ConflictRecord
	order    []string
	activeID string
	// claimed holds the IDs a resolution is currently running for.
	claimed map[string]bool

	history      []domain.ResolutionEntry
	historyLimit int

	now   func() time.Time
	newID func() string
}

func NewStore() *Store {
	return &Store{
		records:      make(map[string]*domain.ConflictRecord),
		claimed:      make(map[string]bool),
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

// Add takes ownership of rec, assigns it a fresh ID and queues it.
func (s *Store) Add(rec *domain.ConflictRecord) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for s.records[id] != nil {
		id = s.newID()
	}

	rec.ID = id
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	if rec.ConflictType == "" {
		rec.ConflictType = domain.DefaultConflictType
	}

	s.records[id] = rec
	s.order = append(s.order, id)
	return id
}

// Remove drops the record and reports whether it existed. Removing the
// active record clears the active pointer.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

func (s *Store) removeLocked(id string) {
	delete(s.records, id)
	delete(s.claimed, id)
	for i, queued := range s.order {
		if queued == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		s.activeID = ""
	}
}

// Take removes and returns the record in one step. A record claimed by a
// running resolution cannot be taken.
func (s *Store) Take(id string) (*domain.ConflictRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrConflictNotFound
	}
	if s.claimed[id] {
		return nil, ErrResolutionInProgress
	}
	s.removeLocked(id)
	return rec, nil
}

// Claim reserves the record for one resolution. Until Release or Remove,
// other claims fail with ErrResolutionInProgress.
func (s *Store) Claim(id string) (*domain.ConflictRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrConflictNotFound
	}
	if s.claimed[id] {
		return nil, ErrResolutionInProgress
	}
	s.claimed[id] = true
	return snapshot(rec), nil
}

// Release gives up a claim; the record stays queued.
func (s *Store) Release(id string) {
	s.mu.Lock()
	delete(s.claimed, id)
	s.mu.Unlock()
}

// SetActive is a no-op for unknown IDs.
func (s *Store) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false
	}
	s.activeID = id
	return true
}

func (s *Store) ClearActive() {
	s.mu.Lock()
	s.activeID = ""
	s.mu.Unlock()
}

// ActivateNext moves the active pointer to the record queued after the
// current one, wrapping around. With nothing active the oldest record wins.
func (s *Store) ActivateNext() *domain.ConflictRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		s.activeID = ""
		return nil
	}

	next := s.order[0]
	if s.activeID != "" {
		for i, id := range s.order {
			if id == s.activeID {
				next = s.order[(i+1)%len(s.order)]
				break
			}
		}
	}

	s.activeID = next
	return snapshot(s.records[next])
}

func (s *Store) Get(id string) (*domain.ConflictRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrConflictNotFound
	}
	return snapshot(rec), nil
}

func (s *Store) Active() *domain.ConflictRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return nil
	}
	return snapshot(s.records[s.activeID])
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Pending lists every held record in arrival order.
func (s *Store) Pending() []*domain.ConflictRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.ConflictRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshot(s.records[id]))
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Position is the 1-based queue position of id, or 0 when unknown.
func (s *Store) Position(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, queued := range s.order {
		if queued == id {
			return i + 1
		}
	}
	return 0
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*domain.ConflictRecord)
	s.claimed = make(map[string]bool)
	s.order = nil
	s.activeID = ""
}

func (s *Store) AddResolution(entry domain.ResolutionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.history = append(s.history, entry)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append([]domain.ResolutionEntry(nil), s.history[over:]...)
	}
}

// History returns resolutions newest first.
func (s *Store) History() []domain.ResolutionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ResolutionEntry, len(s.history))
	for i, entry := range s.history {
		out[len(s.history)-1-i] = entry
	}
	return out
}

func snapshot(rec *domain.ConflictRecord) *domain.ConflictRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	return &cp
}
