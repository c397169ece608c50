// Package live keeps a per-teacher in-memory snapshot of passes and
// queue entries. Handlers mutate it optimistically before the database
// write and roll back when the write fails; change notifications
// trigger an authoritative reload. Reloads are sequenced strictly after
// in-flight writes are acknowledged, so a refresh caused by the
// client's own write can never resurrect state older than that write.
package live

import (
	"sync"

	"github.com/Gamemanuel/BathPass/internal/models"

	"gorm.io/gorm"
)

// State is one teacher's view of the world.
type State struct {
	Passes []models.Pass
	Queue  []models.QueueEntry
}

func (s State) clone() State {
	out := State{
		Passes: make([]models.Pass, len(s.Passes)),
		Queue:  make([]models.QueueEntry, len(s.Queue)),
	}
	copy(out.Passes, s.Passes)
	copy(out.Queue, s.Queue)
	return out
}

// Fetcher loads the authoritative state for a teacher.
type Fetcher interface {
	FetchState(teacherID uint) (State, error)
}

type teacherState struct {
	state   State
	loaded  bool
	pending int  // writes issued but not yet acknowledged
	dirty   bool // a change event arrived while a write was in flight
}

// Store holds the snapshots. All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	fetcher Fetcher
	states  map[uint]*teacherState
}

func NewStore(fetcher Fetcher) *Store {
	return &Store{
		fetcher: fetcher,
		states:  make(map[uint]*teacherState),
	}
}

// Get returns a copy of the teacher's snapshot, loading it from the
// fetcher on first access.
func (s *Store) Get(teacherID uint) (State, error) {
	s.mu.Lock()
	ts := s.teacher(teacherID)
	if ts.loaded {
		state := ts.state.clone()
		s.mu.Unlock()
		return state, nil
	}
	s.mu.Unlock()

	return s.refresh(teacherID)
}

// BeginWrite applies an optimistic mutation and returns a rollback
// function restoring the prior snapshot. The caller must finish the
// write with exactly one of Ack (persistence succeeded) or the
// rollback (persistence failed).
func (s *Store) BeginWrite(teacherID uint, mutate func(*State)) (rollback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.teacher(teacherID)
	prior := ts.state.clone()
	mutate(&ts.state)
	ts.pending++

	return func() {
		s.mu.Lock()
		ts.state = prior
		s.finishWriteLocked(teacherID, ts)
		s.mu.Unlock()
	}
}

// Ack marks one in-flight write as persisted. The optimistic value
// stands until the next authoritative reload.
func (s *Store) Ack(teacherID uint) {
	s.mu.Lock()
	ts := s.teacher(teacherID)
	s.finishWriteLocked(teacherID, ts)
	s.mu.Unlock()
}

// OnChange handles a change notification for the teacher's records.
// With no write in flight it reloads immediately; otherwise the reload
// is deferred until the last write settles, which preserves
// read-your-writes for self-caused events.
func (s *Store) OnChange(teacherID uint) {
	s.mu.Lock()
	ts := s.teacher(teacherID)
	if ts.pending > 0 {
		ts.dirty = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.refresh(teacherID)
}

// Forget drops a teacher's snapshot, e.g. when the last subscriber
// disconnects.
func (s *Store) Forget(teacherID uint) {
	s.mu.Lock()
	delete(s.states, teacherID)
	s.mu.Unlock()
}

func (s *Store) finishWriteLocked(teacherID uint, ts *teacherState) {
	ts.pending--
	if ts.pending == 0 && ts.dirty {
		ts.dirty = false
		go s.refresh(teacherID)
	}
}

func (s *Store) refresh(teacherID uint) (State, error) {
	state, err := s.fetcher.FetchState(teacherID)
	if err != nil {
		return State{}, err
	}

	s.mu.Lock()
	ts := s.teacher(teacherID)
	// A write that started while we were fetching wins; its ack will
	// schedule the next reload.
	if ts.pending == 0 {
		ts.state = state
		ts.loaded = true
	} else {
		ts.dirty = true
	}
	result := ts.state.clone()
	s.mu.Unlock()
	return result, nil
}

// teacher returns the tracked state, creating it lazily. Caller must
// hold s.mu.
func (s *Store) teacher(teacherID uint) *teacherState {
	ts, ok := s.states[teacherID]
	if !ok {
		ts = &teacherState{}
		s.states[teacherID] = ts
	}
	return ts
}

// DBFetcher loads the snapshot straight from the database.
type DBFetcher struct {
	DB *gorm.DB
}

func (f DBFetcher) FetchState(teacherID uint) (State, error) {
	var state State
	if err := f.DB.
		Where("teacher_id = ?", teacherID).
		Order("time_out DESC").
		Find(&state.Passes).Error; err != nil {
		return State{}, err
	}
	if err := f.DB.
		Where("teacher_id = ?", teacherID).
		Order("position ASC").
		Find(&state.Queue).Error; err != nil {
		return State{}, err
	}
	return state, nil
}
