package state

import "sync"

// Store owns the live SessionState behind a read-write lock: one writer
// (the pipeline), many readers (REST, publisher).
type Store struct {
	mu    sync.RWMutex
	state *SessionState
}

func NewStore(s *SessionState) *Store {
	return &Store{state: s}
}

// Update runs fn with exclusive access to the snapshot.
func (st *Store) Update(fn func(s *SessionState)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(st.state)
}

// Read runs fn with shared access. fn must not retain references past
// its return.
func (st *Store) Read(fn func(s *SessionState)) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	fn(st.state)
}

// Snapshot returns a deep copy safe to use without the lock.
func (st *Store) Snapshot() *SessionState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Clone()
}

// Replace swaps in a fresh snapshot (session change).
func (st *Store) Replace(s *SessionState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = s
}
