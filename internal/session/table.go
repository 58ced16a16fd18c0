package session

import "sync"

// userTable is the single owned map of per-user state.
type userTable struct {
	mu    sync.RWMutex
	users map[string]*UserState
}

func newUserTable() *userTable {
	return &userTable{users: make(map[string]*UserState)}
}

func (t *userTable) put(userID string, st *UserState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[userID] = st
}

func (t *userTable) get(userID string) (*UserState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.users[userID]
	return st, ok
}

// take removes and returns the entry, so teardown happens exactly once.
func (t *userTable) take(userID string) (*UserState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.users[userID]
	if ok {
		delete(t.users, userID)
	}
	return st, ok
}

func (t *userTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}
