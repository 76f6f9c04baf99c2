// Package command contains write operations (CQRS - Commands).
package command

import "sync"

// userLocks serializes command handling per user. XP, streaks, goal progress,
// and achievement checks are read-modify-write sequences over several
// aggregates; interleaving two commands for the same user could double-award
// or lose progress. Different users never contend.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// Lock acquires the lock for the given user and returns the unlock function.
// Lock entries are reference-counted and removed when the last holder leaves,
// so the map does not grow with the user population.
func (ul *userLocks) Lock(userID string) func() {
	ul.mu.Lock()
	l, ok := ul.locks[userID]
	if !ok {
		l = &userLock{}
		ul.locks[userID] = l
	}
	l.refs++
	ul.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		ul.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(ul.locks, userID)
		}
		ul.mu.Unlock()
	}
}
