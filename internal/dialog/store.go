package dialog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// cacheTTL bounds how long a cached read may be reused. It is well
// under the expiry window, so the cache can never keep a dead session
// looking alive.
const cacheTTL = time.Minute

const schema = `
CREATE TABLE IF NOT EXISTS conversation_states (
    user_id INTEGER PRIMARY KEY,
    mode TEXT NOT NULL,
    step INTEGER NOT NULL,
    data TEXT NOT NULL,
    last_message_time INTEGER NOT NULL
);
`

type cacheEntry struct {
	state    State
	deadline time.Time
}

// Store persists conversation states keyed by user id, with a small
// read-through cache in front of the database. All writes go through
// the store, which keeps the cache coherent within the process.
type Store struct {
	db *sql.DB

	mu        sync.Mutex
	cache     map[int64]cacheEntry
	nextSweep time.Time
}

// NewStore creates a conversation-state store using the provided
// database connection and ensures its table exists.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply conversation state schema: %w", err)
	}
	return &Store{db: db, cache: make(map[int64]cacheEntry)}, nil
}

// Get returns the user's active conversation state. A state idle past
// the expiry window is deleted and reported via the expired flag
// instead of being returned; a missing row returns (nil, false, nil).
func (s *Store) Get(userID int64, now time.Time) (*State, bool, error) {
	if st, ok := s.cached(userID, now); ok {
		if st.Expired(now) {
			if err := s.delete(userID); err != nil {
				return nil, false, err
			}
			return nil, true, nil
		}
		return st, false, nil
	}

	var st State
	err := s.db.QueryRow(`
		SELECT mode, step, data, last_message_time
		FROM conversation_states WHERE user_id = ?
	`, userID).Scan(&st.Mode, &st.Step, (*[]byte)(&st.Data), &st.LastMessageTime)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load conversation state for user %d: %w", userID, err)
	}

	if st.Expired(now) {
		if err := s.delete(userID); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	s.put(userID, st, now)
	return &st, false, nil
}

// Save overwrites the user's conversation state. A nil state deletes
// the record.
func (s *Store) Save(userID int64, st *State, now time.Time) error {
	if st == nil {
		return s.delete(userID)
	}

	_, err := s.db.Exec(`
		INSERT INTO conversation_states (user_id, mode, step, data, last_message_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			mode = excluded.mode,
			step = excluded.step,
			data = excluded.data,
			last_message_time = excluded.last_message_time
	`, userID, st.Mode, st.Step, []byte(st.Data), st.LastMessageTime)
	if err != nil {
		return fmt.Errorf("failed to save conversation state for user %d: %w", userID, err)
	}

	s.put(userID, *st, now)
	return nil
}

// Delete drops the user's conversation state without any farewell; the
// dialog router uses it when another flow takes over mid-session.
func (s *Store) Delete(userID int64) error {
	return s.delete(userID)
}

func (s *Store) delete(userID int64) error {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM conversation_states WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete conversation state for user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) cached(userID int64, now time.Time) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)

	entry, ok := s.cache[userID]
	if !ok || now.After(entry.deadline) {
		delete(s.cache, userID)
		return nil, false
	}
	st := entry.state
	return &st, true
}

func (s *Store) put(userID int64, st State, now time.Time) {
	s.mu.Lock()
	s.cache[userID] = cacheEntry{state: st, deadline: now.Add(cacheTTL)}
	s.mu.Unlock()
}

// sweepLocked drops dead cache entries at most once per TTL interval.
func (s *Store) sweepLocked(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(cacheTTL)
	for id, entry := range s.cache {
		if now.After(entry.deadline) {
			delete(s.cache, id)
		}
	}
}
