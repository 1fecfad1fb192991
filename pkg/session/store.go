// Package session owns the per-chat relay state: the session id minted on
// first contact, the last message the relay itself sent to the chat, and the
// backend-assigned user role when one is known.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxEntries = 4096
	defaultIdleTTL    = 24 * time.Hour
	sweepInterval     = 5 * time.Minute
)

// Entry is one chat's record. LastBotMessageID is 0 while no relay-sent
// message is tracked.
type Entry struct {
	SessionID        string
	LastBotMessageID int
	Role             string

	lastTouch time.Time
}

// Store is the synchronized owner of all chat entries. Entries for distinct
// chats are independent. Growth is bounded: a background sweep evicts
// entries idle past the TTL, and inserts beyond the maximum evict the
// oldest-idle entries first. An evicted chat mints a fresh session id on its
// next contact.
type Store struct {
	mu      sync.RWMutex
	entries map[int64]*Entry

	maxEntries int
	idleTTL    time.Duration

	log       *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// New constructs a store and starts its eviction sweep. Non-positive limits
// fall back to defaults. Close releases the sweep goroutine.
func New(maxEntries int, idleTTL time.Duration, log *slog.Logger) *Store {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if log == nil {
		log = slog.Default()
	}

	store := &Store{
		entries:    make(map[int64]*Entry),
		maxEntries: maxEntries,
		idleTTL:    idleTTL,
		log:        log.With("component", "session.store"),
		done:       make(chan struct{}),
	}

	go store.sweepLoop()

	return store
}

// EnsureSession returns the chat's session id, minting one on first contact.
// The id stays stable for the chat until the entry is evicted.
func (s *Store) EnsureSession(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(chatID)
	if entry.SessionID == "" {
		entry.SessionID = uuid.NewString()
		s.log.Debug("Minted session id", "chat_id", chatID, "session_id", entry.SessionID)
	}

	return entry.SessionID
}

// LastMessage returns the chat's tracked last bot message id without
// consuming it.
func (s *Store) LastMessage(chatID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[chatID]
	if !ok || entry.LastBotMessageID == 0 {
		return 0, false
	}

	entry.lastTouch = time.Now()
	return entry.LastBotMessageID, true
}

// RecordLastMessage stores messageID as the chat's last bot message.
func (s *Store) RecordLastMessage(chatID int64, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(chatID)
	entry.LastBotMessageID = messageID
}

// TakeLastMessage returns the tracked id and clears it in one step, for
// delete targets resolved through the cache: the message will not exist
// afterwards whether or not the platform call succeeds.
func (s *Store) TakeLastMessage(chatID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[chatID]
	if !ok || entry.LastBotMessageID == 0 {
		return 0, false
	}

	messageID := entry.LastBotMessageID
	entry.LastBotMessageID = 0
	entry.lastTouch = time.Now()

	return messageID, true
}

// ClearLastMessage drops the tracked last bot message id, if any.
func (s *Store) ClearLastMessage(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[chatID]; ok {
		entry.LastBotMessageID = 0
		entry.lastTouch = time.Now()
	}
}

// Role returns the backend-assigned role recorded for the chat, if any.
func (s *Store) Role(chatID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.entries[chatID]; ok {
		return entry.Role
	}

	return ""
}

// SetRole records the backend-assigned role for the chat.
func (s *Store) SetRole(chatID int64, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(chatID)
	entry.Role = role
}

// Len reports the number of tracked chats.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Close stops the eviction sweep. Entries remain readable afterwards.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// entryLocked returns the chat's entry, creating it lazily and refreshing
// its idle clock. Callers hold mu.
func (s *Store) entryLocked(chatID int64) *Entry {
	entry, ok := s.entries[chatID]
	if ok {
		entry.lastTouch = time.Now()
		return entry
	}

	entry = &Entry{lastTouch: time.Now()}
	s.entries[chatID] = entry
	if excess := len(s.entries) - s.maxEntries; excess > 0 {
		s.evictOldestLocked(excess)
	}

	return entry
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if evicted := s.sweepIdle(time.Now()); evicted > 0 {
				s.log.Debug("Evicted idle chat entries", "count", evicted)
			}
		}
	}
}

// sweepIdle evicts every entry whose last touch predates now minus the idle
// TTL and reports how many were removed.
func (s *Store) sweepIdle(now time.Time) int {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for chatID, entry := range s.entries {
		if entry.lastTouch.Before(cutoff) {
			delete(s.entries, chatID)
			evicted++
		}
	}

	return evicted
}

// evictOldestLocked removes count entries, oldest touch first. Callers hold
// mu. The entry just inserted is never the oldest.
func (s *Store) evictOldestLocked(count int) {
	for ; count > 0; count-- {
		var (
			oldestChat  int64
			oldestTouch time.Time
			found       bool
		)
		for chatID, entry := range s.entries {
			if !found || entry.lastTouch.Before(oldestTouch) {
				oldestChat = chatID
				oldestTouch = entry.lastTouch
				found = true
			}
		}
		if !found {
			return
		}

		delete(s.entries, oldestChat)
		s.log.Debug("Evicted oldest chat entry", "chat_id", oldestChat)
	}
}
