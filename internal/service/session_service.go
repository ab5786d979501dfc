package service

import (
	"container/list"
	"sync"
	"time"
)

type SessionStats struct {
	SessionID    string    `json:"session_id"`
	Interactions int64     `json:"interactions"`
	Feedback     int64     `json:"feedback"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// SessionTracker keeps per-session counters for at most limit sessions. When full,
// the session seen least recently is evicted. A limit <= 0 disables eviction.
type SessionTracker struct {
	limit int

	mu       sync.RWMutex
	sessions map[string]*list.Element
	order    *list.List
}

func NewSessionTracker(limit int) *SessionTracker {
	return &SessionTracker{
		limit:    limit,
		sessions: make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (t *SessionTracker) RecordInteraction(sessionID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch(sessionID, at).Interactions++
}

func (t *SessionTracker) RecordFeedback(sessionID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch(sessionID, at).Feedback++
}

func (t *SessionTracker) touch(sessionID string, at time.Time) *SessionStats {
	if elem, ok := t.sessions[sessionID]; ok {
		s := elem.Value.(*SessionStats)
		if at.After(s.LastSeen) {
			s.LastSeen = at
		}
		t.order.MoveToFront(elem)
		return s
	}

	if t.limit > 0 && t.order.Len() >= t.limit {
		t.evictOldest()
	}
	s := &SessionStats{SessionID: sessionID, FirstSeen: at, LastSeen: at}
	t.sessions[sessionID] = t.order.PushFront(s)
	return s
}

func (t *SessionTracker) evictOldest() {
	elem := t.order.Back()
	if elem == nil {
		return
	}
	delete(t.sessions, elem.Value.(*SessionStats).SessionID)
	t.order.Remove(elem)
}

// Get returns a copy of the counters for sessionID.
func (t *SessionTracker) Get(sessionID string) (SessionStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	elem, ok := t.sessions[sessionID]
	if !ok {
		return SessionStats{}, false
	}
	return *elem.Value.(*SessionStats), true
}

func (t *SessionTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.order.Len()
}
