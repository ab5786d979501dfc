package service

import (
	"sync"

	"jarvis/internal/models"

	"github.com/google/uuid"
)

// InteractionLog is the append-only record of processed chat requests. Every
// interaction gets a monotonically increasing sequence number; consumers read
// segments with Since.
type InteractionLog struct {
	mu        sync.RWMutex
	items     []models.Interaction
	offset    uint64 // sequence number of items[0]
	index     map[uuid.UUID]uint64
	retention int
}

// NewInteractionLog keeps at least retention interactions when compacting; zero
// or negative disables compaction.
func NewInteractionLog(retention int) *InteractionLog {
	return &InteractionLog{
		index:     make(map[uuid.UUID]uint64),
		retention: retention,
	}
}

// Append stores in and returns its sequence number.
func (l *InteractionLog) Append(in models.Interaction) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.offset + uint64(len(l.items))
	l.items = append(l.items, in)
	l.index[in.ID] = seq
	return seq
}

func (l *InteractionLog) Get(id uuid.UUID) (models.Interaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seq, ok := l.index[id]
	if !ok {
		return models.Interaction{}, false
	}
	return l.items[seq-l.offset], true
}

// Since returns the interactions with sequence >= from and the sequence number
// the next call should start at.
func (l *InteractionLog) Since(from uint64) ([]models.Interaction, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	next := l.offset + uint64(len(l.items))
	if from < l.offset {
		from = l.offset
	}
	if from >= next {
		return nil, next
	}
	segment := l.items[from-l.offset:]
	out := make([]models.Interaction, len(segment))
	copy(out, segment)
	return out, next
}

// Len reports the number of interactions currently retained.
func (l *InteractionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Compact drops interactions older than before while more than retention remain.
// Interactions at or after before are never dropped.
func (l *InteractionLog) Compact(before uint64) int {
	if l.retention <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	drop := 0
	for drop < len(l.items) && len(l.items)-drop > l.retention && l.offset+uint64(drop) < before {
		delete(l.index, l.items[drop].ID)
		drop++
	}
	if drop == 0 {
		return 0
	}

	kept := make([]models.Interaction, len(l.items)-drop)
	copy(kept, l.items[drop:])
	l.items = kept
	l.offset += uint64(drop)
	return drop
}
