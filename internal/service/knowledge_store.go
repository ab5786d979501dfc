package service

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"jarvis/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// knowledgeView is an immutable generation of the store. Readers load the current
// view without locking; writers build a new view and swap it in.
type knowledgeView struct {
	byID      map[uuid.UUID]models.KnowledgeEntry
	byPattern map[string]uuid.UUID
}

func newKnowledgeView(capacity int) *knowledgeView {
	return &knowledgeView{
		byID:      make(map[uuid.UUID]models.KnowledgeEntry, capacity),
		byPattern: make(map[string]uuid.UUID, capacity),
	}
}

func (v *knowledgeView) clone() *knowledgeView {
	c := newKnowledgeView(len(v.byID))
	for id, e := range v.byID {
		c.byID[id] = e
	}
	for p, id := range v.byPattern {
		c.byPattern[p] = id
	}
	return c
}

// KnowledgeStore owns every KnowledgeEntry. Writes are serialized by mu and published
// with copy-on-write, so concurrent readers see either the old or the new generation.
type KnowledgeStore struct {
	mu      sync.Mutex
	current atomic.Pointer[knowledgeView]
	logger  *zap.Logger
}

func NewKnowledgeStore(logger *zap.Logger) *KnowledgeStore {
	s := &KnowledgeStore{logger: logger}
	s.current.Store(newKnowledgeView(0))
	return s
}

// Replace swaps the whole content, e.g. after loading a snapshot. Entries with a
// duplicate pattern after the first are dropped.
func (s *KnowledgeStore) Replace(entries []models.KnowledgeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := newKnowledgeView(len(entries))
	for _, e := range entries {
		e.Score = clamp01(e.Score)
		e.BaselineScore = clamp01(e.BaselineScore)
		if e.UsageCount < 0 {
			e.UsageCount = 0
		}
		if _, dup := v.byPattern[e.Pattern]; dup {
			s.logger.Warn("Dropping knowledge entry with duplicate pattern",
				zap.String("pattern", e.Pattern),
				zap.String("entry_id", e.ID.String()),
			)
			continue
		}
		v.byID[e.ID] = e
		v.byPattern[e.Pattern] = e.ID
	}
	s.current.Store(v)
}

// Lookup returns the entry whose pattern equals the normalized pattern.
func (s *KnowledgeStore) Lookup(pattern string) (models.KnowledgeEntry, bool) {
	v := s.current.Load()
	id, ok := v.byPattern[pattern]
	if !ok {
		return models.KnowledgeEntry{}, false
	}
	return v.byID[id], true
}

func (s *KnowledgeStore) Get(id uuid.UUID) (models.KnowledgeEntry, bool) {
	e, ok := s.current.Load().byID[id]
	return e, ok
}

func (s *KnowledgeStore) Len() int {
	return len(s.current.Load().byID)
}

// List returns all entries ordered by pattern.
func (s *KnowledgeStore) List() []models.KnowledgeEntry {
	v := s.current.Load()
	out := make([]models.KnowledgeEntry, 0, len(v.byID))
	for _, e := range v.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

// ApplyFeedback moves the entry's score towards normalizedRating by alpha and counts the use.
func (s *KnowledgeStore) ApplyFeedback(id uuid.UUID, normalizedRating, alpha float64, now time.Time) (models.KnowledgeEntry, bool) {
	var updated models.KnowledgeEntry
	found := false
	s.Update(func(tx *KnowledgeTx) error {
		e, ok := tx.Get(id)
		if !ok {
			return nil
		}
		e.Score = ema(e.Score, normalizedRating, alpha)
		e.UsageCount++
		e.LastUpdated = now
		tx.put(e)
		updated, found = e, true
		return nil
	})
	return updated, found
}

// Update runs fn against a private copy of the store and publishes the copy only if
// fn returns nil.
func (s *KnowledgeStore) Update(fn func(tx *KnowledgeTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &KnowledgeTx{view: s.current.Load().clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.dirty {
		s.current.Store(tx.view)
	}
	return nil
}

// KnowledgeTx is a mutable working copy handed to KnowledgeStore.Update.
type KnowledgeTx struct {
	view  *knowledgeView
	dirty bool
}

func (tx *KnowledgeTx) Get(id uuid.UUID) (models.KnowledgeEntry, bool) {
	e, ok := tx.view.byID[id]
	return e, ok
}

func (tx *KnowledgeTx) FindByPattern(pattern string) (models.KnowledgeEntry, bool) {
	id, ok := tx.view.byPattern[pattern]
	if !ok {
		return models.KnowledgeEntry{}, false
	}
	return tx.view.byID[id], true
}

// Entries returns the working copy ordered by pattern.
func (tx *KnowledgeTx) Entries() []models.KnowledgeEntry {
	out := make([]models.KnowledgeEntry, 0, len(tx.view.byID))
	for _, e := range tx.view.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

// Create adds a new entry. Patterns are unique within the store.
func (tx *KnowledgeTx) Create(e models.KnowledgeEntry) error {
	if _, exists := tx.view.byPattern[e.Pattern]; exists {
		return ErrDuplicatePattern
	}
	e.Score = clamp01(e.Score)
	e.BaselineScore = clamp01(e.BaselineScore)
	tx.put(e)
	return nil
}

// Save overwrites an existing entry, keeping its pattern.
func (tx *KnowledgeTx) Save(e models.KnowledgeEntry) bool {
	old, ok := tx.view.byID[e.ID]
	if !ok {
		return false
	}
	e.Pattern = old.Pattern
	e.Score = clamp01(e.Score)
	e.BaselineScore = clamp01(e.BaselineScore)
	tx.put(e)
	return true
}

func (tx *KnowledgeTx) Delete(id uuid.UUID) bool {
	e, ok := tx.view.byID[id]
	if !ok {
		return false
	}
	delete(tx.view.byID, id)
	delete(tx.view.byPattern, e.Pattern)
	tx.dirty = true
	return true
}

func (tx *KnowledgeTx) put(e models.KnowledgeEntry) {
	tx.view.byID[e.ID] = e
	tx.view.byPattern[e.Pattern] = e.ID
	tx.dirty = true
}
