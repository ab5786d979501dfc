package models

import "time"

// Snapshot is the durable unit of persistence: the knowledge entries and the learning
// state are always written together.
type Snapshot struct {
	Version       int64            `json:"version"`
	SavedAt       time.Time        `json:"saved_at"`
	Entries       []KnowledgeEntry `json:"entries"`
	LearningState LearningState    `json:"learning_state"`
}
