package models

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeEntry is a learned mapping from a normalized input pattern to a preferred response.
// BaselineScore is the score as of the last improvement cycle; live feedback moves Score only.
type KnowledgeEntry struct {
	ID               uuid.UUID `json:"id" db:"id"`
	Pattern          string    `json:"pattern" db:"pattern"`
	ResponseTemplate string    `json:"response_template" db:"response_template"`
	Score            float64   `json:"score" db:"score"`
	BaselineScore    float64   `json:"baseline_score" db:"baseline_score"`
	UsageCount       int       `json:"usage_count" db:"usage_count"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	LastUpdated      time.Time `json:"last_updated" db:"last_updated"`
}
