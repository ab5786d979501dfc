package models

import "time"

type LearningState struct {
	InteractionCounter int        `json:"interaction_counter" db:"interaction_counter"`
	TotalInteractions  int64      `json:"total_interactions" db:"total_interactions"`
	TotalFeedback      int64      `json:"total_feedback_count" db:"total_feedback"`
	PositiveFeedback   int64      `json:"positive_feedback" db:"positive_feedback"`
	NegativeFeedback   int64      `json:"negative_feedback" db:"negative_feedback"`
	SuccessRate        float64    `json:"success_rate" db:"success_rate"`
	ImprovementCycles  int64      `json:"improvement_cycles" db:"improvement_cycles"`
	LastImprovementAt  *time.Time `json:"last_improvement_at,omitempty" db:"last_improvement_at"`
}
