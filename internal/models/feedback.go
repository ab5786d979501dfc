package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinRating = 1
	MaxRating = 5
)

type FeedbackRecord struct {
	ID        uuid.UUID `json:"id"`
	Seq       uint64    `json:"seq"`
	SessionID string    `json:"session_id"`
	MessageID uuid.UUID `json:"message_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizedRating maps the 1-5 star scale onto [0,1].
func NormalizedRating(rating int) float64 {
	return float64(rating-MinRating) / float64(MaxRating-MinRating)
}

func (f FeedbackRecord) Normalized() float64 {
	return NormalizedRating(f.Rating)
}
