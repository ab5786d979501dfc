package models

import (
	"time"

	"github.com/google/uuid"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
	ModeAuto    Mode = "auto"
)

// ParseMode maps a client supplied mode to a Mode. An empty string means offline.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeOffline:
		return ModeOffline, true
	case ModeOnline:
		return ModeOnline, true
	case ModeAuto:
		return ModeAuto, true
	}
	return "", false
}

// Interaction is one processed chat request. It is never modified after it is appended to the log.
type Interaction struct {
	ID               uuid.UUID  `json:"id"`
	SessionID        string     `json:"session_id"`
	InputText        string     `json:"input_text"`
	Pattern          string     `json:"pattern"`
	ResponseText     string     `json:"response_text"`
	RequestedMode    Mode       `json:"requested_mode"`
	Mode             Mode       `json:"mode"`
	Fallback         bool       `json:"fallback"`
	KnowledgeEntryID *uuid.UUID `json:"knowledge_entry_id,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}
