package dto

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Mode      string `json:"mode"`
}

type ChatResponse struct {
	Response   string   `json:"response"`
	ModeUsed   string   `json:"mode_used"`
	MessageID  string   `json:"message_id"`
	SessionID  string   `json:"session_id"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
	Timestamp  string   `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
