package dto

type AdminLoginRequest struct {
	Password string `json:"password"`
}

type AdminLoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type CycleReportResponse struct {
	EntriesUpdated      int    `json:"entries_updated"`
	EntriesPruned       int    `json:"entries_pruned"`
	EntriesCreated      int    `json:"entries_created"`
	InteractionsScanned int    `json:"interactions_scanned"`
	FeedbackScanned     int    `json:"feedback_scanned"`
	CompletedAt         string `json:"completed_at"`
}

type KnowledgeEntryResponse struct {
	ID               string  `json:"id"`
	Pattern          string  `json:"pattern"`
	ResponseTemplate string  `json:"response_template"`
	Score            float64 `json:"score"`
	UsageCount       int     `json:"usage_count"`
	CreatedAt        string  `json:"created_at"`
	LastUpdated      string  `json:"last_updated"`
}

type KnowledgeListResponse struct {
	Entries []KnowledgeEntryResponse `json:"entries"`
	Count   int                      `json:"count"`
}
