package dto

type StatsResponse struct {
	TotalInteractions     int64   `json:"total_interactions"`
	TotalFeedback         int64   `json:"total_feedback"`
	SuccessRate           float64 `json:"success_rate"`
	KnowledgeEntryCount   int     `json:"knowledge_entry_count"`
	LastImprovementAt     *string `json:"last_improvement_at"`
	PositiveFeedback      int64   `json:"positive_feedback"`
	NegativeFeedback      int64   `json:"negative_feedback"`
	ImprovementCycles     int64   `json:"improvement_cycles"`
	InteractionCounter    int     `json:"interaction_counter"`
	StepsUntilImprovement int     `json:"steps_until_improvement"`
	ActiveSessions        int     `json:"active_sessions"`
}

type HealthResponse struct {
	Status                   string `json:"status"`
	OnlineProviderReachable  bool   `json:"online_provider_reachable"`
	OnlineProviderConfigured bool   `json:"online_provider_configured"`
	PersistenceError         string `json:"persistence_error,omitempty"`
	Timestamp                string `json:"timestamp"`
}

type SessionResponse struct {
	SessionID    string `json:"session_id"`
	Interactions int64  `json:"interactions"`
	Feedback     int64  `json:"feedback"`
	FirstSeen    string `json:"first_seen"`
	LastSeen     string `json:"last_seen"`
}
