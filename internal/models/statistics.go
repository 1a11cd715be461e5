package models

// Statistics aggregates the stored history.
type Statistics struct {
	TotalConversations      int64                    `json:"total_conversations"`
	SuccessfulConversations int64                    `json:"successful_conversations"`
	SuccessRatePercent      float64                  `json:"success_rate_percent"`
	PerProvider             map[string]ProviderStats `json:"per_provider"`
	// ConversationsPerDay is keyed by UTC date (YYYY-MM-DD) over the last 7 days.
	ConversationsPerDay map[string]int64 `json:"conversations_per_day_last_7_days"`
}

type ProviderStats struct {
	Count           int64    `json:"count"`
	AvgResponseTime *float64 `json:"avg_response_time"`
	TotalTokens     int64    `json:"total_tokens"`
}
