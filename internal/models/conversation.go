package models

import "time"

// Conversation is one user-submitted prompt and everything derived from it.
type Conversation struct {
	ID              int64     `json:"id"`
	Prompt          string    `json:"prompt"`
	Timestamp       time.Time `json:"timestamp"`
	UserSession     *string   `json:"user_session"`
	ModelUsed       *string   `json:"model_used"`
	ResponseSuccess bool      `json:"response_success"`
}

// NewConversation carries the fields a caller may set at creation time.
// A zero Timestamp is defaulted by the store; a nil ResponseSuccess means true.
type NewConversation struct {
	Prompt          string
	Timestamp       time.Time
	UserSession     string
	ModelUsed       string
	ResponseSuccess *bool
}

// ConversationSummary is a history row with the providers attempted.
type ConversationSummary struct {
	Conversation
	Providers         []string `json:"providers"`
	ResponseSuccesses []bool   `json:"response_successes"`
}

// ConversationDetail is a conversation with its responses in insertion order.
type ConversationDetail struct {
	Conversation
	Responses []Response `json:"responses"`
}
