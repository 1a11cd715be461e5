package models

// Response is one provider's outcome for a conversation.
type Response struct {
	ID             int64    `json:"id"`
	ConversationID int64    `json:"conversation_id"`
	Provider       string   `json:"provider"`
	Model          *string  `json:"model"`
	ResponseText   *string  `json:"response_text"`
	Success        bool     `json:"success"`
	ErrorMessage   *string  `json:"error_message"`
	ResponseTime   *float64 `json:"response_time"`
	TokensUsed     *int64   `json:"tokens_used"`
}

// NewResponse carries the fields of a response to append.
type NewResponse struct {
	ConversationID int64
	Provider       string
	Model          string
	ResponseText   string
	Success        bool
	ErrorMessage   string
	ResponseTime   *float64
	TokensUsed     *int64
}

// NormalizedResponse is the canonical result shape of one provider call.
type NormalizedResponse struct {
	Success      bool     `json:"success"`
	Text         *string  `json:"text,omitempty"`
	Error        *string  `json:"error,omitempty"`
	Provider     string   `json:"provider"`
	Model        string   `json:"model,omitempty"`
	Prompt       string   `json:"prompt"`
	ResponseTime *float64 `json:"response_time,omitempty"`
	TokensUsed   *int64   `json:"tokens_used,omitempty"`
}

// StreamEvent is one outward event of a relayed stream.
type StreamEvent struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
}
