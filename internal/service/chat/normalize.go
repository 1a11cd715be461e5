package chat

import (
	"strings"
	"time"

	"promptrelay/internal/models"
	"promptrelay/internal/service/ai"
)

const (
	emptyResponseMessage = "unable to generate a response"
	unknownErrorMessage  = "unknown provider error"
)

// Normalize maps one provider outcome onto the canonical response shape.
// Exactly one of Text and Error is set.
func Normalize(provider, model, prompt string, res *ai.Result, err error, elapsed time.Duration) models.NormalizedResponse {
	out := models.NormalizedResponse{
		Provider: provider,
		Model:    model,
		Prompt:   prompt,
	}
	if elapsed > 0 {
		secs := elapsed.Seconds()
		out.ResponseTime = &secs
	}
	if res != nil && res.Model != "" {
		out.Model = res.Model
	}

	switch {
	case err != nil:
		msg := strings.TrimSpace(err.Error())
		if msg == "" {
			msg = unknownErrorMessage
		}
		out.Error = &msg
	case res == nil || strings.TrimSpace(res.Text) == "":
		msg := emptyResponseMessage
		out.Error = &msg
	default:
		text := res.Text
		out.Success = true
		out.Text = &text
		out.TokensUsed = res.TokensUsed
	}
	return out
}

func toNewResponse(n models.NormalizedResponse) models.NewResponse {
	resp := models.NewResponse{
		Provider:     n.Provider,
		Model:        n.Model,
		Success:      n.Success,
		ResponseTime: n.ResponseTime,
		TokensUsed:   n.TokensUsed,
	}
	if n.Text != nil {
		resp.ResponseText = *n.Text
	}
	if n.Error != nil {
		resp.ErrorMessage = *n.Error
	}
	return resp
}
