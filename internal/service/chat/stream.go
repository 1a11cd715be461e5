package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"promptrelay/internal/models"
	"promptrelay/internal/service/ai"
)

const interruptedMessage = "stream interrupted: client disconnected"

// Sink receives stream events in emission order. A sink error means the
// consumer is gone and no further events are written.
type Sink func(models.StreamEvent) error

// Stream relays provider fragments to sink, one event per fragment. A
// terminal provider error is delivered as a final content event. Once the
// stream ends a single summary response is recorded best effort.
func (r *Router) Stream(ctx context.Context, req Request, sink Sink) error {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return ErrEmptyPrompt
	}
	if !r.registry.Known(req.Provider) {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
	}

	p, err := r.registry.Get(req.Provider)
	if err != nil {
		// not attempted, so nothing is recorded
		if serr := sink(models.StreamEvent{Text: "Error: " + err.Error(), Success: true}); serr != nil {
			r.logger.Debug("stream sink closed", zap.Error(serr))
		}
		return nil
	}
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	start := r.now()
	var (
		text      strings.Builder
		streamErr error
		sinkErr   error
	)
	for frag := range p.GenerateTextStream(ctx, req.Prompt, model) {
		if frag.Err != nil {
			streamErr = frag.Err
		} else {
			text.WriteString(frag.Text)
		}
		if sinkErr = sink(models.StreamEvent{Text: frag.Text, Success: true}); sinkErr != nil {
			r.logger.Debug("stream sink closed", zap.String("provider", req.Provider), zap.Error(sinkErr))
			break
		}
	}
	elapsed := r.now().Sub(start)

	var result models.NormalizedResponse
	switch {
	case streamErr != nil:
		result = Normalize(req.Provider, model, req.Prompt, nil, streamErr, elapsed)
	case sinkErr != nil:
		result = Normalize(req.Provider, model, req.Prompt, nil, errors.New(interruptedMessage), elapsed)
	default:
		result = Normalize(req.Provider, model, req.Prompt, &ai.Result{Text: text.String(), Model: model}, nil, elapsed)
	}
	r.save(ctx, models.NewConversation{
		Prompt:          req.Prompt,
		UserSession:     req.Session,
		ModelUsed:       req.Provider,
		ResponseSuccess: &result.Success,
	}, []models.NewResponse{toNewResponse(result)})
	return nil
}
