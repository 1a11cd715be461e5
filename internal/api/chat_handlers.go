package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"promptrelay/internal/logging"
	"promptrelay/internal/models"
	"promptrelay/internal/service/chat"
)

type promptRequest struct {
	Prompt  string `json:"prompt"`
	Model   string `json:"model"`
	Session string `json:"session"`
}

type compareRequest struct {
	Prompt    string   `json:"prompt"`
	Providers []string `json:"providers"`
	Session   string   `json:"session"`
}

func (h *Handler) bindPrompt(c *gin.Context) (promptRequest, bool) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func (h *Handler) generateWith(provider string) gin.HandlerFunc {
	return func(c *gin.Context) { h.generate(c, provider) }
}

func (h *Handler) generateNamed(c *gin.Context) {
	h.generate(c, providerParam(c))
}

func (h *Handler) generate(c *gin.Context, provider string) {
	req, ok := h.bindPrompt(c)
	if !ok {
		return
	}
	res, err := h.chat.Generate(c.Request.Context(), chat.Request{
		Prompt:   req.Prompt,
		Provider: provider,
		Model:    req.Model,
		Session:  req.Session,
	})
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, res)
}

func (h *Handler) compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	cmp, err := h.chat.Compare(c.Request.Context(), chat.CompareRequest{
		Prompt:    req.Prompt,
		Providers: req.Providers,
		Session:   req.Session,
	})
	if err != nil {
		if errors.Is(err, chat.ErrUnknownProvider) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"prompt":          cmp.Prompt,
		"responses":       cmp.Responses,
		"conversation_id": cmp.ConversationID,
	})
}

func (h *Handler) streamWith(provider string) gin.HandlerFunc {
	return func(c *gin.Context) { h.stream(c, provider) }
}

func (h *Handler) streamNamed(c *gin.Context) {
	h.stream(c, providerParam(c))
}

func (h *Handler) stream(c *gin.Context, provider string) {
	req, ok := h.bindPrompt(c)
	if !ok {
		return
	}
	if !h.chat.Registry().Known(provider) {
		respondError(c, http.StatusNotFound, fmt.Sprintf("%s: %s", chat.ErrUnknownProvider, provider))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(c, http.StatusBadRequest, chat.ErrEmptyPrompt.Error())
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, http.StatusInternalServerError, "streaming not supported")
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	sendEvent := func(ev models.StreamEvent) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := h.chat.Stream(ctx, chat.Request{
		Prompt:   req.Prompt,
		Provider: provider,
		Model:    req.Model,
		Session:  req.Session,
	}, sendEvent)
	if err != nil {
		h.logger.Warn("stream failed", zap.String("request_id", logging.RequestID(c)), zap.String("provider", provider), zap.Error(err))
	}
}

func (h *Handler) modelsWith(provider string) gin.HandlerFunc {
	return func(c *gin.Context) { h.models(c, provider) }
}

func (h *Handler) modelsNamed(c *gin.Context) {
	h.models(c, providerParam(c))
}

func (h *Handler) models(c *gin.Context, provider string) {
	names, err := h.chat.ListModels(c.Request.Context(), provider)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "models": names})
}

func (h *Handler) listProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"default":   h.defaultProvider,
		"providers": h.chat.Registry().Status(),
	})
}
