package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"promptrelay/internal/logging"
	"promptrelay/internal/models"
	"promptrelay/internal/service/ai"
	"promptrelay/internal/service/chat"
	"promptrelay/internal/service/history"
)

const storageFailureMessage = "history storage unavailable"

// HistoryStore is the query surface the history endpoints need.
type HistoryStore interface {
	ListConversations(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error)
	GetConversation(ctx context.Context, id int64) (*models.ConversationDetail, error)
	SearchConversations(ctx context.Context, term string, limit int) ([]models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id int64) (bool, error)
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
	GetStatistics(ctx context.Context) (*models.Statistics, error)
	Ping(ctx context.Context) error
}

// Handler wires HTTP routes to the chat router and the history store.
type Handler struct {
	chat            *chat.Router
	history         HistoryStore
	defaultProvider string
	logger          *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(router *chat.Router, store HistoryStore, defaultProvider string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultProvider == "" {
		defaultProvider = ai.ProviderOpenAI
	}
	return &Handler{
		chat:            router,
		history:         store,
		defaultProvider: defaultProvider,
		logger:          logger.Named("api"),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.POST("/chat", h.generateWith(h.defaultProvider))
	api.POST("/claude", h.generateWith(ai.ProviderClaude))
	api.POST("/groq", h.generateWith(ai.ProviderGroq))
	api.POST("/claude/stream", h.streamWith(ai.ProviderClaude))
	api.POST("/groq/stream", h.streamWith(ai.ProviderGroq))
	api.GET("/groq/models", h.modelsWith(ai.ProviderGroq))
	api.POST("/compare", h.compare)

	api.GET("/providers", h.listProviders)
	api.POST("/providers/:name", h.generateNamed)
	api.POST("/providers/:name/stream", h.streamNamed)
	api.GET("/providers/:name/models", h.modelsNamed)

	api.GET("/history", h.listHistory)
	api.GET("/history/search", h.searchHistory)
	api.GET("/history/:id", h.getConversation)
	api.DELETE("/history/:id", h.deleteConversation)
	api.GET("/stats", h.statistics)
	api.POST("/cleanup", h.cleanup)
}

func (h *Handler) health(c *gin.Context) {
	if err := h.history.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": h.chat.Registry().Configured(),
	})
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// respondFailure maps service errors onto status codes.
func (h *Handler) respondFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyPrompt), errors.Is(err, history.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrUnknownProvider), errors.Is(err, history.ErrNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case ai.IsUnavailable(err):
		respondError(c, http.StatusInternalServerError, err.Error())
	case history.IsStorageError(err):
		h.logger.Error("storage failure", h.requestFields(c, err)...)
		respondError(c, http.StatusInternalServerError, storageFailureMessage)
	default:
		h.logger.Error("request failed", h.requestFields(c, err)...)
		respondError(c, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) requestFields(c *gin.Context, err error) []zap.Field {
	return []zap.Field{
		zap.String("request_id", logging.RequestID(c)),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	}
}

func providerParam(c *gin.Context) string {
	return strings.ToLower(strings.TrimSpace(c.Param("name")))
}
