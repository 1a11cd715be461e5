package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"promptrelay/internal/models"
	"promptrelay/internal/service/history"
)

const (
	defaultCleanupDays = 30
	maxPageSize        = 500
)

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func pageLimit(c *gin.Context, def int) (int, bool) {
	limit, err := queryInt(c, "limit", def)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if limit == 0 {
		limit = def
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, true
}

func (h *Handler) listHistory(c *gin.Context) {
	limit, ok := pageLimit(c, history.DefaultListLimit)
	if !ok {
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.history.ListConversations(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	if list == nil {
		list = make([]models.ConversationSummary, 0)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": list})
}

func (h *Handler) searchHistory(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		respondError(c, http.StatusBadRequest, "search term is required")
		return
	}
	limit, ok := pageLimit(c, history.DefaultSearchLimit)
	if !ok {
		return
	}
	results, err := h.history.SearchConversations(c.Request.Context(), term, limit)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	if results == nil {
		results = make([]models.ConversationSummary, 0)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

func conversationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid conversation id")
		return 0, false
	}
	return id, true
}

func (h *Handler) getConversation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	detail, err := h.history.GetConversation(c.Request.Context(), id)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "conversation": detail})
}

func (h *Handler) deleteConversation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	deleted, err := h.history.DeleteConversation(c.Request.Context(), id)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	if !deleted {
		respondError(c, http.StatusNotFound, history.ErrNotFound.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("conversation %d deleted", id)})
}

func (h *Handler) statistics(c *gin.Context) {
	stats, err := h.history.GetStatistics(c.Request.Context())
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "statistics": stats})
}

type cleanupRequest struct {
	Days *int `json:"days"`
}

func (h *Handler) cleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	days := defaultCleanupDays
	if req.Days != nil {
		days = *req.Days
	}
	if days < 0 {
		respondError(c, http.StatusBadRequest, "days must not be negative")
		return
	}
	removed, err := h.history.CleanupOlderThan(c.Request.Context(), days)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"deleted_count": removed,
		"message":       fmt.Sprintf("deleted %d conversations older than %d days", removed, days),
	})
}
