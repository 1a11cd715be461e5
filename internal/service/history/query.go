package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"promptrelay/internal/models"
)

const (
	DefaultListLimit   = 50
	DefaultSearchLimit = 20
)

const conversationColumns = `id, prompt, timestamp, user_session, model_used, response_success`

// ListConversations returns a page of conversations, newest first, each with
// the providers attempted and their outcomes in response insertion order.
func (s *Store) ListConversations(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	convs, err := s.queryConversations(ctx, "list conversations",
		`SELECT `+conversationColumns+` FROM conversations ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, convs)
}

// SearchConversations matches the term as a substring of the prompt. Matching
// is case-insensitive for ASCII on sqlite and follows the column collation on mysql.
func (s *Store) SearchConversations(ctx context.Context, term string, limit int) ([]models.ConversationSummary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	convs, err := s.queryConversations(ctx, "search conversations",
		`SELECT `+conversationColumns+` FROM conversations WHERE prompt LIKE ? ESCAPE '!' ORDER BY timestamp DESC, id DESC LIMIT ?`,
		"%"+escapeLike(term)+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, convs)
}

// GetConversation returns one conversation with all of its responses.
func (s *Store) GetConversation(ctx context.Context, id int64) (*models.ConversationDetail, error) {
	var (
		conv    models.Conversation
		session sql.NullString
		model   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.Prompt, &conv.Timestamp, &session, &model, &conv.ResponseSuccess)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get conversation", err)
	}
	conv.UserSession = stringPtr(session)
	conv.ModelUsed = stringPtr(model)
	conv.Timestamp = conv.Timestamp.UTC()

	responses, err := s.queryResponses(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ConversationDetail{Conversation: conv, Responses: responses}, nil
}

func (s *Store) queryConversations(ctx context.Context, op, query string, args ...any) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var (
			c       models.Conversation
			session sql.NullString
			model   sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Prompt, &c.Timestamp, &session, &model, &c.ResponseSuccess); err != nil {
			return nil, storageErr("scan conversation", err)
		}
		c.UserSession = stringPtr(session)
		c.ModelUsed = stringPtr(model)
		c.Timestamp = c.Timestamp.UTC()
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return convs, nil
}

func (s *Store) queryResponses(ctx context.Context, conversationID int64) ([]models.Response, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, provider, model, response_text, success, error_message, response_time, tokens_used
		 FROM responses WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, storageErr("list responses", err)
	}
	defer rows.Close()

	responses := []models.Response{}
	for rows.Next() {
		var (
			r            models.Response
			model        sql.NullString
			text         sql.NullString
			errMsg       sql.NullString
			responseTime sql.NullFloat64
			tokens       sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.Provider, &model, &text, &r.Success, &errMsg, &responseTime, &tokens); err != nil {
			return nil, storageErr("scan response", err)
		}
		r.Model = stringPtr(model)
		r.ResponseText = stringPtr(text)
		r.ErrorMessage = stringPtr(errMsg)
		if responseTime.Valid {
			v := responseTime.Float64
			r.ResponseTime = &v
		}
		if tokens.Valid {
			v := tokens.Int64
			r.TokensUsed = &v
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list responses", err)
	}
	return responses, nil
}

// summarize attaches provider names and outcomes in a second query so rows of
// the page query are never held open while another statement runs.
func (s *Store) summarize(ctx context.Context, convs []models.Conversation) ([]models.ConversationSummary, error) {
	summaries := make([]models.ConversationSummary, 0, len(convs))
	if len(convs) == 0 {
		return summaries, nil
	}
	index := make(map[int64]int, len(convs))
	args := make([]any, 0, len(convs))
	for i, c := range convs {
		summaries = append(summaries, models.ConversationSummary{
			Conversation:      c,
			Providers:         []string{},
			ResponseSuccesses: []bool{},
		})
		index[c.ID] = i
		args = append(args, c.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, provider, success FROM responses WHERE conversation_id IN (`+placeholders+`) ORDER BY id ASC`,
		args...,
	)
	if err != nil {
		return nil, storageErr("list providers", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			convID   int64
			provider string
			success  bool
		)
		if err := rows.Scan(&convID, &provider, &success); err != nil {
			return nil, storageErr("scan provider", err)
		}
		i, ok := index[convID]
		if !ok {
			continue
		}
		summaries[i].Providers = append(summaries[i].Providers, provider)
		summaries[i].ResponseSuccesses = append(summaries[i].ResponseSuccesses, success)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list providers", err)
	}
	return summaries, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
