package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"promptrelay/internal/models"
)

// Cache is the subset of the redis client used for statistics caching.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Store persists conversations and their per-provider responses.
type Store struct {
	db     *sql.DB
	cache  Cache
	logger *zap.Logger
	now    func() time.Time

	// statsMu orders cache fills against invalidations; writes counts them.
	statsMu sync.Mutex
	writes  uint64
}

type Option func(*Store)

// WithCache enables statistics caching.
func WithCache(c Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore builds a store over an already migrated database.
func NewStore(db *sql.DB, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:     db,
		logger: logger.Named("history"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks that the backing medium is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return storageErr("ping", s.db.PingContext(ctx))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateConversation inserts a conversation and returns its id.
func (s *Store) CreateConversation(ctx context.Context, conv models.NewConversation) (int64, error) {
	id, err := s.insertConversation(ctx, s.db, conv)
	if err != nil {
		return 0, err
	}
	s.invalidateStatistics(ctx)
	return id, nil
}

// AppendResponse records one provider outcome for a conversation. The
// conversation id is only checked by the medium's own foreign key handling.
func (s *Store) AppendResponse(ctx context.Context, resp models.NewResponse) error {
	if err := s.insertResponse(ctx, s.db, resp); err != nil {
		return err
	}
	s.invalidateStatistics(ctx)
	return nil
}

// SaveExchange writes a conversation and all of its responses in one transaction.
func (s *Store) SaveExchange(ctx context.Context, conv models.NewConversation, responses []models.NewResponse) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin save exchange", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	id, err = s.insertConversation(ctx, tx, conv)
	if err != nil {
		return 0, err
	}
	for _, resp := range responses {
		resp.ConversationID = id
		if err = s.insertResponse(ctx, tx, resp); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, storageErr("commit save exchange", err)
	}
	s.invalidateStatistics(ctx)
	return id, nil
}

func (s *Store) insertConversation(ctx context.Context, ex execer, conv models.NewConversation) (int64, error) {
	prompt := strings.TrimSpace(conv.Prompt)
	if prompt == "" {
		return 0, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	ts := conv.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	success := true
	if conv.ResponseSuccess != nil {
		success = *conv.ResponseSuccess
	}
	res, err := ex.ExecContext(ctx,
		`INSERT INTO conversations (prompt, timestamp, user_session, model_used, response_success) VALUES (?, ?, ?, ?, ?)`,
		conv.Prompt, ts.UTC(), nullString(conv.UserSession), nullString(conv.ModelUsed), success,
	)
	if err != nil {
		return 0, storageErr("create conversation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("conversation id", err)
	}
	return id, nil
}

func (s *Store) insertResponse(ctx context.Context, ex execer, resp models.NewResponse) error {
	if strings.TrimSpace(resp.Provider) == "" {
		return fmt.Errorf("%w: provider is required", ErrInvalidInput)
	}
	var responseTime sql.NullFloat64
	if resp.ResponseTime != nil {
		responseTime = sql.NullFloat64{Float64: *resp.ResponseTime, Valid: true}
	}
	var tokens sql.NullInt64
	if resp.TokensUsed != nil {
		tokens = sql.NullInt64{Int64: *resp.TokensUsed, Valid: true}
	}
	text, errMsg := resp.ResponseText, resp.ErrorMessage
	if resp.Success {
		errMsg = ""
	} else {
		text = ""
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO responses (conversation_id, provider, model, response_text, success, error_message, response_time, tokens_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.ConversationID, resp.Provider, nullString(resp.Model), nullString(text), resp.Success,
		nullString(errMsg), responseTime, tokens,
	)
	if err != nil {
		return storageErr("append response", err)
	}
	return nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
