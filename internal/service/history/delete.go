package history

import (
	"context"
	"fmt"
)

const maxCleanupDays = 365000

// DeleteConversation removes a conversation and its responses. It reports
// false when the id did not exist.
func (s *Store) DeleteConversation(ctx context.Context, id int64) (deleted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("begin delete", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM responses WHERE conversation_id = ?`, id); err != nil {
		return false, storageErr("delete responses", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete conversation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("conversation rows affected", err)
	}
	if err = tx.Commit(); err != nil {
		return false, storageErr("commit delete", err)
	}
	if affected > 0 {
		s.invalidateStatistics(ctx)
	}
	return affected > 0, nil
}

// CleanupOlderThan deletes every conversation whose timestamp is at or before
// now minus the given number of days, and returns how many were removed.
func (s *Store) CleanupOlderThan(ctx context.Context, days int) (removed int64, err error) {
	if days < 0 {
		return 0, fmt.Errorf("%w: days must not be negative", ErrInvalidInput)
	}
	if days > maxCleanupDays {
		days = maxCleanupDays
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin cleanup", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM responses WHERE conversation_id IN (SELECT id FROM conversations WHERE timestamp <= ?)`, cutoff,
	); err != nil {
		return 0, storageErr("cleanup responses", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE timestamp <= ?`, cutoff)
	if err != nil {
		return 0, storageErr("cleanup conversations", err)
	}
	removed, err = res.RowsAffected()
	if err != nil {
		return 0, storageErr("cleanup rows affected", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, storageErr("commit cleanup", err)
	}
	if removed > 0 {
		s.invalidateStatistics(ctx)
	}
	return removed, nil
}
