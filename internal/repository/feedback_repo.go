package repository

import (
	"context"
	"time"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

// FeedbackRepository handles feedback persistence
type FeedbackRepository struct {
	db *DB
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Upsert stores a rating; a later rating for the same turn replaces the earlier one.
func (r *FeedbackRepository) Upsert(ctx context.Context, fb *domain.Feedback) error {
	now := time.Now().UTC()
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feedback (session_id, message_index, rating, comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, message_index) DO UPDATE SET
			rating = excluded.rating,
			comment = excluded.comment,
			updated_at = excluded.updated_at
	`, fb.SessionID, fb.MessageIndex, fb.Rating, fb.Comment, fb.CreatedAt, now)
	return err
}

// Get returns the stored rating for a turn, or nil when none exists
func (r *FeedbackRepository) Get(ctx context.Context, sessionID string, messageIndex int) (*domain.Feedback, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, message_index, rating, COALESCE(comment, ''), created_at
		FROM feedback WHERE session_id = ? AND message_index = ?
	`, sessionID, messageIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	fb := &domain.Feedback{}
	if err := rows.Scan(&fb.SessionID, &fb.MessageIndex, &fb.Rating, &fb.Comment, &fb.CreatedAt); err != nil {
		return nil, err
	}
	return fb, nil
}

// Count returns the number of stored ratings
func (r *FeedbackRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&count)
	return count, err
}
