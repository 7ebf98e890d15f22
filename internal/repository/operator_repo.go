package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

// OperatorRepository handles operator account persistence
type OperatorRepository struct {
	db *DB
}

// NewOperatorRepository creates a new operator repository
func NewOperatorRepository(db *DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

// Create creates a new operator account
func (r *OperatorRepository) Create(ctx context.Context, op *domain.Operator) error {
	op.CreatedAt = time.Now().UTC()
	op.Active = true

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO operators (username, password_hash, display_name, active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, op.Username, op.PasswordHash, op.DisplayName, op.Active, op.CreatedAt)
	if err != nil {
		return err
	}

	op.ID, _ = res.LastInsertId()
	return nil
}

// GetByUsername retrieves an operator by username
func (r *OperatorRepository) GetByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	op := &domain.Operator{}
	var displayName sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, display_name, active, created_at
		FROM operators WHERE username = ?
	`, username).Scan(&op.ID, &op.Username, &op.PasswordHash, &displayName, &op.Active, &op.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	op.DisplayName = displayName.String
	return op, nil
}

// Count returns the number of operator accounts
func (r *OperatorRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&count)
	return count, err
}
