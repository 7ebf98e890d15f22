package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/helpdesk/internal/domain"
)

// EscalationRepository handles escalation ticket persistence
type EscalationRepository struct {
	db *DB
}

// NewEscalationRepository creates a new escalation repository
func NewEscalationRepository(db *DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

const escalationColumns = `id, session_id, status, reason, contact_info, operator_notes, operator_id,
	telegram_message_id, created_at, updated_at`

// Create stores a new pending ticket, snapshots the session transcript into
// its chat history and returns the queue position: the number of tickets
// already pending when this one was created, plus one.
func (r *EscalationRepository) Create(ctx context.Context, esc *domain.Escalation) (int, error) {
	if esc.ID == "" {
		esc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	esc.Status = domain.StatusPending
	esc.CreatedAt = now
	esc.UpdatedAt = now

	var position int
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var sessions int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, esc.SessionID).Scan(&sessions); err != nil {
			return err
		}
		if sessions == 0 {
			return fmt.Errorf("session %s: %w", esc.SessionID, domain.ErrNotFound)
		}

		var pending int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalations WHERE status = ?`, domain.StatusPending).Scan(&pending); err != nil {
			return err
		}
		position = pending + 1

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO escalations (id, session_id, status, reason, contact_info, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, esc.ID, esc.SessionID, esc.Status, esc.Reason, esc.ContactInfo, esc.CreatedAt, esc.UpdatedAt); err != nil {
			return fmt.Errorf("failed to create escalation: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO escalation_turns (escalation_id, role, content, created_at)
			SELECT ?, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id
		`, esc.ID, esc.SessionID); err != nil {
			return fmt.Errorf("failed to snapshot transcript: %w", err)
		}

		history, err := listEscalationTurns(ctx, tx, esc.ID)
		if err != nil {
			return err
		}
		esc.ChatHistory = history
		return nil
	})
	if err != nil {
		return 0, err
	}

	return position, nil
}

// Get retrieves a ticket with its chat history
func (r *EscalationRepository) Get(ctx context.Context, id string) (*domain.Escalation, error) {
	esc, err := scanEscalation(r.db.QueryRowContext(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	esc.ChatHistory, err = listEscalationTurns(ctx, r.db, esc.ID)
	if err != nil {
		return nil, err
	}
	return esc, nil
}

// List returns tickets newest first, the total matching the filter and the
// number of pending tickets across the whole collection.
func (r *EscalationRepository) List(ctx context.Context, filter domain.EscalationFilter) ([]*domain.Escalation, int, int, error) {
	where := ""
	args := []any{}
	if filter.Status != "" {
		where = " WHERE status = ?"
		args = append(args, filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+escalationColumns+` FROM escalations`+where+
			` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, 0, err
	}

	escalations := []*domain.Escalation{}
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			rows.Close()
			return nil, 0, 0, err
		}
		escalations = append(escalations, esc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, 0, err
	}
	rows.Close()

	for _, esc := range escalations {
		if esc.ChatHistory, err = listEscalationTurns(ctx, r.db, esc.ID); err != nil {
			return nil, 0, 0, err
		}
	}

	var total, pending int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalations`+where, args...).Scan(&total); err != nil {
		return nil, 0, 0, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalations WHERE status = ?`, domain.StatusPending).Scan(&pending); err != nil {
		return nil, 0, 0, err
	}

	return escalations, total, pending, nil
}

// ReplyParams describes an operator reply
type ReplyParams struct {
	EscalationID string
	OperatorID   string
	Message      string
	// TranscriptContent is what the end user sees in the session transcript
	TranscriptContent string
	CloseTicket       bool
}

// Reply atomically advances the ticket status and appends the reply to both
// the ticket chat history and the session transcript.
func (r *EscalationRepository) Reply(ctx context.Context, p ReplyParams) (*domain.Escalation, error) {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, sessionID, err := currentStatus(ctx, tx, p.EscalationID)
		if err != nil {
			return err
		}

		next, err := domain.ReplyStatus(current, p.CloseTicket)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE escalations SET status = ?, operator_notes = ?, operator_id = ?, updated_at = ?
			WHERE id = ?
		`, next, p.Message, p.OperatorID, now, p.EscalationID); err != nil {
			return fmt.Errorf("failed to update escalation: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO escalation_turns (escalation_id, role, content, created_at)
			VALUES (?, ?, ?, ?)
		`, p.EscalationID, domain.RoleAssistant, p.Message, now); err != nil {
			return fmt.Errorf("failed to append ticket turn: %w", err)
		}

		return insertTurn(ctx, tx, &domain.Turn{
			SessionID: sessionID,
			Role:      domain.RoleAssistant,
			Content:   p.TranscriptContent,
			Timestamp: now,
		})
	})
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, p.EscalationID)
}

// SetStatus applies an explicit status change validated by the ticket state machine
func (r *EscalationRepository) SetStatus(ctx context.Context, id string, to domain.Status) (*domain.Escalation, error) {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, _, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := domain.Transition(current, to); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE escalations SET status = ?, updated_at = ? WHERE id = ?`,
			to, time.Now().UTC(), id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, id)
}

// SetTelegramMessageID links a ticket to its operator notification
func (r *EscalationRepository) SetTelegramMessageID(ctx context.Context, id, messageID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE escalations SET telegram_message_id = ? WHERE id = ?`, messageID, id)
	return err
}

func currentStatus(ctx context.Context, q queryer, id string) (domain.Status, string, error) {
	var status, sessionID string
	err := q.QueryRowContext(ctx, `SELECT status, session_id FROM escalations WHERE id = ?`, id).Scan(&status, &sessionID)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("escalation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return "", "", err
	}
	return domain.Status(status), sessionID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscalation(row rowScanner) (*domain.Escalation, error) {
	esc := &domain.Escalation{}
	var status string
	var reason, contact, notes, operatorID, tgID sql.NullString

	if err := row.Scan(&esc.ID, &esc.SessionID, &status, &reason, &contact, &notes, &operatorID,
		&tgID, &esc.CreatedAt, &esc.UpdatedAt); err != nil {
		return nil, err
	}

	esc.Status = domain.Status(strings.TrimSpace(status))
	esc.Reason = reason.String
	esc.ContactInfo = contact.String
	esc.OperatorNotes = notes.String
	esc.OperatorID = operatorID.String
	esc.TelegramMessageID = tgID.String
	return esc, nil
}

func listEscalationTurns(ctx context.Context, q queryer, escalationID string) ([]*domain.Turn, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, role, content, created_at FROM escalation_turns
		WHERE escalation_id = ? ORDER BY id ASC
	`, escalationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []*domain.Turn{}
	for rows.Next() {
		turn := &domain.Turn{}
		if err := rows.Scan(&turn.ID, &turn.Role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
