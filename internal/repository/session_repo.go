package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/helpdesk/internal/domain"
)

// SessionRepository handles session and transcript persistence
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	session := &domain.Session{}
	var userIP, userAgent sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_ip, user_agent, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &userIP, &userAgent, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	session.UserIP = userIP.String
	session.UserAgent = userAgent.String

	return session, nil
}

// SaveExchange appends turns to a session in one transaction, creating the
// session first when isNew is set. Either every turn is stored or none is.
func (r *SessionRepository) SaveExchange(ctx context.Context, session *domain.Session, isNew bool, turns ...*domain.Turn) error {
	now := time.Now().UTC()

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if isNew {
			if session.ID == "" {
				session.ID = uuid.New().String()
			}
			session.CreatedAt = now
			session.UpdatedAt = now
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sessions (id, user_ip, user_agent, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
			`, session.ID, session.UserIP, session.UserAgent, session.CreatedAt, session.UpdatedAt); err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
		}

		for _, turn := range turns {
			turn.SessionID = session.ID
			if err := insertTurn(ctx, tx, turn); err != nil {
				return err
			}
		}

		if !isNew {
			session.UpdatedAt = now
			if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now, session.ID); err != nil {
				return fmt.Errorf("failed to touch session: %w", err)
			}
		}
		return nil
	})
}

func insertTurn(ctx context.Context, q queryer, turn *domain.Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	sourcesJSON, _ := json.Marshal(turn.SourceArticles)
	linksJSON, _ := json.Marshal(turn.YouTubeLinks)
	topicsJSON, _ := json.Marshal(turn.SuggestedTopics)

	var confidence sql.NullFloat64
	if turn.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *turn.Confidence, Valid: true}
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, response_type, confidence, needs_escalation,
			source_articles, youtube_links, suggested_topics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, turn.SessionID, turn.Role, turn.Content, string(turn.ResponseType), confidence,
		turn.NeedsEscalation, string(sourcesJSON), string(linksJSON), string(topicsJSON), turn.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	turn.ID, _ = res.LastInsertId()
	return nil
}

// Turns returns the transcript of a session in append order. With limit > 0
// only the most recent limit turns are returned.
func (r *SessionRepository) Turns(ctx context.Context, sessionID string, limit int) ([]*domain.Turn, error) {
	return listTurns(ctx, r.db, sessionID, limit)
}

func listTurns(ctx context.Context, q queryer, sessionID string, limit int) ([]*domain.Turn, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, session_id, role, content, response_type, confidence, needs_escalation,
			source_articles, youtube_links, suggested_topics, created_at
		FROM messages WHERE session_id = ?
		ORDER BY id DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []*domain.Turn{}
	for rows.Next() {
		turn := &domain.Turn{}
		var responseType, sourcesJSON, linksJSON, topicsJSON sql.NullString
		var confidence sql.NullFloat64

		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.Role, &turn.Content, &responseType,
			&confidence, &turn.NeedsEscalation, &sourcesJSON, &linksJSON, &topicsJSON, &turn.Timestamp); err != nil {
			return nil, err
		}

		turn.ResponseType = domain.ResponseType(responseType.String)
		if confidence.Valid {
			c := confidence.Float64
			turn.Confidence = &c
		}
		if sourcesJSON.Valid && sourcesJSON.String != "" {
			json.Unmarshal([]byte(sourcesJSON.String), &turn.SourceArticles)
		}
		if linksJSON.Valid && linksJSON.String != "" {
			json.Unmarshal([]byte(linksJSON.String), &turn.YouTubeLinks)
		}
		if topicsJSON.Valid && topicsJSON.String != "" {
			json.Unmarshal([]byte(topicsJSON.String), &turn.SuggestedTopics)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest first from the query; callers want append order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// CountChats returns the total number of user messages (chats)
func (r *SessionRepository) CountChats(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE role = 'user'`).Scan(&count)
	return count, err
}
