// Package clarify keeps the pending topic choices offered on a clarification
// turn so the next message of the session can pick one by its number.
package clarify

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

// DefaultTTL is how long an unanswered clarification stays selectable
const DefaultTTL = 15 * time.Minute

// Pending is the clarification a session is waiting on
type Pending struct {
	OriginalQuery string                  `json:"original_query"`
	Topics        []domain.SuggestedTopic `json:"topics"`
	CreatedAt     time.Time               `json:"created_at"`
}

// Store persists pending clarifications by session id
type Store interface {
	Save(ctx context.Context, sessionID string, p *Pending) error
	// Get returns nil when nothing is pending or the entry expired
	Get(ctx context.Context, sessionID string) (*Pending, error)
	Clear(ctx context.Context, sessionID string) error
}

// Choice is the outcome of matching a message against a pending clarification
type Choice struct {
	Index   int // 1-based
	Topic   domain.SuggestedTopic
	Pending *Pending
}

// Resolve consumes the pending clarification for a session. When input is
// the decimal 1-based index of an offered topic, that topic is returned.
// Any other input, out-of-range numbers included, discards the pending
// clarification and yields nil so the message is handled as a new query.
func Resolve(ctx context.Context, store Store, sessionID, input string) (*Choice, error) {
	if sessionID == "" {
		return nil, nil
	}

	p, err := store.Get(ctx, sessionID)
	if err != nil || p == nil {
		return nil, err
	}

	if err := store.Clear(ctx, sessionID); err != nil {
		return nil, err
	}

	idx, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || idx < 1 || idx > len(p.Topics) {
		return nil, nil
	}

	return &Choice{Index: idx, Topic: p.Topics[idx-1], Pending: p}, nil
}
