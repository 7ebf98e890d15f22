// Package notify alerts the support team about new tickets and operator replies.
package notify

import (
	"context"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

// Notifier delivers ticket notifications to operators
type Notifier interface {
	// TicketCreated announces a new ticket and returns the channel message id
	// for threading later notifications, or "" when the channel has none.
	TicketCreated(ctx context.Context, esc *domain.Escalation) (string, error)
	OperatorReplied(ctx context.Context, esc *domain.Escalation, operator, reply string) error
}

// Nop drops every notification
type Nop struct{}

// TicketCreated implements Notifier
func (Nop) TicketCreated(context.Context, *domain.Escalation) (string, error) { return "", nil }

// OperatorReplied implements Notifier
func (Nop) OperatorReplied(context.Context, *domain.Escalation, string, string) error { return nil }
