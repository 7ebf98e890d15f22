package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an escalation ticket
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// transitions lists every permitted status change. closed has no outgoing edge.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusResolved:   true,
		StatusClosed:     true,
	},
	StatusInProgress: {
		StatusInProgress: true,
		StatusPending:    true,
		StatusResolved:   true,
		StatusClosed:     true,
	},
	StatusResolved: {
		StatusClosed: true,
	},
	StatusClosed: {},
}

// ParseStatus converts a wire value into a Status
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, s)
	}
	return st, nil
}

// IsOpen reports whether operators may still reply to the ticket
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusInProgress
}

// IsTerminal reports whether the status has no outgoing transitions
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Transition validates a status change and returns the new status.
func Transition(from, to Status) (Status, error) {
	next, ok := transitions[from]
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if !next[to] {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// ReplyStatus returns the status a ticket moves to after an operator reply.
// Replies to resolved or closed tickets are rejected rather than reopening them.
func ReplyStatus(current Status, closeTicket bool) (Status, error) {
	if !current.IsOpen() {
		return "", fmt.Errorf("%w: status %s", ErrTicketClosed, current)
	}
	if closeTicket {
		return Transition(current, StatusResolved)
	}
	return Transition(current, StatusInProgress)
}

// Escalation is the durable record of a human handoff request
type Escalation struct {
	ID                string    `json:"escalation_id"`
	SessionID         string    `json:"session_id"`
	Status            Status    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	ContactInfo       string    `json:"contact_info,omitempty"`
	ChatHistory       []*Turn   `json:"chat_history"`
	OperatorNotes     string    `json:"operator_notes,omitempty"`
	OperatorID        string    `json:"operator_id,omitempty"`
	TelegramMessageID string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CreateEscalationRequest is the request to hand a session to an operator
type CreateEscalationRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	Reason      string `json:"reason,omitempty"`
	ContactInfo string `json:"contact_info,omitempty"`
}

// CreateEscalationResponse reports the new ticket and its queue position
type CreateEscalationResponse struct {
	EscalationID    string `json:"escalation_id"`
	Status          Status `json:"status"`
	Message         string `json:"message"`
	PositionInQueue int    `json:"position_in_queue"`
}

// EscalationStatusResponse is the end-user view of a ticket
type EscalationStatusResponse struct {
	EscalationID string    `json:"escalation_id"`
	Status       Status    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EscalationFilter narrows a ticket listing
type EscalationFilter struct {
	Status Status
	Limit  int
	Offset int
}

// EscalationListResponse is the operator view of the ticket collection
type EscalationListResponse struct {
	Escalations  []*Escalation `json:"escalations"`
	Total        int           `json:"total"`
	PendingCount int           `json:"pending_count"`
}

// OperatorReplyRequest is an operator answer on a ticket
type OperatorReplyRequest struct {
	EscalationID string `json:"escalation_id" binding:"required"`
	Message      string `json:"message" binding:"required"`
	CloseTicket  bool   `json:"close_ticket"`
}

// OperatorReplyResponse reports the status after a reply
type OperatorReplyResponse struct {
	Status    string `json:"status"`
	NewStatus Status `json:"new_status"`
}

// StatusChangeRequest is an explicit operator status change
type StatusChangeRequest struct {
	Status string `json:"status" binding:"required"`
}

// Ticket event kinds
const (
	TicketEventCreated = "created"
	TicketEventReplied = "replied"
	TicketEventStatus  = "status"
)

// TicketEvent is pushed to operator panels when a ticket changes
type TicketEvent struct {
	Kind         string    `json:"kind"`
	EscalationID string    `json:"escalation_id"`
	SessionID    string    `json:"session_id"`
	Status       Status    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}
