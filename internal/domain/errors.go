package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited indicates rate limit exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInvalidTransition indicates a ticket status change outside the state machine
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTicketClosed indicates a reply to a resolved or closed ticket
	ErrTicketClosed = errors.New("ticket is no longer open")
	// ErrEngineUnavailable indicates the answering engine is not configured
	ErrEngineUnavailable = errors.New("answering engine unavailable")
)
