package domain

import "time"

// Operator is a support agent who works the escalation queue
type Operator struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest is the operator credential exchange
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued bearer token
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Principal is the authenticated operator behind a request
type Principal struct {
	Username    string
	DisplayName string
}
