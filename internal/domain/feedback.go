package domain

import "time"

// Feedback is a rating attached to one turn of a session
type Feedback struct {
	SessionID    string    `json:"session_id"`
	MessageIndex int       `json:"message_index"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedbackRequest is the request to rate an assistant turn
type FeedbackRequest struct {
	SessionID    string `json:"session_id" binding:"required"`
	MessageIndex int    `json:"message_index" binding:"min=0"`
	Rating       int    `json:"rating" binding:"required,min=1,max=5"`
	Comment      string `json:"comment,omitempty" binding:"max=500"`
}
