package domain

import "time"

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ResponseType classifies an assistant turn
type ResponseType string

const (
	ResponseTypeAnswer        ResponseType = "answer"
	ResponseTypeClarification ResponseType = "clarification"
)

// MaxMessageLength bounds a single user message
const MaxMessageLength = 2000

// Session represents a chat session
type Session struct {
	ID        string    `json:"id"`
	UserIP    string    `json:"user_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one message of a transcript. Turns are immutable once appended.
type Turn struct {
	ID              int64            `json:"-"`
	SessionID       string           `json:"-"`
	Role            string           `json:"role"` // user, assistant
	Content         string           `json:"content"`
	ResponseType    ResponseType     `json:"response_type,omitempty"`
	Confidence      *float64         `json:"confidence,omitempty"`
	NeedsEscalation bool             `json:"needs_escalation,omitempty"`
	SourceArticles  []string         `json:"source_articles,omitempty"`
	YouTubeLinks    []string         `json:"youtube_links,omitempty"`
	SuggestedTopics []SuggestedTopic `json:"suggested_topics,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// SuggestedTopic is a candidate topic offered on a clarification turn.
// Topics are numbered from 1 in display order.
type SuggestedTopic struct {
	Title     string  `json:"title"`
	ArticleID string  `json:"article_id"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}

// ChatRequest is the request to send a chat message
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message" binding:"required"`
	UserIP    string `json:"-"`
	UserAgent string `json:"-"`
}

// ChatResponse is the response from a chat message
type ChatResponse struct {
	Answer          string           `json:"answer"`
	SessionID       string           `json:"session_id"`
	Confidence      float64          `json:"confidence"`
	NeedsEscalation bool             `json:"needs_escalation"`
	SourceArticles  []string         `json:"source_articles"`
	YouTubeLinks    []string         `json:"youtube_links"`
	ResponseType    ResponseType     `json:"response_type"`
	SuggestedTopics []SuggestedTopic `json:"suggested_topics,omitempty"`
}

// OffersEscalation reports whether a client should show the escalation
// affordance for this response. Clarification always wins over escalation.
func (r *ChatResponse) OffersEscalation() bool {
	return r.ResponseType == ResponseTypeAnswer && r.NeedsEscalation
}

// TranscriptResponse lists the canonical turns of a session
type TranscriptResponse struct {
	SessionID string  `json:"session_id"`
	Messages  []*Turn `json:"messages"`
}
