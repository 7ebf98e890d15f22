package client

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

const feedbackTimeout = 10 * time.Second

// LocalErrorMessage is shown in place of an answer when a turn fails
const LocalErrorMessage = "Произошла техническая ошибка. Пожалуйста, попробуйте ещё раз " +
	"или обратитесь к оператору техподдержки."

// Turn is one entry of the locally displayed transcript
type Turn struct {
	Role            string
	Content         string
	ResponseType    domain.ResponseType
	Confidence      float64
	NeedsEscalation bool
	SourceArticles  []string
	YouTubeLinks    []string
	SuggestedTopics []domain.SuggestedTopic
	// Local turns exist only on this side and are not in the server transcript
	Local bool
}

// IsClarification reports whether the turn asks the user to pick a topic.
// A clarification without topics is treated as a plain answer.
func (t *Turn) IsClarification() bool {
	return t.ResponseType == domain.ResponseTypeClarification && len(t.SuggestedTopics) > 0
}

// OffersEscalation reports whether the escalation affordance should be shown
// under the turn
func OffersEscalation(t *Turn) bool {
	if t == nil || t.Role != domain.RoleAssistant || t.IsClarification() {
		return false
	}
	return t.NeedsEscalation
}

// Conversation is one end-user chat. The session token is kept from the
// first answer and reused until Reset.
type Conversation struct {
	client *Client

	inFlight atomic.Bool

	mu         sync.Mutex
	sessionID  string
	turns      []*Turn
	escalated  *domain.CreateEscalationResponse
	escalating bool

	feedback sync.WaitGroup
}

// NewConversation starts an empty conversation
func (c *Client) NewConversation() *Conversation {
	return &Conversation{client: c}
}

// ResumeConversation continues an existing session
func (c *Client) ResumeConversation(sessionID string) *Conversation {
	return &Conversation{client: c, sessionID: sessionID}
}

// SessionID returns the current session token, empty before the first answer
func (cv *Conversation) SessionID() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.sessionID
}

// Turns returns a copy of the local transcript
func (cv *Conversation) Turns() []*Turn {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	out := make([]*Turn, len(cv.turns))
	copy(out, cv.turns)
	return out
}

// Send submits one user message. Only one turn may be in flight at a time.
// A blank or oversized message is rejected with ErrInvalidMessage before
// anything is sent or recorded.
// On failure the returned turn is a local apology suggesting escalation
// and the error says what happened; the request is never retried.
func (cv *Conversation) Send(ctx context.Context, message string) (*Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > domain.MaxMessageLength {
		return nil, ErrInvalidMessage
	}
	if !cv.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer cv.inFlight.Store(false)

	userTurn := &Turn{Role: domain.RoleUser, Content: message, Local: true}
	cv.mu.Lock()
	sessionID := cv.sessionID
	cv.turns = append(cv.turns, userTurn)
	cv.mu.Unlock()

	var resp domain.ChatResponse
	err := cv.client.do(ctx, "POST", "/api/chat", "", &domain.ChatRequest{
		SessionID: sessionID,
		Message:   message,
	}, &resp)
	if err != nil {
		cv.client.logger.Warn("chat turn failed", zap.String("session_id", sessionID), zap.Error(err))
		turn := &Turn{
			Role:            domain.RoleAssistant,
			Content:         LocalErrorMessage,
			ResponseType:    domain.ResponseTypeAnswer,
			NeedsEscalation: true,
			Local:           true,
		}
		cv.mu.Lock()
		cv.turns = append(cv.turns, turn)
		cv.mu.Unlock()
		return turn, err
	}

	turn := &Turn{
		Role:            domain.RoleAssistant,
		Content:         resp.Answer,
		ResponseType:    resp.ResponseType,
		Confidence:      resp.Confidence,
		NeedsEscalation: resp.NeedsEscalation,
		SourceArticles:  resp.SourceArticles,
		YouTubeLinks:    resp.YouTubeLinks,
		SuggestedTopics: resp.SuggestedTopics,
	}

	cv.mu.Lock()
	if resp.SessionID != "" {
		cv.sessionID = resp.SessionID
	}
	// the server has the user turn now
	userTurn.Local = false
	cv.turns = append(cv.turns, turn)
	cv.mu.Unlock()

	return turn, nil
}

// SelectTopic answers the last clarification with the 1-based topic index
func (cv *Conversation) SelectTopic(ctx context.Context, index int) (*Turn, error) {
	cv.mu.Lock()
	var last *Turn
	for i := len(cv.turns) - 1; i >= 0; i-- {
		if cv.turns[i].Role == domain.RoleAssistant {
			last = cv.turns[i]
			break
		}
	}
	cv.mu.Unlock()

	if last == nil || !last.IsClarification() || index < 1 || index > len(last.SuggestedTopics) {
		return nil, ErrNoSuchTopic
	}
	return cv.Send(ctx, strconv.Itoa(index))
}

// Escalate hands the conversation to an operator. It succeeds at most once
// per conversation; a failed attempt may be retried. While a request is
// outstanding further calls get ErrEscalationInFlight.
func (cv *Conversation) Escalate(ctx context.Context, reason, contact string) (*domain.CreateEscalationResponse, error) {
	cv.mu.Lock()
	if cv.escalated != nil {
		cv.mu.Unlock()
		return nil, ErrAlreadyEscalated
	}
	if cv.escalating {
		cv.mu.Unlock()
		return nil, ErrEscalationInFlight
	}
	sessionID := cv.sessionID
	if sessionID == "" {
		cv.mu.Unlock()
		return nil, ErrNoSession
	}
	cv.escalating = true
	cv.mu.Unlock()

	var resp domain.CreateEscalationResponse
	err := cv.client.do(ctx, "POST", "/api/escalation", "", &domain.CreateEscalationRequest{
		SessionID:   sessionID,
		Reason:      reason,
		ContactInfo: contact,
	}, &resp)

	cv.mu.Lock()
	defer cv.mu.Unlock()
	cv.escalating = false
	if err != nil {
		return nil, err
	}
	cv.escalated = &resp
	return &resp, nil
}

// Escalation returns the ticket opened by Escalate, or nil
func (cv *Conversation) Escalation() *domain.CreateEscalationResponse {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.escalated
}

// EscalationStatus fetches the current status of the conversation's ticket
func (cv *Conversation) EscalationStatus(ctx context.Context) (*domain.EscalationStatusResponse, error) {
	esc := cv.Escalation()
	if esc == nil {
		return nil, errors.New("conversation has not been escalated")
	}
	var resp domain.EscalationStatusResponse
	if err := cv.client.do(ctx, "GET", "/api/escalation/"+esc.EscalationID, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transcript fetches the canonical server transcript, which includes
// operator replies
func (cv *Conversation) Transcript(ctx context.Context) ([]*domain.Turn, error) {
	sessionID := cv.SessionID()
	if sessionID == "" {
		return nil, ErrNoSession
	}
	var resp domain.TranscriptResponse
	if err := cv.client.do(ctx, "GET", "/api/chat/sessions/"+sessionID+"/messages", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Feedback rates a turn in the background. Failures are logged and dropped.
func (cv *Conversation) Feedback(messageIndex, rating int, comment string) {
	sessionID := cv.SessionID()
	if sessionID == "" {
		return
	}

	req := &domain.FeedbackRequest{
		SessionID:    sessionID,
		MessageIndex: messageIndex,
		Rating:       rating,
		Comment:      comment,
	}
	cv.feedback.Add(1)
	go func() {
		defer cv.feedback.Done()
		ctx, cancel := context.WithTimeout(context.Background(), feedbackTimeout)
		defer cancel()
		if err := cv.client.do(ctx, "POST", "/api/feedback", "", req, nil); err != nil {
			cv.client.logger.Debug("feedback dropped", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
}

// Wait blocks until background feedback requests finish
func (cv *Conversation) Wait() {
	cv.feedback.Wait()
}

// Reset forgets the session so the next Send starts a new one
func (cv *Conversation) Reset() {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	cv.sessionID = ""
	cv.turns = nil
	cv.escalated = nil
}
