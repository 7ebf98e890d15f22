package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/clarify"
	"github.com/liliang-cn/helpdesk/internal/domain"
	"github.com/liliang-cn/helpdesk/internal/engine"
	"github.com/liliang-cn/helpdesk/internal/metrics"
	"github.com/liliang-cn/helpdesk/internal/repository"
)

// ChatService resolves chat turns: topic selection, retrieval, the
// clarification check and answer generation
type ChatService struct {
	sessionRepo *repository.SessionRepository
	answerer    *engine.Answerer
	clarify     clarify.Store
	logger      *zap.Logger
}

// NewChatService creates a new chat service. A nil answerer makes every turn
// fail with ErrEngineUnavailable.
func NewChatService(
	sessionRepo *repository.SessionRepository,
	answerer *engine.Answerer,
	store clarify.Store,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessionRepo: sessionRepo,
		answerer:    answerer,
		clarify:     store,
		logger:      logger,
	}
}

// resolution is the assistant side of a turn before it is stored
type resolution struct {
	resp    *domain.ChatResponse
	pending *clarify.Pending
}

// SendTurn appends one user turn and one assistant turn to the session,
// creating the session when the id is empty or unknown. Nothing is stored
// when resolving the turn fails.
func (s *ChatService) SendTurn(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" || utf8.RuneCountInString(message) > domain.MaxMessageLength {
		return nil, fmt.Errorf("%w: message must be 1..%d characters", domain.ErrInvalidRequest, domain.MaxMessageLength)
	}
	if s.answerer == nil {
		return nil, domain.ErrEngineUnavailable
	}

	start := time.Now()

	session, isNew, err := s.loadSession(ctx, req)
	if err != nil {
		return nil, err
	}

	var history []engine.Message
	if !isNew {
		turns, err := s.sessionRepo.Turns(ctx, session.ID, engine.HistoryTurns)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		for _, t := range turns {
			history = append(history, engine.Message{Role: t.Role, Content: t.Content})
		}
	}

	res, err := s.resolve(ctx, session, isNew, message, history)
	if err != nil {
		metrics.TurnErrors.Inc()
		s.logger.Error("failed to resolve turn", zap.String("session_id", session.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}
	resp := res.resp

	userTurn := &domain.Turn{Role: domain.RoleUser, Content: message}
	assistantTurn := &domain.Turn{
		Role:            domain.RoleAssistant,
		Content:         resp.Answer,
		ResponseType:    resp.ResponseType,
		NeedsEscalation: resp.NeedsEscalation,
		SourceArticles:  resp.SourceArticles,
		YouTubeLinks:    resp.YouTubeLinks,
		SuggestedTopics: resp.SuggestedTopics,
	}
	if resp.ResponseType == domain.ResponseTypeAnswer {
		confidence := resp.Confidence
		assistantTurn.Confidence = &confidence
	}

	if err := s.sessionRepo.SaveExchange(ctx, session, isNew, userTurn, assistantTurn); err != nil {
		metrics.TurnErrors.Inc()
		return nil, fmt.Errorf("failed to save turn: %w", err)
	}
	resp.SessionID = session.ID

	if res.pending != nil {
		if err := s.clarify.Save(ctx, session.ID, res.pending); err != nil {
			s.logger.Warn("failed to save clarification", zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	metrics.TurnsTotal.WithLabelValues(string(resp.ResponseType)).Inc()
	metrics.TurnDuration.WithLabelValues(string(resp.ResponseType)).Observe(time.Since(start).Seconds())
	if resp.ResponseType == domain.ResponseTypeAnswer {
		metrics.ConfidenceScore.Observe(resp.Confidence)
	}

	s.logger.Info("turn resolved",
		zap.String("session_id", session.ID),
		zap.Bool("new_session", isNew),
		zap.String("response_type", string(resp.ResponseType)),
		zap.Float64("confidence", resp.Confidence),
		zap.Bool("needs_escalation", resp.NeedsEscalation),
	)
	return resp, nil
}

func (s *ChatService) loadSession(ctx context.Context, req *domain.ChatRequest) (*domain.Session, bool, error) {
	if req.SessionID != "" {
		session, err := s.sessionRepo.Get(ctx, req.SessionID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load session: %w", err)
		}
		if session != nil {
			return session, false, nil
		}
		s.logger.Debug("unknown session, starting a new one", zap.String("session_id", req.SessionID))
	}
	return &domain.Session{UserIP: req.UserIP, UserAgent: req.UserAgent}, true, nil
}

func (s *ChatService) resolve(ctx context.Context, session *domain.Session, isNew bool, message string, history []engine.Message) (*resolution, error) {
	if !isNew {
		choice, err := clarify.Resolve(ctx, s.clarify, session.ID, message)
		if err != nil {
			s.logger.Warn("failed to read clarification", zap.String("session_id", session.ID), zap.Error(err))
		}
		if choice != nil {
			return s.answerTopic(ctx, choice, history)
		}
	}

	passages, err := s.answerer.Search(ctx, message, "")
	if err != nil {
		return nil, err
	}

	if c := engine.Classify(message, passages); !c.Complete {
		return &resolution{
			resp: &domain.ChatResponse{
				Answer:          c.Message,
				ResponseType:    domain.ResponseTypeClarification,
				SourceArticles:  []string{},
				YouTubeLinks:    []string{},
				SuggestedTopics: c.Topics,
			},
			pending: &clarify.Pending{OriginalQuery: message, Topics: c.Topics},
		}, nil
	}

	return s.answer(ctx, message, passages, history)
}

// answerTopic answers the original query restricted to the chosen article
func (s *ChatService) answerTopic(ctx context.Context, choice *clarify.Choice, history []engine.Message) (*resolution, error) {
	question := strings.TrimSpace(choice.Pending.OriginalQuery + " " + choice.Topic.Title)

	passages, err := s.answerer.Search(ctx, question, choice.Topic.ArticleID)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		if passages, err = s.answerer.Search(ctx, question, ""); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("answering chosen topic",
		zap.Int("index", choice.Index),
		zap.String("article_id", choice.Topic.ArticleID))
	return s.answer(ctx, question, passages, history)
}

func (s *ChatService) answer(ctx context.Context, question string, passages []engine.Passage, history []engine.Message) (*resolution, error) {
	ans, err := s.answerer.Answer(ctx, question, passages, history)
	if err != nil {
		return nil, err
	}
	return &resolution{resp: &domain.ChatResponse{
		Answer:          ans.Text,
		Confidence:      ans.Confidence,
		NeedsEscalation: ans.NeedsEscalation,
		SourceArticles:  ans.SourceArticles,
		YouTubeLinks:    ans.YouTubeLinks,
		ResponseType:    domain.ResponseTypeAnswer,
	}}, nil
}

// Transcript returns the canonical turns of a session, operator replies included
func (s *ChatService) Transcript(ctx context.Context, sessionID string) (*domain.TranscriptResponse, error) {
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}

	turns, err := s.sessionRepo.Turns(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []*domain.Turn{}
	}
	return &domain.TranscriptResponse{SessionID: sessionID, Messages: turns}, nil
}
