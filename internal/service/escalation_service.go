package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/domain"
	"github.com/liliang-cn/helpdesk/internal/events"
	"github.com/liliang-cn/helpdesk/internal/metrics"
	"github.com/liliang-cn/helpdesk/internal/notify"
	"github.com/liliang-cn/helpdesk/internal/repository"
)

const (
	notifyTimeout = 10 * time.Second

	defaultListLimit = 50
	maxListLimit     = 200

	maxReasonLength  = 1000
	maxContactLength = 200

	// OperatorReplyPrefix marks operator replies in the end-user transcript
	OperatorReplyPrefix = "[Оператор ТП] "
)

// EscalationService manages escalation tickets
type EscalationService struct {
	escalationRepo *repository.EscalationRepository
	notifier       notify.Notifier
	events         events.Publisher
	logger         *zap.Logger

	// background notifications
	wg sync.WaitGroup
}

// NewEscalationService creates a new escalation service
func NewEscalationService(
	escalationRepo *repository.EscalationRepository,
	notifier notify.Notifier,
	publisher events.Publisher,
	logger *zap.Logger,
) *EscalationService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		escalationRepo: escalationRepo,
		notifier:       notifier,
		events:         publisher,
		logger:         logger,
	}
}

// Create opens a pending ticket for a session. Calling it twice creates two tickets.
func (s *EscalationService) Create(ctx context.Context, req *domain.CreateEscalationRequest) (*domain.CreateEscalationResponse, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(req.Reason) > maxReasonLength || utf8.RuneCountInString(req.ContactInfo) > maxContactLength {
		return nil, fmt.Errorf("%w: reason or contact info too long", domain.ErrInvalidRequest)
	}

	esc := &domain.Escalation{
		SessionID:   req.SessionID,
		Reason:      strings.TrimSpace(req.Reason),
		ContactInfo: strings.TrimSpace(req.ContactInfo),
	}
	position, err := s.escalationRepo.Create(ctx, esc)
	if err != nil {
		return nil, err
	}

	metrics.EscalationsCreated.Inc()
	s.publish(domain.TicketEventCreated, esc)
	s.logger.Info("escalation created",
		zap.String("escalation_id", esc.ID),
		zap.String("session_id", esc.SessionID),
		zap.Int("position", position))

	s.background(func(ctx context.Context) {
		messageID, err := s.notifier.TicketCreated(ctx, esc)
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("failed to notify operators", zap.String("escalation_id", esc.ID), zap.Error(err))
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		if messageID == "" {
			return
		}
		if err := s.escalationRepo.SetTelegramMessageID(ctx, esc.ID, messageID); err != nil {
			s.logger.Warn("failed to store notification id", zap.String("escalation_id", esc.ID), zap.Error(err))
		}
	})

	return &domain.CreateEscalationResponse{
		EscalationID:    esc.ID,
		Status:          esc.Status,
		Message:         fmt.Sprintf("Запрос передан оператору. Вы %d-й в очереди.", position),
		PositionInQueue: position,
	}, nil
}

// Status returns the end-user view of a ticket
func (s *EscalationService) Status(ctx context.Context, id string) (*domain.EscalationStatusResponse, error) {
	esc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.EscalationStatusResponse{
		EscalationID: esc.ID,
		Status:       esc.Status,
		UpdatedAt:    esc.UpdatedAt,
	}, nil
}

// Get returns a ticket with its chat history
func (s *EscalationService) Get(ctx context.Context, id string) (*domain.Escalation, error) {
	esc, err := s.escalationRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if esc == nil {
		return nil, domain.ErrNotFound
	}
	return esc, nil
}

// List returns tickets newest first together with the total matching the
// filter and the number of pending tickets overall
func (s *EscalationService) List(ctx context.Context, filter domain.EscalationFilter) (*domain.EscalationListResponse, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	escalations, total, pending, err := s.escalationRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if escalations == nil {
		escalations = []*domain.Escalation{}
	}
	return &domain.EscalationListResponse{
		Escalations:  escalations,
		Total:        total,
		PendingCount: pending,
	}, nil
}

// Reply records an operator answer on an open ticket. A closing reply
// resolves the ticket; replies to resolved or closed tickets are rejected.
func (s *EscalationService) Reply(ctx context.Context, operator *domain.Principal, req *domain.OperatorReplyRequest) (*domain.OperatorReplyResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" || utf8.RuneCountInString(message) > domain.MaxMessageLength {
		return nil, fmt.Errorf("%w: message must be 1..%d characters", domain.ErrInvalidRequest, domain.MaxMessageLength)
	}

	esc, err := s.escalationRepo.Reply(ctx, repository.ReplyParams{
		EscalationID:      req.EscalationID,
		OperatorID:        operator.Username,
		Message:           message,
		TranscriptContent: OperatorReplyPrefix + message,
		CloseTicket:       req.CloseTicket,
	})
	if err != nil {
		return nil, err
	}

	metrics.TicketTransitions.WithLabelValues("reply", string(esc.Status)).Inc()
	s.publish(domain.TicketEventReplied, esc)
	s.logger.Info("operator replied",
		zap.String("escalation_id", esc.ID),
		zap.String("operator", operator.Username),
		zap.String("status", string(esc.Status)))

	name := operator.DisplayName
	if name == "" {
		name = operator.Username
	}
	s.background(func(ctx context.Context) {
		if err := s.notifier.OperatorReplied(ctx, esc, name, message); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("failed to notify reply", zap.String("escalation_id", esc.ID), zap.Error(err))
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	})

	return &domain.OperatorReplyResponse{Status: "ok", NewStatus: esc.Status}, nil
}

// SetStatus applies an explicit status change such as deferring a ticket
// back to pending or closing a resolved one
func (s *EscalationService) SetStatus(ctx context.Context, operator *domain.Principal, id, status string) (*domain.Escalation, error) {
	to, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	esc, err := s.escalationRepo.SetStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}

	metrics.TicketTransitions.WithLabelValues("status", string(to)).Inc()
	s.publish(domain.TicketEventStatus, esc)
	s.logger.Info("ticket status changed",
		zap.String("escalation_id", id),
		zap.String("operator", operator.Username),
		zap.String("status", string(to)))
	return esc, nil
}

// Wait blocks until background notifications finish
func (s *EscalationService) Wait() {
	s.wg.Wait()
}

func (s *EscalationService) publish(kind string, esc *domain.Escalation) {
	s.events.Publish(&domain.TicketEvent{
		Kind:         kind,
		EscalationID: esc.ID,
		SessionID:    esc.SessionID,
		Status:       esc.Status,
		UpdatedAt:    esc.UpdatedAt,
	})
}

// background runs fn detached from the request with its own timeout
func (s *EscalationService) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}
