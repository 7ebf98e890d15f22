package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/domain"
	"github.com/liliang-cn/helpdesk/internal/metrics"
	"github.com/liliang-cn/helpdesk/internal/repository"
)

const feedbackWriteTimeout = 5 * time.Second

// FeedbackService records ratings best-effort: at most once, never blocking
// the caller, and silently dropping what cannot be stored
type FeedbackService struct {
	feedbackRepo *repository.FeedbackRepository
	queue        chan *domain.Feedback
	logger       *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewFeedbackService creates the service and starts its writer
func NewFeedbackService(feedbackRepo *repository.FeedbackRepository, queueSize int, logger *zap.Logger) *FeedbackService {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FeedbackService{
		feedbackRepo: feedbackRepo,
		queue:        make(chan *domain.Feedback, queueSize),
		logger:       logger,
		done:         make(chan struct{}),
	}
	go s.run()
	return s
}

// Submit enqueues a rating and reports whether it was accepted. It never blocks.
func (s *FeedbackService) Submit(req *domain.FeedbackRequest) bool {
	fb := &domain.Feedback{
		SessionID:    req.SessionID,
		MessageIndex: req.MessageIndex,
		Rating:       req.Rating,
		Comment:      req.Comment,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		metrics.FeedbackTotal.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case s.queue <- fb:
		metrics.FeedbackTotal.WithLabelValues("accepted").Inc()
		return true
	default:
		metrics.FeedbackTotal.WithLabelValues("dropped").Inc()
		s.logger.Debug("feedback queue full, dropping", zap.String("session_id", fb.SessionID))
		return false
	}
}

// Close stops accepting feedback and waits for queued ratings to be written
func (s *FeedbackService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *FeedbackService) run() {
	defer close(s.done)
	for fb := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), feedbackWriteTimeout)
		if err := s.feedbackRepo.Upsert(ctx, fb); err != nil {
			metrics.FeedbackTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("failed to store feedback",
				zap.String("session_id", fb.SessionID),
				zap.Int("message_index", fb.MessageIndex),
				zap.Error(err))
		}
		cancel()
	}
}
