package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/domain"
	"github.com/liliang-cn/helpdesk/internal/engine"
)

// HealthService reports operational status
type HealthService struct {
	answerer *engine.Answerer
	version  string
	logger   *zap.Logger
}

// NewHealthService creates a new health service
func NewHealthService(answerer *engine.Answerer, version string, logger *zap.Logger) *HealthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthService{answerer: answerer, version: version, logger: logger}
}

// Check reports knowledge base readiness. The service itself is "ok" whenever
// it can answer; an unreachable knowledge base only clears the ready flag.
func (s *HealthService) Check(ctx context.Context) *domain.HealthResponse {
	resp := &domain.HealthResponse{Status: "ok", Version: s.version}
	if s.answerer == nil {
		resp.Status = "degraded"
		return resp
	}

	stats, err := s.answerer.Stats(ctx)
	if err != nil {
		s.logger.Warn("knowledge base stats unavailable", zap.Error(err))
		return resp
	}

	resp.TotalArticles = stats.TotalArticles
	resp.TotalChunks = stats.TotalChunks
	resp.KnowledgeBaseReady = stats.TotalArticles > 0
	return resp
}
