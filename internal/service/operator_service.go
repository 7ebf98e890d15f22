package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/auth"
	"github.com/liliang-cn/helpdesk/internal/domain"
	"github.com/liliang-cn/helpdesk/internal/repository"
)

const minPasswordLength = 8

// OperatorService handles operator accounts and authentication
type OperatorService struct {
	operatorRepo *repository.OperatorRepository
	tokens       *auth.JWTManager
	logger       *zap.Logger

	// compared against when the username is unknown so both paths cost a bcrypt check
	dummyHash string
}

// NewOperatorService creates a new operator service
func NewOperatorService(operatorRepo *repository.OperatorRepository, tokens *auth.JWTManager, logger *zap.Logger) *OperatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	dummy, _ := auth.HashPassword("helpdesk-dummy-password")
	return &OperatorService{
		operatorRepo: operatorRepo,
		tokens:       tokens,
		logger:       logger,
		dummyHash:    dummy,
	}
}

// Login exchanges credentials for a bearer token. Every failure is reported
// as ErrUnauthorized without saying which part was wrong.
func (s *OperatorService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	op, err := s.operatorRepo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, err
	}

	if op == nil {
		auth.CheckPassword(s.dummyHash, req.Password)
		s.logger.Info("operator login failed", zap.String("username", req.Username))
		return nil, domain.ErrUnauthorized
	}
	if !auth.CheckPassword(op.PasswordHash, req.Password) || !op.Active {
		s.logger.Info("operator login failed", zap.String("username", req.Username))
		return nil, domain.ErrUnauthorized
	}

	token, err := s.tokens.Issue(domain.Principal{Username: op.Username, DisplayName: op.DisplayName})
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Info("operator logged in", zap.String("username", op.Username))
	return &domain.LoginResponse{Token: token, Username: op.Username}, nil
}

// Authenticate resolves a bearer token to the operator it was issued for
func (s *OperatorService) Authenticate(token string) (*domain.Principal, error) {
	p, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return p, nil
}

// AddOperator creates an operator account
func (s *OperatorService) AddOperator(ctx context.Context, username, password, displayName string) (*domain.Operator, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrInvalidRequest)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidRequest, minPasswordLength)
	}

	existing, err := s.operatorRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: operator %q already exists", domain.ErrInvalidRequest, username)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = username
	}

	op := &domain.Operator{Username: username, PasswordHash: hash, DisplayName: displayName}
	if err := s.operatorRepo.Create(ctx, op); err != nil {
		return nil, err
	}

	s.logger.Info("operator created", zap.String("username", username))
	return op, nil
}

// Bootstrap creates the configured operator when no operator exists yet.
// It reports whether an account was created.
func (s *OperatorService) Bootstrap(ctx context.Context, username, password, displayName string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	count, err := s.operatorRepo.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	if _, err := s.AddOperator(ctx, username, password, displayName); err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			return false, fmt.Errorf("bootstrap operator: %w", err)
		}
		return false, err
	}
	return true, nil
}
