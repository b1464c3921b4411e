package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/campuslink/internal/admission"
	"github.com/charlesng35/campuslink/internal/auth"
	"github.com/charlesng35/campuslink/internal/auth/providers"
	"github.com/charlesng35/campuslink/internal/models"
	apperrors "github.com/charlesng35/campuslink/pkg/errors"
	"github.com/charlesng35/campuslink/pkg/logger"
	"github.com/charlesng35/campuslink/pkg/metrics"
)

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, input providers.AuthenticateInput) (*models.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

// AdmissionStarter parks a prepared token until an operator decides.
type AdmissionStarter interface {
	Begin(candidate admission.Candidate, token string) admission.Ticket
}

// LoginInput carries the credentials of one login attempt.
type LoginInput struct {
	Identifier string
	Password   string
	IPAddress  string
}

// LoginResult is either an issued token or a ticket to wait on. The two shapes are told apart
// by ApprovalRequired; a gated result never carries the token.
type LoginResult struct {
	ApprovalRequired bool      `json:"approval_required"`
	Token            string    `json:"token,omitempty"`
	User             *UserDTO  `json:"user,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// AuthService runs the login flow, including the live-approval gate.
type AuthService struct {
	authenticator Authenticator
	jwt           *auth.JWTService
	policy        admission.Policy
	admissions    AdmissionStarter
	users         *UserService
	now           func() time.Time
	log           *zap.Logger
}

// NewAuthService wires the login flow.
func NewAuthService(authenticator Authenticator, jwt *auth.JWTService, users *UserService, policy admission.Policy, admissions AdmissionStarter) (*AuthService, error) {
	if authenticator == nil {
		return nil, errors.New("auth service: authenticator is required")
	}
	if jwt == nil {
		return nil, errors.New("auth service: jwt service is required")
	}
	if users == nil {
		return nil, errors.New("auth service: user service is required")
	}
	if policy.Enabled && admissions == nil {
		return nil, errors.New("auth service: admission coordinator is required when approval is enabled")
	}
	return &AuthService{
		authenticator: authenticator,
		jwt:           jwt,
		policy:        policy,
		admissions:    admissions,
		users:         users,
		now:           func() time.Time { return time.Now().UTC() },
		log:           logger.WithModule("auth"),
	}, nil
}

// Policy returns the gating policy in force.
func (s *AuthService) Policy() admission.Policy { return s.policy }

// Login verifies credentials and issues a token. When the policy gates the user the token is
// prepared first and parked behind an admission request; only the request id is returned.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	user, err := s.authenticator.Authenticate(ctx, providers.AuthenticateInput{
		Identifier: input.Identifier,
		Password:   input.Password,
		IPAddress:  input.IPAddress,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, translateAuthError(err)
	}

	token, err := s.jwt.GenerateAccessToken(auth.AccessTokenInput{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("auth service: issue token: %w", err)
	}

	if s.policy.RequiresApproval(*user) {
		ticket := s.admissions.Begin(admission.Candidate{
			UserID:      user.ID,
			Username:    user.Username,
			DisplayName: user.Name(),
			Role:        user.Role,
			IPAddress:   strings.TrimSpace(input.IPAddress),
		}, token)
		metrics.AuthAttempts.WithLabelValues("pending_approval").Inc()
		return &LoginResult{
			ApprovalRequired: true,
			RequestID:        ticket.RequestID,
			ExpiresAt:        ticket.ExpiresAt,
		}, nil
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.log.Info("login succeeded", zap.String("user_id", user.ID), zap.String("role", user.Role))

	now := s.now()
	if err := s.users.RecordLogin(ctx, user.ID, input.IPAddress, now); err != nil {
		s.log.Warn("failed to record login", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
		user.LastLoginIP = strings.TrimSpace(input.IPAddress)
	}

	dto := mapUser(*user)
	return &LoginResult{
		Token:     token,
		User:      &dto,
		ExpiresAt: s.now().Add(s.jwt.TTL()),
	}, nil
}

// RecordApproval stamps the last login of a gated user once their approval reached them.
func (s *AuthService) RecordApproval(candidate admission.Candidate) {
	if err := s.users.RecordLogin(context.Background(), candidate.UserID, candidate.IPAddress, s.now()); err != nil {
		s.log.Warn("failed to record approved login", zap.String("user_id", candidate.UserID), zap.Error(err))
	}
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*UserDTO, error) {
	return s.users.Get(ctx, userID)
}

// ChangePassword rotates the caller's password.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperrors.NewBadRequest("new password is required")
	}
	if err := s.authenticator.ChangePassword(ensureContext(ctx), userID, currentPassword, newPassword); err != nil {
		return translateAuthError(err)
	}
	return nil
}

func translateAuthError(err error) error {
	switch {
	case errors.Is(err, providers.ErrInvalidCredentials):
		return apperrors.ErrInvalidCredentials
	case errors.Is(err, providers.ErrAccountLocked):
		return apperrors.ErrAccountLocked
	case errors.Is(err, providers.ErrAccountDisabled):
		return apperrors.ErrAccountDisabled
	default:
		return fmt.Errorf("auth service: %w", err)
	}
}
