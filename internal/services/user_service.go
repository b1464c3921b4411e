package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/campuslink/internal/models"
	apperrors "github.com/charlesng35/campuslink/pkg/errors"
)

// UserDTO is the public view of a user.
type UserDTO struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"display_name"`
	Role             string     `json:"role"`
	RequiresApproval bool       `json:"requires_approval"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

// UserService reads identity records needed by login and fan-out.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Get loads a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*UserDTO, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.ErrNotFound
	}

	var user models.User
	err := s.db.WithContext(ensureContext(ctx)).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	dto := mapUser(user)
	return &dto, nil
}

// ActiveIDs returns the IDs of active users holding any of the roles. No roles means every active user.
func (s *UserService) ActiveIDs(ctx context.Context, roles []string) ([]string, error) {
	query := s.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("is_active = ?", true)

	if normalised := normaliseRoles(roles); len(normalised) > 0 {
		query = query.Where("LOWER(role) IN ?", normalised)
	}

	var ids []string
	if err := query.Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("user service: list active users: %w", err)
	}
	return ids, nil
}

// RecordLogin stamps the last admitted session of a user.
func (s *UserService) RecordLogin(ctx context.Context, userID, ipAddress string, at time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperrors.ErrNotFound
	}

	result := s.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_login_at": at.UTC(),
			"last_login_ip": strings.TrimSpace(ipAddress),
		})
	if result.Error != nil {
		return fmt.Errorf("user service: record login: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func normaliseRoles(roles []string) []string {
	out := normaliseIDs(roles)
	for i, role := range out {
		out[i] = strings.ToLower(role)
	}
	return normaliseIDs(out)
}

func mapUser(user models.User) UserDTO {
	return UserDTO{
		ID:               user.ID,
		Username:         user.Username,
		Email:            user.Email,
		DisplayName:      user.Name(),
		Role:             user.Role,
		RequiresApproval: user.RequiresApproval,
		LastLoginAt:      user.LastLoginAt,
	}
}
