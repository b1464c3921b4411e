package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/campuslink/internal/models"
	"github.com/charlesng35/campuslink/pkg/crypto"
)

// SeedOptions describes the optional bootstrap operator account.
type SeedOptions struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.RateCounter{},
	)
}

// SeedData creates the bootstrap administrator when a password is configured and no
// account with that username exists yet. Existing accounts are never modified.
func SeedData(db *gorm.DB, opts SeedOptions) error {
	password := opts.AdminPassword
	if password == "" {
		return nil
	}

	username := strings.TrimSpace(opts.AdminUsername)
	if username == "" {
		username = "admin"
	}
	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	if email == "" {
		email = username + "@localhost"
	}

	var existing models.User
	err := db.Where("LOWER(username) = LOWER(?)", username).Take(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup bootstrap admin: %w", err)
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap admin password: %w", err)
	}

	admin := models.User{
		Username:    username,
		Email:       email,
		Password:    hashed,
		DisplayName: "Administrator",
		Role:        models.RoleAdmin,
		IsActive:    true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	return nil
}
