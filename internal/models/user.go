package models

import (
	"strings"
	"time"
)

// Roles understood by the admission policy. Additional roles are free-form strings.
const (
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User is the minimal identity record needed to authenticate and gate logins.
type User struct {
	BaseModel

	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	Password    string `gorm:"not null" json:"-"`
	DisplayName string `json:"display_name"`
	Role        string `gorm:"type:varchar(32);not null;default:'student';index" json:"role"`

	IsActive         bool `gorm:"default:true" json:"is_active"`
	RequiresApproval bool `gorm:"default:false" json:"requires_approval"`

	FailedAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`
}

// HasRole reports whether the user's role matches any of the supplied roles, ignoring case.
func (u User) HasRole(roles ...string) bool {
	current := strings.TrimSpace(u.Role)
	for _, role := range roles {
		if strings.EqualFold(current, strings.TrimSpace(role)) {
			return true
		}
	}
	return false
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	return u.Username
}
