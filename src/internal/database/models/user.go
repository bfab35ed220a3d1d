package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the authorization role of a user
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a registry account
type User struct {
	ID               uuid.UUID  `gorm:"type:char(36);primary_key" json:"id"`
	Username         string     `gorm:"uniqueIndex;size:39;not null" json:"username"`
	Email            string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash     string     `gorm:"size:255;not null" json:"-"`
	FirstName        string     `gorm:"size:100" json:"first_name"`
	LastName         string     `gorm:"size:100" json:"last_name"`
	Phone            string     `gorm:"size:40" json:"phone"`
	Address          string     `gorm:"size:500" json:"address"`
	Role             Role       `gorm:"size:20;not null;default:'user'" json:"role"`
	WalletAddress    string     `gorm:"uniqueIndex;size:42;not null" json:"wallet_address"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	TwoFactorEnabled bool       `gorm:"default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string     `gorm:"size:64" json:"-"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// Computed fields (not stored in DB)
	LandCount int64 `gorm:"-" json:"land_count"`

	// Relations
	Sessions []Session `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// FullName joins first and last name, falling back to the username
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

// Session binds an issued token to a user; a token is honoured only
// while its session row exists
type Session struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key"`
	UserID    uuid.UUID `gorm:"type:char(36);index;not null"`
	TokenID   string    `gorm:"uniqueIndex;size:64;not null"`
	IPAddress string    `gorm:"size:45"`
	UserAgent string    `gorm:"size:500"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

// BeforeCreate hooks for UUID generation
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
