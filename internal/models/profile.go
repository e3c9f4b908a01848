package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the single role a profile holds for its whole life.
type Role string

const (
	RoleStudent     Role = "student"
	RoleAdmin       Role = "admin"
	RoleMaintenance Role = "maintenance"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleMaintenance:
		return true
	}
	return false
}

// Profile is the durable identity record of an authenticated user.
// Authorization always reads Role from here, never from the caller.
type Profile struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"index" json:"email"`
	Role         Role      `gorm:"type:text;not null;index" json:"role"`
	Phone        *string   `json:"phone,omitempty"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate generates the profile id when the caller did not supply one.
func (p *Profile) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}
