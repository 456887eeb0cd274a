package user

import (
	"time"

	"docent-tagalong/internal/domain"
)

type UserModel struct {
	ID                  int64   `gorm:"primaryKey;autoIncrement"`
	Email               string  `gorm:"uniqueIndex;size:191;not null"`
	FirstName           string  `gorm:"size:64;not null"`
	LastName            string  `gorm:"size:64;not null"`
	Phone               *string `gorm:"size:32"`
	Role                string  `gorm:"size:16;not null;default:new_docent"`
	PasswordHash        string  `gorm:"size:100;not null"`
	FailedLoginAttempts int     `gorm:"not null;default:0"`
	LockedUntil         *time.Time
	LastLogin           *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }

func (m UserModel) ToDomain() domain.User {
	return domain.User{
		ID:                  m.ID,
		Email:               m.Email,
		FirstName:           m.FirstName,
		LastName:            m.LastName,
		Phone:               m.Phone,
		Role:                domain.Role(m.Role),
		PasswordHash:        m.PasswordHash,
		FailedLoginAttempts: m.FailedLoginAttempts,
		LockedUntil:         m.LockedUntil,
		LastLogin:           m.LastLogin,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// FromDomain 邮箱统一存小写，保证唯一索引大小写不敏感
func FromDomain(u domain.User) UserModel {
	return UserModel{
		ID:                  u.ID,
		Email:               domain.NormalizeEmail(u.Email),
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Phone:               u.Phone,
		Role:                string(u.Role),
		PasswordHash:        u.PasswordHash,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedUntil:         u.LockedUntil,
		LastLogin:           u.LastLogin,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}
