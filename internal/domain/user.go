package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleNewDocent      Role = "new_docent"
	RoleSeasonedDocent Role = "seasoned_docent"
	RoleCoordinator    Role = "coordinator"
)

var Roles = []Role{RoleNewDocent, RoleSeasonedDocent, RoleCoordinator}

func (r Role) Valid() bool {
	switch r {
	case RoleNewDocent, RoleSeasonedDocent, RoleCoordinator:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}

type User struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Phone               *string    `json:"phone,omitempty"`
	Role                Role       `json:"role"`
	PasswordHash        string     `json:"-"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (u User) FullName() string { return strings.TrimSpace(u.FirstName + " " + u.LastName) }

func (u User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// NormalizeEmail 邮箱按小写比较
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// UserDirectory 是核心只读依赖：查不到时返回 (nil, nil)
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// UserRepository 是账号管理用的完整仓储
type UserRepository interface {
	UserDirectory
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, offset, limit int) ([]User, int64, error)

	IncrementFailedLogins(ctx context.Context, id int64) (int, error)
	LockUntil(ctx context.Context, id int64, until time.Time) error
	RecordLogin(ctx context.Context, id int64, at time.Time) error
}
