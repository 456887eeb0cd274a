package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/feature/user"
)

type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	m := user.FromDomain(*u)
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isDupKey(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("repo.User.Create: %w", err)
	}
	*u = m.ToDomain()
	return nil
}

func (r *UserRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var m user.UserModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo.User.GetUser: %w", err)
	}
	u := m.ToDomain()
	return &u, nil
}

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var m user.UserModel
	err := r.db.WithContext(ctx).First(&m, "email = ?", domain.NormalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo.User.GetUserByEmail: %w", err)
	}
	u := m.ToDomain()
	return &u, nil
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	var ms []user.UserModel
	tx := r.db.WithContext(ctx).Model(&user.UserModel{})
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("repo.User.List: %w", err)
	}
	if err := tx.Offset(offset).Limit(limit).Order("created_at desc, id desc").Find(&ms).Error; err != nil {
		return nil, 0, fmt.Errorf("repo.User.List: %w", err)
	}
	out := make([]domain.User, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ToDomain())
	}
	return out, total, nil
}

func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	m := user.FromDomain(*u)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur user.UserModel
		if err := tx.Select("id").First(&cur, "id = ?", u.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("repo.User.Update: %w", err)
		}
		err := tx.Model(&user.UserModel{ID: u.ID}).Updates(map[string]any{
			"email":                 m.Email,
			"first_name":            m.FirstName,
			"last_name":             m.LastName,
			"phone":                 m.Phone,
			"role":                  m.Role,
			"password_hash":         m.PasswordHash,
			"failed_login_attempts": m.FailedLoginAttempts,
			"locked_until":          m.LockedUntil,
		}).Error
		if err != nil {
			if isDupKey(err) {
				return domain.ErrEmailTaken
			}
			return fmt.Errorf("repo.User.Update: %w", err)
		}
		return nil
	})
}

func (r *UserRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&user.UserModel{})
	if res.Error != nil {
		return false, fmt.Errorf("repo.User.Delete: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *UserRepo) IncrementFailedLogins(ctx context.Context, id int64) (int, error) {
	var attempts []int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&user.UserModel{}).Where("id = ?", id).
			UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + 1"))
		if res.Error != nil {
			return res.Error
		}
		return tx.Model(&user.UserModel{}).Where("id = ?", id).
			Pluck("failed_login_attempts", &attempts).Error
	})
	if err != nil {
		return 0, fmt.Errorf("repo.User.IncrementFailedLogins: %w", err)
	}
	if len(attempts) == 0 {
		return 0, nil
	}
	return attempts[0], nil
}

func (r *UserRepo) LockUntil(ctx context.Context, id int64, until time.Time) error {
	err := r.db.WithContext(ctx).Model(&user.UserModel{}).Where("id = ?", id).
		UpdateColumn("locked_until", until).Error
	if err != nil {
		return fmt.Errorf("repo.User.LockUntil: %w", err)
	}
	return nil
}

func (r *UserRepo) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&user.UserModel{}).Where("id = ?", id).
		UpdateColumns(map[string]any{
			"failed_login_attempts": 0,
			"locked_until":          nil,
			"last_login":            at,
		}).Error
	if err != nil {
		return fmt.Errorf("repo.User.RecordLogin: %w", err)
	}
	return nil
}
