package repo

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"docent-tagalong/internal/domain"
)

// MemUserRepo 进程内用户仓储，db.driver=memory 时使用
type MemUserRepo struct {
	mu      sync.RWMutex
	nextID  int64
	users   map[int64]domain.User
	byEmail map[string]int64
	now     func() time.Time
}

func NewMemUserRepo() *MemUserRepo {
	return &MemUserRepo{
		users:   make(map[int64]domain.User),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

var _ domain.UserRepository = (*MemUserRepo)(nil)

func cloneUser(u domain.User) domain.User {
	if u.Phone != nil {
		p := *u.Phone
		u.Phone = &p
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		u.LockedUntil = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	return u
}

func (r *MemUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := domain.NormalizeEmail(u.Email)
	if _, ok := r.byEmail[email]; ok {
		return fmt.Errorf("%w: %s", domain.ErrEmailTaken, email)
	}
	now := r.now()
	r.nextID++
	u.ID = r.nextID
	u.Email = email
	u.CreatedAt, u.UpdatedAt = now, now
	r.users[u.ID] = cloneUser(*u)
	r.byEmail[email] = u.ID
	return nil
}

func (r *MemUserRepo) GetUser(_ context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	out := cloneUser(u)
	return &out, nil
}

func (r *MemUserRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	out := cloneUser(r.users[id])
	return &out, nil
}

func (r *MemUserRepo) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[u.ID]
	if !ok {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, u.ID)
	}
	email := domain.NormalizeEmail(u.Email)
	if owner, taken := r.byEmail[email]; taken && owner != u.ID {
		return fmt.Errorf("%w: %s", domain.ErrEmailTaken, email)
	}
	delete(r.byEmail, cur.Email)
	u.Email = email
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = r.now()
	r.users[u.ID] = cloneUser(*u)
	r.byEmail[email] = u.ID
	return nil
}

func (r *MemUserRepo) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, nil
	}
	delete(r.byEmail, u.Email)
	delete(r.users, id)
	return true, nil
}

func (r *MemUserRepo) List(_ context.Context, offset, limit int) ([]domain.User, int64, error) {
	r.mu.RLock()
	all := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, cloneUser(u))
	}
	r.mu.RUnlock()
	// 与 gorm 实现一致：created_at desc, id desc
	slices.SortFunc(all, func(a, b domain.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	total := int64(len(all))
	if offset >= len(all) {
		return []domain.User{}, total, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *MemUserRepo) IncrementFailedLogins(_ context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	u.FailedLoginAttempts++
	r.users[id] = u
	return u.FailedLoginAttempts, nil
}

func (r *MemUserRepo) LockUntil(_ context.Context, id int64, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	u.LockedUntil = &until
	r.users[id] = u
	return nil
}

func (r *MemUserRepo) RecordLogin(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &at
	r.users[id] = u
	return nil
}
