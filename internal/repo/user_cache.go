package repo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"docent-tagalong/internal/core/cache"
	"docent-tagalong/internal/domain"
)

// cachedUser 只缓存对外可见字段；密码与锁定状态永远走库
type cachedUser struct {
	ID        int64       `json:"id"`
	Email     string      `json:"email"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Phone     *string     `json:"phone,omitempty"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func toCached(u *domain.User) *cachedUser {
	if u == nil {
		return nil
	}
	return &cachedUser{
		ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName,
		Phone: u.Phone, Role: u.Role, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

func (c cachedUser) toDomain() *domain.User {
	return &domain.User{
		ID: c.ID, Email: c.Email, FirstName: c.FirstName, LastName: c.LastName,
		Phone: c.Phone, Role: c.Role, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

// CachedUserDirectory 只读目录：GetUser 走 redis，GetUserByEmail 直接查库。
// 缓存条目不含密码与锁定状态，账号写操作必须用底层仓储并调用 Forget。
type CachedUserDirectory struct {
	next domain.UserDirectory
	c    *cache.Cache
	ttl  time.Duration
	// resettle 之后再删一次，覆盖写之前已开始的回源把旧值写回缓存
	resettle time.Duration
}

const defaultResettle = 500 * time.Millisecond

func NewCachedUserDirectory(next domain.UserDirectory, c *cache.Cache, ttl time.Duration) *CachedUserDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedUserDirectory{next: next, c: c, ttl: ttl, resettle: defaultResettle}
}

// WithResettle 调整二次删除的延迟，需大于一次回源的耗时；<=0 关闭
func (d *CachedUserDirectory) WithResettle(delay time.Duration) *CachedUserDirectory {
	d.resettle = delay
	return d
}

var _ domain.UserDirectory = (*CachedUserDirectory)(nil)

func userKey(id int64) string { return "user:" + strconv.FormatInt(id, 10) }

func (d *CachedUserDirectory) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	cu, err := cache.GetOrLoadJSON(d.c, ctx, userKey(id), d.ttl, func(ctx context.Context) (*cachedUser, error) {
		u, err := d.next.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		return toCached(u), nil
	})
	if err != nil {
		return nil, fmt.Errorf("repo.CachedUser.GetUser: %w", err)
	}
	if cu == nil {
		return nil, nil
	}
	return cu.toDomain(), nil
}

func (d *CachedUserDirectory) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return d.next.GetUserByEmail(ctx, email)
}

// Forget 写库之后调用：立即删一次，resettle 后再删一次
func (d *CachedUserDirectory) Forget(ctx context.Context, id int64) error {
	key := userKey(id)
	if err := d.c.Invalidate(ctx, key); err != nil {
		return err
	}
	if d.resettle > 0 {
		time.AfterFunc(d.resettle, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = d.c.Invalidate(ctx, key)
		})
	}
	return nil
}
