package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"docent-tagalong/internal/core/cache"
	"docent-tagalong/internal/domain"
)

// ResetTokenStore 密码重置令牌，一次性使用
type ResetTokenStore struct {
	c *cache.Cache
}

func NewResetTokenStore(c *cache.Cache) *ResetTokenStore { return &ResetTokenStore{c: c} }

func resetKey(token string) string { return "pwreset:" + token }

func resetUserKey(userID int64) string { return "pwreset:user:" + strconv.FormatInt(userID, 10) }

// Save 写入新令牌，并作废该用户之前签发的令牌
func (s *ResetTokenStore) Save(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	userKey := s.c.Key(resetUserKey(userID))
	prev, err := s.c.RDB.Get(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("repo.ResetToken.Save: %w", err)
	}
	_, err = s.c.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != "" {
			p.Del(ctx, s.c.Key(resetKey(prev)))
		}
		p.Set(ctx, s.c.Key(resetKey(token)), userID, ttl)
		p.Set(ctx, userKey, token, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("repo.ResetToken.Save: %w", err)
	}
	return nil
}

// Consume 取出并删除令牌；不存在或已过期返回 ErrInvalidToken
func (s *ResetTokenStore) Consume(ctx context.Context, token string) (int64, error) {
	v, err := s.c.RDB.GetDel(ctx, s.c.Key(resetKey(token))).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("repo.ResetToken.Consume: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidToken
	}
	return id, nil
}
