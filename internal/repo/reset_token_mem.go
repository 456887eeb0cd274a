package repo

import (
	"context"
	"sync"
	"time"

	"docent-tagalong/internal/domain"
)

type resetEntry struct {
	userID  int64
	expires time.Time
}

// MemResetTokenStore 未配置 redis 时使用
type MemResetTokenStore struct {
	mu     sync.Mutex
	tokens map[string]resetEntry
	now    func() time.Time
}

func NewMemResetTokenStore() *MemResetTokenStore {
	return &MemResetTokenStore{tokens: make(map[string]resetEntry), now: time.Now}
}

func (s *MemResetTokenStore) Save(_ context.Context, token string, userID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, e := range s.tokens {
		if e.userID == userID {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = resetEntry{userID: userID, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemResetTokenStore) Consume(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tokens[token]
	delete(s.tokens, token)
	if !ok || !s.now().Before(e.expires) {
		return 0, domain.ErrInvalidToken
	}
	return e.userID, nil
}
