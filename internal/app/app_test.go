package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docent-tagalong/internal/core/config"
	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/repo"
	"docent-tagalong/internal/transport/http/router"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.DB.Driver = "memory"
	cfg.JWT.Secret = "secret"
	cfg.JWT.Issuer = "docent-tagalong"
	cfg.JWT.AccessTokenTTLMin = 60
	cfg.Schedule.Timezone = "America/Los_Angeles"
	cfg.Schedule.MaxRangeDays = 120
	cfg.Notify.Sender = "log"
	cfg.Bootstrap = config.Bootstrap{Email: "Admin@Zoo.org", Password: "password123", FirstName: "Ada", LastName: "Admin"}
	return cfg
}

func TestNewMemory(t *testing.T) {
	a, err := New(memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &repo.MemUserRepo{}, a.UserRepo)
	assert.IsType(t, &repo.MemTagRequestStore{}, a.Tags)
	assert.Same(t, a.UserRepo, a.Users)

	ctx := context.Background()
	require.NoError(t, a.EnsureCoordinator(ctx))
	require.NoError(t, a.EnsureCoordinator(ctx))
	_, total, err := a.UserRepo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	u, err := a.UserRepo.GetUserByEmail(ctx, "admin@zoo.org")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, domain.RoleCoordinator, u.Role)

	res, err := a.UserSvc.Login(ctx, "admin@zoo.org", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	for _, h := range []http.Handler{router.NewAPIEngine(a.RouterDeps()), router.NewAdminEngine(a.RouterDeps())} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.UserTTLSec = 60

	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &repo.CachedUserDirectory{}, a.Users)
}

func TestNewFailsFast(t *testing.T) {
	cfg := memoryConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Notify.Sender = "pigeon"
	_, err = New(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "pigeon")
}
