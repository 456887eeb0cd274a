// Package app 负责把配置装配成可运行的服务：存储、缓存、通知、业务服务和路由注册。
// cmd/api 与 cmd/admin 共用同一套装配，只是挂载的引擎不同。
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docent-tagalong/internal/core/auth"
	"docent-tagalong/internal/core/cache"
	"docent-tagalong/internal/core/config"
	"docent-tagalong/internal/core/database"
	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/feature/tagrequest"
	"docent-tagalong/internal/feature/user"
	"docent-tagalong/internal/notify"
	"docent-tagalong/internal/repo"
	"docent-tagalong/internal/schedule"
	"docent-tagalong/internal/service"
	"docent-tagalong/internal/transport/http/handler"
	mdw "docent-tagalong/internal/transport/http/middleware"
	"docent-tagalong/internal/transport/http/router"
)

type App struct {
	Cfg *config.Config
	Log *zap.Logger
	JWT *auth.JWTer

	UserRepo domain.UserRepository
	Users    domain.UserDirectory // 读路径，配置了 redis 时带缓存
	Tags     domain.TagRequestStore

	TagSvc  *service.TagRequestService
	UserSvc *service.UserService

	closers []func() // 逆序执行
}

// New 按配置装配；任一外部依赖连不上直接返回错误，已打开的资源会被关闭
func New(cfg *config.Config, l *zap.Logger) (_ *App, err error) {
	a := &App{Cfg: cfg, Log: l}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.JWT = auth.NewJWTer(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.AccessTokenTTLMin)*time.Minute)

	if err = a.openStores(); err != nil {
		return nil, err
	}

	// 缓存：用户目录 + 重置令牌；未配置 redis 时退回进程内实现
	var (
		forgetter service.CacheForgetter
		resets    service.ResetTokens = repo.NewMemResetTokenStore()
	)
	a.Users = a.UserRepo
	if cfg.Redis.Addr != "" {
		c := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		a.closers = append(a.closers, func() { _ = c.Close() })
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err = c.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		dir := repo.NewCachedUserDirectory(a.UserRepo, c, time.Duration(cfg.Redis.UserTTLSec)*time.Second)
		a.Users, forgetter = dir, dir
		resets = repo.NewResetTokenStore(c)
		l.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	sender, err := a.openSender()
	if err != nil {
		return nil, err
	}
	disp := notify.NewDispatcher(a.Users, sender, l, notify.DispatcherOptions{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		SendTimeout: 15 * time.Second,
	})
	disp.Start()
	a.closers = append(a.closers, disp.Close)

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}
	a.TagSvc = service.NewTagRequestService(service.TagRequestDeps{
		Store:        a.Tags,
		Users:        a.Users,
		Policy:       schedule.NewPolicy(loc, nil),
		Notifier:     disp,
		Logger:       l,
		MaxRangeDays: cfg.Schedule.MaxRangeDays,
	})
	a.UserSvc = service.NewUserService(service.UserDeps{
		Repo:   a.UserRepo,
		Tags:   a.Tags,
		Cache:  forgetter,
		Tokens: a.JWT,
		Resets: resets,
		Mailer: disp,
		Logger: l,
		Policy: service.AuthPolicy{
			MaxFailedLogins: cfg.Auth.MaxFailedLogins,
			Lockout:         time.Duration(cfg.Auth.LockoutMin) * time.Minute,
			ResetTokenTTL:   time.Duration(cfg.Auth.ResetTokenTTLMin) * time.Minute,
			ResetURL:        cfg.Auth.ResetURL,
		},
	})
	return a, nil
}

func (a *App) openStores() error {
	cfg := a.Cfg.DB
	if cfg.Driver == "memory" {
		a.UserRepo = repo.NewMemUserRepo()
		a.Tags = repo.NewMemTagRequestStore()
		a.Log.Warn("using in-memory stores, data is lost on restart")
		return nil
	}

	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.Driver,
		DSN:                cfg.DSN,
		Username:           cfg.Username,
		Password:           cfg.Password,
		MaxOpenConns:       cfg.MaxOpenConns,
		MaxIdleConns:       cfg.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.ConnMaxLifetimeMin,
		LogLevel:           cfg.LogLevel,
		Logger:             a.Log,
	})
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	if sqlDB, e := db.DB(); e == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}
	a.Log.Info("database connected", zap.String("driver", cfg.Driver))

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&user.UserModel{}, &tagrequest.TagRequestModel{}); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
		a.Log.Info("automigrate done")
	}
	a.UserRepo = repo.NewUserRepo(db)
	a.Tags = repo.NewTagRequestRepo(db)
	return nil
}

func (a *App) openSender() (notify.Sender, error) {
	n := a.Cfg.Notify
	switch n.Sender {
	case "smtp":
		d := notify.NewSMTPDialer(notify.SMTPConfig{
			Host:     n.SMTP.Host,
			Port:     n.SMTP.Port,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
		})
		return notify.NewSMTPSender(d, n.From), nil
	case "amqp":
		conn, ch, err := notify.DialAMQP(n.AMQP.URL, n.AMQP.Exchange, 5, 2*time.Second)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() }, func() { _ = ch.Close() })
		return notify.NewAMQPSender(ch, n.AMQP.Exchange, n.AMQP.RoutingKey), nil
	case "", "log":
		return notify.LogSender{L: a.Log}, nil
	default:
		return nil, fmt.Errorf("notify: unknown sender %q", n.Sender)
	}
}

// Registry 两个引擎共用；各自只挂自己那一侧的模块
func (a *App) Registry() *router.Registry {
	return router.NewRegistry(
		handler.NewAuthHandler(a.UserSvc, mdw.RateLimitPerIP(1, 10)),
		handler.NewTagRequestHandler(a.TagSvc),
		handler.NewAdminUserHandler(a.UserSvc),
	)
}

func (a *App) RouterDeps() router.Deps {
	return router.Deps{
		Logger:       a.Log,
		JWT:          a.JWT,
		Users:        a.Users,
		Registry:     a.Registry(),
		AllowOrigins: a.Cfg.App.HTTP.AllowOrigins,
	}
}

// EnsureCoordinator 配置了 bootstrap 账号且库里没有时创建一个协调员
func (a *App) EnsureCoordinator(ctx context.Context) error {
	b := a.Cfg.Bootstrap
	if b.Email == "" {
		return nil
	}
	u, err := a.UserRepo.GetUserByEmail(ctx, b.Email)
	if err != nil {
		return err
	}
	if u != nil {
		return nil
	}
	created, err := a.UserSvc.Bootstrap(ctx, service.UserInput{
		Email:     b.Email,
		Password:  b.Password,
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Role:      domain.RoleCoordinator,
	})
	if err != nil {
		return fmt.Errorf("bootstrap coordinator: %w", err)
	}
	a.Log.Info("bootstrap coordinator created", zap.Int64("user_id", created.ID), zap.String("email", created.Email))
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
