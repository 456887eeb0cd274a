package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/notify"
	"docent-tagalong/pkg/utils"
)

type ResetTokens interface {
	Save(ctx context.Context, token string, userID int64, ttl time.Duration) error
	Consume(ctx context.Context, token string) (int64, error)
}

// CacheForgetter 账号变更后失效用户缓存
type CacheForgetter interface {
	Forget(ctx context.Context, id int64) error
}

type TokenIssuer interface {
	Issue(uid int64, role string) (string, error)
}

type AuthPolicy struct {
	MaxFailedLogins int
	Lockout         time.Duration
	ResetTokenTTL   time.Duration
	// 重置链接前缀，令牌拼在 ?token= 之后
	ResetURL string
}

type UserDeps struct {
	Repo   domain.UserRepository
	Tags   domain.TagRequestStore
	Cache  CacheForgetter
	Tokens TokenIssuer
	Resets ResetTokens
	Mailer notify.Mailer
	Logger *zap.Logger
	Policy AuthPolicy
	Now    func() time.Time
}

type UserService struct {
	repo   domain.UserRepository
	tags   domain.TagRequestStore
	cache  CacheForgetter
	tokens TokenIssuer
	resets ResetTokens
	mailer notify.Mailer
	log    *zap.Logger
	policy AuthPolicy
	now    func() time.Time
}

func NewUserService(d UserDeps) *UserService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Mailer == nil {
		d.Mailer = notify.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Policy.MaxFailedLogins <= 0 {
		d.Policy.MaxFailedLogins = 5
	}
	if d.Policy.Lockout <= 0 {
		d.Policy.Lockout = 10 * time.Minute
	}
	if d.Policy.ResetTokenTTL <= 0 {
		d.Policy.ResetTokenTTL = time.Hour
	}
	return &UserService{
		repo: d.Repo, tags: d.Tags, cache: d.Cache, tokens: d.Tokens, resets: d.Resets,
		mailer: d.Mailer, log: d.Logger.Named("user"), policy: d.Policy, now: d.Now,
	}
}

func (s *UserService) forget(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Forget(ctx, id); err != nil {
		s.log.Warn("user cache invalidate failed", zap.Int64("user_id", id), zap.Error(err))
	}
}

type LoginResult struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// Login 连续失败达到上限后锁定账号
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	now := s.now()
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		loginAttempts.WithLabelValues("unknown").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if u.LockedAt(now) {
		loginAttempts.WithLabelValues("locked").Inc()
		mins := int(u.LockedUntil.Sub(now).Minutes()) + 1
		return nil, fmt.Errorf("%w: try again in %d minutes", domain.ErrAccountLocked, mins)
	}
	if u.PasswordHash == "" || !utils.CheckPassword(password, u.PasswordHash) {
		loginAttempts.WithLabelValues("failed").Inc()
		n, err := s.repo.IncrementFailedLogins(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if n >= s.policy.MaxFailedLogins {
			if err := s.repo.LockUntil(ctx, u.ID, now.Add(s.policy.Lockout)); err != nil {
				return nil, err
			}
			s.log.Warn("account locked", zap.Int64("user_id", u.ID), zap.Int("failed_attempts", n))
		}
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.repo.RecordLogin(ctx, u.ID, now); err != nil {
		return nil, err
	}
	tok, err := s.tokens.Issue(u.ID, string(u.Role))
	if err != nil {
		return nil, fmt.Errorf("service.User.Login: issue token: %w", err)
	}
	loginAttempts.WithLabelValues("ok").Inc()
	u.FailedLoginAttempts, u.LockedUntil, u.LastLogin = 0, nil, &now
	return &LoginResult{Token: tok, User: *u}, nil
}

type UserInput struct {
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Phone     *string     `json:"phone"`
	Role      domain.Role `json:"role"`
}

func (in UserInput) validate() error {
	email := domain.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: a valid email is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return fmt.Errorf("%w: firstName and lastName are required", domain.ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, in.Role)
	}
	return nil
}

func (s *UserService) create(ctx context.Context, in UserInput) (*domain.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	u := &domain.User{
		Email:     domain.NormalizeEmail(in.Email),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     in.Phone,
		Role:      in.Role,
	}
	// 无密码的账号需先走密码重置才能登录
	if in.Password != "" {
		h, err := utils.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		u.PasswordHash = h
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, fmt.Errorf("%w: %s", domain.ErrEmailTaken, u.Email)
		}
		return nil, err
	}
	s.forget(ctx, u.ID)
	return u, nil
}

// Register 自助注册，角色固定为 new_docent
func (s *UserService) Register(ctx context.Context, in UserInput) (*domain.User, error) {
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}
	in.Role = domain.RoleNewDocent
	u, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID))
	return u, nil
}

// Bootstrap 启动时创建初始账号，不校验操作者
func (s *UserService) Bootstrap(ctx context.Context, in UserInput) (*domain.User, error) {
	return s.create(ctx, in)
}

func (s *UserService) Me(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return u, nil
}

// RequestPasswordReset 邮箱不存在时同样返回成功，不暴露账号是否存在
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}
	tok, err := utils.RandomToken(32)
	if err != nil {
		return fmt.Errorf("service.User.RequestPasswordReset: %w", err)
	}
	if err := s.resets.Save(ctx, tok, u.ID, s.policy.ResetTokenTTL); err != nil {
		return err
	}
	s.mailer.Enqueue(notify.PasswordResetEmail(*u, s.policy.ResetURL+"?token="+tok, s.policy.ResetTokenTTL))
	s.log.Info("password reset requested", zap.Int64("user_id", u.ID))
	return nil
}

func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	id, err := s.resets.Consume(ctx, token)
	if err != nil {
		return err
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return domain.ErrInvalidToken
	}
	u.PasswordHash = hash
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	if err := s.repo.Update(ctx, u); err != nil {
		return err
	}
	s.log.Info("password reset", zap.Int64("user_id", u.ID))
	return nil
}

func requireCoordinator(actor domain.User) error {
	if actor.Role != domain.RoleCoordinator {
		return fmt.Errorf("%w: coordinator only", domain.ErrForbidden)
	}
	return nil
}

type UserPage struct {
	Items []domain.User `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

func (s *UserService) ListUsers(ctx context.Context, actor domain.User, page, size int) (*UserPage, error) {
	if err := requireCoordinator(actor); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 50
	}
	items, total, err := s.repo.List(ctx, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return &UserPage{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *UserService) CreateUser(ctx context.Context, actor domain.User, in UserInput) (*domain.User, error) {
	if err := requireCoordinator(actor); err != nil {
		return nil, err
	}
	u, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.log.Info("user created", zap.Int64("user_id", u.ID), zap.Int64("actor_id", actor.ID))
	return u, nil
}

// UserPatch nil 字段不变
type UserPatch struct {
	Email     *string      `json:"email"`
	Password  *string      `json:"password"`
	FirstName *string      `json:"firstName"`
	LastName  *string      `json:"lastName"`
	Phone     *string      `json:"phone"`
	Role      *domain.Role `json:"role"`
}

func (s *UserService) UpdateUser(ctx context.Context, actor domain.User, id int64, p UserPatch) (*domain.User, error) {
	if err := requireCoordinator(actor); err != nil {
		return nil, err
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	if p.Email != nil {
		u.Email = domain.NormalizeEmail(*p.Email)
		if !strings.Contains(u.Email, "@") {
			return nil, fmt.Errorf("%w: a valid email is required", domain.ErrInvalidInput)
		}
	}
	if p.FirstName != nil {
		u.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.Phone != nil {
		u.Phone = p.Phone
		if *p.Phone == "" {
			u.Phone = nil
		}
	}
	if p.Role != nil {
		if !p.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, *p.Role)
		}
		if id == actor.ID && *p.Role != domain.RoleCoordinator {
			return nil, fmt.Errorf("%w: coordinators cannot demote themselves", domain.ErrInvalidInput)
		}
		u.Role = *p.Role
	}
	if p.Password != nil && *p.Password != "" {
		h, err := utils.HashPassword(*p.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		u.PasswordHash = h
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.forget(ctx, id)
	s.log.Info("user updated", zap.Int64("user_id", id), zap.Int64("actor_id", actor.ID))
	return u, nil
}

// DeleteUser 不能删自己；仍有 tag 请求的用户不能删
func (s *UserService) DeleteUser(ctx context.Context, actor domain.User, id int64) error {
	if err := requireCoordinator(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return fmt.Errorf("%w: cannot delete your own account", domain.ErrInvalidInput)
	}
	n, err := s.tags.CountByDocent(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: user %d still has %d tag requests", domain.ErrInvalidInput, id, n)
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	s.forget(ctx, id)
	s.log.Info("user deleted", zap.Int64("user_id", id), zap.Int64("actor_id", actor.ID))
	return nil
}

type BulkError struct {
	Line  int    `json:"line"`
	Email string `json:"email"`
	Error string `json:"error"`
}

type BulkResult struct {
	Success int         `json:"success"`
	Errors  []BulkError `json:"errors"`
}

// BulkCreate 逐行创建，单行失败不影响其他行；行号从 1 开始
func (s *UserService) BulkCreate(ctx context.Context, actor domain.User, rows []UserInput) (*BulkResult, error) {
	if err := requireCoordinator(actor); err != nil {
		return nil, err
	}
	res := &BulkResult{Errors: []BulkError{}}
	for i, row := range rows {
		if _, err := s.create(ctx, row); err != nil {
			if !isClientError(err) {
				return nil, err
			}
			res.Errors = append(res.Errors, BulkError{Line: i + 1, Email: row.Email, Error: err.Error()})
			continue
		}
		res.Success++
	}
	s.log.Info("bulk user import", zap.Int("success", res.Success), zap.Int("failed", len(res.Errors)),
		zap.Int64("actor_id", actor.ID))
	return res, nil
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrEmailTaken)
}
