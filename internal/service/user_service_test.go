package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"docent-tagalong/internal/core/auth"
	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/notify"
	"docent-tagalong/internal/repo"
	"docent-tagalong/pkg/utils"
)

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Enqueue(m notify.Message) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, m)
	return true
}

type forgetter struct{ ids []int64 }

func (f *forgetter) Forget(_ context.Context, id int64) error {
	f.ids = append(f.ids, id)
	return nil
}

type UserServiceSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	users  *repo.MemUserRepo
	tags   *repo.MemTagRequestStore
	resets *repo.MemResetTokenStore
	mail   *outbox
	cache  *forgetter
	jwt    *auth.JWTer
	svc    *UserService

	coordinator domain.User
}

func TestUserServiceSuite(t *testing.T) { suite.Run(t, new(UserServiceSuite)) }

func (s *UserServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = testNow
	s.users = repo.NewMemUserRepo()
	s.tags = repo.NewMemTagRequestStore()
	s.resets = repo.NewMemResetTokenStore()
	s.mail = &outbox{}
	s.cache = &forgetter{}
	s.jwt = auth.NewJWTer("test-secret", "tagalong-test", time.Hour)
	s.svc = NewUserService(UserDeps{
		Repo: s.users, Tags: s.tags, Cache: s.cache, Tokens: s.jwt, Resets: s.resets, Mailer: s.mail,
		Policy: AuthPolicy{MaxFailedLogins: 5, Lockout: 10 * time.Minute, ResetTokenTTL: time.Hour, ResetURL: "https://tags.example/reset-password"},
		Now:    func() time.Time { return s.now },
	})

	h, err := utils.HashPassword("coordinator-pw")
	s.Require().NoError(err)
	c := &domain.User{Email: "cora@zoo.org", FirstName: "Cora", LastName: "C", Role: domain.RoleCoordinator, PasswordHash: h}
	s.Require().NoError(s.users.Create(s.ctx, c))
	s.coordinator = *c
}

func (s *UserServiceSuite) register(email string) *domain.User {
	u, err := s.svc.Register(s.ctx, UserInput{Email: email, Password: "password123", FirstName: "New", LastName: "Docent", Role: domain.RoleCoordinator})
	s.Require().NoError(err)
	return u
}

func (s *UserServiceSuite) TestRegisterForcesNewDocent() {
	u := s.register("Nina@Zoo.org")
	s.Equal(domain.RoleNewDocent, u.Role)
	s.Equal("nina@zoo.org", u.Email)

	_, err := s.svc.Register(s.ctx, UserInput{Email: "nina@zoo.org", Password: "password123", FirstName: "A", LastName: "B"})
	s.ErrorIs(err, domain.ErrEmailTaken)

	_, err = s.svc.Register(s.ctx, UserInput{Email: "x@zoo.org", Password: "short", FirstName: "A", LastName: "B"})
	s.ErrorIs(err, domain.ErrInvalidInput)

	_, err = s.svc.Register(s.ctx, UserInput{Email: "not-an-email", Password: "password123", FirstName: "A", LastName: "B"})
	s.ErrorIs(err, domain.ErrInvalidInput)
}

func (s *UserServiceSuite) TestLoginIssuesToken() {
	u := s.register("nina@zoo.org")

	res, err := s.svc.Login(s.ctx, "NINA@zoo.org", "password123")
	s.Require().NoError(err)
	claims, err := s.jwt.Parse(res.Token)
	s.Require().NoError(err)
	s.Equal(u.ID, claims.UID)
	s.Equal(string(domain.RoleNewDocent), claims.Role)

	stored, _ := s.users.GetUser(s.ctx, u.ID)
	s.Require().NotNil(stored.LastLogin)
	s.True(stored.LastLogin.Equal(s.now))
}

func (s *UserServiceSuite) TestLoginLockout() {
	u := s.register("nina@zoo.org")

	for i := 0; i < 5; i++ {
		_, err := s.svc.Login(s.ctx, "nina@zoo.org", "wrong-password")
		s.ErrorIs(err, domain.ErrInvalidCredentials)
	}
	// 正确密码也被拒绝
	_, err := s.svc.Login(s.ctx, "nina@zoo.org", "password123")
	s.ErrorIs(err, domain.ErrAccountLocked)

	s.now = s.now.Add(11 * time.Minute)
	_, err = s.svc.Login(s.ctx, "nina@zoo.org", "password123")
	s.Require().NoError(err)

	stored, _ := s.users.GetUser(s.ctx, u.ID)
	s.Zero(stored.FailedLoginAttempts)
	s.Nil(stored.LockedUntil)
}

func (s *UserServiceSuite) TestLoginUnknownAndPasswordless() {
	_, err := s.svc.Login(s.ctx, "ghost@zoo.org", "whatever1")
	s.ErrorIs(err, domain.ErrInvalidCredentials)

	_, err = s.svc.CreateUser(s.ctx, s.coordinator, UserInput{Email: "pending@zoo.org", FirstName: "P", LastName: "D", Role: domain.RoleSeasonedDocent})
	s.Require().NoError(err)
	_, err = s.svc.Login(s.ctx, "pending@zoo.org", "")
	s.ErrorIs(err, domain.ErrInvalidCredentials)
}

func (s *UserServiceSuite) TestPasswordResetEmailStatesConfiguredTTL() {
	s.svc = NewUserService(UserDeps{
		Repo: s.users, Tags: s.tags, Cache: s.cache, Tokens: s.jwt, Resets: s.resets, Mailer: s.mail,
		Policy: AuthPolicy{MaxFailedLogins: 5, Lockout: 10 * time.Minute, ResetTokenTTL: 30 * time.Minute, ResetURL: "https://tags.example/reset-password"},
		Now:    func() time.Time { return s.now },
	})
	s.register("nina@zoo.org")

	s.Require().NoError(s.svc.RequestPasswordReset(s.ctx, "nina@zoo.org"))
	s.Require().Len(s.mail.msgs, 1)
	s.Contains(s.mail.msgs[0].Body, "expire in 30 minutes.")
	s.NotContains(s.mail.msgs[0].Body, "1 hour")
}

func (s *UserServiceSuite) TestPasswordResetFlow() {
	s.register("nina@zoo.org")

	s.Require().NoError(s.svc.RequestPasswordReset(s.ctx, "ghost@zoo.org"))
	s.Empty(s.mail.msgs)

	s.Require().NoError(s.svc.RequestPasswordReset(s.ctx, "nina@zoo.org"))
	s.Require().Len(s.mail.msgs, 1)
	body := s.mail.msgs[0].Body
	i := strings.Index(body, "?token=")
	s.Require().Positive(i)
	token := strings.Fields(body[i+len("?token="):])[0]

	s.ErrorIs(s.svc.ResetPassword(s.ctx, token, "short"), domain.ErrInvalidInput)
	s.Require().NoError(s.svc.ResetPassword(s.ctx, token, "brand-new-pw"))
	s.ErrorIs(s.svc.ResetPassword(s.ctx, token, "another-pw-1"), domain.ErrInvalidToken)

	_, err := s.svc.Login(s.ctx, "nina@zoo.org", "brand-new-pw")
	s.NoError(err)
}

func (s *UserServiceSuite) TestAdminRequiresCoordinator() {
	u := s.register("nina@zoo.org")
	_, err := s.svc.ListUsers(s.ctx, *u, 1, 10)
	s.ErrorIs(err, domain.ErrForbidden)
	_, err = s.svc.CreateUser(s.ctx, *u, UserInput{})
	s.ErrorIs(err, domain.ErrForbidden)
	s.ErrorIs(s.svc.DeleteUser(s.ctx, *u, s.coordinator.ID), domain.ErrForbidden)
}

func (s *UserServiceSuite) TestUpdateUser() {
	u := s.register("nina@zoo.org")
	s.register("ned@zoo.org")

	out, err := s.svc.UpdateUser(s.ctx, s.coordinator, u.ID, UserPatch{Role: ptr(domain.RoleSeasonedDocent), FirstName: ptr("Nina")})
	s.Require().NoError(err)
	s.Equal(domain.RoleSeasonedDocent, out.Role)
	s.Contains(s.cache.ids, u.ID)

	_, err = s.svc.UpdateUser(s.ctx, s.coordinator, u.ID, UserPatch{Email: ptr("ned@zoo.org")})
	s.ErrorIs(err, domain.ErrEmailTaken)

	_, err = s.svc.UpdateUser(s.ctx, s.coordinator, u.ID, UserPatch{Role: ptr(domain.Role("admin"))})
	s.ErrorIs(err, domain.ErrInvalidInput)

	_, err = s.svc.UpdateUser(s.ctx, s.coordinator, s.coordinator.ID, UserPatch{Role: ptr(domain.RoleNewDocent)})
	s.ErrorIs(err, domain.ErrInvalidInput)

	_, err = s.svc.UpdateUser(s.ctx, s.coordinator, 999, UserPatch{})
	s.ErrorIs(err, domain.ErrNotFound)

	// 保留原密码
	_, err = s.svc.Login(s.ctx, "nina@zoo.org", "password123")
	s.NoError(err)
}

func (s *UserServiceSuite) TestDeleteUser() {
	u := s.register("nina@zoo.org")
	busy := s.register("ned@zoo.org")
	_, err := s.tags.Create(s.ctx, domain.NewTagRequest{Date: day(3), TimeSlot: domain.SlotAM, NewDocentID: busy.ID})
	s.Require().NoError(err)

	s.ErrorIs(s.svc.DeleteUser(s.ctx, s.coordinator, s.coordinator.ID), domain.ErrInvalidInput)
	s.ErrorIs(s.svc.DeleteUser(s.ctx, s.coordinator, busy.ID), domain.ErrInvalidInput)
	s.Require().NoError(s.svc.DeleteUser(s.ctx, s.coordinator, u.ID))
	s.ErrorIs(s.svc.DeleteUser(s.ctx, s.coordinator, u.ID), domain.ErrNotFound)
}

func (s *UserServiceSuite) TestBulkCreate() {
	s.register("taken@zoo.org")
	res, err := s.svc.BulkCreate(s.ctx, s.coordinator, []UserInput{
		{Email: "a@zoo.org", FirstName: "A", LastName: "A", Role: domain.RoleNewDocent},
		{Email: "taken@zoo.org", FirstName: "T", LastName: "T", Role: domain.RoleNewDocent},
		{Email: "b@zoo.org", FirstName: "B", LastName: "B", Role: "volunteer"},
		{Email: "c@zoo.org", FirstName: "C", LastName: "C", Role: domain.RoleSeasonedDocent, Password: "password123"},
	})
	s.Require().NoError(err)
	s.Equal(2, res.Success)
	s.Require().Len(res.Errors, 2)
	s.Equal(2, res.Errors[0].Line)
	s.Equal("taken@zoo.org", res.Errors[0].Email)
	s.Equal(3, res.Errors[1].Line)

	page, err := s.svc.ListUsers(s.ctx, s.coordinator, 1, 2)
	s.Require().NoError(err)
	s.EqualValues(4, page.Total)
	s.Len(page.Items, 2)
}

func TestMeNotFound(t *testing.T) {
	svc := NewUserService(UserDeps{Repo: repo.NewMemUserRepo()})
	_, err := svc.Me(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	u := &domain.User{Email: "a@zoo.org", Role: domain.RoleNewDocent}
	r := repo.NewMemUserRepo()
	require.NoError(t, r.Create(context.Background(), u))
	got, err := NewUserService(UserDeps{Repo: r}).Me(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@zoo.org", got.Email)
}
