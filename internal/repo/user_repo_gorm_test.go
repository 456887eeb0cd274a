package repo

import (
	"docent-tagalong/internal/domain"
)

func (s *GormStoreSuite) TestUserCreateDuplicateEmail() {
	u := &domain.User{Email: "Ana@Museum.org", FirstName: "Ana", LastName: "Ng", Role: domain.RoleNewDocent, PasswordHash: "x"}
	s.Require().NoError(s.users.Create(s.ctx, u))
	s.NotZero(u.ID)
	s.Equal("ana@museum.org", u.Email)

	dup := &domain.User{Email: "ana@museum.org", FirstName: "Other", LastName: "Ng", Role: domain.RoleSeasonedDocent, PasswordHash: "y"}
	s.ErrorIs(s.users.Create(s.ctx, dup), domain.ErrEmailTaken)

	got, err := s.users.GetUserByEmail(s.ctx, "ANA@museum.org")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(u.ID, got.ID)

	missing, err := s.users.GetUser(s.ctx, 424242)
	s.NoError(err)
	s.Nil(missing)
}
