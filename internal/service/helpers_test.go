package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/notify"
	"docent-tagalong/internal/repo"
	"docent-tagalong/internal/schedule"
)

// 固定“现在”为 2026-10-15（周四）上午
var testNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

func day(offset int) domain.Date { return domain.NewDate(2026, 10, 15).AddDays(offset) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.TagFilled
}

func (r *recordingNotifier) NotifyFilled(ev notify.TagFilled) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	svc      *TagRequestService
	store    *repo.MemTagRequestStore
	users    *repo.MemUserRepo
	notifier *recordingNotifier

	newDocent, otherNew, seasoned, otherSeasoned, coordinator domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repo.NewMemTagRequestStore(),
		users:    repo.NewMemUserRepo(),
		notifier: &recordingNotifier{},
	}
	add := func(email, first string, role domain.Role) domain.User {
		u := &domain.User{Email: email, FirstName: first, LastName: "Docent", Role: role}
		require.NoError(t, f.users.Create(context.Background(), u))
		return *u
	}
	f.newDocent = add("nina@zoo.org", "Nina", domain.RoleNewDocent)
	f.otherNew = add("ned@zoo.org", "Ned", domain.RoleNewDocent)
	f.seasoned = add("sam@zoo.org", "Sam", domain.RoleSeasonedDocent)
	f.otherSeasoned = add("sue@zoo.org", "Sue", domain.RoleSeasonedDocent)
	f.coordinator = add("cora@zoo.org", "Cora", domain.RoleCoordinator)

	f.svc = NewTagRequestService(TagRequestDeps{
		Store:        f.store,
		Users:        f.users,
		Policy:       schedule.NewPolicy(time.UTC, func() time.Time { return testNow }),
		Notifier:     f.notifier,
		MaxRangeDays: 120,
	})
	return f
}

func (f *fixture) request(t *testing.T, owner domain.User, offset int, slot domain.TimeSlot) *TagRequestView {
	t.Helper()
	v, err := f.svc.Create(context.Background(), owner, CreateTagRequest{Date: day(offset), TimeSlot: slot})
	require.NoError(t, err)
	return v
}

func (f *fixture) filled(t *testing.T, owner domain.User, offset int, slot domain.TimeSlot) *TagRequestView {
	t.Helper()
	v := f.request(t, owner, offset, slot)
	out, err := f.svc.Accept(context.Background(), f.seasoned, v.ID)
	require.NoError(t, err)
	return out
}
