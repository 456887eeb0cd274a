package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docent-tagalong/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("new docent creates for self", func(t *testing.T) {
		f := newFixture(t)
		v, err := f.svc.Create(ctx, f.newDocent, CreateTagRequest{Date: day(1), TimeSlot: domain.SlotAM, Notes: "first tour"})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRequested, v.Status)
		assert.Equal(t, f.newDocent.ID, v.NewDocentID)
		assert.Nil(t, v.SeasonedDocentID)
		require.NotNil(t, v.NewDocent)
		assert.Equal(t, "Nina", v.NewDocent.FirstName)
	})

	t.Run("today and past are rejected", func(t *testing.T) {
		f := newFixture(t)
		for _, off := range []int{0, -1, -30} {
			_, err := f.svc.Create(ctx, f.newDocent, CreateTagRequest{Date: day(off), TimeSlot: domain.SlotPM})
			assert.ErrorIs(t, err, domain.ErrPastDate, "offset %d", off)
		}
	})

	t.Run("duplicate slot", func(t *testing.T) {
		f := newFixture(t)
		f.request(t, f.newDocent, 3, domain.SlotAM)
		_, err := f.svc.Create(ctx, f.newDocent, CreateTagRequest{Date: day(3), TimeSlot: domain.SlotAM})
		assert.ErrorIs(t, err, domain.ErrDuplicateSlot)

		// 另一个新讲解员同一时段可以
		_, err = f.svc.Create(ctx, f.otherNew, CreateTagRequest{Date: day(3), TimeSlot: domain.SlotAM})
		assert.NoError(t, err)
	})

	t.Run("role rules", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(ctx, f.seasoned, CreateTagRequest{Date: day(3), TimeSlot: domain.SlotAM})
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, err = f.svc.Create(ctx, f.newDocent, CreateTagRequest{Date: day(3), TimeSlot: domain.SlotAM, NewDocentID: ptr(f.otherNew.ID)})
		assert.ErrorIs(t, err, domain.ErrForbidden)

		v, err := f.svc.Create(ctx, f.coordinator, CreateTagRequest{Date: day(3), TimeSlot: domain.SlotAM, NewDocentID: ptr(f.otherNew.ID)})
		require.NoError(t, err)
		assert.Equal(t, f.otherNew.ID, v.NewDocentID)

		_, err = f.svc.Create(ctx, f.coordinator, CreateTagRequest{Date: day(3), TimeSlot: domain.SlotAM, NewDocentID: ptr(f.seasoned.ID)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = f.svc.Create(ctx, domain.User{ID: 77, Role: "visitor"}, CreateTagRequest{Date: day(3), TimeSlot: domain.SlotAM})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("bad input", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(ctx, f.newDocent, CreateTagRequest{TimeSlot: domain.SlotAM})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = f.svc.Create(ctx, f.newDocent, CreateTagRequest{Date: day(3), TimeSlot: "EVENING"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("seasoned docent fills request", func(t *testing.T) {
		f := newFixture(t)
		before := testutil.ToFloat64(tagTransitions.WithLabelValues("accepted"))
		v := f.request(t, f.newDocent, 2, domain.SlotAM)

		out, err := f.svc.Accept(ctx, f.seasoned, v.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFilled, out.Status)
		require.NotNil(t, out.SeasonedDocentID)
		assert.Equal(t, f.seasoned.ID, *out.SeasonedDocentID)
		require.NotNil(t, out.SeasonedDocent)
		assert.Equal(t, "Sam", out.SeasonedDocent.FirstName)
		assert.Equal(t, 1, f.notifier.count())
		assert.Equal(t, before+1, testutil.ToFloat64(tagTransitions.WithLabelValues("accepted")))

		_, err = f.svc.Accept(ctx, f.otherSeasoned, v.ID)
		assert.ErrorIs(t, err, domain.ErrNotAvailable)
		assert.Equal(t, 1, f.notifier.count())
	})

	t.Run("needs a full day of buffer", func(t *testing.T) {
		f := newFixture(t)
		v := f.request(t, f.newDocent, 1, domain.SlotAM)
		_, err := f.svc.Accept(ctx, f.seasoned, v.ID)
		assert.ErrorIs(t, err, domain.ErrPastDate)

		got, err := f.store.Get(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRequested, got.Status)
		assert.Zero(t, f.notifier.count())
	})

	t.Run("only seasoned docents", func(t *testing.T) {
		f := newFixture(t)
		v := f.request(t, f.newDocent, 5, domain.SlotAM)
		for _, u := range []domain.User{f.newDocent, f.otherNew, f.coordinator} {
			_, err := f.svc.Accept(ctx, u, v.ID)
			assert.ErrorIs(t, err, domain.ErrForbidden, u.Email)
		}
	})

	t.Run("missing request", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Accept(ctx, f.seasoned, 999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.request(t, f.newDocent, 4, domain.SlotPM)

	const n = 24
	racers := make([]domain.User, n)
	for i := range racers {
		u := &domain.User{Email: "racer" + string(rune('a'+i)) + "@zoo.org", FirstName: "R", LastName: "S", Role: domain.RoleSeasonedDocent}
		require.NoError(t, f.users.Create(ctx, u))
		racers[i] = *u
	}

	var wins, unavailable int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, u := range racers {
		wg.Add(1)
		go func(u domain.User) {
			defer wg.Done()
			<-start
			_, err := f.svc.Accept(ctx, u, v.ID)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, domain.ErrNotAvailable):
				atomic.AddInt32(&unavailable, 1)
			}
		}(u)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, n-1, unavailable)
	assert.Equal(t, 1, f.notifier.count())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels open request", func(t *testing.T) {
		f := newFixture(t)
		v := f.request(t, f.newDocent, 2, domain.SlotAM)
		require.NoError(t, f.svc.Delete(ctx, f.newDocent, v.ID))
		_, err := f.store.Get(ctx, v.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("new docent restrictions", func(t *testing.T) {
		f := newFixture(t)
		open := f.request(t, f.newDocent, 3, domain.SlotAM)
		assert.ErrorIs(t, f.svc.Delete(ctx, f.otherNew, open.ID), domain.ErrForbidden)

		filled := f.filled(t, f.newDocent, 3, domain.SlotPM)
		assert.ErrorIs(t, f.svc.Delete(ctx, f.newDocent, filled.ID), domain.ErrFilledRequest)

		soon := f.request(t, f.newDocent, 1, domain.SlotAM)
		assert.ErrorIs(t, f.svc.Delete(ctx, f.newDocent, soon.ID), domain.ErrPastDate)

		assert.ErrorIs(t, f.svc.Delete(ctx, f.seasoned, open.ID), domain.ErrForbidden)
	})

	t.Run("coordinator deletes anything", func(t *testing.T) {
		f := newFixture(t)
		filled := f.filled(t, f.newDocent, 3, domain.SlotPM)
		soon := f.request(t, f.newDocent, 1, domain.SlotAM)
		require.NoError(t, f.svc.Delete(ctx, f.coordinator, filled.ID))
		require.NoError(t, f.svc.Delete(ctx, f.coordinator, soon.ID))
		assert.ErrorIs(t, f.svc.Delete(ctx, f.coordinator, soon.ID), domain.ErrNotFound)
	})
}

func TestCoordinatorUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("edits any field regardless of date", func(t *testing.T) {
		f := newFixture(t)
		v := f.request(t, f.newDocent, 1, domain.SlotAM)
		out, err := f.svc.CoordinatorUpdate(ctx, f.coordinator, v.ID, domain.TagRequestPatch{
			TimeSlot: ptr(domain.SlotPM), Notes: ptr("moved"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SlotPM, out.TimeSlot)
		assert.Equal(t, "moved", out.Notes)
	})

	t.Run("assigning a seasoned docent notifies", func(t *testing.T) {
		f := newFixture(t)
		v := f.request(t, f.newDocent, 1, domain.SlotAM)
		out, err := f.svc.CoordinatorUpdate(ctx, f.coordinator, v.ID, domain.TagRequestPatch{
			Status: ptr(domain.StatusFilled), SeasonedDocentID: ptr(f.seasoned.ID),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFilled, out.Status)
		assert.Equal(t, 1, f.notifier.count())

		// 已 filled 的再改备注不会重复通知
		_, err = f.svc.CoordinatorUpdate(ctx, f.coordinator, v.ID, domain.TagRequestPatch{Notes: ptr("x")})
		require.NoError(t, err)
		assert.Equal(t, 1, f.notifier.count())
	})

	t.Run("invariants still hold", func(t *testing.T) {
		f := newFixture(t)
		filled := f.filled(t, f.newDocent, 4, domain.SlotAM)
		_, err := f.svc.CoordinatorUpdate(ctx, f.coordinator, filled.ID, domain.TagRequestPatch{Status: ptr(domain.StatusRequested)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		open := f.request(t, f.newDocent, 4, domain.SlotPM)
		_, err = f.svc.CoordinatorUpdate(ctx, f.coordinator, open.ID, domain.TagRequestPatch{Status: ptr(domain.StatusFilled)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = f.svc.CoordinatorUpdate(ctx, f.coordinator, open.ID, domain.TagRequestPatch{TimeSlot: ptr(domain.SlotAM)})
		assert.ErrorIs(t, err, domain.ErrDuplicateSlot)

		_, err = f.svc.CoordinatorUpdate(ctx, f.coordinator, open.ID, domain.TagRequestPatch{SeasonedDocentID: ptr(f.newDocent.ID), Status: ptr(domain.StatusFilled)})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = f.svc.CoordinatorUpdate(ctx, f.coordinator, open.ID, domain.TagRequestPatch{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("coordinator only", func(t *testing.T) {
		f := newFixture(t)
		v := f.request(t, f.newDocent, 4, domain.SlotAM)
		_, err := f.svc.CoordinatorUpdate(ctx, f.newDocent, v.ID, domain.TagRequestPatch{Notes: ptr("x")})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestUpdateDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	v := f.request(t, f.newDocent, 5, domain.SlotAM)
	res, err := f.svc.Update(ctx, f.seasoned, v.ID, domain.TagRequestPatch{Status: ptr(domain.StatusFilled)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.TagRequest.Status)

	_, err = f.svc.Update(ctx, f.seasoned, v.ID, domain.TagRequestPatch{Notes: ptr("hi")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	other := f.request(t, f.newDocent, 5, domain.SlotPM)
	_, err = f.svc.Update(ctx, f.otherSeasoned, other.ID, domain.TagRequestPatch{
		Status: ptr(domain.StatusFilled), SeasonedDocentID: ptr(f.seasoned.ID),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Update(ctx, f.newDocent, other.ID, domain.TagRequestPatch{Notes: ptr("hi")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	res, err = f.svc.Update(ctx, f.newDocent, other.ID, domain.TagRequestPatch{Status: ptr(domain.StatusCancelled)})
	require.NoError(t, err)
	assert.True(t, res.Deleted)

	res, err = f.svc.Update(ctx, f.coordinator, v.ID, domain.TagRequestPatch{Notes: ptr("coord")})
	require.NoError(t, err)
	assert.Equal(t, "coord", res.TagRequest.Notes)
}

func TestUpdateDispatchCoordinatorCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	filled := f.filled(t, f.newDocent, 1, domain.SlotAM)
	res, err := f.svc.Update(ctx, f.coordinator, filled.ID, domain.TagRequestPatch{Status: ptr(domain.StatusCancelled)})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Nil(t, res.TagRequest)
	_, err = f.store.Get(ctx, filled.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Update(ctx, f.coordinator, filled.ID, domain.TagRequestPatch{Status: ptr(domain.StatusCancelled)})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	open := f.request(t, f.newDocent, 2, domain.SlotPM)
	_, err = f.svc.Update(ctx, f.coordinator, open.ID, domain.TagRequestPatch{
		Status: ptr(domain.StatusCancelled), Notes: ptr("gone"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.store.Get(ctx, open.ID)
	assert.NoError(t, err)
}

func TestUpdateDispatchAcceptRejectsExtraFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.request(t, f.newDocent, 5, domain.SlotAM)

	for name, patch := range map[string]domain.TagRequestPatch{
		"notes":      {Status: ptr(domain.StatusFilled), Notes: ptr("see you there")},
		"date":       {Status: ptr(domain.StatusFilled), Date: ptr(day(6))},
		"time slot":  {Status: ptr(domain.StatusFilled), TimeSlot: ptr(domain.SlotPM)},
		"new docent": {Status: ptr(domain.StatusFilled), NewDocentID: ptr(f.otherNew.ID)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Update(ctx, f.seasoned, v.ID, patch)
			assert.ErrorIs(t, err, domain.ErrForbidden)
		})
	}

	cur, err := f.store.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequested, cur.Status)
	assert.Empty(t, cur.Notes)
	assert.Zero(t, f.notifier.count())

	res, err := f.svc.Update(ctx, f.seasoned, v.ID, domain.TagRequestPatch{
		Status: ptr(domain.StatusFilled), SeasonedDocentID: ptr(f.seasoned.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.TagRequest.Status)
}

func TestUpdateDispatchNewDocentCancelOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.request(t, f.newDocent, 5, domain.SlotAM)

	_, err := f.svc.Update(ctx, f.newDocent, v.ID, domain.TagRequestPatch{
		Status: ptr(domain.StatusCancelled), TimeSlot: ptr(domain.SlotPM),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.store.Get(ctx, v.ID)
	assert.NoError(t, err)
}

func TestListRangeVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	open := f.request(t, f.otherNew, 3, domain.SlotAM)
	mineFilled := f.filled(t, f.newDocent, 3, domain.SlotPM)
	othersFilled := f.filled(t, f.otherNew, 4, domain.SlotPM)

	ids := func(list []TagRequestView) []int64 {
		out := []int64{}
		for _, v := range list {
			out = append(out, v.ID)
		}
		return out
	}

	got, err := f.svc.ListRange(ctx, f.newDocent, day(0), day(34))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{open.ID, mineFilled.ID}, ids(got))

	got, err = f.svc.ListRange(ctx, f.otherSeasoned, day(0), day(34))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{open.ID}, ids(got))

	got, err = f.svc.ListRange(ctx, f.seasoned, day(0), day(34))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{open.ID, mineFilled.ID, othersFilled.ID}, ids(got))

	got, err = f.svc.ListRange(ctx, f.coordinator, day(3), day(3))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{open.ID, mineFilled.ID}, ids(got))
}

func TestListRangeValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ListRange(ctx, f.newDocent, day(5), day(4))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.ListRange(ctx, f.newDocent, day(0), day(120))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.ListRange(ctx, f.newDocent, day(0), day(119))
	assert.NoError(t, err)
	_, err = f.svc.ListRange(ctx, f.newDocent, domain.Date{}, day(1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListMine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mine := f.request(t, f.newDocent, 3, domain.SlotAM)
	accepted := f.filled(t, f.otherNew, 3, domain.SlotPM)
	far := f.request(t, f.otherNew, 90, domain.SlotAM)

	got, err := f.svc.ListMine(ctx, f.newDocent)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)

	got, err = f.svc.ListMine(ctx, f.seasoned)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, accepted.ID, got[0].ID)

	got, err = f.svc.ListMine(ctx, f.otherSeasoned)
	require.NoError(t, err)
	assert.Empty(t, got)

	// 协调员窗口：前一个月到后两个月，90 天后的不在内
	got, err = f.svc.ListMine(ctx, f.coordinator)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, v := range got {
		assert.NotEqual(t, far.ID, v.ID)
	}
}

func TestCalendar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.request(t, f.newDocent, 3, domain.SlotAM)

	cal, err := f.svc.Calendar(ctx, f.newDocent, domain.Date{})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-11", cal.Start.String())
	assert.Equal(t, "2026-11-14", cal.End.String())
	assert.Equal(t, "2026-10-15", cal.Today.String())
	assert.Len(t, cal.Days, 35)
	require.Len(t, cal.TagRequests, 1)
	require.NotNil(t, cal.TagRequests[0].NewDocent)

	cal, err = f.svc.Calendar(ctx, f.newDocent, domain.MustParseDate("2026-12-25"))
	require.NoError(t, err)
	assert.Equal(t, "2026-12-20", cal.Start.String())
	assert.Empty(t, cal.TagRequests)
}
