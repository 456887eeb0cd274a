package repo

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"docent-tagalong/internal/domain"
)

// MemTagRequestStore 进程内实现；一把读写锁串行化全部写操作
type MemTagRequestStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]domain.TagRequest
	slots  map[string]int64
	now    func() time.Time
}

func NewMemTagRequestStore() *MemTagRequestStore {
	return &MemTagRequestStore{
		rows:  make(map[int64]domain.TagRequest),
		slots: make(map[string]int64),
		now:   time.Now,
	}
}

var _ domain.TagRequestStore = (*MemTagRequestStore)(nil)

func cloneTag(t domain.TagRequest) domain.TagRequest {
	if t.SeasonedDocentID != nil {
		id := *t.SeasonedDocentID
		t.SeasonedDocentID = &id
	}
	return t
}

func (s *MemTagRequestStore) Create(_ context.Context, in domain.NewTagRequest) (*domain.TagRequest, error) {
	tr := in.Build(s.now())
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.slots[tr.SlotKey()]; taken {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateSlot, tr.Slot())
	}
	s.nextID++
	tr.ID = s.nextID
	s.rows[tr.ID] = tr
	s.slots[tr.SlotKey()] = tr.ID
	out := cloneTag(tr)
	return &out, nil
}

func (s *MemTagRequestStore) Get(_ context.Context, id int64) (*domain.TagRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: tag request %d", domain.ErrNotFound, id)
	}
	out := cloneTag(tr)
	return &out, nil
}

func (s *MemTagRequestStore) Update(_ context.Context, id int64, patch domain.TagRequestPatch, guard domain.Guard) (*domain.TagRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: tag request %d", domain.ErrNotFound, id)
	}
	if guard != nil {
		if err := guard(cloneTag(cur)); err != nil {
			return nil, err
		}
	}
	next := cloneTag(cur)
	patch.Apply(&next)
	next.UpdatedAt = s.now()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if owner, taken := s.slots[next.SlotKey()]; taken && owner != id {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateSlot, next.Slot())
	}
	delete(s.slots, cur.SlotKey())
	s.slots[next.SlotKey()] = id
	s.rows[id] = next
	out := cloneTag(next)
	return &out, nil
}

func (s *MemTagRequestStore) Delete(_ context.Context, id int64, guard domain.Guard) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	if guard != nil {
		if err := guard(cloneTag(cur)); err != nil {
			return false, err
		}
	}
	delete(s.slots, cur.SlotKey())
	delete(s.rows, id)
	return true, nil
}

func (s *MemTagRequestStore) filter(keep func(domain.TagRequest) bool) []domain.TagRequest {
	s.mu.RLock()
	out := make([]domain.TagRequest, 0)
	for _, tr := range s.rows {
		if keep(tr) {
			out = append(out, cloneTag(tr))
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.TagRequest) int {
		if c := a.Date.Time().Compare(b.Date.Time()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.TimeSlot, b.TimeSlot); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *MemTagRequestStore) ListByDateRange(_ context.Context, start, end domain.Date) ([]domain.TagRequest, error) {
	return s.filter(func(t domain.TagRequest) bool {
		return !t.Date.Before(start) && !t.Date.After(end)
	}), nil
}

func (s *MemTagRequestStore) ListByNewDocent(_ context.Context, newDocentID int64) ([]domain.TagRequest, error) {
	return s.filter(func(t domain.TagRequest) bool { return t.NewDocentID == newDocentID }), nil
}

func (s *MemTagRequestStore) ListBySeasonedDocent(_ context.Context, seasonedDocentID int64) ([]domain.TagRequest, error) {
	return s.filter(func(t domain.TagRequest) bool { return t.FilledBy(seasonedDocentID) }), nil
}

func (s *MemTagRequestStore) CountByDocent(_ context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, t := range s.rows {
		if t.NewDocentID == userID || t.FilledBy(userID) {
			n++
		}
	}
	return n, nil
}
