package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/notify"
	"docent-tagalong/internal/schedule"
)

type DocentSummary struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
}

func summarize(u *domain.User) *DocentSummary {
	return &DocentSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email, Phone: u.Phone}
}

// TagRequestView 对外返回的请求，附带双方讲解员信息
type TagRequestView struct {
	domain.TagRequest
	NewDocent      *DocentSummary `json:"newDocent,omitempty"`
	SeasonedDocent *DocentSummary `json:"seasonedDocent,omitempty"`
}

type CreateTagRequest struct {
	Date        domain.Date
	TimeSlot    domain.TimeSlot
	NewDocentID *int64
	Notes       string
}

type UpdateResult struct {
	TagRequest *TagRequestView `json:"tagRequest,omitempty"`
	Deleted    bool            `json:"deleted"`
}

type CalendarView struct {
	Start       domain.Date      `json:"startDate"`
	End         domain.Date      `json:"endDate"`
	Today       domain.Date      `json:"today"`
	Days        []schedule.Day   `json:"days"`
	TagRequests []TagRequestView `json:"tagRequests"`
}

type TagRequestDeps struct {
	Store    domain.TagRequestStore
	Users    domain.UserDirectory
	Policy   schedule.Policy
	Notifier notify.Notifier
	Logger   *zap.Logger
	// 0 表示不限制
	MaxRangeDays int
	// 补全讲解员信息时的并发查询数
	LookupConcurrency int
}

// TagRequestService 状态机 + 授权：每个写操作的前置条件都在存储的 guard 里检查
type TagRequestService struct {
	store        domain.TagRequestStore
	users        domain.UserDirectory
	policy       schedule.Policy
	notifier     notify.Notifier
	log          *zap.Logger
	maxRangeDays int
	lookups      int
}

func NewTagRequestService(d TagRequestDeps) *TagRequestService {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.LookupConcurrency <= 0 {
		d.LookupConcurrency = 8
	}
	return &TagRequestService{
		store:        d.Store,
		users:        d.Users,
		policy:       d.Policy,
		notifier:     d.Notifier,
		log:          d.Logger.Named("tagrequest"),
		maxRangeDays: d.MaxRangeDays,
		lookups:      d.LookupConcurrency,
	}
}

func (s *TagRequestService) Create(ctx context.Context, actor domain.User, in CreateTagRequest) (*TagRequestView, error) {
	owner := actor.ID
	switch actor.Role {
	case domain.RoleNewDocent:
		if in.NewDocentID != nil && *in.NewDocentID != actor.ID {
			return nil, fmt.Errorf("%w: new docents can only request tags for themselves", domain.ErrForbidden)
		}
	case domain.RoleCoordinator:
		if in.NewDocentID != nil && *in.NewDocentID != actor.ID {
			u, err := s.users.GetUser(ctx, *in.NewDocentID)
			if err != nil {
				return nil, fmt.Errorf("service.TagRequest.Create: %w", err)
			}
			if u == nil || u.Role != domain.RoleNewDocent {
				return nil, fmt.Errorf("%w: user %d is not a new docent", domain.ErrInvalidInput, *in.NewDocentID)
			}
			owner = u.ID
		}
	default:
		return nil, fmt.Errorf("%w: only new docents and coordinators can request tags", domain.ErrForbidden)
	}

	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", domain.ErrInvalidInput)
	}
	if !in.TimeSlot.Valid() {
		return nil, fmt.Errorf("%w: timeSlot must be AM or PM", domain.ErrInvalidInput)
	}
	if err := s.policy.CheckCreate(in.Date); err != nil {
		return nil, err
	}

	tr, err := s.store.Create(ctx, domain.NewTagRequest{
		Date:        in.Date,
		TimeSlot:    in.TimeSlot,
		NewDocentID: owner,
		Notes:       in.Notes,
	})
	if err != nil {
		return nil, err
	}
	tagTransitions.WithLabelValues("created").Inc()
	s.log.Info("tag request created",
		zap.Int64("id", tr.ID), zap.Stringer("slot", tr.Slot()),
		zap.Int64("new_docent_id", tr.NewDocentID), zap.Int64("actor_id", actor.ID))
	return s.enrichOne(ctx, *tr), nil
}

// Accept 资深讲解员接受请求；并发接受同一条时只有一个成功
func (s *TagRequestService) Accept(ctx context.Context, actor domain.User, id int64) (*TagRequestView, error) {
	if actor.Role != domain.RoleSeasonedDocent {
		return nil, fmt.Errorf("%w: only seasoned docents can accept tag requests", domain.ErrForbidden)
	}
	filled, seasoned := domain.StatusFilled, actor.ID
	tr, err := s.store.Update(ctx, id, domain.TagRequestPatch{Status: &filled, SeasonedDocentID: &seasoned},
		func(cur domain.TagRequest) error {
			if cur.Status != domain.StatusRequested {
				return fmt.Errorf("%w: tag request %d is %s", domain.ErrNotAvailable, cur.ID, cur.Status)
			}
			return s.policy.CheckChange(cur.Date, "accept")
		})
	if err != nil {
		return nil, err
	}
	tagTransitions.WithLabelValues("accepted").Inc()
	s.log.Info("tag request accepted", zap.Int64("id", tr.ID), zap.Int64("seasoned_docent_id", actor.ID))
	s.notifier.NotifyFilled(notify.TagFilled{TagRequest: *tr})
	return s.enrichOne(ctx, *tr), nil
}

// CoordinatorUpdate 协调员可改任意字段，不受日期与状态前置条件限制，但仍受记录不变量约束
func (s *TagRequestService) CoordinatorUpdate(ctx context.Context, actor domain.User, id int64, patch domain.TagRequestPatch) (*TagRequestView, error) {
	if actor.Role != domain.RoleCoordinator {
		return nil, fmt.Errorf("%w: only coordinators can edit tag requests", domain.ErrForbidden)
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}
	if err := s.checkPatchUsers(ctx, patch); err != nil {
		return nil, err
	}

	var before domain.Status
	tr, err := s.store.Update(ctx, id, patch, func(cur domain.TagRequest) error {
		before = cur.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	tagTransitions.WithLabelValues("coordinator_updated").Inc()
	s.log.Info("tag request updated by coordinator", zap.Int64("id", tr.ID), zap.Int64("actor_id", actor.ID))
	if before == domain.StatusRequested && tr.Status == domain.StatusFilled {
		s.notifier.NotifyFilled(notify.TagFilled{TagRequest: *tr})
	}
	return s.enrichOne(ctx, *tr), nil
}

func (s *TagRequestService) checkPatchUsers(ctx context.Context, patch domain.TagRequestPatch) error {
	check := func(id *int64, role domain.Role, field string) error {
		if id == nil {
			return nil
		}
		u, err := s.users.GetUser(ctx, *id)
		if err != nil {
			return fmt.Errorf("service.TagRequest.CoordinatorUpdate: %w", err)
		}
		if u == nil || u.Role != role {
			return fmt.Errorf("%w: %s %d is not a %s", domain.ErrInvalidInput, field, *id, role)
		}
		return nil
	}
	if err := check(patch.NewDocentID, domain.RoleNewDocent, "newDocentId"); err != nil {
		return err
	}
	return check(patch.SeasonedDocentID, domain.RoleSeasonedDocent, "seasonedDocentId")
}

// Update 按角色分派 PATCH：资深讲解员置 filled 即接受，新讲解员置 cancelled 即删除
func (s *TagRequestService) Update(ctx context.Context, actor domain.User, id int64, patch domain.TagRequestPatch) (*UpdateResult, error) {
	cancel := statusOnly(patch, domain.StatusCancelled) && patch.SeasonedDocentID == nil
	switch actor.Role {
	case domain.RoleCoordinator:
		if cancel {
			return s.cancel(ctx, actor, id)
		}
		if patch.Status != nil && *patch.Status == domain.StatusCancelled {
			return nil, fmt.Errorf("%w: cancelling cannot be combined with other changes", domain.ErrInvalidInput)
		}
		v, err := s.CoordinatorUpdate(ctx, actor, id, patch)
		if err != nil {
			return nil, err
		}
		return &UpdateResult{TagRequest: v}, nil
	case domain.RoleSeasonedDocent:
		if statusOnly(patch, domain.StatusFilled) &&
			(patch.SeasonedDocentID == nil || *patch.SeasonedDocentID == actor.ID) {
			v, err := s.Accept(ctx, actor, id)
			if err != nil {
				return nil, err
			}
			return &UpdateResult{TagRequest: v}, nil
		}
	case domain.RoleNewDocent:
		if cancel {
			return s.cancel(ctx, actor, id)
		}
	}
	return nil, fmt.Errorf("%w: this change is not allowed for %s", domain.ErrForbidden, actor.Role)
}

// statusOnly 补丁只改 status（seasonedDocentId 由调用方单独判断）
func statusOnly(p domain.TagRequestPatch, want domain.Status) bool {
	return p.Status != nil && *p.Status == want &&
		p.Date == nil && p.TimeSlot == nil && p.NewDocentID == nil && p.Notes == nil
}

func (s *TagRequestService) cancel(ctx context.Context, actor domain.User, id int64) (*UpdateResult, error) {
	if err := s.Delete(ctx, actor, id); err != nil {
		return nil, err
	}
	return &UpdateResult{Deleted: true}, nil
}

func (s *TagRequestService) Delete(ctx context.Context, actor domain.User, id int64) error {
	var guard domain.Guard
	switch actor.Role {
	case domain.RoleCoordinator:
	case domain.RoleNewDocent:
		guard = func(cur domain.TagRequest) error {
			if cur.NewDocentID != actor.ID {
				return fmt.Errorf("%w: tag request %d belongs to another docent", domain.ErrForbidden, cur.ID)
			}
			if cur.Status != domain.StatusRequested {
				return fmt.Errorf("%w: ask a coordinator to cancel tag request %d", domain.ErrFilledRequest, cur.ID)
			}
			return s.policy.CheckChange(cur.Date, "cancel")
		}
	default:
		return fmt.Errorf("%w: only the requesting docent or a coordinator can cancel a tag request", domain.ErrForbidden)
	}

	existed, err := s.store.Delete(ctx, id, guard)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("%w: tag request %d", domain.ErrNotFound, id)
	}
	tagTransitions.WithLabelValues("deleted").Inc()
	s.log.Info("tag request deleted", zap.Int64("id", id), zap.Int64("actor_id", actor.ID))
	return nil
}

func (s *TagRequestService) ListRange(ctx context.Context, actor domain.User, start, end domain.Date) ([]TagRequestView, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: startDate and endDate are required", domain.ErrInvalidInput)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: endDate %s is before startDate %s", domain.ErrInvalidInput, end, start)
	}
	if s.maxRangeDays > 0 && start.DaysUntil(end)+1 > s.maxRangeDays {
		return nil, fmt.Errorf("%w: date range longer than %d days", domain.ErrInvalidInput, s.maxRangeDays)
	}
	list, err := s.store.ListByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, filter(list, func(tr domain.TagRequest) bool { return VisibleTo(actor, tr) })), nil
}

func (s *TagRequestService) ListMine(ctx context.Context, actor domain.User) ([]TagRequestView, error) {
	var (
		list []domain.TagRequest
		err  error
	)
	switch actor.Role {
	case domain.RoleNewDocent:
		list, err = s.store.ListByNewDocent(ctx, actor.ID)
	case domain.RoleSeasonedDocent:
		list, err = s.store.ListBySeasonedDocent(ctx, actor.ID)
	case domain.RoleCoordinator:
		today := s.policy.Today()
		list, err = s.store.ListByDateRange(ctx, today.AddMonths(-1), today.AddMonths(2))
	default:
		return []TagRequestView{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, filter(list, func(tr domain.TagRequest) bool {
		return OwnedBy(actor, tr) && VisibleTo(actor, tr)
	})), nil
}

// Calendar ref 为零值时取今天
func (s *TagRequestService) Calendar(ctx context.Context, actor domain.User, ref domain.Date) (*CalendarView, error) {
	if ref.IsZero() {
		ref = s.policy.Today()
	}
	r := schedule.ResolveRange(ref)
	list, err := s.ListRange(ctx, actor, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return &CalendarView{
		Start:       r.Start,
		End:         r.End,
		Today:       s.policy.Today(),
		Days:        s.policy.Classify(r),
		TagRequests: list,
	}, nil
}

func (s *TagRequestService) enrichOne(ctx context.Context, tr domain.TagRequest) *TagRequestView {
	out := s.enrich(ctx, []domain.TagRequest{tr})
	return &out[0]
}

// enrich 并发查询讲解员；查询失败只记日志，结果里缺少对应信息
func (s *TagRequestService) enrich(ctx context.Context, list []domain.TagRequest) []TagRequestView {
	ids := make(map[int64]struct{})
	for _, tr := range list {
		ids[tr.NewDocentID] = struct{}{}
		if tr.SeasonedDocentID != nil {
			ids[*tr.SeasonedDocentID] = struct{}{}
		}
	}

	var mu sync.Mutex
	people := make(map[int64]*DocentSummary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.lookups)
	for id := range ids {
		g.Go(func() error {
			u, err := s.users.GetUser(gctx, id)
			if err != nil {
				return fmt.Errorf("user %d: %w", id, err)
			}
			if u != nil {
				mu.Lock()
				people[id] = summarize(u)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("docent lookup failed", zap.Error(err))
	}

	out := make([]TagRequestView, 0, len(list))
	for _, tr := range list {
		v := TagRequestView{TagRequest: tr, NewDocent: people[tr.NewDocentID]}
		if tr.SeasonedDocentID != nil {
			v.SeasonedDocent = people[*tr.SeasonedDocentID]
		}
		out = append(out, v)
	}
	return out
}
