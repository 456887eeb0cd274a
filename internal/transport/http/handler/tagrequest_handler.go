package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/service"
	"docent-tagalong/internal/transport/http/ez"
)

// TagRequestHandler 讲解员跟岗请求接口，挂在 /api/v1 鉴权分组
type TagRequestHandler struct {
	svc *service.TagRequestService
}

func NewTagRequestHandler(svc *service.TagRequestService) *TagRequestHandler {
	return &TagRequestHandler{svc: svc}
}

func (h *TagRequestHandler) Priority() int { return 20 }

type rangeQ struct {
	StartDate string `form:"startDate" binding:"required"`
	EndDate   string `form:"endDate"   binding:"required"`
}

type calendarQ struct {
	Date string `form:"date"`
}

type createIn struct {
	Date        domain.Date     `json:"date"`
	TimeSlot    domain.TimeSlot `json:"timeSlot" binding:"required"`
	NewDocentID *int64          `json:"newDocentId"`
	Notes       string          `json:"notes"    binding:"max=500"`
}

type deleteOut struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

// parseDateParam 空串返回零值
func parseDateParam(name, s string) (domain.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Date{}, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return domain.Date{}, ez.BadRequest("invalid " + name)
	}
	return d, nil
}

func (h *TagRequestHandler) MountAPI(_, authed *gin.RouterGroup) {
	e := ez.New(authed)

	ez.RegisterAction(e, ez.Action[calendarQ, *service.CalendarView]{
		Method: http.MethodGet,
		Path:   "/calendar",
		Binder: ez.BindQuery,
		Auth:   true,
		Handler: func(c *gin.Context, in *calendarQ) (*service.CalendarView, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			ref, err := parseDateParam("date", in.Date)
			if err != nil {
				return nil, err
			}
			return h.svc.Calendar(c.Request.Context(), actor, ref)
		},
	})

	ez.RegisterAction(e, ez.Action[rangeQ, []service.TagRequestView]{
		Method: http.MethodGet,
		Path:   "/tag-requests",
		Binder: ez.BindQuery,
		Auth:   true,
		Handler: func(c *gin.Context, in *rangeQ) ([]service.TagRequestView, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			start, err := parseDateParam("startDate", in.StartDate)
			if err != nil {
				return nil, err
			}
			end, err := parseDateParam("endDate", in.EndDate)
			if err != nil {
				return nil, err
			}
			return h.svc.ListRange(c.Request.Context(), actor, start, end)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, []service.TagRequestView]{
		Method: http.MethodGet,
		Path:   "/my-tag-requests",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) ([]service.TagRequestView, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			return h.svc.ListMine(c.Request.Context(), actor)
		},
	})

	ez.RegisterAction(e, ez.Action[createIn, *service.TagRequestView]{
		Method: http.MethodPost,
		Path:   "/tag-requests",
		Binder: ez.BindJSON,
		Roles:  []domain.Role{domain.RoleNewDocent, domain.RoleCoordinator},
		Handler: func(c *gin.Context, in *createIn) (*service.TagRequestView, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			return h.svc.Create(c.Request.Context(), actor, service.CreateTagRequest{
				Date:        in.Date,
				TimeSlot:    in.TimeSlot,
				NewDocentID: in.NewDocentID,
				Notes:       in.Notes,
			})
		},
	})

	// PATCH 按角色分派：资深讲解员=认领，协调员=修改，新讲解员只能取消自己的
	ez.RegisterAction(e, ez.Action[domain.TagRequestPatch, *service.UpdateResult]{
		Method: http.MethodPatch,
		Path:   "/tag-requests/:id",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *domain.TagRequestPatch) (*service.UpdateResult, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			id, err := ez.ParamID(c, "id")
			if err != nil {
				return nil, err
			}
			return h.svc.Update(c.Request.Context(), actor, id, *in)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *service.TagRequestView]{
		Method: http.MethodPost,
		Path:   "/tag-requests/:id/accept",
		Binder: ez.BindNone,
		Roles:  []domain.Role{domain.RoleSeasonedDocent},
		Handler: func(c *gin.Context, _ *struct{}) (*service.TagRequestView, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			id, err := ez.ParamID(c, "id")
			if err != nil {
				return nil, err
			}
			return h.svc.Accept(c.Request.Context(), actor, id)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, deleteOut]{
		Method: http.MethodDelete,
		Path:   "/tag-requests/:id",
		Binder: ez.BindNone,
		Roles:  []domain.Role{domain.RoleNewDocent, domain.RoleCoordinator},
		Handler: func(c *gin.Context, _ *struct{}) (deleteOut, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return deleteOut{}, err
			}
			id, err := ez.ParamID(c, "id")
			if err != nil {
				return deleteOut{}, err
			}
			if err := h.svc.Delete(c.Request.Context(), actor, id); err != nil {
				return deleteOut{}, err
			}
			return deleteOut{ID: id, Deleted: true}, nil
		},
	})
}
