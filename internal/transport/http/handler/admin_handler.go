package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/service"
	"docent-tagalong/internal/transport/http/ez"
)

// AdminUserHandler 管理端用户维护，挂在 /admin/v1（分组已要求协调员）
type AdminUserHandler struct {
	users *service.UserService
}

func NewAdminUserHandler(users *service.UserService) *AdminUserHandler {
	return &AdminUserHandler{users: users}
}

type listQ struct {
	Page int `form:"page,default=1"`
	Size int `form:"size,default=50"`
}

type bulkIn struct {
	Users []service.UserInput `json:"users" binding:"required,max=1000"`
}

func (h *AdminUserHandler) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin)
	coord := []domain.Role{domain.RoleCoordinator}

	ez.RegisterAction(e, ez.Action[listQ, *service.UserPage]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: ez.BindQuery,
		Roles:  coord,
		Handler: func(c *gin.Context, in *listQ) (*service.UserPage, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			return h.users.ListUsers(c.Request.Context(), actor, in.Page, in.Size)
		},
	})

	// 未给密码的账号需走找回密码才能登录
	ez.RegisterAction(e, ez.Action[service.UserInput, *domain.User]{
		Method: http.MethodPost,
		Path:   "/users",
		Binder: ez.BindJSON,
		Roles:  coord,
		Handler: func(c *gin.Context, in *service.UserInput) (*domain.User, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			return h.users.CreateUser(c.Request.Context(), actor, *in)
		},
	})

	ez.RegisterAction(e, ez.Action[service.UserPatch, *domain.User]{
		Method: http.MethodPatch,
		Path:   "/users/:id",
		Binder: ez.BindJSON,
		Roles:  coord,
		Handler: func(c *gin.Context, in *service.UserPatch) (*domain.User, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			id, err := ez.ParamID(c, "id")
			if err != nil {
				return nil, err
			}
			return h.users.UpdateUser(c.Request.Context(), actor, id, *in)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, deleteOut]{
		Method: http.MethodDelete,
		Path:   "/users/:id",
		Binder: ez.BindNone,
		Roles:  coord,
		Handler: func(c *gin.Context, _ *struct{}) (deleteOut, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return deleteOut{}, err
			}
			id, err := ez.ParamID(c, "id")
			if err != nil {
				return deleteOut{}, err
			}
			if err := h.users.DeleteUser(c.Request.Context(), actor, id); err != nil {
				return deleteOut{}, err
			}
			return deleteOut{ID: id, Deleted: true}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[bulkIn, *service.BulkResult]{
		Method: http.MethodPost,
		Path:   "/users/bulk",
		Binder: ez.BindJSON,
		Roles:  coord,
		Handler: func(c *gin.Context, in *bulkIn) (*service.BulkResult, error) {
			actor, err := ez.Actor(c)
			if err != nil {
				return nil, err
			}
			return h.users.BulkCreate(c.Request.Context(), actor, in.Users)
		},
	})
}
