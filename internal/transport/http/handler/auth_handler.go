package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/service"
	"docent-tagalong/internal/transport/http/ez"
)

// AuthHandler 登录/注册/找回密码/me
type AuthHandler struct {
	users *service.UserService
	// 公开接口额外挂的中间件（按 IP 限速）
	guard []gin.HandlerFunc
}

func NewAuthHandler(users *service.UserService, guard ...gin.HandlerFunc) *AuthHandler {
	return &AuthHandler{users: users, guard: guard}
}

func (h *AuthHandler) Priority() int { return 10 }

type loginIn struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type registerIn struct {
	Email     string  `json:"email"     binding:"required,email"`
	Password  string  `json:"password"  binding:"required"`
	FirstName string  `json:"firstName" binding:"required,max=64"`
	LastName  string  `json:"lastName"  binding:"required,max=64"`
	Phone     *string `json:"phone"     binding:"omitempty,max=32"`
}

type resetIn struct {
	Email string `json:"email" binding:"required,email"`
}

type resetConfirmIn struct {
	Token    string `json:"token"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type okOut struct {
	OK bool `json:"ok"`
}

func (h *AuthHandler) MountAPI(public, authed *gin.RouterGroup) {
	pub := ez.New(public.Group("", h.guard...))

	ez.RegisterAction(pub, ez.Action[loginIn, *service.LoginResult]{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *loginIn) (*service.LoginResult, error) {
			return h.users.Login(c.Request.Context(), in.Email, in.Password)
		},
	})

	ez.RegisterAction(pub, ez.Action[registerIn, *domain.User]{
		Method: http.MethodPost,
		Path:   "/auth/register",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *registerIn) (*domain.User, error) {
			return h.users.Register(c.Request.Context(), service.UserInput{
				Email:     in.Email,
				Password:  in.Password,
				FirstName: in.FirstName,
				LastName:  in.LastName,
				Phone:     in.Phone,
			})
		},
	})

	// 无论邮箱是否存在都返回成功
	ez.RegisterAction(pub, ez.Action[resetIn, okOut]{
		Method: http.MethodPost,
		Path:   "/auth/password-reset",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *resetIn) (okOut, error) {
			if err := h.users.RequestPasswordReset(c.Request.Context(), in.Email); err != nil {
				return okOut{}, err
			}
			return okOut{OK: true}, nil
		},
	})

	ez.RegisterAction(pub, ez.Action[resetConfirmIn, okOut]{
		Method: http.MethodPost,
		Path:   "/auth/password-reset/confirm",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *resetConfirmIn) (okOut, error) {
			if err := h.users.ResetPassword(c.Request.Context(), in.Token, in.Password); err != nil {
				return okOut{}, err
			}
			return okOut{OK: true}, nil
		},
	})

	ez.RegisterAction(ez.New(authed), ez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/me",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			return h.users.Me(c.Request.Context(), c.GetInt64(ez.KeyUserID))
		},
	})
}
