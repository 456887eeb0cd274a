package ez

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docent-tagalong/internal/domain"
	resp "docent-tagalong/internal/transport/http/response"
)

// 上下文 key，由鉴权中间件写入
const (
	KeyUserID = "userId"
	KeyRole   = "role"
	KeyActor  = "actor"
)

type EZ struct{ g *gin.RouterGroup }

func New(g *gin.RouterGroup) EZ { return EZ{g: g} }

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

// 统一错误对象（配合 resp.Error(int, msg)）
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) error    { return &AErr{Code: resp.CodeForbidden, Msg: msg} }
func NotFound(msg string) error     { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Conflict(msg string) error     { return &AErr{Code: resp.CodeConflict, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// Classify 把业务错误映射成 AErr；未知错误一律 500，不向外暴露细节
func Classify(err error) *AErr {
	var ae *AErr
	if errors.As(err, &ae) {
		return ae
	}
	code := resp.CodeServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = resp.CodeNotFound
	case errors.Is(err, domain.ErrForbidden):
		code = resp.CodeForbidden
	case errors.Is(err, domain.ErrNotAvailable), errors.Is(err, domain.ErrFilledRequest):
		code = resp.CodeConflict
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrAccountLocked):
		code = resp.CodeUnauthorized
	case errors.Is(err, domain.ErrPastDate), errors.Is(err, domain.ErrDuplicateSlot),
		errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrInvalidToken):
		code = resp.CodeBadRequest
	default:
		return &AErr{Code: code, Msg: "internal error", Err: err}
	}
	return &AErr{Code: code, Msg: err.Error(), Err: err}
}

// 动作定义：I 入参，O 出参
type Action[I any, O any] struct {
	Method  string        // GET | POST | PUT | PATCH | DELETE
	Path    string        // 例："/auth/login"、"/tag-requests/:id/accept"
	Binder  Binder        // 绑定方式
	Auth    bool          // 是否要求登录（检查 userId）
	Roles   []domain.Role // 限定角色（可选）
	Handler func(c *gin.Context, in *I) (O, error)
}

// RegisterAction 在当前 EZ 下注册动作接口
func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		// 1) 鉴权/角色
		if a.Auth || len(a.Roles) > 0 {
			if c.GetInt64(KeyUserID) == 0 {
				resp.Write(c, resp.Error(resp.CodeUnauthorized, "unauthorized"))
				return
			}
			if len(a.Roles) > 0 && !slices.Contains(a.Roles, domain.Role(c.GetString(KeyRole))) {
				resp.Write(c, resp.Error(resp.CodeForbidden, "forbidden"))
				return
			}
		}

		// 2) 绑定入参
		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		default: // BindNone: 不绑定
		}
		if bindErr != nil {
			resp.Write(c, resp.Error(resp.CodeBadRequest, bindErr.Error()))
			return
		}

		// 3) 执行 + 统一错误映射
		out, err := a.Handler(c, &in)
		if err != nil {
			ae := Classify(err)
			if ae.Code >= resp.CodeServerError {
				_ = c.Error(err)
			}
			resp.Write(c, resp.Error(ae.Code, ae.Error()))
			return
		}
		resp.Write(c, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodPatch:
		e.g.PATCH(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}

// ParamID 读取路径里的正整数 id
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequest("invalid " + name)
	}
	return id, nil
}

// Actor 当前登录用户（鉴权中间件写入）
func Actor(c *gin.Context) (domain.User, error) {
	v, ok := c.Get(KeyActor)
	if !ok {
		return domain.User{}, Unauthorized("unauthorized")
	}
	u, ok := v.(domain.User)
	if !ok {
		return domain.User{}, Unauthorized("unauthorized")
	}
	return u, nil
}
