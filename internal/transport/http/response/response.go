package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Resp 统一信封；HTTP 状态码恒为 200，结果看 code
type Resp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

// New data 为 nil 时输出 {}，前端不用判 null
func New(code int, msg string, data any) Resp {
	if data == nil {
		data = struct{}{}
	}
	return Resp{Code: code, Msg: msg, Data: data}
}

func OK(data any) Resp {
	return New(CodeOK, CodeMsgMap[CodeOK], data)
}

// Error msg 为空时用 code 的默认文案，未登记的 code 统一 "error"
func Error(code int, msg string) Resp {
	if msg == "" {
		msg = CodeMsgMap[code]
	}
	if msg == "" {
		msg = "error"
	}
	return New(code, msg, nil)
}

const ctxCode = "resp.code"

// Write 写出信封并记下 code，供指标中间件读取
func Write(c *gin.Context, r Resp) {
	c.Set(ctxCode, r.Code)
	c.JSON(http.StatusOK, r)
}

// Abort 中间件拦截请求时用
func Abort(c *gin.Context, code int, msg string) {
	c.Set(ctxCode, code)
	c.AbortWithStatusJSON(http.StatusOK, Error(code, msg))
}

// CodeOf 本次请求写出的信封 code；没走信封（健康检查、gin 的 404）时 ok 为 false
func CodeOf(c *gin.Context) (int, bool) {
	v, ok := c.Get(ctxCode)
	if !ok {
		return 0, false
	}
	code, ok := v.(int)
	return code, ok
}
