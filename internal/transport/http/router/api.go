package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docent-tagalong/internal/core/auth"
	"docent-tagalong/internal/core/server"
	"docent-tagalong/internal/domain"
	mdw "docent-tagalong/internal/transport/http/middleware"
)

// Deps 两个引擎共用的依赖
type Deps struct {
	Logger       *zap.Logger
	JWT          *auth.JWTer
	Users        domain.UserDirectory // 鉴权时解析当前用户
	Registry     *Registry
	AllowOrigins []string
}

// base 公共中间件 + /health + /metrics
func base(d Deps) *gin.Engine {
	r := server.NewRouter(d.Logger, d.AllowOrigins)

	// 中间件
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(200, 400),
		mdw.ConcurrencyLimit(300),
		mdw.MaxBodyBytes(16<<20),
		mdw.Timeout(10*time.Second),
		mdw.SimpleRecovery(d.Logger),
		mdw.Metrics(),
		mdw.AccessLog(d.Logger),
	)

	// 健康检查
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func NewAPIEngine(d Deps) *gin.Engine {
	r := base(d)

	// 前缀
	api := r.Group("/api/v1")

	// 鉴权分组（/me 及所有请求接口挂这里，才能拿到当前用户）
	authUser := api.Group("")
	authUser.Use(mdw.AuthJWT(d.JWT, d.Users, ""))

	d.Registry.MountAllAPI(api, authUser)
	return r
}
