package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"docent-tagalong/internal/core/auth"
	"docent-tagalong/internal/domain"
	"docent-tagalong/internal/transport/http/ez"
	resp "docent-tagalong/internal/transport/http/response"
)

// AuthJWT 校验 Bearer token，并把当前用户写入上下文；
// requireRole 为空表示只要求登录
func AuthJWT(j *auth.JWTer, users domain.UserDirectory, requireRole domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if !strings.HasPrefix(ah, "Bearer ") {
			resp.Abort(c, resp.CodeUnauthorized, "missing token")
			return
		}
		claims, err := j.Parse(strings.TrimPrefix(ah, "Bearer "))
		if err != nil {
			resp.Abort(c, resp.CodeUnauthorized, "invalid token")
			return
		}
		// 角色以库里为准，token 签发后被改角色/删除要立即生效
		u, err := users.GetUser(c.Request.Context(), claims.UID)
		if err != nil {
			_ = c.Error(err)
			resp.Abort(c, resp.CodeServerError, "internal error")
			return
		}
		if u == nil {
			resp.Abort(c, resp.CodeUnauthorized, "unknown user")
			return
		}
		if requireRole != "" && u.Role != requireRole {
			resp.Abort(c, resp.CodeForbidden, "forbidden")
			return
		}
		c.Set("claims", claims)
		c.Set(ez.KeyUserID, u.ID)
		c.Set(ez.KeyRole, string(u.Role))
		c.Set(ez.KeyActor, *u)
		c.Next()
	}
}
