package router

import (
	"github.com/gin-gonic/gin"

	"docent-tagalong/internal/domain"
	mdw "docent-tagalong/internal/transport/http/middleware"
)

func NewAdminEngine(d Deps) *gin.Engine {
	r := base(d)

	// 管理端 v1（统一要求 coordinator 角色）
	admin := r.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(d.JWT, d.Users, domain.RoleCoordinator))

	d.Registry.MountAllAdmin(admin)
	return r
}
