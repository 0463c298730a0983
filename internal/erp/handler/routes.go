package handler

import (
	"github.com/bitfantasy/backoffice/internal/config"
	"github.com/bitfantasy/backoffice/internal/erp/service"
	"github.com/bitfantasy/backoffice/internal/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes master-data screens plus the JSON API
func RegisterRoutes(r *gin.Engine, h *Handlers, cfg *config.Config) error {
	// master-data screens: cookie session, form posts guarded by CSRF
	screens := r.Group("")
	screens.Use(middleware.JWTAuth(cfg.JWT.Secret))
	screens.Use(middleware.CSRF(cfg.Cookie.Secure))
	{
		for _, res := range service.Resources() {
			h.Master.Register(screens, res)
		}
		h.UOM.Register(screens)
		h.SKU.Register(screens)
	}

	limit, err := middleware.RateLimit(cfg.Translation.RateLimit)
	if err != nil {
		return err
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		v1.POST("/translate", limit, h.Translate.Translate)

		approvals := v1.Group("/approvals")
		{
			approvals.GET("", h.Approval.List)
			approvals.GET("/stream", middleware.RequireRole("admin"), h.Approval.Stream)
			approvals.GET("/:id", h.Approval.Get)
			approvals.POST("", h.Approval.Draft, h.Approval.Intercept(), h.Approval.Submitted)
			approvals.POST("/:id/approve", middleware.RequireRole("admin"), h.Approval.Approve)
			approvals.POST("/:id/reject", middleware.RequireRole("admin"), h.Approval.Reject)
		}
	}
	return nil
}
