package handler

import (
	"github.com/bitfantasy/backoffice/internal/erp/service"
	"github.com/bitfantasy/backoffice/internal/middleware"
	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MasterHandler generic master-data screens, one route group per resource
type MasterHandler struct {
	svc       *service.MasterService
	approvals *service.ApprovalService
	perms     HardDeleteChecker
	screen
}

func NewMasterHandler(svc *service.MasterService, approvals *service.ApprovalService, perms HardDeleteChecker, s screen) *MasterHandler {
	return &MasterHandler{svc: svc, approvals: approvals, perms: perms, screen: s}
}

// Register mounts the screen of res on rg
func (h *MasterHandler) Register(rg *gin.RouterGroup, res service.Resource) {
	g := rg.Group(res.BasePath())
	g.GET("", h.List(res))
	g.GET("/new", h.New(res))
	g.GET("/:id", h.Get(res))
	g.POST("", h.Create(res))
	g.POST("/:id", h.Update(res))
	g.POST("/:id/toggle", h.Toggle(res))
	g.POST("/:id/delete", h.Delete(res))
}

func formSnapshot(c *gin.Context) map[string]interface{} {
	out := make(map[string]interface{}, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if k == middleware.CSRFField {
			continue
		}
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return out
}

func (h *MasterHandler) routeFields(res service.Resource, op string, err error) []zap.Field {
	return []zap.Field{
		zap.String("route", res.Key+"."+op),
		zap.String("table", res.Table),
		zap.Error(err),
	}
}

// List page model: rows, select options and one-shot cookies
// GET /master-data/:section/:resource
func (h *MasterHandler) List(res service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		rows, err := h.svc.List(ctx, res)
		if err != nil {
			h.logger.Error("list master rows failed", h.routeFields(res, "list", err)...)
			InternalError(c, message(c, i18n.UnableToSave))
			return
		}
		options, err := h.svc.Options(ctx, res)
		if err != nil {
			h.logger.Error("load master options failed", h.routeFields(res, "list", err)...)
			InternalError(c, message(c, i18n.UnableToSave))
			return
		}
		page := h.pageState(c, res.BasePath())
		page["title"] = res.Title
		page["base_path"] = res.BasePath()
		page["entity_type"] = res.EntityType
		page["fields"] = res.Fields
		page["options"] = options
		page["rows"] = rows
		Success(c, page)
	}
}

// New empty form model
// GET /master-data/:section/:resource/new
func (h *MasterHandler) New(res service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		options, err := h.svc.Options(c.Request.Context(), res)
		if err != nil {
			h.logger.Error("load master options failed", h.routeFields(res, "new", err)...)
			InternalError(c, message(c, i18n.UnableToSave))
			return
		}
		page := h.pageState(c, res.BasePath())
		page["title"] = res.Title
		page["base_path"] = res.BasePath()
		page["fields"] = res.Fields
		page["options"] = options
		page["values"] = gin.H{"is_active": true}
		page["modal_mode"] = "create"
		Success(c, page)
	}
}

// GET /master-data/:section/:resource/:id
func (h *MasterHandler) Get(res service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			NotFound(c, message(c, i18n.NotFound))
			return
		}
		row, err := h.svc.Get(c.Request.Context(), res, id)
		if err != nil {
			Error(c, errorCode(err), message(c, service.MessageKey(err)))
			return
		}
		Success(c, row)
	}
}

// POST /master-data/:section/:resource
func (h *MasterHandler) Create(res service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := res.Key + ".create"
		if err := c.Request.ParseForm(); err != nil {
			BadRequest(c, err.Error())
			return
		}
		values := formSnapshot(c)
		ctx := c.Request.Context()
		actor := actorFrom(c)

		p, err := service.ParseMasterForm(res, c.Request.PostForm, true)
		if err != nil {
			h.fail(c, route, nil, res.BasePath(), "create", values, err)
			return
		}
		if err := h.svc.Check(ctx, res, 0, p); err != nil {
			h.fail(c, route, nil, res.BasePath(), "create", values, err)
			return
		}

		queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
			ScopeKey:   res.ScopeKey(),
			Action:     service.ActionCreate,
			EntityType: res.EntityType,
			EntityID:   service.NewEntityID,
			Summary:    p.Summary(res, service.ActionCreate),
			NewValue:   p.Snapshot(),
		})
		if err != nil {
			h.fail(c, route, nil, res.BasePath(), "create", values, err)
			return
		}
		if queued.Queued {
			h.queued(c, res.BasePath(), queued)
			return
		}

		id, err := h.svc.Create(ctx, actor, res, p)
		if err != nil {
			h.fail(c, route, nil, res.BasePath(), "create", values, err)
			return
		}
		h.done(c, res.BasePath(), i18n.Saved, gin.H{"id": id})
	}
}

// POST /master-data/:section/:resource/:id
func (h *MasterHandler) Update(res service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := res.Key + ".update"
		id, ok := paramID(c)
		if !ok {
			NotFound(c, message(c, i18n.NotFound))
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			BadRequest(c, err.Error())
			return
		}
		values := formSnapshot(c)
		values["id"] = id
		ctx := c.Request.Context()
		actor := actorFrom(c)

		p, err := service.ParseMasterForm(res, c.Request.PostForm, false)
		if err != nil {
			h.fail(c, route, id, res.BasePath(), "edit", values, err)
			return
		}
		old, err := h.svc.Snapshot(ctx, res, id)
		if err != nil {
			h.fail(c, route, id, res.BasePath(), "edit", values, err)
			return
		}
		if err := h.svc.Check(ctx, res, id, p); err != nil {
			h.fail(c, route, id, res.BasePath(), "edit", values, err)
			return
		}

		queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
			ScopeKey:   res.ScopeKey(),
			Action:     service.ActionEdit,
			EntityType: res.EntityType,
			EntityID:   service.EntityIDString(id),
			Summary:    p.Summary(res, service.ActionEdit),
			OldValue:   old,
			NewValue:   p.Snapshot(),
		})
		if err != nil {
			h.fail(c, route, id, res.BasePath(), "edit", values, err)
			return
		}
		if queued.Queued {
			h.queued(c, res.BasePath(), queued)
			return
		}

		if err := h.svc.Update(ctx, actor, res, id, p); err != nil {
			h.fail(c, route, id, res.BasePath(), "edit", values, err)
			return
		}
		h.done(c, res.BasePath(), i18n.Saved, gin.H{"id": id})
	}
}

// POST /master-data/:section/:resource/:id/toggle
func (h *MasterHandler) Toggle(res service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := res.Key + ".toggle"
		id, ok := paramID(c)
		if !ok {
			NotFound(c, message(c, i18n.NotFound))
			return
		}
		ctx := c.Request.Context()
		actor := actorFrom(c)

		row, err := h.svc.Get(ctx, res, id)
		if err != nil {
			h.fail(c, route, id, res.BasePath(), "", nil, err)
			return
		}
		current, _ := row["is_active"].(bool)

		queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
			ScopeKey:   res.ScopeKey(),
			Action:     service.ActionToggle,
			EntityType: res.EntityType,
			EntityID:   service.EntityIDString(id),
			Summary:    res.Title + " toggle #" + service.EntityIDString(id),
			OldValue:   map[string]interface{}{"is_active": current},
			NewValue:   map[string]interface{}{"is_active": !current},
		})
		if err != nil {
			h.fail(c, route, id, res.BasePath(), "", nil, err)
			return
		}
		if queued.Queued {
			h.queued(c, res.BasePath(), queued)
			return
		}

		active, err := h.svc.Toggle(ctx, actor, res, id)
		if err != nil {
			h.fail(c, route, id, res.BasePath(), "", nil, err)
			return
		}
		h.done(c, res.BasePath(), i18n.StatusChanged, gin.H{"id": id, "is_active": active})
	}
}

// POST /master-data/:section/:resource/:id/delete
func (h *MasterHandler) Delete(res service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := res.Key + ".delete"
		id, ok := paramID(c)
		if !ok {
			NotFound(c, message(c, i18n.NotFound))
			return
		}
		ctx := c.Request.Context()
		actor := actorFrom(c)

		allowed, err := canHardDelete(c, h.perms, actor, res.ScopeKey())
		if err != nil {
			h.fail(c, route, id, res.BasePath(), "", nil, err)
			return
		}
		if !allowed {
			h.forbidden(c, res.BasePath())
			return
		}

		old, err := h.svc.Snapshot(ctx, res, id)
		if err != nil {
			h.fail(c, route, id, res.BasePath(), "", nil, err)
			return
		}
		queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
			ScopeKey:   res.ScopeKey(),
			Action:     service.ActionDelete,
			EntityType: res.EntityType,
			EntityID:   service.EntityIDString(id),
			Summary:    res.Title + " delete #" + service.EntityIDString(id),
			OldValue:   old,
		})
		if err != nil {
			h.fail(c, route, id, res.BasePath(), "", nil, err)
			return
		}
		if queued.Queued {
			h.queued(c, res.BasePath(), queued)
			return
		}

		if err := h.svc.Delete(ctx, actor, res, id); err != nil {
			h.fail(c, route, id, res.BasePath(), "", nil, err)
			return
		}
		h.done(c, res.BasePath(), i18n.Deleted, gin.H{"id": id})
	}
}
