package handler

import (
	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/bitfantasy/backoffice/internal/erp/service"
	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UOMConversionsPath list route of the conversion screen
const UOMConversionsPath = "/master-data/basic-info/uom-conversions"

var uomConversionScope = service.ScopeKey(service.SectionBasicInfo, "uom-conversions")

// UOMConversionHandler unit conversion screen
type UOMConversionHandler struct {
	svc       *service.UOMService
	master    *service.MasterService
	approvals *service.ApprovalService
	perms     HardDeleteChecker
	screen
}

func NewUOMConversionHandler(svc *service.UOMService, master *service.MasterService, approvals *service.ApprovalService, perms HardDeleteChecker, s screen) *UOMConversionHandler {
	return &UOMConversionHandler{svc: svc, master: master, approvals: approvals, perms: perms, screen: s}
}

// Register mounts the conversion screen on rg
func (h *UOMConversionHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group(UOMConversionsPath)
	g.GET("", h.List)
	g.GET("/new", h.New)
	g.POST("", h.Create)
	g.POST("/:id", h.Update)
	g.POST("/:id/toggle", h.Toggle)
	g.POST("/:id/delete", h.Delete)
}

func conversionSnapshot(conv *entity.UOMConversion) map[string]interface{} {
	active := conv.IsActive
	return service.ConversionInput{
		FromUOMID: conv.FromUOMID,
		ToUOMID:   conv.ToUOMID,
		Factor:    conv.Factor,
		IsActive:  &active,
	}.Snapshot()
}

// List
// GET /master-data/basic-info/uom-conversions
func (h *UOMConversionHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	rows, err := h.svc.List(ctx)
	if err != nil {
		h.logger.Error("list uom conversions failed", zap.Error(err))
		InternalError(c, message(c, i18n.UnableToSave))
		return
	}
	options, err := h.master.OptionsFor(ctx, "uoms")
	if err != nil {
		h.logger.Error("load uom options failed", zap.Error(err))
		InternalError(c, message(c, i18n.UnableToSave))
		return
	}
	page := h.pageState(c, UOMConversionsPath)
	page["title"] = "UOM conversions"
	page["base_path"] = UOMConversionsPath
	page["uoms"] = options["uoms"]
	page["rows"] = rows
	Success(c, page)
}

// New
// GET /master-data/basic-info/uom-conversions/new
func (h *UOMConversionHandler) New(c *gin.Context) {
	options, err := h.master.OptionsFor(c.Request.Context(), "uoms")
	if err != nil {
		h.logger.Error("load uom options failed", zap.Error(err))
		InternalError(c, message(c, i18n.UnableToSave))
		return
	}
	page := h.pageState(c, UOMConversionsPath)
	page["base_path"] = UOMConversionsPath
	page["uoms"] = options["uoms"]
	page["values"] = gin.H{"is_active": true}
	page["modal_mode"] = "create"
	Success(c, page)
}

// Create
// POST /master-data/basic-info/uom-conversions
func (h *UOMConversionHandler) Create(c *gin.Context) {
	const route = "uom-conversions.create"
	if err := c.Request.ParseForm(); err != nil {
		BadRequest(c, err.Error())
		return
	}
	values := formSnapshot(c)
	ctx := c.Request.Context()
	actor := actorFrom(c)

	in, err := service.ParseConversionForm(c.Request.PostForm)
	if err != nil {
		h.fail(c, route, nil, UOMConversionsPath, "create", values, err)
		return
	}
	if err := h.svc.Check(ctx, 0, in); err != nil {
		h.fail(c, route, nil, UOMConversionsPath, "create", values, err)
		return
	}

	queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
		ScopeKey:   uomConversionScope,
		Action:     service.ActionCreate,
		EntityType: service.UOMConversionEntityType,
		EntityID:   service.NewEntityID,
		Summary:    in.Summary(service.ActionCreate),
		NewValue:   in.Snapshot(),
	})
	if err != nil {
		h.fail(c, route, nil, UOMConversionsPath, "create", values, err)
		return
	}
	if queued.Queued {
		h.queued(c, UOMConversionsPath, queued)
		return
	}

	conv, err := h.svc.Create(ctx, actor, in)
	if err != nil {
		h.fail(c, route, nil, UOMConversionsPath, "create", values, err)
		return
	}
	h.done(c, UOMConversionsPath, i18n.Saved, conv)
}

// Update
// POST /master-data/basic-info/uom-conversions/:id
func (h *UOMConversionHandler) Update(c *gin.Context) {
	const route = "uom-conversions.update"
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

	in, err := service.ParseConversionForm(c.Request.PostForm)
	if err != nil {
		h.fail(c, route, id, UOMConversionsPath, "edit", values, err)
		return
	}
	current, err := h.svc.Get(ctx, id)
	if err != nil {
		h.fail(c, route, id, UOMConversionsPath, "edit", values, err)
		return
	}
	if err := h.svc.Check(ctx, id, in); err != nil {
		h.fail(c, route, id, UOMConversionsPath, "edit", values, err)
		return
	}

	queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
		ScopeKey:   uomConversionScope,
		Action:     service.ActionEdit,
		EntityType: service.UOMConversionEntityType,
		EntityID:   service.EntityIDString(id),
		Summary:    in.Summary(service.ActionEdit),
		OldValue:   conversionSnapshot(current),
		NewValue:   in.Snapshot(),
	})
	if err != nil {
		h.fail(c, route, id, UOMConversionsPath, "edit", values, err)
		return
	}
	if queued.Queued {
		h.queued(c, UOMConversionsPath, queued)
		return
	}

	if err := h.svc.Update(ctx, actor, id, in); err != nil {
		h.fail(c, route, id, UOMConversionsPath, "edit", values, err)
		return
	}
	h.done(c, UOMConversionsPath, i18n.Saved, gin.H{"id": id})
}

// Toggle
// POST /master-data/basic-info/uom-conversions/:id/toggle
func (h *UOMConversionHandler) Toggle(c *gin.Context) {
	const route = "uom-conversions.toggle"
	id, ok := paramID(c)
	if !ok {
		NotFound(c, message(c, i18n.NotFound))
		return
	}
	ctx := c.Request.Context()
	actor := actorFrom(c)

	current, err := h.svc.Get(ctx, id)
	if err != nil {
		h.fail(c, route, id, UOMConversionsPath, "", nil, err)
		return
	}
	queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
		ScopeKey:   uomConversionScope,
		Action:     service.ActionToggle,
		EntityType: service.UOMConversionEntityType,
		EntityID:   service.EntityIDString(id),
		Summary:    "uom conversion toggle #" + service.EntityIDString(id),
		OldValue:   map[string]interface{}{"is_active": current.IsActive},
		NewValue:   map[string]interface{}{"is_active": !current.IsActive},
	})
	if err != nil {
		h.fail(c, route, id, UOMConversionsPath, "", nil, err)
		return
	}
	if queued.Queued {
		h.queued(c, UOMConversionsPath, queued)
		return
	}

	active, err := h.svc.Toggle(ctx, actor, id)
	if err != nil {
		h.fail(c, route, id, UOMConversionsPath, "", nil, err)
		return
	}
	h.done(c, UOMConversionsPath, i18n.StatusChanged, gin.H{"id": id, "is_active": active})
}

// Delete
// POST /master-data/basic-info/uom-conversions/:id/delete
func (h *UOMConversionHandler) Delete(c *gin.Context) {
	const route = "uom-conversions.delete"
	id, ok := paramID(c)
	if !ok {
		NotFound(c, message(c, i18n.NotFound))
		return
	}
	ctx := c.Request.Context()
	actor := actorFrom(c)

	allowed, err := canHardDelete(c, h.perms, actor, uomConversionScope)
	if err != nil {
		h.fail(c, route, id, UOMConversionsPath, "", nil, err)
		return
	}
	if !allowed {
		h.forbidden(c, UOMConversionsPath)
		return
	}

	current, err := h.svc.Get(ctx, id)
	if err != nil {
		h.fail(c, route, id, UOMConversionsPath, "", nil, err)
		return
	}
	queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
		ScopeKey:   uomConversionScope,
		Action:     service.ActionDelete,
		EntityType: service.UOMConversionEntityType,
		EntityID:   service.EntityIDString(id),
		Summary:    "uom conversion delete #" + service.EntityIDString(id),
		OldValue:   conversionSnapshot(current),
	})
	if err != nil {
		h.fail(c, route, id, UOMConversionsPath, "", nil, err)
		return
	}
	if queued.Queued {
		h.queued(c, UOMConversionsPath, queued)
		return
	}

	if err := h.svc.Delete(ctx, actor, id); err != nil {
		h.fail(c, route, id, UOMConversionsPath, "", nil, err)
		return
	}
	h.done(c, UOMConversionsPath, i18n.Deleted, gin.H{"id": id})
}
