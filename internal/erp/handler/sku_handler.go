package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/bitfantasy/backoffice/internal/erp/repository"
	"github.com/bitfantasy/backoffice/internal/erp/service"
	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SKUsPath list route of the SKU screen
const SKUsPath = "/master-data/products/skus"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SKUHandler variant / SKU screen
type SKUHandler struct {
	svc       *service.SKUService
	master    *service.MasterService
	approvals *service.ApprovalService
	perms     HardDeleteChecker
	screen
}

func NewSKUHandler(svc *service.SKUService, master *service.MasterService, approvals *service.ApprovalService, perms HardDeleteChecker, s screen) *SKUHandler {
	return &SKUHandler{svc: svc, master: master, approvals: approvals, perms: perms, screen: s}
}

// Register mounts the SKU screen on rg
func (h *SKUHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group(SKUsPath)
	g.GET("", h.List)
	g.GET("/new", h.New)
	g.GET("/export", h.Export)
	g.GET("/:id", h.Get)
	g.POST("", h.Generate)
	g.POST("/:id", h.Update)
	g.POST("/:id/toggle", h.Toggle)
	g.POST("/:id/delete", h.Delete)
}

func variantFilter(c *gin.Context) repository.VariantFilter {
	filter := repository.VariantFilter{Search: strings.TrimSpace(c.Query("q"))}
	if v, err := strconv.ParseInt(c.Query("item_id"), 10, 64); err == nil {
		filter.ItemID = v
	}
	return filter
}

func (h *SKUHandler) formOptions(c *gin.Context) (map[string][]repository.Option, bool) {
	options, err := h.master.OptionsFor(c.Request.Context(), "items", "sizes", "grades", "colors", "packing_types")
	if err != nil {
		h.logger.Error("load sku options failed", zap.Error(err))
		InternalError(c, message(c, i18n.UnableToSave))
		return nil, false
	}
	return options, true
}

// List
// GET /master-data/products/skus?item_id=&q=
func (h *SKUHandler) List(c *gin.Context) {
	rows, err := h.svc.List(c.Request.Context(), variantFilter(c))
	if err != nil {
		h.logger.Error("list variants failed", zap.Error(err))
		InternalError(c, message(c, i18n.UnableToSave))
		return
	}
	options, ok := h.formOptions(c)
	if !ok {
		return
	}
	page := h.pageState(c, SKUsPath)
	page["title"] = "SKUs"
	page["base_path"] = SKUsPath
	page["options"] = options
	page["rows"] = rows
	Success(c, page)
}

// New bulk generation form
// GET /master-data/products/skus/new
func (h *SKUHandler) New(c *gin.Context) {
	options, ok := h.formOptions(c)
	if !ok {
		return
	}
	page := h.pageState(c, SKUsPath)
	page["base_path"] = SKUsPath
	page["options"] = options
	page["values"] = gin.H{"is_active": true}
	page["modal_mode"] = "create"
	Success(c, page)
}

// GET /master-data/products/skus/:id
func (h *SKUHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		NotFound(c, message(c, i18n.NotFound))
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		Error(c, errorCode(err), message(c, service.MessageKey(err)))
		return
	}
	Success(c, v)
}

// Generate bulk expansion of the selected axes
// POST /master-data/products/skus
func (h *SKUHandler) Generate(c *gin.Context) {
	const route = "skus.generate"
	if err := c.Request.ParseForm(); err != nil {
		BadRequest(c, err.Error())
		return
	}
	values := formSnapshot(c)
	ctx := c.Request.Context()
	actor := actorFrom(c)

	in, err := service.ParseBulkForm(c.Request.PostForm)
	if err != nil {
		h.fail(c, route, nil, SKUsPath, "create", values, err)
		return
	}
	if _, err := in.Rates(in.Combos()); err != nil {
		h.fail(c, route, nil, SKUsPath, "create", values, err)
		return
	}

	queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
		ScopeKey:   service.SKUScopeKey,
		Action:     service.ActionCreate,
		EntityType: service.SKUEntityType,
		EntityID:   service.NewEntityID,
		Summary:    in.Summary(),
		NewValue:   in,
	})
	if err != nil {
		h.fail(c, route, nil, SKUsPath, "create", values, err)
		return
	}
	if queued.Queued {
		h.queued(c, SKUsPath, queued)
		return
	}

	result, err := h.svc.Expand(ctx, actor, in)
	if err != nil {
		h.fail(c, route, nil, SKUsPath, "create", values, err)
		return
	}
	h.done(c, SKUsPath, i18n.Saved, result)
}

func editSnapshot(v *entity.Variant) service.EditInput {
	in := service.EditInput{
		SizeID:        v.SizeID,
		GradeID:       v.GradeID,
		ColorID:       v.ColorID,
		PackingTypeID: v.PackingTypeID,
		SaleRate:      v.SaleRate,
		IsActive:      v.IsActive,
	}
	if v.SKU != nil {
		in.Barcode = v.SKU.Barcode
	}
	return in
}

// Update edits one variant and re-mints its SKU code
// POST /master-data/products/skus/:id
func (h *SKUHandler) Update(c *gin.Context) {
	const route = "skus.update"
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

	in, err := service.ParseEditForm(c.Request.PostForm)
	if err != nil {
		h.fail(c, route, id, SKUsPath, "edit", values, err)
		return
	}
	current, err := h.svc.Get(ctx, id)
	if err != nil {
		h.fail(c, route, id, SKUsPath, "edit", values, err)
		return
	}

	queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
		ScopeKey:   service.SKUScopeKey,
		Action:     service.ActionEdit,
		EntityType: service.SKUEntityType,
		EntityID:   service.EntityIDString(id),
		Summary:    "sku edit variant #" + service.EntityIDString(id),
		OldValue:   editSnapshot(current),
		NewValue:   in,
	})
	if err != nil {
		h.fail(c, route, id, SKUsPath, "edit", values, err)
		return
	}
	if queued.Queued {
		h.queued(c, SKUsPath, queued)
		return
	}

	code, err := h.svc.Edit(ctx, actor, id, in)
	if err != nil {
		h.fail(c, route, id, SKUsPath, "edit", values, err)
		return
	}
	h.done(c, SKUsPath, i18n.Saved, gin.H{"id": id, "sku_code": code})
}

// Toggle flips the variant and its SKU
// POST /master-data/products/skus/:id/toggle
func (h *SKUHandler) Toggle(c *gin.Context) {
	const route = "skus.toggle"
	id, ok := paramID(c)
	if !ok {
		NotFound(c, message(c, i18n.NotFound))
		return
	}
	ctx := c.Request.Context()
	actor := actorFrom(c)

	current, err := h.svc.Get(ctx, id)
	if err != nil {
		h.fail(c, route, id, SKUsPath, "", nil, err)
		return
	}
	queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
		ScopeKey:   service.SKUScopeKey,
		Action:     service.ActionToggle,
		EntityType: service.SKUEntityType,
		EntityID:   service.EntityIDString(id),
		Summary:    "sku toggle variant #" + service.EntityIDString(id),
		OldValue:   map[string]interface{}{"is_active": current.IsActive},
		NewValue:   map[string]interface{}{"is_active": !current.IsActive},
	})
	if err != nil {
		h.fail(c, route, id, SKUsPath, "", nil, err)
		return
	}
	if queued.Queued {
		h.queued(c, SKUsPath, queued)
		return
	}

	active, err := h.svc.Toggle(ctx, actor, id)
	if err != nil {
		h.fail(c, route, id, SKUsPath, "", nil, err)
		return
	}
	h.done(c, SKUsPath, i18n.StatusChanged, gin.H{"id": id, "is_active": active})
}

// Delete hard-removes the variant and its SKU
// POST /master-data/products/skus/:id/delete
func (h *SKUHandler) Delete(c *gin.Context) {
	const route = "skus.delete"
	id, ok := paramID(c)
	if !ok {
		NotFound(c, message(c, i18n.NotFound))
		return
	}
	ctx := c.Request.Context()
	actor := actorFrom(c)

	allowed, err := canHardDelete(c, h.perms, actor, service.SKUScopeKey)
	if err != nil {
		h.fail(c, route, id, SKUsPath, "", nil, err)
		return
	}
	if !allowed {
		h.forbidden(c, SKUsPath)
		return
	}

	current, err := h.svc.Get(ctx, id)
	if err != nil {
		h.fail(c, route, id, SKUsPath, "", nil, err)
		return
	}
	queued, err := h.approvals.HandleScreenApproval(ctx, actor, service.ScreenApproval{
		ScopeKey:   service.SKUScopeKey,
		Action:     service.ActionDelete,
		EntityType: service.SKUEntityType,
		EntityID:   service.EntityIDString(id),
		Summary:    "sku delete variant #" + service.EntityIDString(id),
		OldValue:   editSnapshot(current),
	})
	if err != nil {
		h.fail(c, route, id, SKUsPath, "", nil, err)
		return
	}
	if queued.Queued {
		h.queued(c, SKUsPath, queued)
		return
	}

	if err := h.svc.Delete(ctx, actor, id); err != nil {
		h.fail(c, route, id, SKUsPath, "", nil, err)
		return
	}
	h.done(c, SKUsPath, i18n.Deleted, gin.H{"id": id})
}

// Export downloads the variant list as xlsx and archives a copy when object
// storage is configured
// GET /master-data/products/skus/export?item_id=&q=
func (h *SKUHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	f, filename, err := h.svc.Export(ctx, variantFilter(c))
	if err != nil {
		h.logger.Error("export skus failed", zap.Error(err))
		InternalError(c, message(c, i18n.UnableToSave))
		return
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		h.logger.Error("render sku export failed", zap.Error(err))
		InternalError(c, message(c, i18n.UnableToSave))
		return
	}
	if object, err := h.svc.Archive(ctx, f, filename); err != nil {
		h.logger.Warn("archive sku export failed", zap.String("file", filename), zap.Error(err))
	} else if object != "" {
		c.Header("X-Archive-Object", object)
	}

	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
