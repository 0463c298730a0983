package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/bitfantasy/backoffice/internal/erp/service"
	"github.com/bitfantasy/backoffice/internal/middleware"
	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/bitfantasy/backoffice/internal/shared/notice"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers handler set
type Handlers struct {
	Master    *MasterHandler
	UOM       *UOMConversionHandler
	SKU       *SKUHandler
	Approval  *ApprovalHandler
	Translate *TranslateHandler
}

// NewHandlers builds every handler on the service set
func NewHandlers(svc *service.Services, notices *notice.Store, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := screen{notices: notices, logger: logger}
	return &Handlers{
		Master:    NewMasterHandler(svc.Master, svc.Approval, svc.Permission, s),
		UOM:       NewUOMConversionHandler(svc.UOM, svc.Master, svc.Approval, svc.Permission, s),
		SKU:       NewSKUHandler(svc.SKU, svc.Master, svc.Approval, svc.Permission, s),
		Approval:  NewApprovalHandler(svc.Approval, svc.Events, notices, logger),
		Translate: NewTranslateHandler(svc.Naming),
	}
}

// === response helpers ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// errorCode envelope code for a service error; the HTTP status is code/100
func errorCode(err error) int {
	switch service.KindOf(err) {
	case service.KindValidation:
		return 40001
	case service.KindConflict:
		return 40002
	case service.KindLocked:
		return 40003
	case service.KindNotFound:
		return 40400
	case service.KindExternal:
		return 50200
	}
	return 50000
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// actorFrom identity set by middleware.JWTAuth
func actorFrom(c *gin.Context) service.Actor {
	return service.Actor{
		UserID:   c.GetInt64("user_id"),
		Name:     c.GetString("user_name"),
		BranchID: c.GetInt64("branch_id"),
		RoleID:   c.GetInt64("role_id"),
		Roles:    c.GetStringSlice("roles"),
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// wantsJSON API clients get status codes; browsers get cookies and redirects
func wantsJSON(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(c.ContentType(), "application/json")
}

func lang(c *gin.Context) string {
	return i18n.FromRequest(c.Request).String()
}

func message(c *gin.Context, key string) string {
	return i18n.T(i18n.FromRequest(c.Request), key)
}

// screen shared rendering of the master-data screens: JSON for API clients,
// notice/flash cookies plus a redirect for form posts
type screen struct {
	notices *notice.Store
	logger  *zap.Logger
}

// pageState one-shot cookies consumed by a list or form view
func (s screen) pageState(c *gin.Context, basePath string) gin.H {
	return gin.H{
		"notice":     s.notices.ReadNotice(c),
		"flash":      s.notices.ReadFlash(c, basePath),
		"error":      s.notices.ReadError(c),
		"csrf_token": c.GetString("csrf_token"),
		"lang":       lang(c),
	}
}

// fail logs the raw error and shows only the friendly message
func (s screen) fail(c *gin.Context, route string, id interface{}, basePath, modalMode string, values map[string]interface{}, err error) {
	fields := []zap.Field{
		zap.String("route", route),
		zap.Any("id", id),
		zap.Int64("user_id", c.GetInt64("user_id")),
		zap.Error(err),
	}
	if service.KindOf(err) == 0 {
		s.logger.Error("screen write failed", fields...)
	} else {
		s.logger.Warn("screen write rejected", fields...)
	}

	msg := message(c, service.MessageKey(err))
	if wantsJSON(c) {
		Error(c, errorCode(err), msg)
		return
	}
	if values != nil {
		s.notices.SetFlash(c, basePath, notice.Flash{
			Type:      route,
			Values:    values,
			Error:     msg,
			ModalMode: modalMode,
		})
	} else {
		s.notices.SetError(c, msg)
	}
	c.Redirect(http.StatusFound, basePath)
}

func (s screen) forbidden(c *gin.Context, basePath string) {
	msg := "Permission denied"
	if wantsJSON(c) {
		Forbidden(c, msg)
		return
	}
	s.notices.SetError(c, msg)
	c.Redirect(http.StatusFound, basePath)
}

func (s screen) done(c *gin.Context, basePath, key string, data interface{}) {
	if wantsJSON(c) {
		Success(c, data)
		return
	}
	s.notices.SetNotice(c, notice.Notice{Message: message(c, key)})
	c.Redirect(http.StatusFound, basePath)
}

// queued the write became a PENDING approval request
func (s screen) queued(c *gin.Context, basePath string, res service.ScreenResult) {
	c.Set("approval_request_id", res.ApprovalRequestID)
	s.notices.SetNotice(c, notice.Notice{Message: message(c, i18n.ApprovalSubmitted)})
	if wantsJSON(c) {
		c.JSON(http.StatusAccepted, gin.H{
			"status":              "PENDING",
			"approval_request_id": res.ApprovalRequestID,
		})
		return
	}
	c.Redirect(http.StatusFound, basePath)
}

// HardDeleteChecker hard-delete grants of non-admin users
type HardDeleteChecker interface {
	CanHardDelete(ctx context.Context, userID, roleID int64, scopeKey string) (bool, error)
}

func canHardDelete(c *gin.Context, perms HardDeleteChecker, actor service.Actor, scopeKey string) (bool, error) {
	if actor.IsAdmin() || middleware.HasRole(c, "admin") {
		return true, nil
	}
	if perms == nil {
		return false, nil
	}
	return perms.CanHardDelete(c.Request.Context(), actor.UserID, actor.RoleID, scopeKey)
}
