package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/bitfantasy/backoffice/internal/erp/service"
	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/bitfantasy/backoffice/internal/shared/notice"
	"github.com/bitfantasy/backoffice/internal/shared/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ApprovalDraftKey context key of the draft read by Intercept
const ApprovalDraftKey = "approval_request"

// ApprovalDraft proposed write attached to the context by the route
type ApprovalDraft struct {
	BranchID    *int64          `json:"branch_id"`
	RequestType string          `json:"request_type"`
	EntityType  string          `json:"entity_type"`
	EntityID    json.RawMessage `json:"entity_id"`
	Summary     string          `json:"summary"`
	OldValue    json.RawMessage `json:"old_value"`
	NewValue    json.RawMessage `json:"new_value"`
	Block       bool            `json:"block"`
}

// entityID string and numeric ids are both stored as text; null or absent is ""
func (d *ApprovalDraft) entityID() string {
	raw := bytes.TrimSpace(d.EntityID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(raw)
}

func rawValue(raw json.RawMessage) interface{} {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}

// ApprovalHandler approval queue API
type ApprovalHandler struct {
	svc     *service.ApprovalService
	hub     *sse.Hub
	notices *notice.Store
	logger  *zap.Logger
}

func NewApprovalHandler(svc *service.ApprovalService, hub *sse.Hub, notices *notice.Store, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{svc: svc, hub: hub, notices: notices, logger: logger}
}

// Intercept submits the attached draft. No draft passes through; a blocking
// draft ends the request with 202.
func (h *ApprovalHandler) Intercept() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(ApprovalDraftKey)
		if !ok || v == nil {
			c.Next()
			return
		}
		draft, ok := v.(*ApprovalDraft)
		if !ok || draft == nil {
			c.Next()
			return
		}

		entityID := draft.entityID()
		if strings.TrimSpace(draft.RequestType) == "" || strings.TrimSpace(draft.EntityType) == "" || entityID == "" {
			Error(c, 40001, message(c, i18n.MissingRequiredFields))
			c.Abort()
			return
		}

		actor := actorFrom(c)
		branchID := draft.BranchID
		if branchID == nil && actor.BranchID != 0 {
			b := actor.BranchID
			branchID = &b
		}

		req, err := h.svc.Submit(c.Request.Context(), service.Submission{
			BranchID:    branchID,
			RequestedBy: actor.UserID,
			Requester:   actor.Name,
			RequestType: draft.RequestType,
			EntityType:  draft.EntityType,
			EntityID:    entityID,
			Summary:     draft.Summary,
			OldValue:    rawValue(draft.OldValue),
			NewValue:    rawValue(draft.NewValue),
		})
		if err != nil {
			h.logger.Error("approval submit failed",
				zap.String("entity_type", draft.EntityType),
				zap.String("entity_id", entityID),
				zap.Int64("user_id", actor.UserID),
				zap.Error(err),
			)
			Error(c, errorCode(err), message(c, service.MessageKey(err)))
			c.Abort()
			return
		}

		c.Set("approval_request_id", req.ID)
		h.notices.SetNotice(c, notice.Notice{Message: message(c, i18n.ApprovalSubmitted)})

		if draft.Block {
			c.AbortWithStatusJSON(http.StatusAccepted, gin.H{
				"status":              "PENDING",
				"approval_request_id": req.ID,
			})
			return
		}
		c.Next()
	}
}

// Draft binds the JSON body as the approval draft
func (h *ApprovalHandler) Draft(c *gin.Context) {
	var draft ApprovalDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		c.Abort()
		return
	}
	c.Set(ApprovalDraftKey, &draft)
	c.Next()
}

// Submitted reply of a non-blocking submission
// POST /api/v1/approvals
func (h *ApprovalHandler) Submitted(c *gin.Context) {
	id, ok := c.Get("approval_request_id")
	if !ok {
		BadRequest(c, message(c, i18n.MissingRequiredFields))
		return
	}
	Created(c, gin.H{"status": "PENDING", "approval_request_id": id})
}

// List
// GET /api/v1/approvals?status=&page=&page_size=
func (h *ApprovalHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))

	items, total, err := h.svc.List(c.Request.Context(), status, page, pageSize)
	if err != nil {
		h.logger.Error("list approvals failed", zap.Error(err))
		InternalError(c, message(c, i18n.UnableToSave))
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

// GET /api/v1/approvals/:id
func (h *ApprovalHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		NotFound(c, message(c, i18n.NotFound))
		return
	}
	req, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		Error(c, errorCode(err), message(c, service.MessageKey(err)))
		return
	}
	Success(c, req)
}

type decisionRequest struct {
	Note string `json:"note"`
}

// Approve replays the request and marks it APPROVED
// POST /api/v1/approvals/:id/approve
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Reject
// POST /api/v1/approvals/:id/reject
func (h *ApprovalHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *ApprovalHandler) decide(c *gin.Context, approve bool) {
	id, ok := paramID(c)
	if !ok {
		NotFound(c, message(c, i18n.NotFound))
		return
	}
	var body decisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			BadRequest(c, "Invalid request: "+err.Error())
			return
		}
	}

	actor := actorFrom(c)
	var (
		req *entity.ApprovalRequest
		err error
	)
	if approve {
		req, err = h.svc.Approve(c.Request.Context(), id, actor, strings.TrimSpace(body.Note))
	} else {
		req, err = h.svc.Reject(c.Request.Context(), id, actor, strings.TrimSpace(body.Note))
	}
	if err != nil {
		fields := []zap.Field{
			zap.Int64("approval_request_id", id),
			zap.Int64("user_id", actor.UserID),
			zap.Bool("approve", approve),
			zap.Error(err),
		}
		if service.KindOf(err) == 0 {
			h.logger.Error("approval decision failed", fields...)
		} else {
			h.logger.Warn("approval decision rejected", fields...)
		}
		Error(c, errorCode(err), message(c, service.MessageKey(err)))
		return
	}
	Success(c, req)
}

// Stream live queue events for admin sessions
// GET /api/v1/approvals/stream?token=xxx
func (h *ApprovalHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		NotFound(c, message(c, i18n.NotFound))
		return
	}
	h.hub.Stream(c, c.GetInt64("user_id"), 30*time.Second)
}
