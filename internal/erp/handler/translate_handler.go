package handler

import (
	"errors"
	"strings"

	"github.com/bitfantasy/backoffice/internal/erp/service"
	"github.com/bitfantasy/backoffice/internal/shared/translate"
	"github.com/gin-gonic/gin"
)

// TranslateHandler bilingual naming endpoint
type TranslateHandler struct {
	svc *service.NamingService
}

func NewTranslateHandler(svc *service.NamingService) *TranslateHandler {
	return &TranslateHandler{svc: svc}
}

type translateRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

// Translate English → Urdu, Azure first with DeepL as fallback
// POST /api/v1/translate
func (h *TranslateHandler) Translate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		BadRequest(c, translate.ErrEmptyText.Error())
		return
	}
	mode, err := translate.ParseMode(req.Mode)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	res, err := h.svc.Resolve(c.Request.Context(), translate.Request{Text: text, Mode: mode})
	if err != nil {
		data := gin.H{}
		var chain *translate.ChainError
		if errors.As(err, &chain) {
			for _, name := range []string{translate.ProviderAzure, translate.ProviderDeepL} {
				if perr := chain.ProviderErr(name); perr != nil {
					data[name+"_error"] = perr.Error()
				}
			}
		}
		c.JSON(errorCode(err)/100, Response{
			Code:    errorCode(err),
			Message: message(c, service.MessageKey(err)),
			Data:    data,
		})
		return
	}

	var azureError interface{}
	if res.AzureError != "" {
		azureError = res.AzureError
	}
	Success(c, gin.H{
		"translated":  res.Translated,
		"provider":    res.Provider,
		"azure_error": azureError,
	})
}
