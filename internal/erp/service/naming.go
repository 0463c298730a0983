package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/bitfantasy/backoffice/internal/shared/translate"
	"go.uber.org/zap"
)

// Resolver bilingual naming backend
type Resolver interface {
	Resolve(ctx context.Context, req translate.Request) (*translate.Result, error)
}

// NamingService fills Urdu names for master rows
type NamingService struct {
	resolver Resolver
	logger   *zap.Logger
}

func NewNamingService(resolver Resolver, logger *zap.Logger) *NamingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NamingService{resolver: resolver, logger: logger}
}

// Resolve passes through to the provider chain
func (s *NamingService) Resolve(ctx context.Context, req translate.Request) (*translate.Result, error) {
	if s.resolver == nil {
		return nil, &Error{Kind: KindExternal, Key: i18n.TranslationUnavailable, Err: errors.New("translation not configured")}
	}
	res, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		if errors.Is(err, translate.ErrEmptyText) || errors.Is(err, translate.ErrUnknownMode) {
			return nil, &Error{Kind: KindValidation, Key: i18n.MissingRequiredFields, Err: err}
		}
		return nil, &Error{Kind: KindExternal, Key: i18n.TranslationUnavailable, Err: err}
	}
	if res.AzureError != "" {
		s.logger.Warn("azure translation failed, recovered by fallback",
			zap.String("provider", res.Provider),
			zap.String("azure_error", res.AzureError),
		)
	}
	return res, nil
}

// UrduName keeps a supplied Urdu name; otherwise transliterates the Latin one
func (s *NamingService) UrduName(ctx context.Context, name, nameUr string) (string, error) {
	if v := strings.TrimSpace(nameUr); v != "" {
		return v, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	res, err := s.Resolve(ctx, translate.Request{Text: name, Mode: translate.ModeTransliterate})
	if err != nil {
		return "", err
	}
	return res.Translated, nil
}
