// Package translate resolves Urdu names for Latin input through an ordered
// chain of machine translation providers (Azure first, DeepL as fallback),
// with per-call timeouts and a TTL cache.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Mode translation flavour
type Mode string

const (
	ModeTranslate     Mode = "translate"
	ModeTransliterate Mode = "transliterate"
)

const (
	ProviderAzure = "azure"
	ProviderDeepL = "deepl"
)

var (
	ErrEmptyText   = errors.New("text is required")
	ErrUnknownMode = errors.New("mode must be translate or transliterate")
)

// ParseMode accepts the two known modes, case-insensitively
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeTranslate:
		return ModeTranslate, nil
	case ModeTransliterate, "":
		return ModeTransliterate, nil
	}
	return "", ErrUnknownMode
}

// Provider one machine translation backend
type Provider interface {
	Name() string
	Translate(ctx context.Context, mode Mode, text string) (string, error)
}

// Request resolve input
type Request struct {
	Text string `json:"text"`
	Mode Mode   `json:"mode"`
}

// Result resolve output. AzureError is set when a fallback provider answered.
type Result struct {
	Translated string `json:"translated"`
	Provider   string `json:"provider"`
	AzureError string `json:"azure_error,omitempty"`
}

// ProviderError failure of a single provider in the chain
type ProviderError struct {
	Provider string
	Err      error
}

func (e ProviderError) Error() string { return e.Err.Error() }

// ChainError every provider failed
type ChainError struct {
	Errors []ProviderError
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, pe := range e.Errors {
		parts = append(parts, pe.Provider+": "+pe.Err.Error())
	}
	return "translation failed (" + strings.Join(parts, "; ") + ")"
}

// ProviderErr error recorded for the named provider, if any
func (e *ChainError) ProviderErr(name string) error {
	for _, pe := range e.Errors {
		if pe.Provider == name {
			return pe.Err
		}
	}
	return nil
}

func (e *ChainError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, pe := range e.Errors {
		out = append(out, pe.Err)
	}
	return out
}

// Service provider chain with cache
type Service struct {
	providers []Provider
	cache     Cache
	timeout   time.Duration
	logger    *zap.Logger
}

// NewService providers are tried in the given order
func NewService(providers []Provider, cache Cache, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if cache == nil {
		cache = noCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		providers: providers,
		cache:     cache,
		timeout:   timeout,
		logger:    logger,
	}
}

func cacheKey(mode Mode, text string) string {
	return string(mode) + ":" + text
}

// Resolve returns the cached answer or walks the provider chain in order.
func (s *Service) Resolve(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeTransliterate
	}
	if mode != ModeTranslate && mode != ModeTransliterate {
		return nil, ErrUnknownMode
	}

	key := cacheKey(mode, req.Text)
	if hit, ok := s.cache.Get(ctx, key); ok {
		return &Result{Translated: hit.Translated, Provider: hit.Provider}, nil
	}

	var failures []ProviderError
	for _, p := range s.providers {
		translated, err := s.call(ctx, p, mode, req.Text)
		if err == nil {
			res := &Result{Translated: translated, Provider: p.Name()}
			if azureErr := errorFor(failures, ProviderAzure); azureErr != nil {
				res.AzureError = azureErr.Error()
				s.logger.Warn("translation served by fallback provider",
					zap.String("provider", p.Name()),
					zap.String("mode", string(mode)),
					zap.String("azure_error", res.AzureError),
				)
			}
			s.cache.Set(ctx, key, Entry{Translated: translated, Provider: p.Name(), StoredAt: time.Now()})
			return res, nil
		}
		failures = append(failures, ProviderError{Provider: p.Name(), Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	if len(failures) == 0 {
		return nil, &ChainError{Errors: []ProviderError{{Provider: ProviderAzure, Err: ErrAzureNotConfigured}}}
	}
	return nil, &ChainError{Errors: failures}
}

func (s *Service) call(ctx context.Context, p Provider, mode Mode, text string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := p.Translate(callCtx, mode, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("timed out after %dms: %w", s.timeout.Milliseconds(), err)
		}
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%s returned an empty translation", p.Name())
	}
	return out, nil
}

func errorFor(failures []ProviderError, name string) error {
	for _, f := range failures {
		if f.Provider == name {
			return f.Err
		}
	}
	return nil
}
