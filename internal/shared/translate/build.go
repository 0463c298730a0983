package translate

import (
	"net/http"

	"github.com/bitfantasy/backoffice/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FromConfig Azure then DeepL, cache per TRANSLATION_CACHE_TTL_MS
func FromConfig(cfg config.TranslationConfig, rdb *redis.Client, logger *zap.Logger) *Service {
	httpClient := &http.Client{}
	providers := []Provider{
		NewAzureProvider(cfg.AzureKey, cfg.AzureRegion, cfg.AzureEndpoint, httpClient),
		NewDeepLProvider(cfg.DeepLKey, cfg.DeepLURL, httpClient),
	}
	cache := NewCache(cfg.CacheTTL(), cfg.CacheMaxEntries, rdb, logger)
	return NewService(providers, cache, cfg.HTTPTimeout(), logger)
}
