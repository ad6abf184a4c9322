package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/extractor"
	"github.com/mikey/llm-phish-detector/internal/factory"
	"github.com/mikey/llm-phish-detector/internal/logging"
	"github.com/mikey/llm-phish-detector/internal/metrics"
	"github.com/mikey/llm-phish-detector/internal/utils"
	"github.com/mikey/llm-phish-detector/internal/whitelist"
)

// BuildContainer creates and configures the dependency injection container
// for the filter daemon
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	// Register cache repository
	if err := container.Provide(func(f *factory.CacheFactory) (core.CacheRepository, error) {
		return f.CreateCacheRepository()
	}); err != nil {
		return nil, err
	}

	// Register LLM client
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		return f.CreateLLMClient()
	}); err != nil {
		return nil, err
	}

	// Register service options
	if err := container.Provide(func(cfg *config.Config, f *factory.CacheFactory) (core.ServiceOptions, error) {
		ttl, err := f.GetCacheTTL()
		if err != nil {
			return core.ServiceOptions{}, err
		}
		return core.ServiceOptions{
			CacheEnabled: f.IsCacheEnabled(),
			CacheTTL:     ttl,
			Threshold:    cfg.GetDetection().Threshold,
		}, nil
	}); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.New); err != nil {
		return nil, err
	}

	// Register phishing detection service
	if err := container.Provide(func(
		extractor core.RecordExtractor,
		llmClient core.LLMClient,
		cacheRepo core.CacheRepository,
		trusted core.SenderPolicy,
		logger *zap.Logger,
		opts core.ServiceOptions,
		m *metrics.Metrics,
	) *core.PhishingDetectionService {
		return core.NewPhishingDetectionService(extractor, llmClient, cacheRepo, trusted, logger, opts).
			WithObserver(m)
	}); err != nil {
		return nil, err
	}

	// Register email filters
	if err := container.Provide(func(f *factory.FilterFactory) []core.EmailFilter {
		return f.CreateEmailFilters()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideCommon registers what both binaries share: factories, the text
// processor, the extractor and the sender whitelist
func provideCommon(container *dig.Container) error {
	// Register factories
	for _, ctor := range []interface{}{
		factory.NewLLMFactory,
		factory.NewCacheFactory,
		factory.NewFilterFactory,
		factory.NewExtractorFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register text processor
	if err := container.Provide(func(f *factory.ExtractorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register extractor
	if err := container.Provide(func(f *factory.ExtractorFactory, tp *utils.TextProcessor) *extractor.Extractor {
		return f.CreateExtractor(tp)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(e *extractor.Extractor) core.RecordExtractor {
		return e
	}); err != nil {
		return err
	}

	// Register whitelisted domains
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.SenderPolicy {
		return whitelist.NewChecker(cfg.GetDetection().WhitelistedDomains, logger)
	}); err != nil {
		return err
	}

	return nil
}
