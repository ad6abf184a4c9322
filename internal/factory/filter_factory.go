package factory

import (
	"io"

	"github.com/mikey/llm-phish-detector/internal/adapters/filter"
	"github.com/mikey/llm-phish-detector/internal/adapters/httpapi"
	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/metrics"
	"go.uber.org/zap"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg       *config.Config
	logger    *zap.Logger
	service   *core.PhishingDetectionService
	extractor core.RecordExtractor
	metrics   *metrics.Metrics
}

// NewFilterFactory creates a new filter factory. m may be nil.
func NewFilterFactory(
	cfg *config.Config,
	logger *zap.Logger,
	service *core.PhishingDetectionService,
	extractor core.RecordExtractor,
	m *metrics.Metrics,
) *FilterFactory {
	return &FilterFactory{
		cfg:       cfg,
		logger:    logger,
		service:   service,
		extractor: extractor,
		metrics:   m,
	}
}

// CreateEmailFilters creates the enabled daemon surfaces: the SMTP content
// filter and the HTTP API
func (f *FilterFactory) CreateEmailFilters() []core.EmailFilter {
	serverCfg := f.cfg.GetServer()
	var filters []core.EmailFilter

	if serverCfg.SMTPEnabled {
		filters = append(filters, f.CreatePostfixFilter())
	}
	if serverCfg.HTTPEnabled {
		filters = append(filters, f.CreateHTTPServer())
	}

	return filters
}

// CreatePostfixFilter creates the SMTP content filter
func (f *FilterFactory) CreatePostfixFilter() *filter.PostfixFilter {
	return filter.NewPostfixFilter(
		f.service,
		f.logger.Named("smtp"),
		f.cfg.GetServer(),
		f.cfg.GetLLM().Timeout,
	)
}

// CreateHTTPServer creates the HTTP API server
func (f *FilterFactory) CreateHTTPServer() *httpapi.Server {
	serverCfg := f.cfg.GetServer()

	var opts []httpapi.ServerOption
	if serverCfg.MetricsEnabled && f.metrics != nil {
		opts = append(opts, httpapi.WithMetrics(f.metrics))
	}

	return httpapi.NewServer(httpapi.Config{
		ListenAddress:   serverCfg.HTTPAddress,
		MaxMessageBytes: serverCfg.MaxMessageBytes,
	}, f.extractor, f.service, f.logger.Named("http"), opts...)
}

// CreateCliFilter creates the CLI renderer. With extractOnly the service is
// never called.
func (f *FilterFactory) CreateCliFilter(verbose, extractOnly bool, out io.Writer) *filter.CliFilter {
	var analyzer filter.RecordAnalyzer
	if f.service != nil {
		analyzer = f.service
	}
	return filter.NewCliFilter(f.extractor, analyzer, f.logger, verbose, extractOnly, out)
}
