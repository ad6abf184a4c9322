package factory

import (
	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/extractor"
	"github.com/mikey/llm-phish-detector/internal/utils"
	"go.uber.org/zap"
)

// ExtractorFactory creates the text processor and the content extractor
type ExtractorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewExtractorFactory creates a new ExtractorFactory
func NewExtractorFactory(cfg *config.Config, logger *zap.Logger) *ExtractorFactory {
	return &ExtractorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates a new TextProcessor
func (f *ExtractorFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger)
}

// CreateExtractor creates an Extractor configured from extractor.*
func (f *ExtractorFactory) CreateExtractor(textProcessor *utils.TextProcessor) *extractor.Extractor {
	opts := []extractor.Option{extractor.WithTextProcessor(textProcessor)}
	if f.cfg.GetExtractor().StripScriptContent {
		opts = append(opts, extractor.WithScriptStripping())
	}
	return extractor.New(f.logger, opts...)
}
