package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoExtractor is returned by ProcessMessage when the service was built without an extractor
var ErrNoExtractor = errors.New("no record extractor configured")

// SenderPolicy decides whether a sender bypasses analysis
type SenderPolicy interface {
	IsWhitelisted(from string) bool
}

// ServiceOptions holds the tunables of PhishingDetectionService
type ServiceOptions struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	Threshold    int
}

// PhishingDetectionService is the core service for phishing detection
type PhishingDetectionService struct {
	extractor RecordExtractor
	llmClient LLMClient
	cache     CacheRepository
	trusted   SenderPolicy
	observer  AnalysisObserver
	logger    *zap.Logger
	opts      ServiceOptions
}

// NewPhishingDetectionService creates a new phishing detection service.
// cache and trusted may be nil.
func NewPhishingDetectionService(
	extractor RecordExtractor,
	llmClient LLMClient,
	cache CacheRepository,
	trusted SenderPolicy,
	logger *zap.Logger,
	opts ServiceOptions,
) *PhishingDetectionService {
	if cache == nil {
		opts.CacheEnabled = false
	}
	return &PhishingDetectionService{
		extractor: extractor,
		llmClient: llmClient,
		cache:     cache,
		trusted:   trusted,
		logger:    logger,
		opts:      opts,
	}
}

// WithObserver attaches an observer that sees every analysis outcome
func (s *PhishingDetectionService) WithObserver(observer AnalysisObserver) *PhishingDetectionService {
	s.observer = observer
	return s
}

// Threshold returns the score at which a verdict counts as phishing
func (s *PhishingDetectionService) Threshold() int {
	return s.opts.Threshold
}

// ProcessMessage extracts a record from a raw message and analyzes it.
// The record is returned even when analysis fails.
func (s *PhishingDetectionService) ProcessMessage(ctx context.Context, r io.Reader) (*EmailRecord, *AnalysisResult, error) {
	if s.extractor == nil {
		return nil, nil, ErrNoExtractor
	}
	record, err := s.extractor.Extract(r)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.Analyze(ctx, record)
	if err != nil {
		return record, nil, err
	}
	return record, result, nil
}

// Analyze scores an extracted record. Every returned result carries a fresh
// ProcessingID.
func (s *PhishingDetectionService) Analyze(ctx context.Context, record *EmailRecord) (*AnalysisResult, error) {
	processingID := uuid.NewString()
	start := time.Now()

	result, err := s.analyze(ctx, record, processingID)
	if err != nil {
		if s.observer != nil {
			s.observer.ObserveFailure(time.Since(start))
		}
		return nil, err
	}
	result.ProcessingID = processingID

	if s.observer != nil {
		s.observer.ObserveResult(result, time.Since(start))
	}
	return result, nil
}

func (s *PhishingDetectionService) analyze(ctx context.Context, record *EmailRecord, processingID string) (*AnalysisResult, error) {
	sender := record.SenderOrEmpty()

	if s.trusted != nil && s.trusted.IsWhitelisted(sender) {
		s.logger.Info("Skipping phishing check for whitelisted domain",
			zap.String("sender", sender),
			zap.String("action", "whitelist_bypass"))

		result := NewStructuredResult(Verdict{
			Score:          0,
			Classification: ClassificationLegit,
			Reasoning:      "Sender domain is whitelisted",
		})
		result.Source = SourceWhitelist
		result.ModelUsed = "whitelist"
		return result, nil
	}

	fingerprint := record.Fingerprint()

	if s.opts.CacheEnabled {
		if entry, err := s.cache.Get(ctx, fingerprint); err == nil {
			s.logger.Debug("Cache hit for message", zap.String("fingerprint", fingerprint))
			result := NewStructuredResult(Verdict{
				Score:          entry.Score,
				Classification: entry.Classification,
				Reasoning:      entry.Reasoning,
			})
			result.Source = SourceCache
			result.ModelUsed = entry.ModelUsed
			return result, nil
		}
	}

	result, err := s.llmClient.AnalyzeEmail(ctx, record)
	if err != nil {
		s.logger.Error("Risk assessment failed",
			zap.String("processing_id", processingID),
			zap.Error(err))
		return nil, fmt.Errorf("risk assessment failed: %w", err)
	}

	if !result.IsStructured() {
		s.logger.Warn("Model response could not be parsed as a verdict",
			zap.String("processing_id", processingID),
			zap.String("sender", sender),
			zap.String("model", result.ModelUsed))
		return result, nil
	}

	if s.opts.CacheEnabled {
		now := time.Now()
		entry := &CacheEntry{
			Fingerprint:    fingerprint,
			Sender:         sender,
			Score:          result.Verdict.Score,
			Classification: result.Verdict.Classification,
			Reasoning:      result.Verdict.Reasoning,
			ModelUsed:      result.ModelUsed,
			LastSeen:       now,
			ExpiresAt:      now.Add(s.opts.CacheTTL),
		}
		if err := s.cache.Set(ctx, entry); err != nil {
			s.logger.Error("Failed to update cache", zap.Error(err))
		}
	}

	return result, nil
}

// IsPhishing determines if a result is phishing based on the threshold
func (s *PhishingDetectionService) IsPhishing(result *AnalysisResult) bool {
	return result.IsPhishing(s.opts.Threshold)
}
