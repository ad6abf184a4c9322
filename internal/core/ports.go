package core

import (
	"context"
	"io"
	"time"
)

// LLMClient defines the interface for interacting with LLM services
type LLMClient interface {
	// AnalyzeEmail asks the model to score an extracted record for phishing
	AnalyzeEmail(ctx context.Context, record *EmailRecord) (*AnalysisResult, error)
}

// CacheRepository defines the interface for caching analysis verdicts
type CacheRepository interface {
	// Get retrieves a cached entry for a record fingerprint
	Get(ctx context.Context, fingerprint string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, fingerprint string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// RecordExtractor turns a raw message into an EmailRecord
type RecordExtractor interface {
	Extract(r io.Reader) (*EmailRecord, error)
}

// AnalysisObserver is told about every analysis the service completes
type AnalysisObserver interface {
	ObserveResult(result *AnalysisResult, elapsed time.Duration)
	ObserveFailure(elapsed time.Duration)
}

// EmailFilter is a long-running intake surface such as the SMTP content
// filter or the HTTP API
type EmailFilter interface {
	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}
