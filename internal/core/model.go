package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// MaxBodyLength is the maximum number of characters kept in EmailRecord.Body
const MaxBodyLength = 5000

// EmailRecord is the normalized content extracted from a single message.
// It is built once by the extractor and never modified afterwards.
type EmailRecord struct {
	Sender          *string  `json:"sender"`
	Subject         *string  `json:"subject"`
	Body            string   `json:"body"`
	Links           []string `json:"links"`
	AttachmentCount int      `json:"attachment_count"`
}

// SenderOrEmpty returns the sender header value, or "" when it is absent
func (r *EmailRecord) SenderOrEmpty() string {
	if r == nil || r.Sender == nil {
		return ""
	}
	return *r.Sender
}

// SubjectOrEmpty returns the subject header value, or "" when it is absent
func (r *EmailRecord) SubjectOrEmpty() string {
	if r == nil || r.Subject == nil {
		return ""
	}
	return *r.Subject
}

// Fingerprint returns a stable content hash of the record, used as the cache key
func (r *EmailRecord) Fingerprint() string {
	// The field set is fixed, so Marshal cannot fail here.
	data, _ := json.Marshal(r)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Classification is the label attached to a structured verdict
type Classification string

const (
	ClassificationLegit     Classification = "legit"
	ClassificationUncertain Classification = "uncertain"
	ClassificationPhishing  Classification = "phishing"
)

// Valid reports whether c is one of the known labels
func (c Classification) Valid() bool {
	switch c {
	case ClassificationLegit, ClassificationUncertain, ClassificationPhishing:
		return true
	}
	return false
}

// RiskLevel buckets a phishing score for presentation
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskLevelForScore maps a 0-100 score onto a risk band
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score < 30:
		return RiskLow
	case score < 70:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ClassificationForScore derives a label from the score bands
func ClassificationForScore(score int) Classification {
	switch RiskLevelForScore(score) {
	case RiskLow:
		return ClassificationLegit
	case RiskMedium:
		return ClassificationUncertain
	default:
		return ClassificationPhishing
	}
}

// ResultKind tags which variant an AnalysisResult holds
type ResultKind int

const (
	ResultStructured ResultKind = iota
	ResultUnstructured
)

func (k ResultKind) String() string {
	if k == ResultStructured {
		return "structured"
	}
	return "unstructured"
}

// ResultSource records where a verdict came from
type ResultSource string

const (
	SourceLLM       ResultSource = "llm"
	SourceCache     ResultSource = "cache"
	SourceWhitelist ResultSource = "whitelist"
)

// Verdict is the structured answer of the risk assessor
type Verdict struct {
	Score          int            `json:"phishing_score"`
	Classification Classification `json:"classification"`
	Reasoning      string         `json:"reasoning"`
}

// AnalysisResult is either a structured Verdict or the raw model text.
// Exactly one of Verdict (Kind == ResultStructured) or RawText
// (Kind == ResultUnstructured) is meaningful.
type AnalysisResult struct {
	Kind         ResultKind
	Verdict      *Verdict
	RawText      string
	Source       ResultSource
	AnalyzedAt   time.Time
	ModelUsed    string
	ProcessingID string
}

// NewStructuredResult wraps a verdict
func NewStructuredResult(v Verdict) *AnalysisResult {
	return &AnalysisResult{
		Kind:       ResultStructured,
		Verdict:    &v,
		Source:     SourceLLM,
		AnalyzedAt: time.Now(),
	}
}

// NewUnstructuredResult wraps model output that could not be parsed
func NewUnstructuredResult(raw string) *AnalysisResult {
	return &AnalysisResult{
		Kind:       ResultUnstructured,
		RawText:    raw,
		Source:     SourceLLM,
		AnalyzedAt: time.Now(),
	}
}

// IsStructured reports whether the result carries a verdict
func (r *AnalysisResult) IsStructured() bool {
	return r != nil && r.Kind == ResultStructured && r.Verdict != nil
}

// IsPhishing reports whether the verdict score reaches threshold.
// Unstructured results are never considered phishing.
func (r *AnalysisResult) IsPhishing(threshold int) bool {
	if !r.IsStructured() {
		return false
	}
	return r.Verdict.Score >= threshold
}

// MarshalJSON renders the external AnalysisResult shape
func (r *AnalysisResult) MarshalJSON() ([]byte, error) {
	if r.IsStructured() {
		return json.Marshal(r.Verdict)
	}
	return json.Marshal(struct {
		RawOutput string `json:"raw_output"`
	}{RawOutput: r.RawText})
}

// CacheEntry is a cached structured verdict for a message fingerprint
type CacheEntry struct {
	Fingerprint    string
	Sender         string
	Score          int
	Classification Classification
	Reasoning      string
	ModelUsed      string
	LastSeen       time.Time
	ExpiresAt      time.Time
}
