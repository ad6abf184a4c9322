package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLLM struct {
	calls  int
	result *AnalysisResult
	err    error
}

func (f *fakeLLM) AnalyzeEmail(ctx context.Context, record *EmailRecord) (*AnalysisResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeCache struct {
	entries map[string]*CacheEntry
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*CacheEntry)}
}

func (c *fakeCache) Get(ctx context.Context, fingerprint string) (*CacheEntry, error) {
	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, errors.New("not found")
	}
	return entry, nil
}

func (c *fakeCache) Set(ctx context.Context, entry *CacheEntry) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[entry.Fingerprint] = entry
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, fingerprint string) error {
	delete(c.entries, fingerprint)
	return nil
}

func (c *fakeCache) Cleanup(ctx context.Context) error { return nil }

type domainPolicy string

func (d domainPolicy) IsWhitelisted(from string) bool {
	return strings.HasSuffix(from, "@"+string(d))
}

type fakeExtractor struct {
	record *EmailRecord
	err    error
}

func (f *fakeExtractor) Extract(r io.Reader) (*EmailRecord, error) {
	return f.record, f.err
}

func phishingVerdict() *AnalysisResult {
	result := NewStructuredResult(Verdict{Score: 91, Classification: ClassificationPhishing, Reasoning: "spoofed"})
	result.ModelUsed = "test-model"
	return result
}

func TestService_AnalyzeCallsLLMAndCaches(t *testing.T) {
	llm := &fakeLLM{result: phishingVerdict()}
	cache := newFakeCache()
	svc := NewPhishingDetectionService(nil, llm, cache, nil, zap.NewNop(),
		ServiceOptions{CacheEnabled: true, CacheTTL: time.Hour, Threshold: 70})

	record := &EmailRecord{Sender: strPtr("x@evil.example"), Body: "verify now", Links: []string{}}

	first, err := svc.Analyze(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, first.Source)
	assert.True(t, svc.IsPhishing(first))
	require.Contains(t, cache.entries, record.Fingerprint())
	assert.Equal(t, "x@evil.example", cache.entries[record.Fingerprint()].Sender)

	second, err := svc.Analyze(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, 91, second.Verdict.Score)
	assert.Equal(t, "test-model", second.ModelUsed)
	assert.Equal(t, 1, llm.calls)

	assert.NotEmpty(t, first.ProcessingID)
	assert.NotEqual(t, first.ProcessingID, second.ProcessingID)
}

func TestService_WhitelistBypassesLLM(t *testing.T) {
	llm := &fakeLLM{result: phishingVerdict()}
	svc := NewPhishingDetectionService(nil, llm, nil, domainPolicy("corp.example"), zap.NewNop(),
		ServiceOptions{Threshold: 70})

	result, err := svc.Analyze(context.Background(), &EmailRecord{Sender: strPtr("boss@corp.example")})
	require.NoError(t, err)

	assert.Equal(t, SourceWhitelist, result.Source)
	assert.Equal(t, ClassificationLegit, result.Verdict.Classification)
	assert.Equal(t, 0, result.Verdict.Score)
	assert.Equal(t, 0, llm.calls)
}

func TestService_UnstructuredResultNotCached(t *testing.T) {
	llm := &fakeLLM{result: NewUnstructuredResult("no idea")}
	cache := newFakeCache()
	svc := NewPhishingDetectionService(nil, llm, cache, nil, zap.NewNop(),
		ServiceOptions{CacheEnabled: true, CacheTTL: time.Hour, Threshold: 70})

	result, err := svc.Analyze(context.Background(), &EmailRecord{Links: []string{}})
	require.NoError(t, err)

	assert.False(t, result.IsStructured())
	assert.False(t, svc.IsPhishing(result))
	assert.Empty(t, cache.entries)
}

func TestService_LLMErrorPropagates(t *testing.T) {
	llm := &fakeLLM{err: errors.New("quota exceeded")}
	svc := NewPhishingDetectionService(nil, llm, nil, nil, zap.NewNop(), ServiceOptions{Threshold: 70})

	_, err := svc.Analyze(context.Background(), &EmailRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestService_CacheWriteFailureIsNotFatal(t *testing.T) {
	cache := newFakeCache()
	cache.setErr = errors.New("disk full")
	svc := NewPhishingDetectionService(nil, &fakeLLM{result: phishingVerdict()}, cache, nil, zap.NewNop(),
		ServiceOptions{CacheEnabled: true, CacheTTL: time.Minute, Threshold: 70})

	result, err := svc.Analyze(context.Background(), &EmailRecord{})
	require.NoError(t, err)
	assert.True(t, result.IsStructured())
}

func TestService_NilCacheDisablesCaching(t *testing.T) {
	llm := &fakeLLM{result: phishingVerdict()}
	svc := NewPhishingDetectionService(nil, llm, nil, nil, zap.NewNop(),
		ServiceOptions{CacheEnabled: true, Threshold: 70})

	_, err := svc.Analyze(context.Background(), &EmailRecord{})
	require.NoError(t, err)
	_, err = svc.Analyze(context.Background(), &EmailRecord{})
	require.NoError(t, err)
	assert.Equal(t, 2, llm.calls)
}

func TestService_ProcessMessage(t *testing.T) {
	record := &EmailRecord{Sender: strPtr("a@b.example"), Links: []string{}}
	svc := NewPhishingDetectionService(&fakeExtractor{record: record}, &fakeLLM{result: phishingVerdict()},
		nil, nil, zap.NewNop(), ServiceOptions{Threshold: 70})

	gotRecord, result, err := svc.ProcessMessage(context.Background(), strings.NewReader("raw"))
	require.NoError(t, err)
	assert.Same(t, record, gotRecord)
	assert.Equal(t, 91, result.Verdict.Score)
}

func TestService_ProcessMessageExtractionError(t *testing.T) {
	parseErr := errors.New("bad mime")
	llm := &fakeLLM{result: phishingVerdict()}
	svc := NewPhishingDetectionService(&fakeExtractor{err: parseErr}, llm, nil, nil, zap.NewNop(),
		ServiceOptions{Threshold: 70})

	record, result, err := svc.ProcessMessage(context.Background(), strings.NewReader("raw"))
	assert.ErrorIs(t, err, parseErr)
	assert.Nil(t, record)
	assert.Nil(t, result)
	assert.Equal(t, 0, llm.calls)
}

func TestService_ProcessMessageWithoutExtractor(t *testing.T) {
	svc := NewPhishingDetectionService(nil, &fakeLLM{}, nil, nil, zap.NewNop(), ServiceOptions{})

	_, _, err := svc.ProcessMessage(context.Background(), strings.NewReader("raw"))
	assert.ErrorIs(t, err, ErrNoExtractor)
}

type recordingObserver struct {
	results  []*AnalysisResult
	failures int
}

func (o *recordingObserver) ObserveResult(result *AnalysisResult, elapsed time.Duration) {
	o.results = append(o.results, result)
}

func (o *recordingObserver) ObserveFailure(elapsed time.Duration) {
	o.failures++
}

func TestService_NotifiesObserver(t *testing.T) {
	observer := &recordingObserver{}
	llm := &fakeLLM{result: phishingVerdict()}
	svc := NewPhishingDetectionService(nil, llm, nil, nil, zap.NewNop(), ServiceOptions{Threshold: 70}).
		WithObserver(observer)

	result, err := svc.Analyze(context.Background(), &EmailRecord{Body: "hi", Links: []string{}})
	require.NoError(t, err)
	require.Len(t, observer.results, 1)
	assert.Same(t, result, observer.results[0])

	llm.result, llm.err = nil, errors.New("unavailable")
	_, err = svc.Analyze(context.Background(), &EmailRecord{Body: "hi", Links: []string{}})
	require.Error(t, err)
	assert.Equal(t, 1, observer.failures)
}
