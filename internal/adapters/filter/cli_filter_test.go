package filter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAnalyzer struct {
	calls  int
	result *core.AnalysisResult
	err    error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, record *core.EmailRecord) (*core.AnalysisResult, error) {
	f.calls++
	return f.result, f.err
}

func newTestCli(analyzer RecordAnalyzer, verbose, extractOnly bool) (*CliFilter, *bytes.Buffer) {
	var out bytes.Buffer
	return NewCliFilter(extractor.New(zap.NewNop()), analyzer, zap.NewNop(), verbose, extractOnly, &out), &out
}

func TestCliFilter_StructuredVerdict(t *testing.T) {
	analyzer := &fakeAnalyzer{result: verdict(88, core.ClassificationPhishing, "Lookalike domain")}
	cli, out := newTestCli(analyzer, false, false)

	report := cli.Process(context.Background(), "stdin", strings.NewReader(rawMessage))
	require.NoError(t, report.Err)
	require.NoError(t, cli.Print(report))

	text := out.String()
	assert.Contains(t, text, "=== stdin ===")
	assert.Contains(t, text, `"sender": "PayPal Support <support@paypa1.example>"`)
	assert.Contains(t, text, `"http://paypa1.example/login"`)
	assert.Contains(t, text, "Phishing score: 88/100")
	assert.Contains(t, text, "Classification: PHISHING")
	assert.Contains(t, text, "Reasoning: Lookalike domain")
	assert.NotContains(t, text, "Model used")
}

func TestCliFilter_UnstructuredVerdict(t *testing.T) {
	analyzer := &fakeAnalyzer{result: core.NewUnstructuredResult("Seems phishy to me")}
	cli, out := newTestCli(analyzer, true, false)

	report := cli.Process(context.Background(), "mail.eml", strings.NewReader(rawMessage))
	require.NoError(t, cli.Print(report))

	text := out.String()
	assert.Contains(t, text, "Could not parse structured response")
	assert.Contains(t, text, "Seems phishy to me")
	assert.Contains(t, text, "Model used")
	assert.NotContains(t, text, "Phishing score")
}

func TestCliFilter_ExtractOnlySkipsAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	cli, out := newTestCli(analyzer, false, true)

	report := cli.Process(context.Background(), "stdin", strings.NewReader(rawMessage))
	require.NoError(t, report.Err)
	require.NoError(t, cli.Print(report))

	assert.Equal(t, 0, analyzer.calls)
	assert.Contains(t, out.String(), "Extracted email data:")
	assert.NotContains(t, out.String(), "=== Analysis ===")
}

func TestCliFilter_Errors(t *testing.T) {
	boom := errors.New("quota exceeded")
	cli, out := newTestCli(&fakeAnalyzer{err: boom}, false, false)

	report := cli.Process(context.Background(), "stdin", strings.NewReader(rawMessage))
	assert.ErrorIs(t, report.Err, boom)
	require.NotNil(t, report.Record)
	require.NoError(t, cli.Print(report))
	assert.Contains(t, out.String(), "Error: quota exceeded")

	report = cli.Process(context.Background(), "bad", strings.NewReader("this line is not a header\r\n\r\nbody\r\n"))
	assert.ErrorIs(t, report.Err, extractor.ErrParse)
	assert.Nil(t, report.Record)
}

func TestCliFilter_ProcessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.eml")
	require.NoError(t, os.WriteFile(path, []byte(rawMessage), 0o600))

	cli, _ := newTestCli(&fakeAnalyzer{result: verdict(10, core.ClassificationLegit, "fine")}, false, false)
	report := cli.ProcessFile(context.Background(), path)
	require.NoError(t, report.Err)
	assert.Equal(t, path, report.Source)
	assert.Equal(t, 10, report.Result.Verdict.Score)

	report = cli.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.eml"))
	assert.Error(t, report.Err)
}

func TestUpper(t *testing.T) {
	assert.Equal(t, "UNCERTAIN", upper("uncertain"))
}
