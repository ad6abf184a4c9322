package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mikey/llm-phish-detector/internal/core"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RecordAnalyzer is the part of the detection service the CLI needs
type RecordAnalyzer interface {
	Analyze(ctx context.Context, record *core.EmailRecord) (*core.AnalysisResult, error)
}

// Report is the outcome of processing one input
type Report struct {
	Source   string
	Record   *core.EmailRecord
	Result   *core.AnalysisResult
	Duration time.Duration
	Err      error
}

// CliFilter implements a command-line interface for phishing detection
type CliFilter struct {
	extractor   core.RecordExtractor
	service     RecordAnalyzer
	logger      *zap.Logger
	verbose     bool
	extractOnly bool
	out         io.Writer
	styles      cliStyles
}

type cliStyles struct {
	heading lipgloss.Style
	low     lipgloss.Style
	medium  lipgloss.Style
	high    lipgloss.Style
	muted   lipgloss.Style
}

func newCliStyles(out io.Writer) cliStyles {
	r := lipgloss.NewRenderer(out)
	return cliStyles{
		heading: r.NewStyle().Bold(true),
		low:     r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		medium:  r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		high:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:   r.NewStyle().Faint(true),
	}
}

// NewCliFilter creates a new CLI filter writing to out (stdout when nil).
// service may be nil when extractOnly is set.
func NewCliFilter(
	extractor core.RecordExtractor,
	service RecordAnalyzer,
	logger *zap.Logger,
	verbose bool,
	extractOnly bool,
	out io.Writer,
) *CliFilter {
	if out == nil {
		out = os.Stdout
	}
	return &CliFilter{
		extractor:   extractor,
		service:     service,
		logger:      logger,
		verbose:     verbose,
		extractOnly: extractOnly,
		out:         out,
		styles:      newCliStyles(out),
	}
}

// Process extracts and, unless extract-only, analyzes one message
func (f *CliFilter) Process(ctx context.Context, source string, r io.Reader) *Report {
	report := &Report{Source: source}
	startTime := time.Now()
	defer func() { report.Duration = time.Since(startTime) }()

	record, err := f.extractor.Extract(r)
	if err != nil {
		f.logger.Error("Failed to extract email", zap.String("source", source), zap.Error(err))
		report.Err = err
		return report
	}
	report.Record = record

	if f.extractOnly || f.service == nil {
		return report
	}

	f.logger.Debug("Analyzing email", zap.String("source", source), zap.String("sender", record.SenderOrEmpty()))
	result, err := f.service.Analyze(ctx, record)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.String("source", source), zap.Error(err))
		report.Err = err
		return report
	}
	report.Result = result
	return report
}

// ProcessFile runs Process over the file at path
func (f *CliFilter) ProcessFile(ctx context.Context, path string) *Report {
	file, err := os.Open(path)
	if err != nil {
		return &Report{Source: path, Err: fmt.Errorf("failed to open %s: %w", path, err)}
	}
	defer file.Close()
	return f.Process(ctx, path, file)
}

// Print writes a report. The record is printed as indented JSON followed by
// the verdict.
func (f *CliFilter) Print(report *Report) error {
	w := f.out
	s := f.styles

	fmt.Fprintf(w, "\n%s\n", s.heading.Render("=== "+report.Source+" ==="))

	if report.Record != nil {
		details, err := json.MarshalIndent(report.Record, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize email record: %w", err)
		}
		fmt.Fprintf(w, "%s\n%s\n", s.heading.Render("Extracted email data:"), details)
	}

	if report.Err != nil {
		fmt.Fprintf(w, "%s %v\n", s.high.Render("Error:"), report.Err)
		return nil
	}

	if report.Result == nil {
		return nil
	}

	result := report.Result
	fmt.Fprintf(w, "\n%s\n", s.heading.Render("=== Analysis ==="))
	if !result.IsStructured() {
		fmt.Fprintf(w, "%s\n%s\n", s.medium.Render("Could not parse structured response"), result.RawText)
	} else {
		v := result.Verdict
		style := s.styleFor(core.RiskLevelForScore(v.Score))
		fmt.Fprintf(w, "Phishing score: %s\n", style.Render(fmt.Sprintf("%d/100", v.Score)))
		fmt.Fprintf(w, "Classification: %s\n", style.Render(upper(string(v.Classification))))
		fmt.Fprintf(w, "Reasoning: %s\n", v.Reasoning)
	}

	if f.verbose {
		fmt.Fprintf(w, "%s\n", s.muted.Render(strings.Join([]string{
			"Model used: " + result.ModelUsed,
			"Source: " + string(result.Source),
			"Processing ID: " + result.ProcessingID,
			"Processing time: " + report.Duration.Round(time.Millisecond).String(),
		}, "\n")))
	}

	return nil
}

func (s cliStyles) styleFor(level core.RiskLevel) lipgloss.Style {
	switch level {
	case core.RiskLow:
		return s.low
	case core.RiskMedium:
		return s.medium
	default:
		return s.high
	}
}

func upper(s string) string {
	return cases.Upper(language.Und).String(s)
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
