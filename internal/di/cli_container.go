package di

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-phish-detector/internal/adapters/filter"
	"github.com/mikey/llm-phish-detector/internal/config"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/factory"
	"github.com/mikey/llm-phish-detector/internal/logging"
	"github.com/mikey/llm-phish-detector/internal/metrics"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// LLM provider flags
	Provider    string
	MaxTokens   int
	Temperature float64
	TopP        float64

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// OpenAI flags
	OpenAIAPIKey    string
	OpenAIModelName string

	// Detection flags
	Threshold    int
	Whitelist    string
	StripScripts bool

	// Input flags
	InputFiles  []string
	ExtractOnly bool
	Concurrency int
	Verbose     bool
	JSONLog     bool
	ConfigFile  string

	// Output receives the rendered reports; stdout when nil
	Output io.Writer

	explicit map[string]bool
}

// ParseFlags parses command line arguments into a CLIFlags struct.
// Positional arguments are input files, in addition to -file.
func ParseFlags(name string, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{explicit: make(map[string]bool)}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	var inputFile string

	// LLM provider flags
	fs.StringVar(&flags.Provider, "provider", "gemini", "LLM provider (gemini, openai, bedrock)")
	fs.IntVar(&flags.MaxTokens, "max-tokens", 1000, "Maximum tokens for LLM response")
	fs.Float64Var(&flags.Temperature, "temperature", 0.1, "Temperature for LLM generation")
	fs.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for LLM generation")

	// Bedrock flags
	fs.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	fs.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-3-haiku-20240307-v1:0", "Bedrock model ID")

	// Gemini flags
	fs.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini (default $GOOGLE_API_KEY)")
	fs.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-1.5-flash", "Gemini model name")

	// OpenAI flags
	fs.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI (default $OPENAI_API_KEY)")
	fs.StringVar(&flags.OpenAIModelName, "openai-model", "gpt-4o-mini", "OpenAI model name")

	// Detection flags
	fs.IntVar(&flags.Threshold, "threshold", 70, "Score (0-100) at which an email counts as phishing")
	fs.StringVar(&flags.Whitelist, "whitelist", "", "Comma-separated list of whitelisted domains")
	fs.BoolVar(&flags.StripScripts, "strip-scripts", false, "Drop <script> and <style> content from HTML bodies")

	// Input flags
	fs.StringVar(&inputFile, "file", "", "Input email file (use stdin if no files are given)")
	fs.BoolVar(&flags.ExtractOnly, "extract-only", false, "Print the extracted record without calling the LLM")
	fs.IntVar(&flags.Concurrency, "concurrency", 4, "Number of files analyzed in parallel")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file; explicit flags still win")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { flags.explicit[f.Name] = true })

	if inputFile != "" {
		flags.InputFiles = append(flags.InputFiles, inputFile)
	}
	flags.InputFiles = append(flags.InputFiles, fs.Args()...)

	if flags.Concurrency < 1 {
		flags.Concurrency = 1
	}

	return flags, nil
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		return loadCLIConfig(flags, logger)
	}); err != nil {
		return nil, err
	}

	// The CLI exports no metrics
	if err := container.Provide(func() *metrics.Metrics { return nil }); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	// Register phishing detection service. Extract-only runs never build an
	// LLM client, so no credentials are needed.
	if err := container.Provide(func(
		flags *CLIFlags,
		cfg *config.Config,
		f *factory.LLMFactory,
		extractor core.RecordExtractor,
		trusted core.SenderPolicy,
		logger *zap.Logger,
	) (*core.PhishingDetectionService, error) {
		if flags.ExtractOnly {
			return nil, nil
		}
		llmClient, err := f.CreateLLMClient()
		if err != nil {
			return nil, err
		}
		return core.NewPhishingDetectionService(extractor, llmClient, nil, trusted, logger, core.ServiceOptions{
			Threshold: cfg.GetDetection().Threshold,
		}), nil
	}); err != nil {
		return nil, err
	}

	// Register CLI filter
	if err := container.Provide(func(flags *CLIFlags, f *factory.FilterFactory) *filter.CliFilter {
		return f.CreateCliFilter(flags.Verbose, flags.ExtractOnly, flags.Output)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// loadCLIConfig reads the config file when one is given, then applies the
// flags that were set explicitly on top
func loadCLIConfig(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if flags.ConfigFile != "" {
		loaded, err := config.NewFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded configuration from file", zap.String("file", loaded.GetViper().ConfigFileUsed()))
		cfg = loaded
	} else {
		cfg = config.NewFromViper(config.NewEmptyViper())
	}

	if err := applyFlags(cfg.GetViper(), flags); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags onto v. Flag defaults match the
// config defaults, so unset flags leave file and environment values alone.
func applyFlags(v *viper.Viper, flags *CLIFlags) error {
	set := func(name string) bool {
		return flags.explicit[name]
	}

	// The CLI never caches
	v.Set("cache.enabled", false)

	if set("provider") {
		v.Set("llm.provider", flags.Provider)
	}
	provider := strings.ToLower(v.GetString("llm.provider"))

	switch provider {
	case "bedrock":
		if set("bedrock-region") {
			v.Set("bedrock.region", flags.BedrockRegion)
		}
		if set("bedrock-model") {
			v.Set("bedrock.model_id", flags.BedrockModelID)
		}
	case "gemini":
		if set("gemini-api-key") {
			v.Set("gemini.api_key", flags.GeminiAPIKey)
		}
		if set("gemini-model") {
			v.Set("gemini.model_name", flags.GeminiModelName)
		}
	case "openai":
		if set("openai-api-key") {
			v.Set("openai.api_key", flags.OpenAIAPIKey)
		}
		if set("openai-model") {
			v.Set("openai.model_name", flags.OpenAIModelName)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", provider)
	}

	if set("max-tokens") {
		v.Set(provider+".max_tokens", flags.MaxTokens)
	}
	if set("temperature") {
		v.Set(provider+".temperature", flags.Temperature)
	}
	if set("top-p") {
		v.Set(provider+".top_p", flags.TopP)
	}

	if set("threshold") {
		v.Set("detection.threshold", flags.Threshold)
	}
	if set("whitelist") {
		var domains []string
		for _, d := range strings.Split(flags.Whitelist, ",") {
			if d = strings.TrimSpace(d); d != "" {
				domains = append(domains, d)
			}
		}
		v.Set("detection.whitelisted_domains", domains)
	}
	if set("strip-scripts") {
		v.Set("extractor.strip_script_content", flags.StripScripts)
	}

	return nil
}
