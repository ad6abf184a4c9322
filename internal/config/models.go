package config

import (
	"time"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
	Timeout  time.Duration
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ExtractorConfig represents the configuration for content extraction
type ExtractorConfig struct {
	StripScriptContent bool
}

// DetectionConfig represents the phishing decision settings
type DetectionConfig struct {
	Threshold          int
	WhitelistedDomains []string
}

// HeaderNames are the headers added by the SMTP content filter
type HeaderNames struct {
	Status         string
	Score          string
	Classification string
	Reason         string
}

// ServerConfig represents the daemon's listeners and relay settings
type ServerConfig struct {
	SMTPEnabled     bool
	ListenAddress   string
	BlockPhishing   bool
	Headers         HeaderNames
	PostfixEnabled  bool
	PostfixAddress  string
	PostfixPort     int
	ModifySubject   bool
	SubjectPrefix   string
	HTTPEnabled     bool
	HTTPAddress     string
	MaxMessageBytes int64
	MetricsEnabled  bool
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	timeout, err := c.GetDuration("llm.timeout")
	if err != nil {
		timeout = 60 * time.Second
	}
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
		Timeout:  timeout,
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetExtractor returns the extractor configuration
func (c *Config) GetExtractor() ExtractorConfig {
	return ExtractorConfig{
		StripScriptContent: c.GetBool("extractor.strip_script_content"),
	}
}

// GetDetection returns the detection configuration
func (c *Config) GetDetection() DetectionConfig {
	return DetectionConfig{
		Threshold:          c.GetInt("detection.threshold"),
		WhitelistedDomains: c.GetStringSlice("detection.whitelisted_domains"),
	}
}

// GetServer returns the server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		SMTPEnabled:   c.GetBool("server.smtp.enabled"),
		ListenAddress: c.GetString("server.listen_address"),
		BlockPhishing: c.GetBool("server.block_phishing"),
		Headers: HeaderNames{
			Status:         c.GetString("server.headers.status"),
			Score:          c.GetString("server.headers.score"),
			Classification: c.GetString("server.headers.classification"),
			Reason:         c.GetString("server.headers.reason"),
		},
		PostfixEnabled:  c.GetBool("server.postfix.enabled"),
		PostfixAddress:  c.GetString("server.postfix.address"),
		PostfixPort:     c.GetInt("server.postfix.port"),
		ModifySubject:   c.GetBool("server.modify_subject"),
		SubjectPrefix:   c.GetString("server.subject_prefix"),
		HTTPEnabled:     c.GetBool("server.http.enabled"),
		HTTPAddress:     c.GetString("server.http.listen_address"),
		MaxMessageBytes: c.GetInt64("server.http.max_message_bytes"),
		MetricsEnabled:  c.GetBool("server.http.metrics"),
	}
}
