package common

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexfield/contract-insight/constants"
)

// Config holds all application configuration. It is loaded once and passed
// into constructors; nothing reads configuration globally after startup.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	OCR       OCRConfig       `yaml:"ocr"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Summary   SummaryConfig   `yaml:"summary"`
	Risk      RiskConfig      `yaml:"risk"`
	Redaction RedactionConfig `yaml:"redaction"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// StoreConfig holds run-store settings.
type StoreConfig struct {
	Path string `yaml:"path"` // sqlite database file
}

// OCRConfig holds OCR binary and recognition settings.
type OCRConfig struct {
	Tesseract      string  `yaml:"tesseract"`
	Pdftoppm       string  `yaml:"pdftoppm"`
	Languages      string  `yaml:"languages"`
	DPI            int     `yaml:"dpi"`
	TessdataDir    string  `yaml:"tessdata_dir"`
	WarnConfidence float64 `yaml:"warn_confidence"`
}

// ProviderConfig holds one model provider's settings.
type ProviderConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Temperature    float32 `yaml:"temperature"`
	TimeoutSec     int     `yaml:"timeout_sec"`
	MaxRetries     int     `yaml:"max_retries"`
	MaxPromptChars int     `yaml:"max_prompt_chars"`
}

// Timeout returns the provider's per-call deadline.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

// ProvidersConfig holds provider selection and the per-provider settings.
// Order is the deterministic fallback chain.
type ProvidersConfig struct {
	Order  []string       `yaml:"order"` // entries: "remote", "local"
	Remote ProviderConfig `yaml:"remote"`
	Local  ProviderConfig `yaml:"local"`
}

// PipelineConfig holds per-stage timeouts and concurrency caps.
type PipelineConfig struct {
	ExtractTimeoutSec        int `yaml:"extract_timeout_sec"`
	AnalyzeTimeoutSec        int `yaml:"analyze_timeout_sec"`
	SummarizeScoreTimeoutSec int `yaml:"summarize_score_timeout_sec"`
	RedactTimeoutSec         int `yaml:"redact_timeout_sec"`
	ExtractConcurrency       int `yaml:"extract_concurrency"`
	MinTextChars             int `yaml:"min_text_chars"`
}

// StageTimeout returns the configured deadline for a stage.
func (p PipelineConfig) StageTimeout(stage constants.Stage) time.Duration {
	var sec int
	switch stage {
	case constants.StageExtract:
		sec = p.ExtractTimeoutSec
	case constants.StageAnalyze:
		sec = p.AnalyzeTimeoutSec
	case constants.StageSummarizeScore:
		sec = p.SummarizeScoreTimeoutSec
	case constants.StageRedact:
		sec = p.RedactTimeoutSec
	}
	if sec <= 0 {
		sec = 120
	}
	return time.Duration(sec) * time.Second
}

// AnalysisConfig holds analyzer tuning.
type AnalysisConfig struct {
	// ModelOverrideThreshold is the confidence a model span must exceed to
	// replace a rule span on disagreement.
	ModelOverrideThreshold float64 `yaml:"model_override_threshold"`
	// ModelConcurrency caps in-flight per-candidate verdict calls.
	ModelConcurrency int `yaml:"model_concurrency"`
}

// SummaryConfig holds summarizer bounds.
type SummaryConfig struct {
	MaxChars    int     `yaml:"max_chars"`
	Temperature float32 `yaml:"temperature"`
}

// RiskConfig holds the score composition weights.
type RiskConfig struct {
	RuleWeight  float64 `yaml:"rule_weight"`
	ModelWeight float64 `yaml:"model_weight"`
}

// RedactionConfig holds the PII type allow-list.
type RedactionConfig struct {
	Types []string `yaml:"types"`
}

// ParsedTypes resolves the allow-list to entity types, falling back to the
// default PII set when empty.
func (r RedactionConfig) ParsedTypes() []constants.EntityType {
	if len(r.Types) == 0 {
		out := make([]constants.EntityType, len(constants.DefaultRedactionTypes))
		copy(out, constants.DefaultRedactionTypes)
		return out
	}
	var out []constants.EntityType
	for _, t := range r.Types {
		if et, ok := constants.CanonicalizeEntityType(t); ok {
			out = append(out, et)
		}
	}
	return out
}

// LoadConfig reads configuration from a YAML file. An empty path falls back
// to the CONTRACT_INSIGHT_CONFIG environment variable, then to defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = getEnv("CONTRACT_INSIGHT_CONFIG", "")
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		data = expandEnvVars(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoadConfig loads configuration or panics.
func MustLoadConfig(path string) *Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// ApplyDefaults fills empty fields with default values. Provider credentials
// fall back to environment variables so a config file never has to embed
// secrets.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = 30
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = 300
	}
	if c.Server.ShutdownSec <= 0 {
		c.Server.ShutdownSec = 10
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 25
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Store.Path == "" {
		c.Store.Path = "contract-insight.db"
	}

	if c.OCR.Tesseract == "" {
		c.OCR.Tesseract = "tesseract"
	}
	if c.OCR.Pdftoppm == "" {
		c.OCR.Pdftoppm = "pdftoppm"
	}
	if c.OCR.Languages == "" {
		c.OCR.Languages = "eng"
	}
	if c.OCR.DPI <= 0 {
		c.OCR.DPI = 300
	}
	if c.OCR.TessdataDir == "" {
		c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", "")
	}
	if c.OCR.WarnConfidence <= 0 {
		c.OCR.WarnConfidence = 0.4
	}

	if c.Providers.Remote.BaseURL == "" {
		c.Providers.Remote.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Providers.Remote.APIKey == "" {
		c.Providers.Remote.APIKey = getEnv("GROQ_API_KEY", "")
	}
	if c.Providers.Remote.Model == "" {
		c.Providers.Remote.Model = "llama-3.3-70b-versatile"
	}
	if c.Providers.Remote.Temperature <= 0 {
		c.Providers.Remote.Temperature = 0.1
	}
	if c.Providers.Remote.TimeoutSec <= 0 {
		c.Providers.Remote.TimeoutSec = 60
	}
	if c.Providers.Remote.MaxRetries <= 0 {
		c.Providers.Remote.MaxRetries = 2
	}
	if c.Providers.Remote.MaxPromptChars <= 0 {
		c.Providers.Remote.MaxPromptChars = 15000
	}

	if c.Providers.Local.BaseURL == "" {
		c.Providers.Local.BaseURL = getEnv("OLLAMA_HOST", "http://localhost:11434")
	}
	if c.Providers.Local.Model == "" {
		c.Providers.Local.Model = "gemma3:4b"
	}
	if c.Providers.Local.Temperature <= 0 {
		c.Providers.Local.Temperature = 0.1
	}
	if c.Providers.Local.TimeoutSec <= 0 {
		c.Providers.Local.TimeoutSec = 120
	}
	if c.Providers.Local.MaxRetries <= 0 {
		c.Providers.Local.MaxRetries = 1
	}
	if c.Providers.Local.MaxPromptChars <= 0 {
		c.Providers.Local.MaxPromptChars = 10000
	}

	// Without a remote credential the chain starts and ends at the local
	// provider, mirroring how operators run this offline.
	if len(c.Providers.Order) == 0 {
		if c.Providers.Remote.APIKey != "" {
			c.Providers.Order = []string{"remote", "local"}
		} else {
			c.Providers.Order = []string{"local"}
		}
	}

	if c.Pipeline.ExtractTimeoutSec <= 0 {
		c.Pipeline.ExtractTimeoutSec = 120
	}
	if c.Pipeline.AnalyzeTimeoutSec <= 0 {
		c.Pipeline.AnalyzeTimeoutSec = 180
	}
	if c.Pipeline.SummarizeScoreTimeoutSec <= 0 {
		c.Pipeline.SummarizeScoreTimeoutSec = 180
	}
	if c.Pipeline.RedactTimeoutSec <= 0 {
		c.Pipeline.RedactTimeoutSec = 30
	}
	if c.Pipeline.ExtractConcurrency <= 0 {
		c.Pipeline.ExtractConcurrency = 4
	}
	if c.Pipeline.MinTextChars <= 0 {
		c.Pipeline.MinTextChars = 50
	}

	if c.Analysis.ModelOverrideThreshold <= 0 {
		c.Analysis.ModelOverrideThreshold = 0.6
	}
	if c.Analysis.ModelConcurrency <= 0 {
		c.Analysis.ModelConcurrency = 3
	}
	if c.Summary.MaxChars <= 0 {
		c.Summary.MaxChars = 1200
	}
	if c.Summary.Temperature <= 0 {
		c.Summary.Temperature = 0.1
	}
	if c.Risk.RuleWeight <= 0 && c.Risk.ModelWeight <= 0 {
		c.Risk.RuleWeight = 0.6
		c.Risk.ModelWeight = 0.4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	for _, name := range c.Providers.Order {
		switch name {
		case "remote", "local":
			// ok
		default:
			return NewAppError("CONFIG_ERROR",
				fmt.Sprintf("providers.order entry %q must be \"remote\" or \"local\"", name),
				ErrInvalidInput)
		}
	}
	if len(c.Providers.Order) == 0 {
		return NewAppError("CONFIG_ERROR", "providers.order must name at least one provider", ErrInvalidInput)
	}
	for _, name := range c.Providers.Order {
		if name == "remote" && c.Providers.Remote.APIKey == "" {
			return NewAppError("CONFIG_ERROR", "providers.remote.api_key (or GROQ_API_KEY) is required when the remote provider is in the fallback chain", ErrInvalidInput)
		}
	}
	if c.Analysis.ModelOverrideThreshold < 0 || c.Analysis.ModelOverrideThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "analysis.model_override_threshold must be within [0,1]", ErrInvalidInput)
	}
	if c.Risk.RuleWeight < 0 || c.Risk.ModelWeight < 0 {
		return NewAppError("CONFIG_ERROR", "risk weights must be non-negative", ErrInvalidInput)
	}
	if sum := c.Risk.RuleWeight + c.Risk.ModelWeight; math.Abs(sum-1.0) > 1e-6 {
		return NewAppError("CONFIG_ERROR",
			fmt.Sprintf("risk.rule_weight + risk.model_weight must equal 1.0, got %.3f", sum),
			ErrInvalidInput)
	}
	if len(c.Redaction.Types) > 0 {
		for _, t := range c.Redaction.Types {
			if _, ok := constants.CanonicalizeEntityType(t); !ok {
				return NewAppError("CONFIG_ERROR",
					fmt.Sprintf("redaction.types entry %q is not a known entity type", t),
					ErrInvalidInput)
			}
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
