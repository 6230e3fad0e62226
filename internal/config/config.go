package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Admission AdmissionConfig `yaml:"admission" mapstructure:"admission"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Patterns  PatternsConfig  `yaml:"patterns" mapstructure:"patterns"`
	Budget    BudgetConfig    `yaml:"budget" mapstructure:"budget"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	SitesFile string          `yaml:"sites_file" mapstructure:"sites_file"`
}

// StoreConfig configures the run/offer database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CrawlConfig configures fetching, retries and validation probes.
type CrawlConfig struct {
	DelayMillis        int    `yaml:"delay_millis" mapstructure:"delay_millis"`
	TimeoutSecs        int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries         int    `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffMillis      int    `yaml:"backoff_millis" mapstructure:"backoff_millis"`
	MaxBackoffMillis   int    `yaml:"max_backoff_millis" mapstructure:"max_backoff_millis"`
	RateLimitDelaySecs int    `yaml:"rate_limit_delay_secs" mapstructure:"rate_limit_delay_secs"`
	MinContentLength   int    `yaml:"min_content_length" mapstructure:"min_content_length"`
	Concurrency        int    `yaml:"concurrency" mapstructure:"concurrency"`
	ProbeTimeoutSecs   int    `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
	RenderJSShells     bool   `yaml:"render_js_shells" mapstructure:"render_js_shells"`
	MaxBodyBytes       int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// AdmissionConfig configures the static URL admission rules.
type AdmissionConfig struct {
	DenyPatterns   []string `yaml:"deny_patterns" mapstructure:"deny_patterns"`
	MaxLength      int      `yaml:"max_length" mapstructure:"max_length"`
	MaxQueryParams int      `yaml:"max_query_params" mapstructure:"max_query_params"`
}

// ExtractConfig configures the extraction strategy chain.
type ExtractConfig struct {
	Level             string  `yaml:"level" mapstructure:"level"`
	Backend           string  `yaml:"backend" mapstructure:"backend"`
	HighConfidence    float64 `yaml:"high_confidence" mapstructure:"high_confidence"`
	LearningThreshold float64 `yaml:"learning_threshold" mapstructure:"learning_threshold"`
	MaxInputTokens    int     `yaml:"max_input_tokens" mapstructure:"max_input_tokens"`
}

// PatternsConfig configures the learned pattern store.
type PatternsConfig struct {
	Path         string  `yaml:"path" mapstructure:"path"`
	HalfLifeDays float64 `yaml:"half_life_days" mapstructure:"half_life_days"`
	Floor        float64 `yaml:"floor" mapstructure:"floor"`
}

// BudgetConfig configures the success target and token ceiling.
type BudgetConfig struct {
	Target  int   `yaml:"target" mapstructure:"target"`
	Ceiling int64 `yaml:"ceiling" mapstructure:"ceiling"`
}

// MatchConfig configures retailer prioritisation.
type MatchConfig struct {
	PriorityFile string  `yaml:"priority_file" mapstructure:"priority_file"`
	Cutoff       float64 `yaml:"cutoff" mapstructure:"cutoff"`
}

// OpenAIConfig holds OpenAI-compatible chat completion settings.
type OpenAIConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	Model        string `yaml:"model" mapstructure:"model"`
	PremiumModel string `yaml:"premium_model" mapstructure:"premium_model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	Model        string `yaml:"model" mapstructure:"model"`
	PremiumModel string `yaml:"premium_model" mapstructure:"premium_model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	Model        string `yaml:"model" mapstructure:"model"`
	PremiumModel string `yaml:"premium_model" mapstructure:"premium_model"`
}

// OutputConfig configures result files.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// NotionConfig holds Notion credentials for publishing offers.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	DatabaseID string `yaml:"database_id" mapstructure:"database_id"`
}

// NotifyConfig configures the run summary e-mail.
type NotifyConfig struct {
	SMTPHost string   `yaml:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port" mapstructure:"smtp_port"`
	Username string   `yaml:"username" mapstructure:"username"`
	Password string   `yaml:"password" mapstructure:"password"`
	From     string   `yaml:"from" mapstructure:"from"`
	To       []string `yaml:"to" mapstructure:"to"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CASHBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cashback.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawl.delay_millis", 1000)
	v.SetDefault("crawl.timeout_secs", 30)
	v.SetDefault("crawl.max_retries", 3)
	v.SetDefault("crawl.backoff_millis", 1000)
	v.SetDefault("crawl.max_backoff_millis", 30000)
	v.SetDefault("crawl.rate_limit_delay_secs", 5)
	v.SetDefault("crawl.min_content_length", 500)
	v.SetDefault("crawl.concurrency", 10)
	v.SetDefault("crawl.probe_timeout_secs", 10)
	v.SetDefault("crawl.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("crawl.max_body_bytes", 2<<20)
	v.SetDefault("admission.max_length", 200)
	v.SetDefault("admission.max_query_params", 5)
	v.SetDefault("extract.level", "standard")
	v.SetDefault("extract.backend", "openai")
	v.SetDefault("extract.high_confidence", 0.9)
	v.SetDefault("extract.learning_threshold", 0.7)
	v.SetDefault("extract.max_input_tokens", 3000)
	v.SetDefault("patterns.path", "learned_patterns.json")
	v.SetDefault("patterns.half_life_days", 30.0)
	v.SetDefault("patterns.floor", 0.35)
	v.SetDefault("budget.target", 10)
	v.SetDefault("match.cutoff", 0.7)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.premium_model", "gpt-4o")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.premium_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.premium_model", "gemini-2.5-pro")
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.formats", []string{"csv"})
	v.SetDefault("notify.smtp_port", 587)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given command mode are present.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "crawl":
		if c.Budget.Target <= 0 {
			errs = append(errs, "budget.target must be positive")
		}
		if c.Budget.Ceiling < 0 {
			errs = append(errs, "budget.ceiling must not be negative")
		}
		switch c.Extract.Level {
		case "basic", "standard", "comprehensive":
		default:
			errs = append(errs, fmt.Sprintf("extract.level %q is not one of basic, standard, comprehensive", c.Extract.Level))
		}
		switch c.Extract.Backend {
		case "openai":
			if c.OpenAI.Key == "" {
				errs = append(errs, "openai.key is required")
			}
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				errs = append(errs, "gemini.key is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("extract.backend %q is not one of openai, anthropic, gemini", c.Extract.Backend))
		}
		if c.Extract.HighConfidence <= 0 || c.Extract.HighConfidence > 1 {
			errs = append(errs, "extract.high_confidence must be in (0, 1]")
		}
		if c.Extract.LearningThreshold < 0.7 || c.Extract.LearningThreshold > 1 {
			errs = append(errs, "extract.learning_threshold must be in [0.7, 1]")
		}
		if c.Crawl.Concurrency <= 0 {
			errs = append(errs, "crawl.concurrency must be positive")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	case "notion":
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.DatabaseID == "" {
			errs = append(errs, "notion.database_id is required")
		}
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
