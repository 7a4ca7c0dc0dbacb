package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/builder-radar/internal/fault"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Search   SearchConfig   `mapstructure:"search"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Digest   DigestConfig   `mapstructure:"digest"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	DatabaseURL string `mapstructure:"database_url"`
}

// SearchConfig selects and configures the web search provider.
type SearchConfig struct {
	Provider     string  `mapstructure:"provider"`
	BraveKey     string  `mapstructure:"brave_key"`
	BraveBaseURL string  `mapstructure:"brave_base_url"`
	JinaKey      string  `mapstructure:"jina_key"`
	JinaBaseURL  string  `mapstructure:"jina_base_url"`
	PageSize     int     `mapstructure:"page_size"`
	RateLimit    float64 `mapstructure:"rate_limit"`
}

// LLMConfig selects and configures the text-generation provider.
type LLMConfig struct {
	Provider         string  `mapstructure:"provider"`
	AnthropicKey     string  `mapstructure:"anthropic_key"`
	AnthropicBaseURL string  `mapstructure:"anthropic_base_url"`
	OpenAIKey        string  `mapstructure:"openai_key"`
	OpenAIBaseURL    string  `mapstructure:"openai_base_url"`
	GeminiKey        string  `mapstructure:"gemini_key"`
	GeminiBaseURL    string  `mapstructure:"gemini_base_url"`
	Model            string  `mapstructure:"model"`
	Temperature      float64 `mapstructure:"temperature"`
	MaxTokens        int     `mapstructure:"max_tokens"`
}

var defaultModels = map[string]string{
	"anthropic": "claude-haiku-4-5-20251001",
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-2.5-flash",
}

// ModelName returns the configured model, or the provider's default.
func (c LLMConfig) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	return defaultModels[c.Provider]
}

// TelegramConfig holds the messaging bot credentials.
type TelegramConfig struct {
	Token     string `mapstructure:"token"`
	ChatID    string `mapstructure:"chat_id"`
	BaseURL   string `mapstructure:"base_url"`
	ParseMode string `mapstructure:"parse_mode"`
}

// PipelineConfig configures a discovery run.
type PipelineConfig struct {
	Queries             []string `mapstructure:"queries"`
	ExtractCap          int      `mapstructure:"extract_cap"`
	ConcurrentSearch    bool     `mapstructure:"concurrent_search"`
	BacklogLimit        int      `mapstructure:"backlog_limit"`
	SearchTimeoutSecs   int      `mapstructure:"search_timeout_secs"`
	LLMTimeoutSecs      int      `mapstructure:"llm_timeout_secs"`
	DeliveryTimeoutSecs int      `mapstructure:"delivery_timeout_secs"`
}

// SearchTimeout bounds a single search call.
func (c PipelineConfig) SearchTimeout() time.Duration {
	return secs(c.SearchTimeoutSecs)
}

// LLMTimeout bounds a single extraction or scoring call.
func (c PipelineConfig) LLMTimeout() time.Duration {
	return secs(c.LLMTimeoutSecs)
}

// DeliveryTimeout bounds a single digest delivery.
func (c PipelineConfig) DeliveryTimeout() time.Duration {
	return secs(c.DeliveryTimeoutSecs)
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// DigestConfig configures the daily digest message.
type DigestConfig struct {
	TopN    int    `mapstructure:"top_n"`
	SiteURL string `mapstructure:"site_url"`
}

// ScheduleConfig holds cron specs for the in-process scheduler. Empty disables a job.
type ScheduleConfig struct {
	Discover string `mapstructure:"discover"`
	Digest   string `mapstructure:"digest"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Legacy variable names, bound alongside the RADAR_ prefixed keys.
var aliases = map[string][]string{
	"search.brave_key":   {"BRAVE_SEARCH_API_KEY"},
	"search.jina_key":    {"JINA_API_KEY"},
	"llm.anthropic_key":  {"ANTHROPIC_API_KEY"},
	"llm.openai_key":     {"OPENAI_API_KEY"},
	"llm.gemini_key":     {"GEMINI_API_KEY"},
	"telegram.token":     {"TELEGRAM_BOT_TOKEN"},
	"telegram.chat_id":   {"TELEGRAM_CHAT_ID"},
	"store.database_url": {"DATABASE_URL", "POSTGRES_URL"},
}

// Load reads configuration from the environment. Variables in the given
// dotenv files (default ".env") are loaded first; a missing file is ignored
// and variables already set in the process win.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(err, "config: load %s", f)
		}
	}

	v := viper.New()

	// Environment
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range aliases {
		prefixed := "RADAR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("search.provider", "brave")
	v.SetDefault("search.brave_base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("search.jina_base_url", "https://s.jina.ai")
	v.SetDefault("search.page_size", 10)
	v.SetDefault("search.rate_limit", 1.0)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.anthropic_base_url", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.gemini_base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.parse_mode", "HTML")
	v.SetDefault("pipeline.queries", []string{"web3 hackathon 2026", "ethereum builder program", "solana grant"})
	v.SetDefault("pipeline.extract_cap", 15)
	v.SetDefault("pipeline.concurrent_search", true)
	v.SetDefault("pipeline.backlog_limit", 10)
	v.SetDefault("pipeline.search_timeout_secs", 15)
	v.SetDefault("pipeline.llm_timeout_secs", 90)
	v.SetDefault("pipeline.delivery_timeout_secs", 10)
	v.SetDefault("digest.top_n", 3)
	v.SetDefault("digest.site_url", "")
	v.SetDefault("schedule.discover", "")
	v.SetDefault("schedule.digest", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that every setting the command needs is present. It
// returns a *fault.ConfigError naming all missing keys, or nil.
func (c *Config) Validate(command string) error {
	var missing []string
	need := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}

	need("store.database_url", c.Store.DatabaseURL)

	switch command {
	case "run":
		c.needSearch(need)
		c.needLLM(need)
	case "score":
		c.needLLM(need)
	case "digest":
		c.needTelegram(need)
	case "serve":
		c.needSearch(need)
		c.needLLM(need)
		c.needTelegram(need)
	}

	if len(missing) > 0 {
		return &fault.ConfigError{Command: command, Missing: missing}
	}
	return nil
}

func (c *Config) needSearch(need func(key, val string)) {
	switch c.Search.Provider {
	case "jina":
		need("search.jina_key", c.Search.JinaKey)
	default:
		need("search.brave_key", c.Search.BraveKey)
	}
}

func (c *Config) needLLM(need func(key, val string)) {
	switch c.LLM.Provider {
	case "openai":
		need("llm.openai_key", c.LLM.OpenAIKey)
	case "gemini":
		need("llm.gemini_key", c.LLM.GeminiKey)
	default:
		need("llm.anthropic_key", c.LLM.AnthropicKey)
	}
}

func (c *Config) needTelegram(need func(key, val string)) {
	need("telegram.token", c.Telegram.Token)
	need("telegram.chat_id", c.Telegram.ChatID)
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
