package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Completion CompletionConfig `mapstructure:"completion"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Search     SearchConfig     `mapstructure:"search"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"` // 0 disables, generation length is unbounded
}

// CompletionConfig describes the upstream chat completion endpoint
type CompletionConfig struct {
	Endpoint     string   `mapstructure:"endpoint"`
	APIKey       string   `mapstructure:"api_key"`
	DefaultModel string   `mapstructure:"default_model"`
	Models       []string `mapstructure:"models"`
	Temperature  float64  `mapstructure:"temperature"`
	TopK         int      `mapstructure:"top_k"`
	TopP         float64  `mapstructure:"top_p"`
}

// TransportConfig controls retries and the relay used when the direct route fails
type TransportConfig struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	BackoffMS   int    `mapstructure:"backoff_ms"` // delay step, multiplied by attempt index
	Relay       string `mapstructure:"relay"`      // prefix, target URL is appended query-escaped
}

// SearchConfig represents web search configuration
type SearchConfig struct {
	Enabled       bool            `mapstructure:"enabled"`
	MaxResults    int             `mapstructure:"max_results"`
	SnippetLength int             `mapstructure:"snippet_length"`
	Timeout       int             `mapstructure:"timeout"` // overall budget in seconds
	Wikipedia     WikipediaConfig `mapstructure:"wikipedia"`
	Web           WebConfig       `mapstructure:"web"`
	Firecrawl     ProviderConfig  `mapstructure:"firecrawl"`
	Cache         CacheConfig     `mapstructure:"cache"`
}

// WikipediaConfig configures the opensearch source
type WikipediaConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Limit    int    `mapstructure:"limit"`
}

// WebConfig configures the HTML results source and the relays used to reach it
type WebConfig struct {
	Endpoint     string   `mapstructure:"endpoint"`
	Direct       bool     `mapstructure:"direct"` // try the endpoint without a relay first
	Relays       []string `mapstructure:"relays"`
	FetchTimeout int      `mapstructure:"fetch_timeout"` // seconds, per route
}

// ProviderConfig represents an API-key search provider configuration
type ProviderConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"`
	MaxResults int    `mapstructure:"max_results"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	TTL     int    `mapstructure:"ttl"` // seconds
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(cfgFile string) (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("LORPH")
	v.AutomaticEnv()
	// The hosted endpoint documents this variable name
	_ = v.BindEnv("completion.api_key", "LORPH_COMPLETION_API_KEY", "OLLAMA_CLOUD_API_KEY")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is ok, use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 0)

	v.SetDefault("completion.endpoint", "https://ollama.com/api/chat")
	v.SetDefault("completion.default_model", "deepseek-v3.1:671b-cloud")
	v.SetDefault("completion.models", []string{
		"deepseek-v3.1:671b-cloud",
		"gpt-oss:20b-cloud",
		"gpt-oss:120b-cloud",
		"kimi-k2:1t-cloud",
		"qwen3-coder:480b-cloud",
		"glm-4.6:cloud",
		"minimax-m2:cloud",
		"mistral-large-3:675b-cloud",
		"glm-4.7:cloud",
	})
	v.SetDefault("completion.temperature", 0.7)
	v.SetDefault("completion.top_k", 40)
	v.SetDefault("completion.top_p", 0.9)

	v.SetDefault("transport.max_attempts", 3)
	v.SetDefault("transport.backoff_ms", 1500)
	v.SetDefault("transport.relay", "https://corsproxy.io/?")

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.max_results", 20)
	v.SetDefault("search.snippet_length", 250)
	v.SetDefault("search.timeout", 10)
	v.SetDefault("search.wikipedia.endpoint", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("search.wikipedia.limit", 20)
	v.SetDefault("search.web.endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.web.direct", false)
	v.SetDefault("search.web.relays", []string{
		"https://api.allorigins.win/raw?url=",
		"https://corsproxy.io/?",
		"https://api.codetabs.com/v1/proxy?quest=",
	})
	v.SetDefault("search.web.fetch_timeout", 6)
	v.SetDefault("search.firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("search.firecrawl.timeout", 30)
	v.SetDefault("search.firecrawl.max_results", 5)
	v.SetDefault("search.cache.enabled", false)
	v.SetDefault("search.cache.path", "./data/search-cache.db")
	v.SetDefault("search.cache.ttl", 600)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
