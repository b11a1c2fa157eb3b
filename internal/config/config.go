package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode       string          `mapstructure:"mode"`
	Port       int             `mapstructure:"port"`
	StaticPath string          `mapstructure:"static_path"`
	ReadLimit  int64           `mapstructure:"read_limit"`
	PingPeriod time.Duration   `mapstructure:"ping_period"`
	Secret     string          `mapstructure:"secret"`
	LogLevel   string          `mapstructure:"log_level"`
	Store      StoreConfig     `mapstructure:"store"`
	Retries    int             `mapstructure:"match_retries"`
	TokenTTL   time.Duration   `mapstructure:"token_ttl"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	ICEServers []string        `mapstructure:"ice_servers"`
}

type ToxicityConfig struct {
	URL       string  `mapstructure:"url"`
	Token     string  `mapstructure:"token"`
	Threshold float64 `mapstructure:"threshold"`
}

type SuggestConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	ServerURL  string         `mapstructure:"server_url"`
	ClientID   string         `mapstructure:"client_id"`
	LogLevel   string         `mapstructure:"log_level"`
	Toxicity   ToxicityConfig `mapstructure:"toxicity"`
	Suggest    SuggestConfig  `mapstructure:"suggest"`
	ICEServers []string       `mapstructure:"ice_servers"`
	Timeout    time.Duration  `mapstructure:"timeout"`
}

func newViper(name string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/%s.%s.yaml", name, env)
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("ROULETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper) {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
	}
}

// Load reads the server configuration.
func Load() (*Config, error) {
	v := newViper("config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "roulette-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "file:roulette.db?_busy_timeout=5000")
	v.SetDefault("match_retries", 3)
	v.SetDefault("token_ttl", "1h")
	v.SetDefault("rate_limit.messages", 10)
	v.SetDefault("rate_limit.interval", "5s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	read(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	switch cfg.Store.Driver {
	case "memory", "sqlite":
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("server config")
	return &cfg, nil
}

// LoadClient reads the terminal client configuration. Values set in
// overrides (typically bound cobra flags) win over file and environment.
func LoadClient(overrides map[string]any) (*ClientConfig, error) {
	v := newViper("client")

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("log_level", "warn")
	v.SetDefault("toxicity.url", "https://api-inference.huggingface.co/models/s-nlp/roberta_toxicity_classifier")
	v.SetDefault("toxicity.threshold", 0.5)
	v.SetDefault("suggest.url", "https://api-inference.huggingface.co/models/tiiuae/falcon-7b-instruct")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("timeout", "10s")

	read(v)
	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	return &cfg, nil
}

// SetupLogging applies level to the global zerolog logger. Unknown levels
// fall back to info.
func SetupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
