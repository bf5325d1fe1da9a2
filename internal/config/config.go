// Package config loads watcher settings from flags, WATCHER_* environment
// variables, an optional config file and a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	// Chain
	RPCEndpoint      string
	WSEndpoint       string
	Commitment       string
	ReconnectBackoff time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	IncludeInner     bool

	// Session
	Target       string
	UserPubkey   string
	MaxTriggers  int
	AgentProgram string

	// Enrichment
	JupiterURL     string
	JupiterAPIKey  string
	MetadataSource string // jupiter | chain
	MetadataCache  string // memory | postgres | badger | none
	BadgerPath     string

	// Storage
	PostgresDSN   string
	ClickhouseDSN string

	// Decision
	Engine        string // rule | http | llm
	EngineURL     string
	EngineTimeout time.Duration
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	RuleMaxPrice  decimal.Decimal
	RuleSymbols   []string
	RuleBuysOnly  bool

	// Execution
	Trigger      string // log | http | kafka
	TriggerURL   string
	KafkaBrokers string
	KafkaTopic   string

	// Process
	ListenAddr  string
	MetricsAddr string
	LogLevel    string
	LogFile     string
}

// Engine, trigger and cache choices.
const (
	EngineRule = "rule"
	EngineHTTP = "http"
	EngineLLM  = "llm"

	TriggerLog   = "log"
	TriggerHTTP  = "http"
	TriggerKafka = "kafka"

	CacheNone     = "none"
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheBadger   = "badger"

	SourceJupiter = "jupiter"
	SourceChain   = "chain"
)

// legacyEnv maps keys to the unprefixed variable names used by older deployments.
var legacyEnv = map[string]string{
	"rpc-endpoint":   "SOLANA_RPC_ENDPOINT",
	"ws-endpoint":    "SOLANA_WS_ENDPOINT",
	"postgres-dsn":   "POSTGRES_DSN",
	"clickhouse-dsn": "CLICKHOUSE_DSN",
	"llm-api-key":    "OPENAI_API_KEY",
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "WATCHER_"+strings.ToUpper(strings.ReplaceAll(key, "-", "_")), env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("watcher")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	maxPrice, err := decimal.NewFromString(v.GetString("rule-max-price"))
	if err != nil {
		return Config{}, fmt.Errorf("rule-max-price: %w", err)
	}

	cfg := Config{
		RPCEndpoint:      v.GetString("rpc-endpoint"),
		WSEndpoint:       v.GetString("ws-endpoint"),
		Commitment:       v.GetString("commitment"),
		ReconnectBackoff: v.GetDuration("reconnect-backoff"),
		PingInterval:     v.GetDuration("ping-interval"),
		ReadTimeout:      v.GetDuration("read-timeout"),
		IncludeInner:     v.GetBool("include-inner"),
		Target:           v.GetString("target"),
		UserPubkey:       v.GetString("user"),
		MaxTriggers:      v.GetInt("max-triggers"),
		AgentProgram:     v.GetString("agent-program"),
		JupiterURL:       v.GetString("jupiter-url"),
		JupiterAPIKey:    v.GetString("jupiter-api-key"),
		MetadataSource:   strings.ToLower(v.GetString("metadata-source")),
		MetadataCache:    strings.ToLower(v.GetString("metadata-cache")),
		BadgerPath:       v.GetString("badger-path"),
		PostgresDSN:      v.GetString("postgres-dsn"),
		ClickhouseDSN:    v.GetString("clickhouse-dsn"),
		Engine:           strings.ToLower(v.GetString("engine")),
		EngineURL:        v.GetString("engine-url"),
		EngineTimeout:    v.GetDuration("engine-timeout"),
		LLMBaseURL:       v.GetString("llm-base-url"),
		LLMAPIKey:        v.GetString("llm-api-key"),
		LLMModel:         v.GetString("llm-model"),
		RuleMaxPrice:     maxPrice,
		RuleSymbols:      getStringSlice(v, "rule-symbols"),
		RuleBuysOnly:     v.GetBool("rule-buys-only"),
		Trigger:          strings.ToLower(v.GetString("trigger")),
		TriggerURL:       v.GetString("trigger-url"),
		KafkaBrokers:     v.GetString("kafka-brokers"),
		KafkaTopic:       v.GetString("kafka-topic"),
		ListenAddr:       v.GetString("listen-addr"),
		MetricsAddr:      v.GetString("metrics-addr"),
		LogLevel:         v.GetString("log-level"),
		LogFile:          v.GetString("log-file"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("reconnect-backoff", 5*time.Second)
	v.SetDefault("ping-interval", 30*time.Second)
	v.SetDefault("read-timeout", 60*time.Second)
	v.SetDefault("include-inner", false)
	v.SetDefault("max-triggers", 5)
	v.SetDefault("jupiter-url", "https://lite-api.jup.ag")
	v.SetDefault("metadata-source", SourceJupiter)
	v.SetDefault("metadata-cache", CacheMemory)
	v.SetDefault("badger-path", "./data/metadata")
	v.SetDefault("engine", EngineRule)
	v.SetDefault("engine-timeout", 30*time.Second)
	v.SetDefault("llm-base-url", "https://api.openai.com/v1")
	v.SetDefault("llm-model", "gpt-4o-mini")
	v.SetDefault("rule-max-price", "30")
	v.SetDefault("rule-buys-only", true)
	v.SetDefault("trigger", TriggerLog)
	v.SetDefault("kafka-topic", "copy-signals")
	v.SetDefault("listen-addr", ":8080")
	v.SetDefault("metrics-addr", ":9090")
	v.SetDefault("log-level", "info")
}

// Validate checks the settings needed to run sessions.
func (c Config) Validate() error {
	if c.RPCEndpoint == "" {
		return errors.New("rpc-endpoint is required")
	}
	if c.WSEndpoint == "" {
		return errors.New("ws-endpoint is required")
	}
	if c.MaxTriggers < 1 || c.MaxTriggers > 5 {
		return fmt.Errorf("max-triggers must be between 1 and 5, got %d", c.MaxTriggers)
	}
	if c.ReconnectBackoff <= 0 {
		return errors.New("reconnect-backoff must be positive")
	}

	switch c.MetadataSource {
	case SourceJupiter, SourceChain:
	default:
		return fmt.Errorf("unknown metadata-source %q", c.MetadataSource)
	}

	switch c.MetadataCache {
	case CacheNone, CacheMemory, CacheBadger:
	case CachePostgres:
		if c.PostgresDSN == "" {
			return errors.New("metadata-cache=postgres requires postgres-dsn")
		}
	default:
		return fmt.Errorf("unknown metadata-cache %q", c.MetadataCache)
	}

	switch c.Engine {
	case EngineRule:
	case EngineHTTP:
		if c.EngineURL == "" {
			return errors.New("engine=http requires engine-url")
		}
	case EngineLLM:
		if c.LLMAPIKey == "" {
			return errors.New("engine=llm requires llm-api-key")
		}
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}

	switch c.Trigger {
	case TriggerLog:
	case TriggerHTTP:
		if c.TriggerURL == "" {
			return errors.New("trigger=http requires trigger-url")
		}
	case TriggerKafka:
		if c.KafkaBrokers == "" {
			return errors.New("trigger=kafka requires kafka-brokers")
		}
	default:
		return fmt.Errorf("unknown trigger %q", c.Trigger)
	}

	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return cleanStrings(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
