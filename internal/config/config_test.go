package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "confirmed", cfg.Commitment)
	assert.Equal(t, 5*time.Second, cfg.ReconnectBackoff)
	assert.Equal(t, 5, cfg.MaxTriggers)
	assert.Equal(t, EngineRule, cfg.Engine)
	assert.Equal(t, TriggerLog, cfg.Trigger)
	assert.Equal(t, CacheMemory, cfg.MetadataCache)
	assert.Equal(t, "30", cfg.RuleMaxPrice.String())
	assert.True(t, cfg.RuleBuysOnly)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("WATCHER_RPC_ENDPOINT", "https://rpc.example")
	t.Setenv("SOLANA_WS_ENDPOINT", "wss://ws.example")
	t.Setenv("WATCHER_MAX_TRIGGERS", "3")
	t.Setenv("WATCHER_RULE_SYMBOLS", "SOL, BONK")
	t.Setenv("WATCHER_RECONNECT_BACKOFF", "2s")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example", cfg.RPCEndpoint)
	assert.Equal(t, "wss://ws.example", cfg.WSEndpoint)
	assert.Equal(t, 3, cfg.MaxTriggers)
	assert.Equal(t, []string{"SOL", "BONK"}, cfg.RuleSymbols)
	assert.Equal(t, 2*time.Second, cfg.ReconnectBackoff)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("WATCHER_ENGINE", "llm")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("engine", "rule", "")
	flags.StringSlice("rule-symbols", nil, "")
	require.NoError(t, flags.Parse([]string{"--engine=http", "--rule-symbols=SOL,JUP"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, EngineHTTP, cfg.Engine)
	assert.Equal(t, []string{"SOL", "JUP"}, cfg.RuleSymbols)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	content := "rpc-endpoint: https://file.example\nengine: llm\nrule-max-price: \"12.5\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example", cfg.RPCEndpoint)
	assert.Equal(t, EngineLLM, cfg.Engine)
	assert.Equal(t, "12.5", cfg.RuleMaxPrice.String())
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_BadMaxPrice(t *testing.T) {
	t.Setenv("WATCHER_RULE_MAX_PRICE", "cheap")
	_, err := Load("", nil)
	assert.Error(t, err)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.RPCEndpoint = "https://rpc.example"
	cfg.WSEndpoint = "wss://ws.example"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing rpc", func(c *Config) { c.RPCEndpoint = "" }, true},
		{"missing ws", func(c *Config) { c.WSEndpoint = "" }, true},
		{"budget too high", func(c *Config) { c.MaxTriggers = 6 }, true},
		{"budget zero", func(c *Config) { c.MaxTriggers = 0 }, true},
		{"http engine without url", func(c *Config) { c.Engine = EngineHTTP }, true},
		{"http engine", func(c *Config) { c.Engine = EngineHTTP; c.EngineURL = "http://agent" }, false},
		{"llm without key", func(c *Config) { c.Engine = EngineLLM }, true},
		{"unknown engine", func(c *Config) { c.Engine = "magic" }, true},
		{"kafka without brokers", func(c *Config) { c.Trigger = TriggerKafka }, true},
		{"kafka", func(c *Config) { c.Trigger = TriggerKafka; c.KafkaBrokers = "localhost:9092" }, false},
		{"http trigger without url", func(c *Config) { c.Trigger = TriggerHTTP }, true},
		{"postgres cache without dsn", func(c *Config) { c.MetadataCache = CachePostgres }, true},
		{"unknown cache", func(c *Config) { c.MetadataCache = "redis" }, true},
		{"chain source", func(c *Config) { c.MetadataSource = SourceChain }, false},
		{"unknown source", func(c *Config) { c.MetadataSource = "coingecko" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
