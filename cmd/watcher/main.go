// Command watcher follows a wallet's on-chain activity, enriches each trade
// with token context and fires copy signals on the engine's say-so.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	root := &cobra.Command{
		Use:          "watcher",
		Short:        "Wallet activity watcher and copy-trade gate",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch one target wallet in the foreground until the trigger budget is spent",
		RunE:  runWatch,
	}
	addCommonFlags(watchCmd.Flags())
	watchCmd.Flags().String("target", "", "wallet address to watch")
	watchCmd.Flags().String("user", "", "user pubkey the session acts for")
	root.AddCommand(watchCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control plane that starts and stops watch sessions",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen-addr", ":8080", "API listen address")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("rpc-endpoint", "", "Solana RPC HTTP endpoint")
	fs.String("ws-endpoint", "", "Solana WebSocket endpoint")
	fs.String("commitment", "confirmed", "subscription commitment level")
	fs.Duration("reconnect-backoff", 5*time.Second, "fixed delay between reconnect attempts")
	fs.Int("max-triggers", 5, "copy triggers per session (1-5)")
	fs.Bool("include-inner", false, "also scan inner (CPI) instructions")
	fs.String("agent-program", "", "agent program id holding user accounts")
	fs.String("metadata-source", "jupiter", "token metadata source (jupiter, chain)")
	fs.String("metadata-cache", "memory", "token metadata cache (memory, postgres, badger, none)")
	fs.String("postgres-dsn", "", "PostgreSQL connection string")
	fs.String("clickhouse-dsn", "", "ClickHouse connection string")
	fs.String("engine", "rule", "decision engine (rule, http, llm)")
	fs.String("engine-url", "", "decision service base URL for engine=http")
	fs.String("trigger", "log", "execution trigger (log, http, kafka)")
	fs.String("trigger-url", "", "execution service base URL for trigger=http")
	fs.String("kafka-brokers", "", "comma-separated Kafka brokers for trigger=kafka")
	fs.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-file", "", "also write logs to this rotated file")
}
