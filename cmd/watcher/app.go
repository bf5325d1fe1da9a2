package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wallet-copy-watcher/internal/anchor"
	"wallet-copy-watcher/internal/config"
	"wallet-copy-watcher/internal/decision"
	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/enrich"
	"wallet-copy-watcher/internal/execution"
	"wallet-copy-watcher/internal/extract"
	"wallet-copy-watcher/internal/jupiter"
	"wallet-copy-watcher/internal/solana"
	"wallet-copy-watcher/internal/storage"
	"wallet-copy-watcher/internal/storage/badgerstore"
	chstore "wallet-copy-watcher/internal/storage/clickhouse"
	"wallet-copy-watcher/internal/storage/memory"
	"wallet-copy-watcher/internal/storage/migrations"
	pgstore "wallet-copy-watcher/internal/storage/postgres"
	"wallet-copy-watcher/internal/watch"
)

// app holds the collaborators shared by every session.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	rpc      *solana.HTTPClient
	searcher enrich.TokenSearcher
	quoter   enrich.PriceQuoter
	cache    storage.TokenMetadataStore

	decisions storage.DecisionStore
	events    storage.TradeEventStore
	trigger   execution.Trigger
	rules     *decision.RuleEngine
	users     *anchor.Client

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	a.rpc = newRPCClient(cfg)

	jup := jupiter.NewClient(cfg.JupiterURL, jupiter.WithAPIKey(cfg.JupiterAPIKey))
	a.quoter = jup
	switch cfg.MetadataSource {
	case config.SourceChain:
		a.searcher = enrich.NewChainMetadataSource(a.rpc, a.logger)
	default:
		a.searcher = jup
	}

	var pool *pgstore.Pool
	if cfg.PostgresDSN != "" {
		p, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		if err := migrations.RunPostgres(ctx, p); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		pool = p
		a.decisions = pgstore.NewDecisionStore(pool)
	} else {
		a.decisions = memory.NewDecisionStore()
	}

	switch cfg.MetadataCache {
	case config.CacheMemory:
		a.cache = memory.NewTokenMetadataStore()
	case config.CachePostgres:
		a.cache = pgstore.NewTokenMetadataStore(pool)
	case config.CacheBadger:
		kv, err := badgerstore.Open(badgerstore.Options{Path: cfg.BadgerPath, TTL: 24 * time.Hour})
		if err != nil {
			return fmt.Errorf("open badger cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = kv.Close() })
		a.cache = kv
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouse(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.events = chstore.NewTradeEventStore(conn)
	}

	switch cfg.Trigger {
	case config.TriggerHTTP:
		a.trigger = execution.NewHTTPTrigger(cfg.TriggerURL, 30*time.Second)
	case config.TriggerKafka:
		kt, err := execution.NewKafkaTrigger(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka trigger: %w", err)
		}
		a.closers = append(a.closers, func() { _ = kt.Close() })
		a.trigger = kt
	default:
		a.trigger = execution.NewLogTrigger(a.logger)
	}

	a.rules = decision.NewRuleEngine(decision.RuleConfig{
		MaxPriceUSD: cfg.RuleMaxPrice,
		Symbols:     cfg.RuleSymbols,
		BuysOnly:    cfg.RuleBuysOnly,
	})

	if cfg.AgentProgram != "" {
		a.users = anchor.NewClient(a.rpc, cfg.AgentProgram, cfg.MaxTriggers)
	}

	return nil
}

// newRPCClient reads at the subscription's commitment so a notified
// signature is already fetchable. Every lookup is a single attempt: the
// stream's reconnect is the only retry loop, and a stalled fetch would hold
// up the session's one consumer.
func newRPCClient(cfg config.Config) *solana.HTTPClient {
	return solana.NewHTTPClient(cfg.RPCEndpoint,
		solana.WithCommitment(cfg.Commitment),
		solana.WithMaxRetries(0),
	)
}

// Close releases stores and producers in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) engine(userPubkey string) decision.Engine {
	switch a.cfg.Engine {
	case config.EngineHTTP:
		return decision.NewHTTPEngine(a.cfg.EngineURL, userPubkey, a.cfg.EngineTimeout)
	case config.EngineLLM:
		return decision.NewLLMEngine(decision.LLMConfig{
			BaseURL: a.cfg.LLMBaseURL,
			APIKey:  a.cfg.LLMAPIKey,
			Model:   a.cfg.LLMModel,
			Timeout: a.cfg.EngineTimeout,
		})
	default:
		return a.rules
	}
}

// budgets returns the resolver for per-user budgets, or nil when no agent
// program is configured.
func (a *app) budgets() watch.BudgetResolver {
	if a.users == nil {
		return nil
	}
	return a.users
}

// buildSession wires one session with its own stream, extractor and gate.
func (a *app) buildSession(id string, target domain.TargetAddress, userPubkey string, budget int) (*watch.Session, error) {
	budget = min(budget, a.cfg.MaxTriggers)
	logger := a.logger.With(zap.String("session_id", id), zap.String("target", target.String()))

	stream := solana.NewWSClient(a.cfg.WSEndpoint, &solana.WSClientConfig{
		ReconnectDelay:   a.cfg.ReconnectBackoff,
		PingInterval:     a.cfg.PingInterval,
		ReadTimeout:      a.cfg.ReadTimeout,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Commitment:       a.cfg.Commitment,
		BufferSize:       1024,
	}, logger)

	gate := decision.NewGate(decision.GateConfig{
		Engine:     a.engine(userPubkey),
		Trigger:    a.trigger,
		Store:      a.decisions,
		SessionID:  id,
		UserPubkey: userPubkey,
		Target:     target,
		Logger:     logger,
	})

	return watch.NewSession(watch.Config{
		ID:         id,
		Target:     target,
		UserPubkey: userPubkey,
		Budget:     budget,
		Stream:     stream,
		Extractor: extract.NewExtractor(extract.Config{
			RPC:          a.rpc,
			Target:       target,
			IncludeInner: a.cfg.IncludeInner,
			Logger:       logger,
		}),
		Enricher: enrich.NewEnricher(enrich.Config{
			Searcher: a.searcher,
			Quoter:   a.quoter,
			Cache:    a.cache,
			Logger:   logger,
		}),
		Gate:   gate,
		Events: a.events,
		Logger: logger,
	})
}
