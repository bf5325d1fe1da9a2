package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"wallet-copy-watcher/internal/domain"
)

// CriterionResult represents pass/fail for one rule criterion.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// RuleConfig configures RuleEngine.
type RuleConfig struct {
	// MaxPriceUSD copies only when the USD price is strictly below it. Zero disables the check.
	MaxPriceUSD decimal.Decimal
	// Symbols limits copying to these symbols (case-insensitive). Empty allows any.
	Symbols []string
	// BuysOnly rejects sells and unknown directions.
	BuysOnly bool
}

// RuleEngine is a local engine: copy if ALL criteria pass.
type RuleEngine struct {
	cfg     RuleConfig
	symbols map[string]struct{}
}

// NewRuleEngine creates a rule engine.
func NewRuleEngine(cfg RuleConfig) *RuleEngine {
	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if s = strings.TrimSpace(s); s != "" {
			symbols[strings.ToUpper(s)] = struct{}{}
		}
	}
	return &RuleEngine{cfg: cfg, symbols: symbols}
}

// Name implements Engine.
func (e *RuleEngine) Name() string { return "rule" }

// Evaluate implements Engine.
func (e *RuleEngine) Evaluate(_ context.Context, event domain.EnrichedTradeEvent) (Evaluation, error) {
	criteria := e.Criteria(event)

	var failed []string
	for _, c := range criteria {
		if !c.Pass {
			failed = append(failed, fmt.Sprintf("%s (%s, want %s)", c.Name, c.Actual, c.Threshold))
		}
	}

	if len(failed) > 0 {
		return Evaluation{Verdict: domain.VerdictPass, Reason: strings.Join(failed, "; ")}, nil
	}
	return Evaluation{Verdict: domain.VerdictCopy, Reason: "all criteria passed"}, nil
}

// Criteria evaluates every configured criterion for event.
func (e *RuleEngine) Criteria(event domain.EnrichedTradeEvent) []CriterionResult {
	var criteria []CriterionResult

	if len(e.symbols) > 0 {
		actual := "unknown"
		pass := false
		if event.Symbol != nil {
			actual = *event.Symbol
			_, pass = e.symbols[strings.ToUpper(*event.Symbol)]
		}
		criteria = append(criteria, CriterionResult{
			Name:      "Symbol allowed",
			Threshold: strings.Join(e.cfg.Symbols, ","),
			Actual:    actual,
			Pass:      pass,
		})
	}

	if e.cfg.MaxPriceUSD.IsPositive() {
		actual := "unknown"
		pass := false
		if event.PriceUSD != nil {
			actual = event.PriceUSD.String()
			pass = event.PriceUSD.LessThan(e.cfg.MaxPriceUSD)
		}
		criteria = append(criteria, CriterionResult{
			Name:      "Price below max",
			Threshold: "< " + e.cfg.MaxPriceUSD.String(),
			Actual:    actual,
			Pass:      pass,
		})
	}

	if e.cfg.BuysOnly {
		criteria = append(criteria, CriterionResult{
			Name:      "Direction",
			Threshold: string(domain.DirectionBuy),
			Actual:    string(event.Direction),
			Pass:      event.Direction == domain.DirectionBuy,
		})
	}

	return criteria
}
