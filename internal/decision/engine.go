// Package decision submits enriched trade events to a decision engine and
// enforces the per-session trigger budget.
package decision

import (
	"context"
	"strings"

	"wallet-copy-watcher/internal/domain"
)

// Evaluation is an engine's answer for one event.
type Evaluation struct {
	Verdict domain.Verdict
	Reason  string
}

// Engine decides whether an enriched trade should be copied.
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string

	// Evaluate returns the engine's verdict. Any error is treated as pass by the Gate.
	Evaluate(ctx context.Context, event domain.EnrichedTradeEvent) (Evaluation, error)
}

// ParseVerdict maps free-form engine output to a verdict.
// The second result is false when the text matches neither verdict.
func ParseVerdict(s string) (domain.Verdict, bool) {
	word := strings.ToLower(strings.Trim(strings.TrimSpace(s), `."'!`))
	switch word {
	case "copy", "execute", "yes", "buy":
		return domain.VerdictCopy, true
	case "pass", "skip", "no", "hold", "ignore":
		return domain.VerdictPass, true
	}
	return domain.VerdictPass, false
}
