package domain

import "github.com/shopspring/decimal"

// Verdict is the decision engine output.
type Verdict string

const (
	VerdictCopy Verdict = "copy"
	VerdictPass Verdict = "pass"
)

// DecisionRecord is an audit entry for one gate submission.
type DecisionRecord struct {
	SessionID    string
	Signature    string
	Mint         string
	Direction    Direction
	Symbol       *string
	PriceUSD     *decimal.Decimal
	Verdict      Verdict
	Reason       string // engine reason or fault description
	TriggerCount int    // counter value after this decision
	DecidedAt    int64  // ms
}

// CopySignal is emitted to the execution collaborator on a copy verdict.
type CopySignal struct {
	SessionID  string             `json:"session_id"`
	UserPubkey string             `json:"user_pubkey,omitempty"`
	Target     TargetAddress      `json:"target"`
	Sequence   int                `json:"sequence"` // trigger counter value for this signal, 1-based
	Event      EnrichedTradeEvent `json:"event"`
	EmittedAt  int64              `json:"emitted_at"` // ms
}
