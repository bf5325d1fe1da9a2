// Package extract turns log events into trade candidates by fetching and
// scanning the parsed transaction.
package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/observability"
	"wallet-copy-watcher/internal/solana"
)

// transferMarker matches both "Transfer" and "TransferChecked" log lines.
const transferMarker = "Transfer"

// Config configures an Extractor.
type Config struct {
	RPC    solana.RPCClient
	Target domain.TargetAddress
	// IncludeInner also scans CPI instructions from meta.innerInstructions.
	IncludeInner bool
	Logger       *zap.Logger
}

// Extractor builds trade candidates for one target address.
type Extractor struct {
	rpc          solana.RPCClient
	target       domain.TargetAddress
	includeInner bool
	logger       *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(cfg Config) *Extractor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		rpc:          cfg.RPC,
		target:       cfg.Target,
		includeInner: cfg.IncludeInner,
		logger:       logger.Named("extract"),
	}
}

// Extract returns the trade candidates found in the event's transaction.
// Failed events and events without transfer logs return empty without a
// fetch. A transaction the node does not know yields an empty result.
func (e *Extractor) Extract(ctx context.Context, event domain.LogEvent) ([]domain.TradeCandidate, error) {
	if event.Failed() {
		e.logger.Debug("skipping failed transaction", zap.String("signature", event.Signature))
		return nil, nil
	}

	if !HasTransferLog(event.Logs) {
		e.logger.Debug("no transfer in logs", zap.String("signature", event.Signature))
		return nil, nil
	}

	tx, err := e.rpc.GetTransaction(ctx, event.Signature)
	if err != nil {
		observability.RecordExtractionError("fetch")
		return nil, fmt.Errorf("get transaction %s: %w", event.Signature, err)
	}
	if tx == nil {
		e.logger.Debug("transaction not found", zap.String("signature", event.Signature))
		return nil, nil
	}
	observability.RecordTransactionFetched()

	var instructions []solana.Instruction
	direction := domain.DirectionUnknown
	if tx.Message != nil {
		instructions = append(instructions, tx.Message.Instructions...)
	}
	if tx.Meta != nil {
		if e.includeInner {
			for _, inner := range tx.Meta.InnerInstructions {
				instructions = append(instructions, inner.Instructions...)
			}
		}
		direction = ResolveDirection(tx.Meta.PreTokenBalances, tx.Meta.PostTokenBalances, e.target.String())
	}

	slot := event.Slot
	if slot == 0 {
		slot = tx.Slot
	}

	var candidates []domain.TradeCandidate
	for _, inst := range instructions {
		c, ok := candidateFrom(inst)
		if !ok {
			continue
		}
		c.Signature = event.Signature
		c.Slot = slot
		c.Target = e.target
		c.Direction = direction
		candidates = append(candidates, c)
		observability.RecordCandidate(string(direction))
	}

	e.logger.Debug("extracted candidates",
		zap.String("signature", event.Signature),
		zap.Int("instructions", len(instructions)),
		zap.Int("candidates", len(candidates)),
		zap.String("direction", string(direction)))

	return candidates, nil
}

// HasTransferLog reports whether any log line mentions a token transfer.
func HasTransferLog(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, transferMarker) {
			return true
		}
	}
	return false
}

// candidateFrom builds a candidate from an instruction whose parsed info carries a mint.
func candidateFrom(inst solana.Instruction) (domain.TradeCandidate, bool) {
	if inst.Parsed == nil || len(inst.Parsed.Info) == 0 {
		return domain.TradeCandidate{}, false
	}

	info := gjson.ParseBytes(inst.Parsed.Info)
	mint := info.Get("mint").String()
	if mint == "" {
		return domain.TradeCandidate{}, false
	}

	program := inst.Program
	if program == "" {
		program = inst.ProgramID
	}

	c := domain.TradeCandidate{
		Mint:        mint,
		Program:     program,
		Instruction: inst.Parsed.Type,
	}

	raw := info.Get("tokenAmount.amount").String()
	if raw == "" {
		raw = info.Get("amount").String()
	}
	if raw != "" {
		if amount, err := strconv.ParseUint(raw, 10, 64); err == nil {
			c.Amount = &amount
		}
	}

	return c, true
}
