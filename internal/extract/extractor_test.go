package extract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/solana"
	"wallet-copy-watcher/internal/solana/stub"
)

const wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func balance(owner string, ui string) solana.TokenBalance {
	return solana.TokenBalance{
		Mint:          "M1",
		Owner:         owner,
		UITokenAmount: solana.UITokenAmount{UIAmountString: ui, Decimals: 6},
	}
}

func transferChecked(mint, amount string) solana.Instruction {
	info, _ := json.Marshal(map[string]interface{}{
		"mint":        mint,
		"source":      "src",
		"destination": "dst",
		"tokenAmount": map[string]interface{}{"amount": amount, "decimals": 6},
	})
	return solana.Instruction{
		Program:   "spl-token",
		ProgramID: solana.TokenProgramID,
		Parsed:    &solana.ParsedInstruction{Type: "transferChecked", Info: info},
	}
}

func newExtractor(rpc solana.RPCClient, inner bool) *Extractor {
	return NewExtractor(Config{RPC: rpc, Target: domain.TargetAddress(wallet), IncludeInner: inner})
}

func TestExtract_BuyCandidate(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(&solana.Transaction{
		Slot:      42,
		Signature: "SIG1",
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  []solana.TokenBalance{balance(wallet, "5")},
			PostTokenBalances: []solana.TokenBalance{balance(wallet, "8")},
		},
		Message: &solana.TransactionMessage{
			Instructions: []solana.Instruction{transferChecked("M1", "3000000")},
		},
	})

	event := domain.LogEvent{Signature: "SIG1", Logs: []string{"Program log: TransferChecked"}}

	candidates, err := newExtractor(rpc, false).Extract(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "M1", c.Mint)
	assert.Equal(t, domain.DirectionBuy, c.Direction)
	assert.Equal(t, "spl-token", c.Program)
	assert.Equal(t, "transferChecked", c.Instruction)
	assert.Equal(t, int64(42), c.Slot)
	require.NotNil(t, c.Amount)
	assert.Equal(t, uint64(3000000), *c.Amount)
}

func TestExtract_FailedEventSkipsFetch(t *testing.T) {
	rpc := stub.NewRPCClient()
	event := domain.LogEvent{
		Signature: "SIG1",
		Logs:      []string{"Program log: Instruction: Transfer"},
		Err:       `{"InstructionError":[0,"Custom"]}`,
	}

	candidates, err := newExtractor(rpc, false).Extract(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Zero(t, rpc.CallCount("getTransaction"))
}

func TestExtract_PreFilterSkipsFetch(t *testing.T) {
	rpc := stub.NewRPCClient()
	event := domain.LogEvent{Signature: "SIG1", Logs: []string{"Program log: Instruction: InitializeAccount"}}

	candidates, err := newExtractor(rpc, false).Extract(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Zero(t, rpc.CallCount("getTransaction"))
}

func TestExtract_TransactionNotFound(t *testing.T) {
	rpc := stub.NewRPCClient()
	event := domain.LogEvent{Signature: "missing", Logs: []string{"Program log: Instruction: Transfer"}}

	candidates, err := newExtractor(rpc, false).Extract(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, 1, rpc.CallCount("getTransaction"))
}

func TestExtract_FetchError(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.FailOn("SIG1", errors.New("rpc down"))
	event := domain.LogEvent{Signature: "SIG1", Logs: []string{"Program log: Instruction: Transfer"}}

	_, err := newExtractor(rpc, false).Extract(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")
}

func TestExtract_InstructionsWithoutMintIgnored(t *testing.T) {
	plainTransfer, _ := json.Marshal(map[string]interface{}{"amount": "10", "source": "a", "destination": "b"})

	rpc := stub.NewRPCClient()
	rpc.AddTransaction(&solana.Transaction{
		Signature: "SIG1",
		Meta:      &solana.TransactionMeta{},
		Message: &solana.TransactionMessage{
			Instructions: []solana.Instruction{
				{Program: "spl-token", Parsed: &solana.ParsedInstruction{Type: "transfer", Info: plainTransfer}},
				{ProgramID: "ComputeBudget111111111111111111111111111111"},
			},
		},
	})

	event := domain.LogEvent{Signature: "SIG1", Logs: []string{"Program log: Instruction: Transfer"}}
	candidates, err := newExtractor(rpc, false).Extract(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestExtract_InnerInstructions(t *testing.T) {
	tx := &solana.Transaction{
		Signature: "SIG1",
		Meta: &solana.TransactionMeta{
			InnerInstructions: []solana.InnerInstructions{
				{Index: 0, Instructions: []solana.Instruction{transferChecked("M2", "7")}},
			},
		},
		Message: &solana.TransactionMessage{
			Instructions: []solana.Instruction{transferChecked("M1", "5")},
		},
	}
	event := domain.LogEvent{Signature: "SIG1", Logs: []string{"Program log: Instruction: TransferChecked"}}

	rpc := stub.NewRPCClient()
	rpc.AddTransaction(tx)

	topOnly, err := newExtractor(rpc, false).Extract(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, topOnly, 1)
	assert.Equal(t, "M1", topOnly[0].Mint)

	withInner, err := newExtractor(rpc, true).Extract(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, withInner, 2)
	assert.Equal(t, "M2", withInner[1].Mint)
	assert.Equal(t, uint64(7), *withInner[1].Amount)
}

func TestHasTransferLog(t *testing.T) {
	assert.True(t, HasTransferLog([]string{"a", "Program log: Instruction: Transfer"}))
	assert.True(t, HasTransferLog([]string{"Program log: Instruction: TransferChecked"}))
	assert.False(t, HasTransferLog([]string{"Program log: Instruction: Swap"}))
	assert.False(t, HasTransferLog(nil))
}
