package solana

import "encoding/json"

// Transaction represents a jsonParsed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction status metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	InnerInstructions []InnerInstructions
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []Instruction
}

// InnerInstructions groups CPI instructions issued by one top-level instruction.
type InnerInstructions struct {
	Index        int
	Instructions []Instruction
}

// Instruction is a jsonParsed instruction. Parsed is nil when the RPC node
// could not parse the instruction (only raw data available).
type Instruction struct {
	Program   string
	ProgramID string
	Parsed    *ParsedInstruction
}

// ParsedInstruction is the decoded form of a known program instruction.
type ParsedInstruction struct {
	Type string
	Info json.RawMessage
}

// TokenBalance is a pre/post token balance snapshot.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	ProgramID     string        `json:"programId"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// UITokenAmount is a token amount in both raw and UI units.
type UITokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       int      `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
