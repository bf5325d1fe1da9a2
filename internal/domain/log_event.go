package domain

// LogEvent is a decoded logs notification for one transaction.
type LogEvent struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       string // raw JSON of the on-chain error, empty when the transaction succeeded
}

// Failed reports whether the transaction failed on-chain.
func (e LogEvent) Failed() bool {
	return e.Err != ""
}
