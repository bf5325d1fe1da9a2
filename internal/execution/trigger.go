// Package execution delivers copy signals to the downstream executor.
// Delivery is fire-and-forget from the pipeline's point of view.
package execution

import (
	"context"
	"strings"

	"wallet-copy-watcher/internal/domain"
)

// Trigger hands a copy signal to the execution side.
type Trigger interface {
	// Name identifies the trigger in logs.
	Name() string

	// Fire delivers one signal. The caller does not act on the result
	// beyond logging it.
	Fire(ctx context.Context, signal domain.CopySignal) error
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}
