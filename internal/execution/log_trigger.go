package execution

import (
	"context"

	"go.uber.org/zap"

	"wallet-copy-watcher/internal/domain"
)

// LogTrigger only logs signals. Used for dry runs.
type LogTrigger struct {
	logger *zap.Logger
}

// NewLogTrigger creates a log-only trigger.
func NewLogTrigger(logger *zap.Logger) *LogTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTrigger{logger: logger.Named("trigger")}
}

// Name implements Trigger.
func (t *LogTrigger) Name() string { return "log" }

// Fire implements Trigger.
func (t *LogTrigger) Fire(_ context.Context, s domain.CopySignal) error {
	t.logger.Info("copy signal",
		zap.String("session_id", s.SessionID),
		zap.String("target", s.Target.String()),
		zap.Int("sequence", s.Sequence),
		zap.String("signature", s.Event.Signature),
		zap.String("mint", s.Event.Mint),
		zap.String("direction", string(s.Event.Direction)))
	return nil
}
