package execution

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"wallet-copy-watcher/internal/domain"
)

// HTTPTrigger calls GET {base}/trade-execute with the signal as query parameters.
type HTTPTrigger struct {
	client *resty.Client
}

// NewHTTPTrigger creates a trigger for the executor at baseURL.
func NewHTTPTrigger(baseURL string, timeout time.Duration) *HTTPTrigger {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0)
	return &HTTPTrigger{client: client}
}

// Name implements Trigger.
func (t *HTTPTrigger) Name() string { return "http" }

// Fire implements Trigger.
func (t *HTTPTrigger) Fire(ctx context.Context, s domain.CopySignal) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"session_id": s.SessionID,
			"user":       s.UserPubkey,
			"target":     s.Target.String(),
			"signature":  s.Event.Signature,
			"mint":       s.Event.Mint,
			"direction":  string(s.Event.Direction),
			"sequence":   strconv.Itoa(s.Sequence),
		}).
		Get("/trade-execute")
	if err != nil {
		return errors.Wrap(err, "trade execute")
	}
	if !resp.IsSuccess() {
		return errors.Errorf("trade execute: http %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
