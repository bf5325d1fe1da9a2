package decision

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"wallet-copy-watcher/internal/domain"
)

// HTTPEngine asks a remote agent service for a verdict via
// POST {base}/agent/analyze-trade.
type HTTPEngine struct {
	client     *resty.Client
	userPubkey string
}

// NewHTTPEngine creates an engine for the agent service at baseURL.
func NewHTTPEngine(baseURL, userPubkey string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	return &HTTPEngine{client: client, userPubkey: userPubkey}
}

// Name implements Engine.
func (e *HTTPEngine) Name() string { return "http" }

type analyzeTradeRequest struct {
	TradeData  domain.EnrichedTradeEvent `json:"trade_data"`
	UserPubkey string                    `json:"user_pubkey"`
}

// Evaluate implements Engine. The reply may carry the verdict in
// "decision", "verdict" or "response".
func (e *HTTPEngine) Evaluate(ctx context.Context, event domain.EnrichedTradeEvent) (Evaluation, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(analyzeTradeRequest{TradeData: event, UserPubkey: e.userPubkey}).
		Post("/agent/analyze-trade")
	if err != nil {
		return Evaluation{}, errors.Wrap(err, "analyze trade")
	}
	if !resp.IsSuccess() {
		return Evaluation{}, errors.Errorf("analyze trade: http %d: %s", resp.StatusCode(), resp.String())
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return Evaluation{}, errors.New("analyze trade: reply is not json")
	}

	reply := gjson.ParseBytes(body)
	for _, field := range []string{"decision", "verdict", "response"} {
		v := reply.Get(field)
		if v.Type != gjson.String {
			continue
		}
		if verdict, ok := ParseVerdict(v.String()); ok {
			return Evaluation{Verdict: verdict, Reason: reply.Get("reason").String()}, nil
		}
	}

	return Evaluation{}, errors.Errorf("analyze trade: unrecognized reply %s", truncate(string(body), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
