// Package feed classifies raw logs-subscription frames into typed notifications.
package feed

import (
	"fmt"

	"github.com/tidwall/gjson"

	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/solana"
)

// Kind is the closed set of notification shapes.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindAck
	KindLogValue
	KindTransportError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindLogValue:
		return "log_value"
	case KindTransportError:
		return "transport_error"
	default:
		return "unrecognized"
	}
}

// Notification is a decoded feed frame. Exactly one of the payload fields
// is meaningful, selected by Kind.
type Notification struct {
	Kind Kind

	// SubscriptionID is set for KindAck.
	SubscriptionID int64
	// Event is set for KindLogValue.
	Event domain.LogEvent
	// Err is set for KindTransportError.
	Err error
	// Reason describes why a frame was not recognized.
	Reason string
}

// Decode classifies raw. It never fails; an unknown shape yields KindUnrecognized.
func Decode(raw solana.RawNotification) Notification {
	if raw.Err != nil {
		return Notification{Kind: KindTransportError, Err: raw.Err}
	}

	if len(raw.Payload) == 0 || !gjson.ValidBytes(raw.Payload) {
		return Notification{Kind: KindUnrecognized, Reason: "invalid json"}
	}

	root := gjson.ParseBytes(raw.Payload)
	if !root.IsObject() {
		return Notification{Kind: KindUnrecognized, Reason: "not an object"}
	}

	if rpcErr := root.Get("error"); rpcErr.Exists() && rpcErr.IsObject() {
		return Notification{
			Kind: KindTransportError,
			Err:  fmt.Errorf("rpc error %d: %s", rpcErr.Get("code").Int(), rpcErr.Get("message").String()),
		}
	}

	// logsNotification carries params.result.{context,value}; some relays
	// flatten it to result.{context,value}.
	for _, prefix := range []string{"params.result", "result"} {
		value := root.Get(prefix + ".value")
		if !value.IsObject() {
			continue
		}
		event, ok := logEventFrom(value, root.Get(prefix+".context.slot"))
		if !ok {
			return Notification{Kind: KindUnrecognized, Reason: "value without signature"}
		}
		return Notification{Kind: KindLogValue, Event: event}
	}

	if result := root.Get("result"); result.Exists() && root.Get("id").Exists() && result.Type == gjson.Number {
		return Notification{Kind: KindAck, SubscriptionID: result.Int()}
	}

	return Notification{Kind: KindUnrecognized, Reason: "no result.value shape"}
}

// DecodeLogEvent returns the log event carried by raw, if any.
func DecodeLogEvent(raw solana.RawNotification) (domain.LogEvent, bool) {
	n := Decode(raw)
	if n.Kind != KindLogValue {
		return domain.LogEvent{}, false
	}
	return n.Event, true
}

func logEventFrom(value, slot gjson.Result) (domain.LogEvent, bool) {
	sig := value.Get("signature")
	if sig.Type != gjson.String || sig.String() == "" {
		return domain.LogEvent{}, false
	}

	event := domain.LogEvent{
		Signature: sig.String(),
		Slot:      slot.Int(),
	}

	if errField := value.Get("err"); errField.Exists() && errField.Type != gjson.Null {
		event.Err = errField.Raw
	}

	for _, line := range value.Get("logs").Array() {
		if line.Type == gjson.String {
			event.Logs = append(event.Logs, line.String())
		}
	}

	return event, true
}
