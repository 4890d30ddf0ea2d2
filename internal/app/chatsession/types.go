package chatsession

import (
	"context"
	"maps"
	"time"
)

// ErrorReply is the content of the turn appended when an exchange fails.
const ErrorReply = "Sorry, I encountered an error. Please try again."

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation as the client sees it.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time

	// Assistant replies only.
	Intent     string
	Confidence *float64
	Metadata   map[string]any

	// IsError marks a turn synthesized locally after a failed exchange.
	IsError bool
}

func (m Message) clone() Message {
	out := m
	if m.Confidence != nil {
		c := *m.Confidence
		out.Confidence = &c
	}
	if m.Metadata != nil {
		out.Metadata = cloneMetadata(m.Metadata)
	}
	return out
}

// cloneMetadata copies nested maps and slices as well. Other reference
// values (pointers, structs holding maps) are still shared.
func cloneMetadata(md map[string]any) map[string]any {
	out := maps.Clone(md)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMetadata(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ExchangeRequest is what the controller sends for one user turn.
// An empty SessionID means "start a new session".
type ExchangeRequest struct {
	Message   string
	SessionID string
}

// ExchangeResponse is a successful reply from the exchange service.
type ExchangeResponse struct {
	Response   string
	SessionID  string
	Intent     string
	Confidence float64
	Metadata   map[string]any
}

// Exchanger sends one message to the Message Exchange Service.
// Any error (transport, status, decoding) counts as a failed exchange.
type Exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error)
}

// ModelInfo is display-only information about the serving model.
type ModelInfo struct {
	ModelName string
	IsLoaded  bool
}

// ModelInfoSource is queried once when the controller starts.
type ModelInfoSource interface {
	ModelInfo(ctx context.Context) (ModelInfo, error)
}

// State of the controller.
type State int

const (
	StateIdle State = iota
	StateAwaitingReply
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting_reply"
	default:
		return "unknown"
	}
}

// Outcome reports what a Submit did. None of them is a fault.
type Outcome int

const (
	// OutcomeReplied: the assistant reply was appended.
	OutcomeReplied Outcome = iota
	// OutcomeFailed: the exchange failed and an error turn was appended.
	OutcomeFailed
	// OutcomeEmpty: the input was blank; nothing changed.
	OutcomeEmpty
	// OutcomeBusy: another exchange is in flight; nothing changed.
	OutcomeBusy
	// OutcomeDiscarded: the session was reset while the exchange was in
	// flight; its result was dropped.
	OutcomeDiscarded
	// OutcomeNothingToRetry: Retry found no failed turn to replay.
	OutcomeNothingToRetry
	// OutcomeStarted: Begin accepted the message; call Run to finish it.
	OutcomeStarted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReplied:
		return "replied"
	case OutcomeFailed:
		return "failed"
	case OutcomeEmpty:
		return "empty"
	case OutcomeBusy:
		return "busy"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeNothingToRetry:
		return "nothing_to_retry"
	case OutcomeStarted:
		return "started"
	default:
		return "unknown"
	}
}
