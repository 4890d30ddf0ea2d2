// Package chatsession holds the client side of a chat conversation: the
// ordered transcript, the session id handed out by the exchange service and
// the single in-flight exchange.
package chatsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PabloGalante/aisuite/internal/observability"
)

// DefaultTimeout bounds a single exchange.
const DefaultTimeout = 30 * time.Second

var errMalformedResponse = errors.New("malformed exchange response")

// Controller mediates between user input and the exchange service.
// It is safe for concurrent use, but only one exchange runs at a time.
type Controller struct {
	exchanger Exchanger
	models    ModelInfoSource
	now       func() time.Time
	timeout   time.Duration
	log       *slog.Logger

	startOnce sync.Once

	mu         sync.Mutex
	sessionID  string
	messages   []Message
	state      State
	generation uint64
	cancel     context.CancelFunc
	modelInfo  *ModelInfo
}

type Option func(*Controller)

// WithTimeout bounds each exchange. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithModelInfoSource sets the collaborator queried by Start.
func WithModelInfoSource(src ModelInfoSource) Option {
	return func(c *Controller) { c.models = src }
}

func NewController(exchanger Exchanger, opts ...Option) *Controller {
	c := &Controller{
		exchanger: exchanger,
		now:       time.Now,
		timeout:   DefaultTimeout,
		log:       observability.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start loads model info once. Failures are logged and otherwise ignored;
// Submit works whether or not model info is available.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		if c.models == nil {
			return
		}
		info, err := c.models.ModelInfo(ctx)
		if err != nil {
			c.log.Warn("model info unavailable", "error", err)
			return
		}
		c.mu.Lock()
		c.modelInfo = &info
		c.mu.Unlock()
	})
}

// ModelInfo returns the model info loaded by Start, if any.
func (c *Controller) ModelInfo() (ModelInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.modelInfo == nil {
		return ModelInfo{}, false
	}
	return *c.modelInfo, true
}

// Pending is an accepted user message whose exchange has not run yet.
type Pending struct {
	c          *Controller
	text       string
	sessionID  string
	generation uint64
	ran        atomic.Bool
}

// Begin validates text, appends the user turn and moves the controller to
// AwaitingReply. The returned Pending is nil unless the outcome is
// OutcomeStarted.
func (c *Controller) Begin(text string) (*Pending, Outcome) {
	if strings.TrimSpace(text) == "" {
		return nil, OutcomeEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAwaitingReply {
		c.log.Debug("submit ignored, exchange in flight", "session_id", c.sessionID)
		return nil, OutcomeBusy
	}

	c.messages = append(c.messages, Message{
		Role:      RoleUser,
		Content:   text,
		Timestamp: c.now(),
	})
	c.state = StateAwaitingReply

	return &Pending{
		c:          c,
		text:       text,
		sessionID:  c.sessionID,
		generation: c.generation,
	}, OutcomeStarted
}

// Run performs the exchange and reconciles its result with the transcript.
// A Pending runs at most once; later calls report OutcomeDiscarded.
func (p *Pending) Run(ctx context.Context) Outcome {
	if !p.ran.CompareAndSwap(false, true) {
		return OutcomeDiscarded
	}
	c := p.c

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	c.mu.Lock()
	if p.generation != c.generation {
		c.mu.Unlock()
		return OutcomeDiscarded
	}
	c.cancel = cancel
	c.mu.Unlock()

	log := c.log.With("session_id", p.sessionID)
	start := c.now()

	resp, err := c.exchanger.Exchange(runCtx, ExchangeRequest{
		Message:   p.text,
		SessionID: p.sessionID,
	})
	if err == nil {
		err = validateResponse(resp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p.generation != c.generation {
		log.Info("exchange result discarded after reset", "error", err)
		return OutcomeDiscarded
	}

	c.cancel = nil
	c.state = StateIdle

	if err != nil {
		log.Warn("exchange failed", "error", err)
		c.messages = append(c.messages, Message{
			Role:      RoleAssistant,
			Content:   ErrorReply,
			Timestamp: c.now(),
			IsError:   true,
		})
		return OutcomeFailed
	}

	// first write wins: the id never changes until Reset
	if c.sessionID == "" {
		c.sessionID = resp.SessionID
	}

	confidence := resp.Confidence
	c.messages = append(c.messages, Message{
		Role:       RoleAssistant,
		Content:    resp.Response,
		Timestamp:  c.now(),
		Intent:     resp.Intent,
		Confidence: &confidence,
		Metadata:   cloneMetadata(resp.Metadata),
	})

	log.Debug("exchange completed",
		"intent", resp.Intent,
		"elapsed_ms", c.now().Sub(start).Milliseconds())
	return OutcomeReplied
}

func validateResponse(resp *ExchangeResponse) error {
	if resp == nil {
		return fmt.Errorf("%w: empty response", errMalformedResponse)
	}
	if resp.SessionID == "" {
		return fmt.Errorf("%w: missing session_id", errMalformedResponse)
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range", errMalformedResponse, resp.Confidence)
	}
	return nil
}

// Submit sends text and blocks until the exchange settles.
func (c *Controller) Submit(ctx context.Context, text string) Outcome {
	p, outcome := c.Begin(text)
	if p == nil {
		return outcome
	}
	return p.Run(ctx)
}

// Retry replays the user message that led to the most recent error turn.
func (c *Controller) Retry(ctx context.Context) Outcome {
	p, outcome := c.BeginRetry()
	if p == nil {
		return outcome
	}
	return p.Run(ctx)
}

// BeginRetry is the Begin counterpart of Retry. The replayed message is
// appended as a new user turn; the failed turns stay in the transcript.
func (c *Controller) BeginRetry() (*Pending, Outcome) {
	c.mu.Lock()
	text, ok := c.lastFailedInputLocked()
	c.mu.Unlock()

	if !ok {
		return nil, OutcomeNothingToRetry
	}
	return c.Begin(text)
}

func (c *Controller) lastFailedInputLocked() (string, bool) {
	n := len(c.messages)
	if n < 2 || !c.messages[n-1].IsError {
		return "", false
	}
	prev := c.messages[n-2]
	if prev.Role != RoleUser {
		return "", false
	}
	return prev.Content, true
}

// Reset discards the transcript and the session id together. An exchange
// still in flight is cancelled and its result will be discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.log.Debug("session reset", "previous_session_id", c.sessionID)

	c.messages = nil
	c.sessionID = ""
	c.state = StateIdle
}

// Transcript returns a copy of the conversation so far, oldest first.
func (c *Controller) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

// SessionID returns the current session id; false until the first
// successful exchange.
func (c *Controller) SessionID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.sessionID != ""
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
