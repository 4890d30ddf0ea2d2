package chatsession_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PabloGalante/aisuite/internal/app/chatsession"
	"github.com/PabloGalante/aisuite/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type reply struct {
	resp *chatsession.ExchangeResponse
	err  error
}

// fakeExchanger replays queued replies, or the reply registered for the
// message text in byMessage. When gate is set each call blocks until the
// gate is released or, if honorCancel is set, ctx is done.
type fakeExchanger struct {
	mu          sync.Mutex
	requests    []chatsession.ExchangeRequest
	replies     []reply
	byMessage   map[string]reply
	gate        chan struct{}
	started     chan struct{}
	honorCancel bool
}

func (f *fakeExchanger) queue(resp *chatsession.ExchangeResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{resp: resp, err: err})
}

func (f *fakeExchanger) Exchange(ctx context.Context, req chatsession.ExchangeRequest) (*chatsession.ExchangeResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		if f.honorCancel {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			<-gate
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.byMessage[req.Message]; ok {
		return r.resp, r.err
	}
	if len(f.replies) == 0 {
		return nil, errors.New("no reply queued")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.resp, r.err
}

func (f *fakeExchanger) Requests() []chatsession.ExchangeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatsession.ExchangeRequest(nil), f.requests...)
}

func newController(ex chatsession.Exchanger, opts ...chatsession.Option) *chatsession.Controller {
	base := []chatsession.Option{
		chatsession.WithClock(func() time.Time { return fixedNow }),
		chatsession.WithLogger(observability.Discard()),
	}
	return chatsession.NewController(ex, append(base, opts...)...)
}

func ok(text, sessionID, intent string, confidence float64) *chatsession.ExchangeResponse {
	return &chatsession.ExchangeResponse{
		Response:   text,
		SessionID:  sessionID,
		Intent:     intent,
		Confidence: confidence,
		Metadata:   map[string]any{"has_context": false},
	}
}

func ptr[T any](v T) *T { return &v }

func TestSubmitFirstExchangeBindsSession(t *testing.T) {
	ex := &fakeExchanger{}
	ex.queue(ok("Hi there!", "s1", "greeting", 0.92), nil)
	c := newController(ex)

	outcome := c.Submit(context.Background(), "Hello")
	require.Equal(t, chatsession.OutcomeReplied, outcome)

	want := []chatsession.Message{
		{Role: chatsession.RoleUser, Content: "Hello", Timestamp: fixedNow},
		{
			Role:       chatsession.RoleAssistant,
			Content:    "Hi there!",
			Timestamp:  fixedNow,
			Intent:     "greeting",
			Confidence: ptr(0.92),
			Metadata:   map[string]any{"has_context": false},
		},
	}
	if diff := cmp.Diff(want, c.Transcript()); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}

	id, bound := c.SessionID()
	assert.True(t, bound)
	assert.Equal(t, "s1", id)
	assert.Equal(t, chatsession.StateIdle, c.State())

	reqs := ex.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, chatsession.ExchangeRequest{Message: "Hello"}, reqs[0])
}

func TestSessionIDFirstWriteWins(t *testing.T) {
	ex := &fakeExchanger{}
	ex.queue(ok("Hi there!", "s1", "greeting", 0.92), nil)
	ex.queue(ok("Sunny.", "s2", "question", 0.85), nil)
	c := newController(ex)

	require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "Hello"))
	require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "What's the weather?"))

	reqs := ex.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "s1", reqs[1].SessionID)

	id, _ := c.SessionID()
	assert.Equal(t, "s1", id)
}

func TestTranscriptGrowsByTwoPerExchangeInOrder(t *testing.T) {
	ex := &fakeExchanger{}
	inputs := []string{"one", "two", "three", "four", "five"}
	for i, in := range inputs {
		ex.queue(ok("re: "+in, "s1", "general", 0.6+float64(i)*0.01), nil)
	}
	c := newController(ex)

	for i, in := range inputs {
		require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), in))
		assert.Len(t, c.Transcript(), 2*(i+1))
	}

	transcript := c.Transcript()
	for i, in := range inputs {
		assert.Equal(t, chatsession.RoleUser, transcript[2*i].Role)
		assert.Equal(t, in, transcript[2*i].Content)
		assert.Equal(t, chatsession.RoleAssistant, transcript[2*i+1].Role)
		assert.Equal(t, "re: "+in, transcript[2*i+1].Content)
	}
}

func TestBlankInputIsRejected(t *testing.T) {
	ex := &fakeExchanger{}
	c := newController(ex)

	for _, in := range []string{"", "   ", "\n\t"} {
		assert.Equal(t, chatsession.OutcomeEmpty, c.Submit(context.Background(), in))
	}
	assert.Empty(t, c.Transcript())
	assert.Empty(t, ex.Requests())
	assert.Equal(t, chatsession.StateIdle, c.State())
}

func TestSubmitWhileAwaitingReplyIsNoop(t *testing.T) {
	ex := &fakeExchanger{
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	ex.queue(ok("Hi there!", "s1", "greeting", 0.92), nil)
	c := newController(ex)

	done := make(chan chatsession.Outcome, 1)
	go func() { done <- c.Submit(context.Background(), "Hello") }()
	<-ex.started

	require.Equal(t, chatsession.StateAwaitingReply, c.State())
	before := c.Transcript()

	assert.Equal(t, chatsession.OutcomeBusy, c.Submit(context.Background(), "again"))
	assert.Equal(t, before, c.Transcript())
	assert.Len(t, ex.Requests(), 1)

	close(ex.gate)
	assert.Equal(t, chatsession.OutcomeReplied, <-done)
	assert.Len(t, c.Transcript(), 2)
}

func TestUserTurnIsVisibleBeforeReply(t *testing.T) {
	ex := &fakeExchanger{}
	ex.queue(ok("Hi there!", "s1", "greeting", 0.92), nil)
	c := newController(ex)

	p, outcome := c.Begin("Hello")
	require.Equal(t, chatsession.OutcomeStarted, outcome)
	require.NotNil(t, p)

	transcript := c.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, "Hello", transcript[0].Content)
	assert.Equal(t, chatsession.StateAwaitingReply, c.State())

	assert.Equal(t, chatsession.OutcomeReplied, p.Run(context.Background()))
	assert.Equal(t, chatsession.OutcomeDiscarded, p.Run(context.Background()))
	assert.Len(t, ex.Requests(), 1)
}

func TestExchangeFailureAppendsErrorTurn(t *testing.T) {
	ex := &fakeExchanger{}
	ex.queue(ok("Hi there!", "s1", "greeting", 0.92), nil)
	ex.queue(nil, errors.New("connection refused"))
	ex.queue(ok("Still here.", "s1", "general", 0.6), nil)
	c := newController(ex)

	require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "Hello"))
	require.Equal(t, chatsession.OutcomeFailed, c.Submit(context.Background(), "are you there?"))

	transcript := c.Transcript()
	require.Len(t, transcript, 4)
	last := transcript[3]
	assert.True(t, last.IsError)
	assert.Equal(t, chatsession.RoleAssistant, last.Role)
	assert.Equal(t, chatsession.ErrorReply, last.Content)
	assert.Nil(t, last.Confidence)

	id, _ := c.SessionID()
	assert.Equal(t, "s1", id)
	assert.Equal(t, chatsession.StateIdle, c.State())

	require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "hello?"))
	transcript = c.Transcript()
	require.Len(t, transcript, 6)
	assert.False(t, transcript[5].IsError)
}

func TestFailureBeforeFirstExchangeLeavesSessionUnbound(t *testing.T) {
	ex := &fakeExchanger{}
	ex.queue(nil, errors.New("network down"))
	c := newController(ex)

	require.Equal(t, chatsession.OutcomeFailed, c.Submit(context.Background(), "Hello"))
	_, bound := c.SessionID()
	assert.False(t, bound)
}

func TestMalformedResponsesCountAsFailures(t *testing.T) {
	cases := map[string]*chatsession.ExchangeResponse{
		"nil":                 nil,
		"missing session id":  ok("hi", "", "greeting", 0.9),
		"confidence above 1":  ok("hi", "s1", "greeting", 1.5),
		"negative confidence": ok("hi", "s1", "greeting", -0.1),
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			ex := &fakeExchanger{}
			ex.queue(resp, nil)
			c := newController(ex)

			assert.Equal(t, chatsession.OutcomeFailed, c.Submit(context.Background(), "Hello"))
			transcript := c.Transcript()
			require.Len(t, transcript, 2)
			assert.True(t, transcript[1].IsError)
			_, bound := c.SessionID()
			assert.False(t, bound)
		})
	}
}

func TestTimeoutProducesErrorTurn(t *testing.T) {
	ex := &fakeExchanger{gate: make(chan struct{}), honorCancel: true}
	defer close(ex.gate)
	c := newController(ex, chatsession.WithTimeout(20*time.Millisecond))

	assert.Equal(t, chatsession.OutcomeFailed, c.Submit(context.Background(), "Hello"))
	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.True(t, transcript[1].IsError)
	assert.Equal(t, chatsession.StateIdle, c.State())
}

func TestResetClearsTranscriptAndSession(t *testing.T) {
	ex := &fakeExchanger{}
	ex.queue(ok("Hi there!", "s1", "greeting", 0.92), nil)
	ex.queue(ok("Hello again!", "s9", "greeting", 0.95), nil)
	c := newController(ex)

	require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "Hello"))
	c.Reset()

	assert.Empty(t, c.Transcript())
	_, bound := c.SessionID()
	assert.False(t, bound)
	assert.Equal(t, chatsession.StateIdle, c.State())

	require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "Hello"))
	reqs := ex.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[1].SessionID)

	id, _ := c.SessionID()
	assert.Equal(t, "s9", id)
	assert.Len(t, c.Transcript(), 2)
}

func TestResetOnEmptyControllerIsHarmless(t *testing.T) {
	c := newController(&fakeExchanger{})
	c.Reset()
	c.Reset()
	assert.Empty(t, c.Transcript())
	assert.Equal(t, chatsession.StateIdle, c.State())
}

func TestResetMidFlightCancelsAndDiscards(t *testing.T) {
	ex := &fakeExchanger{
		gate:        make(chan struct{}),
		started:     make(chan struct{}, 1),
		honorCancel: true,
	}
	defer close(ex.gate)
	c := newController(ex)

	done := make(chan chatsession.Outcome, 1)
	go func() { done <- c.Submit(context.Background(), "Hello") }()
	<-ex.started

	c.Reset()
	assert.Equal(t, chatsession.OutcomeDiscarded, <-done)
	assert.Empty(t, c.Transcript())
	assert.Equal(t, chatsession.StateIdle, c.State())
}

func TestLateReplyAfterResetDoesNotTouchNewSession(t *testing.T) {
	ex := &fakeExchanger{
		gate:    make(chan struct{}),
		started: make(chan struct{}, 2),
		byMessage: map[string]reply{
			"first":  {resp: ok("late reply", "old", "general", 0.6)},
			"second": {resp: ok("fresh reply", "new", "general", 0.6)},
		},
	}
	c := newController(ex)

	done := make(chan chatsession.Outcome, 1)
	go func() { done <- c.Submit(context.Background(), "first") }()
	<-ex.started

	c.Reset()

	// The old exchange ignores cancellation; a new one may start at once.
	second := make(chan chatsession.Outcome, 1)
	go func() { second <- c.Submit(context.Background(), "second") }()
	<-ex.started

	close(ex.gate)
	assert.Equal(t, chatsession.OutcomeDiscarded, <-done)
	assert.Equal(t, chatsession.OutcomeReplied, <-second)

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "second", transcript[0].Content)
	assert.Equal(t, "fresh reply", transcript[1].Content)

	id, _ := c.SessionID()
	assert.Equal(t, "new", id)
}

func TestResetBetweenBeginAndRunSkipsExchange(t *testing.T) {
	ex := &fakeExchanger{}
	c := newController(ex)

	p, outcome := c.Begin("Hello")
	require.Equal(t, chatsession.OutcomeStarted, outcome)
	c.Reset()

	assert.Equal(t, chatsession.OutcomeDiscarded, p.Run(context.Background()))
	assert.Empty(t, ex.Requests())
	assert.Empty(t, c.Transcript())
}

func TestTranscriptIsASnapshot(t *testing.T) {
	ex := &fakeExchanger{}
	ex.queue(ok("Hi there!", "s1", "greeting", 0.92), nil)
	c := newController(ex)
	require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "Hello"))

	snap := c.Transcript()
	snap[0].Content = "tampered"
	*snap[1].Confidence = 0.1
	snap[1].Metadata["has_context"] = true
	_ = append(snap[:1], chatsession.Message{Content: "injected"})

	fresh := c.Transcript()
	assert.Equal(t, "Hello", fresh[0].Content)
	assert.Equal(t, 0.92, *fresh[1].Confidence)
	assert.Equal(t, false, fresh[1].Metadata["has_context"])
	assert.Equal(t, "Hi there!", fresh[1].Content)
}

func TestTranscriptCopiesNestedMetadata(t *testing.T) {
	ex := &fakeExchanger{}
	resp := ok("Hi there!", "s1", "greeting", 0.92)
	resp.Metadata = map[string]any{
		"usage":   map[string]any{"tokens": 12},
		"sources": []any{"a", map[string]any{"url": "x"}},
	}
	ex.queue(resp, nil)
	c := newController(ex)
	require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "Hello"))

	snap := c.Transcript()
	snap[1].Metadata["usage"].(map[string]any)["tokens"] = 99
	sources := snap[1].Metadata["sources"].([]any)
	sources[0] = "b"
	sources[1].(map[string]any)["url"] = "y"

	fresh := c.Transcript()
	assert.Equal(t, 12, fresh[1].Metadata["usage"].(map[string]any)["tokens"])
	assert.Equal(t, []any{"a", map[string]any{"url": "x"}}, fresh[1].Metadata["sources"])
}

func TestRetryReplaysFailedInput(t *testing.T) {
	ex := &fakeExchanger{}
	ex.queue(nil, errors.New("boom"))
	ex.queue(ok("Recovered.", "s1", "general", 0.6), nil)
	c := newController(ex)

	require.Equal(t, chatsession.OutcomeFailed, c.Submit(context.Background(), "tell me a joke"))
	require.Equal(t, chatsession.OutcomeReplied, c.Retry(context.Background()))

	reqs := ex.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "tell me a joke", reqs[1].Message)

	transcript := c.Transcript()
	require.Len(t, transcript, 4)
	assert.Equal(t, "tell me a joke", transcript[2].Content)
	assert.Equal(t, "Recovered.", transcript[3].Content)
}

func TestRetryWithoutFailureDoesNothing(t *testing.T) {
	ex := &fakeExchanger{}
	ex.queue(ok("Hi there!", "s1", "greeting", 0.92), nil)
	c := newController(ex)

	assert.Equal(t, chatsession.OutcomeNothingToRetry, c.Retry(context.Background()))
	require.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "Hello"))
	assert.Equal(t, chatsession.OutcomeNothingToRetry, c.Retry(context.Background()))
	assert.Len(t, ex.Requests(), 1)
}

type fakeModels struct {
	calls int
	info  chatsession.ModelInfo
	err   error
}

func (f *fakeModels) ModelInfo(context.Context) (chatsession.ModelInfo, error) {
	f.calls++
	return f.info, f.err
}

func TestStartLoadsModelInfoOnce(t *testing.T) {
	models := &fakeModels{info: chatsession.ModelInfo{ModelName: "distilgpt2", IsLoaded: true}}
	c := newController(&fakeExchanger{}, chatsession.WithModelInfoSource(models))

	_, loaded := c.ModelInfo()
	assert.False(t, loaded)

	c.Start(context.Background())
	c.Start(context.Background())

	info, loaded := c.ModelInfo()
	require.True(t, loaded)
	assert.Equal(t, "distilgpt2", info.ModelName)
	assert.Equal(t, 1, models.calls)
}

func TestModelInfoFailureDoesNotBlockChat(t *testing.T) {
	models := &fakeModels{err: errors.New("503")}
	ex := &fakeExchanger{}
	ex.queue(ok("Hi there!", "s1", "greeting", 0.92), nil)
	c := newController(ex, chatsession.WithModelInfoSource(models))

	c.Start(context.Background())
	_, loaded := c.ModelInfo()
	assert.False(t, loaded)

	assert.Equal(t, chatsession.OutcomeReplied, c.Submit(context.Background(), "Hello"))
}
