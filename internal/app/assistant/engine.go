// Package assistant turns a user message plus the session history into a
// reply with an intent label and a confidence score.
package assistant

import (
	"context"
	"math"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/aisuite/internal/domain"
	"github.com/PabloGalante/aisuite/internal/observability"
)

const (
	DefaultMaxContextLength  = 5
	DefaultMaxResponseLength = 150

	fallbackModelName = "fallback"
)

type intentRule struct {
	intent   domain.Intent
	patterns []*regexp.Regexp
}

// Rules are tried in order; the first match wins.
var intentRules = []intentRule{
	{domain.IntentGreeting, compile(`\b(hi|hello|hey|greetings)\b`, `^(good morning|good afternoon|good evening)`)},
	{domain.IntentFarewell, compile(`\b(bye|goodbye|see you|farewell)\b`)},
	{domain.IntentGratitude, compile(`\b(thank|thanks|appreciate)\b`)},
	{domain.IntentQuestion, compile(`\?$`, `\b(what|when|where|who|why|how|can|could|would|is|are)\b`)},
	{domain.IntentHelp, compile(`\b(help|assist|support)\b`)},
	{domain.IntentCapability, compile(`\b(can you|are you able|what can you)\b`)},
	{domain.IntentIdentity, compile(`\b(who are you|what are you|your name)\b`)},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Reply is the engine output for one user message.
type Reply struct {
	Text          string
	Intent        domain.Intent
	Confidence    float64
	HasContext    bool
	ModelUsed     string
	ContextLength int
}

type Config struct {
	MaxContextLength  int
	MaxResponseLength int
}

// Engine runs intent detection, generation, clean-up and scoring in sequence.
type Engine struct {
	llm domain.LLMClient
	cfg Config

	randMu sync.Mutex // rand.Rand is not safe for concurrent use
	rand   *rand.Rand
}

// NewEngine builds an engine. llm may be nil, in which case every reply
// comes from the canned fallback set.
func NewEngine(llm domain.LLMClient, cfg Config) *Engine {
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = DefaultMaxContextLength
	}
	if cfg.MaxResponseLength <= 0 {
		cfg.MaxResponseLength = DefaultMaxResponseLength
	}
	return &Engine{
		llm:  llm,
		cfg:  cfg,
		rand: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
}

// WithRand replaces the source used to pick fallback replies.
func (e *Engine) WithRand(r *rand.Rand) *Engine {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	e.rand = r
	return e
}

// Run produces the reply for message given the prior history (oldest first).
func (e *Engine) Run(ctx context.Context, sessionID domain.SessionID, message string, history []*domain.Message) Reply {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)
	start := time.Now()

	intent, _ := DetectIntent(message)

	modelUsed := fallbackModelName
	var text string
	if e.llm != nil {
		modelUsed = e.llm.ModelName()
		text = e.generate(ctx, sessionID, message, history)
	}
	if text == "" {
		text = e.fallback(intent)
	}

	text = Enhance(text, intent)
	confidence := Confidence(text, intent)

	log.Info("assistant reply ready",
		"intent", intent,
		"confidence", confidence,
		"model", modelUsed,
		"elapsed_ms", time.Since(start).Milliseconds())

	return Reply{
		Text:          text,
		Intent:        intent,
		Confidence:    confidence,
		HasContext:    len(history) > 0,
		ModelUsed:     modelUsed,
		ContextLength: len(history),
	}
}

// ModelInfo reports what is serving replies.
func (e *Engine) ModelInfo() domain.ModelInfo {
	info := domain.ModelInfo{
		ModelName:         fallbackModelName,
		Backend:           "rules",
		IsLoaded:          e.llm != nil,
		MaxResponseLength: e.cfg.MaxResponseLength,
		MaxContextLength:  e.cfg.MaxContextLength,
	}
	if e.llm != nil {
		info.ModelName = e.llm.ModelName()
		info.Backend = "llm"
	}
	return info
}

func (e *Engine) generate(ctx context.Context, sessionID domain.SessionID, message string, history []*domain.Message) string {
	recent := lastN(history, e.cfg.MaxContextLength)
	prompt := BuildContext(recent)
	if prompt != "" {
		prompt += "\n"
	}
	prompt += "Human: " + message + "\nAssistant:"

	raw, err := e.llm.GenerateReply(ctx, prompt, domain.ConversationContext{
		SessionID:   sessionID,
		UserMessage: message,
		History:     recent,
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("generation failed, using fallback",
			"session_id", sessionID, "error", err)
		return ""
	}
	return truncateWords(CleanReply(raw), e.cfg.MaxResponseLength)
}

func (e *Engine) fallback(intent domain.Intent) string {
	options, ok := fallbackReplies[intent]
	if !ok {
		options = fallbackReplies[domain.IntentGeneral]
	}
	e.randMu.Lock()
	i := e.rand.IntN(len(options))
	e.randMu.Unlock()
	return options[i]
}

// DetectIntent classifies message with the ordered rule table.
func DetectIntent(message string) (domain.Intent, float64) {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, rule := range intentRules {
		for _, p := range rule.patterns {
			if p.MatchString(lower) {
				return rule.intent, 0.85
			}
		}
	}
	return domain.IntentGeneral, 0.6
}

// BuildContext renders history as alternating Human/Assistant lines.
func BuildContext(history []*domain.Message) string {
	if len(history) == 0 {
		return ""
	}
	parts := make([]string, 0, len(history))
	for _, m := range history {
		if m.Role == domain.RoleUser {
			parts = append(parts, "Human: "+m.Content)
		} else {
			parts = append(parts, "Assistant: "+m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// CleanReply extracts the assistant's turn from a raw completion and drops
// a trailing incomplete sentence.
func CleanReply(raw string) string {
	resp := raw
	if i := strings.LastIndex(resp, "Assistant:"); i >= 0 {
		resp = resp[i+len("Assistant:"):]
	}
	resp = strings.TrimSpace(resp)
	resp, _, _ = strings.Cut(resp, "Human:")
	resp = strings.TrimSpace(resp)
	resp, _, _ = strings.Cut(resp, "\n")
	resp = strings.TrimSpace(resp)

	if resp != "" && !strings.ContainsAny(resp[len(resp)-1:], ".!?") {
		sentences := strings.Split(resp, ".")
		if len(sentences) > 1 {
			resp = strings.Join(sentences[:len(sentences)-1], ".") + "."
		}
	}
	return resp
}

// Enhance capitalises the reply and closes unterminated answers to questions.
func Enhance(text string, intent domain.Intent) string {
	if intent == domain.IntentQuestion && !strings.Contains(text, "?") {
		if !strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") {
			text += "."
		}
	}
	if text != "" {
		first := text[0]
		if first >= 'a' && first <= 'z' {
			text = strings.ToUpper(text[:1]) + text[1:]
		}
	}
	return text
}

// Confidence scores a finished reply.
func Confidence(text string, intent domain.Intent) float64 {
	score := 0.75
	if len(text) > 20 {
		score += 0.1
	}
	switch intent {
	case domain.IntentGreeting, domain.IntentFarewell, domain.IntentGratitude:
		score += 0.15
	}
	if strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?") {
		score += 0.05
	}
	return math.Min(math.Round(score*100)/100, 0.99)
}

func lastN(history []*domain.Message, n int) []*domain.Message {
	if n > 0 && len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func truncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if maxWords <= 0 || len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ")
}
