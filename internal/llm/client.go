package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/internal/metrics"
)

type Options struct {
	MaxConcurrency    int
	MinInterval       time.Duration
	MaxRetries        int
	ThrottleBaseDelay time.Duration
	ThrottleMaxDelay  time.Duration
	TransientDelay    time.Duration
	RequestTimeout    time.Duration
	MaxTokens         int
	Temperature       float32
}

func DefaultOptions() Options {
	return Options{
		MaxConcurrency:    4,
		MinInterval:       300 * time.Millisecond,
		MaxRetries:        3,
		ThrottleBaseDelay: 5 * time.Second,
		ThrottleMaxDelay:  15 * time.Second,
		TransientDelay:    2 * time.Second,
		RequestTimeout:    60 * time.Second,
		MaxTokens:         1500,
		Temperature:       0.3,
	}
}

// Request is one inference call. Schema, when set, is bound as the only tool
// so the answer comes back as its arguments.
type Request struct {
	System     string
	Prompt     string
	Schema     *schema.ToolInfo
	MaxTokens  int
	MaxRetries int
}

func (r Request) schemaName() string {
	if r.Schema == nil {
		return "text"
	}
	return r.Schema.Name
}

// Client is the single path to the language model. One Client is shared by
// every agent in a process: its permit pool and pacer are the global limits.
type Client struct {
	model   model.ToolCallingChatModel
	opts    Options
	permits *semaphore.Weighted
	pacer   *Pacer
	sleep   func(context.Context, time.Duration) error
	logger  *zap.Logger
	metrics *metrics.Recorder
}

type ClientOption func(*Client)

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger.OrNop(l) }
}

func WithMetrics(r *metrics.Recorder) ClientOption {
	return func(c *Client) { c.metrics = r }
}

// WithSleep replaces the backoff sleeper. Tests use it to record waits.
func WithSleep(fn func(context.Context, time.Duration) error) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithPacer replaces the default pacer built from Options.MinInterval.
func WithPacer(p *Pacer) ClientOption {
	return func(c *Client) {
		if p != nil {
			c.pacer = p
		}
	}
}

func NewClient(m model.ToolCallingChatModel, opts Options, clientOpts ...ClientOption) *Client {
	def := DefaultOptions()
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}

	c := &Client{
		model:   m,
		opts:    opts,
		permits: semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		pacer:   NewPacer(opts.MinInterval),
		sleep:   sleepContext,
		logger:  zap.NewNop(),
	}
	for _, opt := range clientOpts {
		opt(c)
	}
	return c
}

func (c *Client) Options() Options {
	return c.opts
}

// throttleDelay is min(base*attempt, cap) for the 1-based attempt number.
func (c *Client) throttleDelay(attempt int) time.Duration {
	d := c.opts.ThrottleBaseDelay * time.Duration(attempt)
	if c.opts.ThrottleMaxDelay > 0 && d > c.opts.ThrottleMaxDelay {
		d = c.opts.ThrottleMaxDelay
	}
	return d
}

// Invoke runs req with retries and hands each usable payload to decode. A
// decode error counts as a malformed response and is retried like any other
// transient failure.
func (c *Client) Invoke(ctx context.Context, req Request, decode func(json.RawMessage) error) error {
	bound := c.model
	if req.Schema != nil {
		var err error
		bound, err = c.model.WithTools([]*schema.ToolInfo{req.Schema})
		if err != nil {
			return fmt.Errorf("bind output schema %s: %w", req.Schema.Name, err)
		}
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = c.opts.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		outcome, err := c.attempt(ctx, bound, req)
		if err == nil {
			err = outcome.Err
		}
		if err == nil {
			if err = decode(outcome.Payload); err == nil {
				c.metrics.RecordInferenceAttempt(outcome.Kind.String())
				if outcome.Kind == TextFallback {
					c.logger.Debug("recovered structured output from text",
						zap.String("schema", req.schemaName()), zap.Int("attempt", attempt))
				}
				return nil
			}
			err = fmt.Errorf("%w: %v", ErrNoStructuredOutput, err)
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var wait time.Duration
		if IsThrottled(err) {
			c.metrics.RecordInferenceAttempt("throttled")
			wait = c.throttleDelay(attempt)
		} else {
			c.metrics.RecordInferenceAttempt("error")
			if attempt == maxRetries {
				break
			}
			wait = c.opts.TransientDelay
		}

		c.logger.Warn("inference attempt failed",
			zap.String("schema", req.schemaName()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		c.metrics.RecordInferenceWait("backoff", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, maxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, m model.BaseChatModel, req Request) (Outcome, error) {
	if err := c.permits.Acquire(ctx, 1); err != nil {
		return Outcome{}, err
	}
	defer c.permits.Release(1)

	waited, err := c.pacer.Wait(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if waited > 0 {
		c.metrics.RecordInferenceWait("pacing", waited)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	callOpts := []model.Option{model.WithMaxTokens(maxTokens)}
	if c.opts.Temperature > 0 {
		callOpts = append(callOpts, model.WithTemperature(c.opts.Temperature))
	}

	msg, err := m.Generate(attemptCtx, buildMessages(req), callOpts...)
	if err != nil {
		return Outcome{}, err
	}
	if req.Schema == nil {
		return Outcome{Kind: TextFallback, Payload: textPayload(msg.Content)}, nil
	}
	return Normalize(msg, req.Schema.Name), nil
}

func buildMessages(req Request) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	return append(msgs, schema.UserMessage(req.Prompt))
}

func textPayload(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Infer runs req and decodes the structured answer into T. When every attempt
// fails and fallback is non-nil, the fallback value is returned with a nil
// error; otherwise the terminal error is returned.
func Infer[T any](ctx context.Context, c *Client, req Request, fallback func() T) (T, error) {
	var out T
	err := c.Invoke(ctx, req, func(raw json.RawMessage) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err == nil {
		return out, nil
	}
	if fallback != nil {
		c.metrics.RecordFallback(req.schemaName())
		c.logger.Warn("inference failed, using fallback",
			zap.String("schema", req.schemaName()), zap.Error(err))
		return fallback(), nil
	}
	var zero T
	return zero, err
}

// Text runs a free-form prompt and returns the raw reply. Empty replies are
// retried.
func (c *Client) Text(ctx context.Context, system, prompt string) (string, error) {
	var out string
	err := c.Invoke(ctx, Request{System: system, Prompt: prompt}, func(raw json.RawMessage) error {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if s == "" {
			return errors.New("empty reply")
		}
		out = s
		return nil
	})
	return out, err
}
