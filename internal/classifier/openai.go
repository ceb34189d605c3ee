package classifier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-complaint-triage/internal/domain"
	"github.com/tbourn/go-complaint-triage/internal/metrics"
)

// OpenAIConfig tunes the chat-completions gateway.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // empty uses the public API
	Model       string
	Temperature float32
	MaxTokens   int
	JSONMode    bool // request response_format=json_object

	Timeout    time.Duration // per attempt
	MaxRetries int           // additional attempts after the first
	RetryBase  time.Duration // first backoff interval
	RetryMax   time.Duration // backoff interval cap
}

// DefaultOpenAIConfig returns the settings the service ships with.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:       openai.GPT3Dot5Turbo,
		Temperature: 0.3,
		MaxTokens:   200,
		JSONMode:    true,
		Timeout:     20 * time.Second,
		MaxRetries:  2,
		RetryBase:   250 * time.Millisecond,
		RetryMax:    4 * time.Second,
	}
}

// OpenAI classifies complaints with an OpenAI-compatible chat model.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// ErrMissingAPIKey is returned by NewOpenAI when no key is configured.
var ErrMissingAPIKey = errors.New("openai: API key not configured")

// NewOpenAI builds a gateway. Zero-valued tuning fields fall back to
// DefaultOpenAIConfig.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	def := DefaultOpenAIConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = def.RetryMax
		if cfg.RetryMax < cfg.RetryBase {
			cfg.RetryMax = cfg.RetryBase
		}
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

// Config returns the effective configuration.
func (o *OpenAI) Config() OpenAIConfig { return o.cfg }

// Classify sends the fixed system prompt and text to the model and parses the
// reply. Transient failures are retried with exponential backoff up to
// MaxRetries times; 4xx responses and unusable output fail immediately.
func (o *OpenAI) Classify(ctx context.Context, text string) (domain.Analysis, error) {
	tr := otel.Tracer("classifier/OpenAI")
	ctx, span := tr.Start(ctx, "Classify",
		trace.WithAttributes(
			attribute.String("classifier.model", o.cfg.Model),
			attribute.Int("classifier.max_retries", o.cfg.MaxRetries),
		),
	)
	defer span.End()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.RetryBase
	eb.MaxInterval = o.cfg.RetryMax

	attempt := 0
	op := func() (domain.Analysis, error) {
		attempt++
		a, err := o.once(ctx, text)
		if err == nil {
			return a, nil
		}
		if IsTemporary(err) && ctx.Err() == nil {
			metrics.ClassifierRequestsTotal.WithLabelValues(metrics.ResultRetry).Inc()
			log.Warn().Err(err).Int("attempt", attempt).Msg("classifier attempt failed, retrying")
			return a, err
		}
		return a, backoff.Permanent(err)
	}

	a, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(o.cfg.MaxRetries+1)),
	)
	span.SetAttributes(attribute.Int("classifier.attempts", attempt))
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			err = ce
		} else {
			// Retry returns the raw context cause when cancelled between attempts.
			err = &Error{Message: "classification cancelled", Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return domain.Analysis{}, err
	}
	return a, nil
}

// once performs a single bounded attempt.
func (o *OpenAI) once(ctx context.Context, text string) (domain.Analysis, error) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}
	if o.cfg.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(actx, req)
	metrics.ClassifierRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		ce := upstreamError(ctx, err)
		if !ce.Temporary {
			metrics.ClassifierRequestsTotal.WithLabelValues(metrics.ResultError).Inc()
		}
		return domain.Analysis{}, ce
	}

	if len(resp.Choices) == 0 {
		metrics.ClassifierRequestsTotal.WithLabelValues(metrics.ResultBadOutput).Inc()
		return domain.Analysis{}, &Error{Message: "classifier returned no choices", Err: ErrMalformedOutput}
	}
	a, err := ParseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues(metrics.ResultBadOutput).Inc()
		return domain.Analysis{}, &Error{Message: "classifier returned an invalid analysis", Err: err}
	}
	metrics.ClassifierRequestsTotal.WithLabelValues(metrics.ResultOK).Inc()
	return a, nil
}

// upstreamError maps a go-openai or transport error onto *Error. parent is the
// caller's context: its cancellation is final, while expiry of the attempt's
// own deadline is retryable.
func upstreamError(parent context.Context, err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		// The provider's own message stays in Err; it can echo request details.
		return &Error{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    "classifier upstream error: " + http.StatusText(apiErr.HTTPStatusCode),
			Err:        err,
			Temporary:  retryableStatus(apiErr.HTTPStatusCode),
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    "classifier upstream error: " + http.StatusText(reqErr.HTTPStatusCode),
			Err:        err,
			Temporary:  retryableStatus(reqErr.HTTPStatusCode),
		}
	}
	if parent.Err() != nil {
		return &Error{Message: "classification cancelled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Message: "classifier timed out", Err: err, Temporary: true}
	}
	// Connection refused, reset, DNS and similar transport failures.
	return &Error{Message: "classifier unreachable", Err: err, Temporary: true}
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
