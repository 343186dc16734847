package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/roboforge/roboforge/internal/ailink/driver"
	"github.com/roboforge/roboforge/internal/ailink/pacing"
	"github.com/roboforge/roboforge/internal/metrics"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	// PlaceholderAPIKey is the value shipped in sample env files; it is treated
	// the same as no key at all.
	PlaceholderAPIKey = "your-api-key-here"

	// DefaultMaxAttempts bounds dispatches per Complete call.
	DefaultMaxAttempts = 3

	providerName = "openai"
)

// Client implements the OpenAI driver via direct HTTP.
//
// Every dispatch, retries included, first waits on the Pacer. Retryable
// failures (429, 5xx, transport errors) are retried with exponential backoff
// up to MaxAttempts; everything else is returned on the first failure.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// Timeout bounds a single attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
	// Pacer spaces dispatch starts. Nil uses pacing.Default().
	Pacer *pacing.Pacer
	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int
	// Backoff returns the delay after failed attempt n (1-based). Defaults to 2^n seconds.
	Backoff func(attempt int) time.Duration
	Logger  *logging.Logger
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = defaultBaseURL
	}

	return &Client{
		BaseURL:     url,
		APIKey:      strings.TrimSpace(apiKey),
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return providerName
}

// Capabilities describes supported features.
func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsImages:     true,
		SupportsImageInput: true,
		MaxAttempts:        c.maxAttempts(),
	}
}

// ExponentialBackoff waits 2^attempt seconds: 2s after the first failure, 4s after the second.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Complete sends a chat completion request, retrying retryable failures.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("openai client not configured")
	}
	if err := c.checkCredential(); err != nil {
		return nil, err
	}

	payload, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	pacer := c.pacer()
	maxAttempts := c.maxAttempts()

	var last *driver.ProviderError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.completeOnce(ctx, pacer, body, req, attempt)
		if err == nil {
			resp.Attempts = attempt
			return resp, nil
		}

		var pe *driver.ProviderError
		if !errors.As(err, &pe) {
			// Cancellation and local failures are not vendor outcomes.
			return nil, err
		}
		pe.Attempts = attempt
		if !pe.Retryable() {
			metrics.RecordVendorError("/chat/completions", string(pe.Kind))
			return nil, pe
		}

		last = pe
		if attempt == maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		metrics.RecordVendorRetry(string(pe.Kind))
		c.logWarn("vendor request failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("kind", string(pe.Kind)),
			zap.Int("status", pe.StatusCode),
			zap.Duration("backoff", delay),
		)
		if err := pacer.Clock().Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	metrics.RecordVendorError("/chat/completions", string(driver.KindRetriesExhausted))
	return nil, &driver.ProviderError{
		Provider:    providerName,
		Kind:        driver.KindRetriesExhausted,
		Message:     fmt.Sprintf("no successful response after %d attempts: %s", maxAttempts, last.Message),
		RawResponse: last.RawResponse,
		Attempts:    maxAttempts,
		Err:         last,
	}
}

func (c *Client) completeOnce(ctx context.Context, pacer *pacing.Pacer, body []byte, req *driver.Request, attempt int) (*driver.Response, error) {
	res, err := c.dispatch(ctx, pacer, "/chat/completions", body, req.Model, req.PromptSlug, attempt)
	if err != nil {
		return nil, err
	}
	if perr := classifyStatus(res.status, res.body); perr != nil {
		return nil, perr
	}
	return parseChatResponse(res.body)
}

type dispatchResult struct {
	status int
	body   []byte
}

// dispatch waits for a pacing slot and performs one POST. Transport failures
// come back as transient ProviderErrors; context errors are returned as-is.
func (c *Client) dispatch(ctx context.Context, pacer *pacing.Pacer, endpoint string, body []byte, model, prompt string, attempt int) (*dispatchResult, error) {
	waited, err := pacer.Wait(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordPacingWait(waited)

	attemptCtx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	url := strings.TrimRight(c.BaseURL, "/") + endpoint
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	c.logDebug("dispatching vendor request",
		zap.String("endpoint", endpoint),
		zap.String("model", model),
		zap.Int("attempt", attempt),
		zap.Duration("paced", waited),
	)

	start := time.Now()
	entry := driver.TraceEntry{
		Driver:      providerName,
		Endpoint:    endpoint,
		Model:       model,
		Prompt:      prompt,
		Attempt:     attempt,
		RequestBody: body,
		WaitedMs:    waited.Milliseconds(),
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		entry.DurationMs = time.Since(start).Milliseconds()
		entry.Error = err.Error()
		if ctxErr := ctx.Err(); ctxErr != nil {
			driver.Trace(entry)
			return nil, ctxErr
		}
		entry.Kind = driver.KindTransient
		driver.Trace(entry)
		metrics.RecordVendorDispatch(endpoint, "transport_error", time.Since(start))
		return nil, &driver.ProviderError{Provider: providerName, Kind: driver.KindTransient, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(resp.Body)
	entry.DurationMs = time.Since(start).Milliseconds()
	entry.StatusCode = resp.StatusCode
	if err != nil {
		entry.Error = err.Error()
		entry.Kind = driver.KindTransient
		driver.Trace(entry)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &driver.ProviderError{Provider: providerName, Kind: driver.KindTransient, StatusCode: resp.StatusCode, Message: "read response: " + err.Error(), Err: err}
	}
	if json.Valid(respBody) {
		entry.Response = respBody
	}
	driver.Trace(entry)
	metrics.RecordVendorDispatch(endpoint, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	return &dispatchResult{status: resp.StatusCode, body: respBody}, nil
}

func (c *Client) checkCredential() error {
	key := strings.TrimSpace(c.APIKey)
	if key == "" || key == PlaceholderAPIKey {
		return &driver.ProviderError{Provider: providerName, Kind: driver.KindConfiguration, Message: "api key is not configured"}
	}
	return nil
}

func (c *Client) pacer() *pacing.Pacer {
	if c.Pacer != nil {
		return c.Pacer
	}
	return pacing.Default()
}

func (c *Client) maxAttempts() int {
	if c == nil || c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

func (c *Client) backoff(attempt int) time.Duration {
	if c.Backoff != nil {
		return c.Backoff(attempt)
	}
	return ExponentialBackoff(attempt)
}

func (c *Client) logDebug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

func (c *Client) logWarn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
