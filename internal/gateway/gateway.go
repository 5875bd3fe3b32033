package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/config"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/models"
)

const (
	maxErrorBody   = 512
	maxLoggedBytes = 256
)

type Options struct {
	Endpoint   config.EndpointConfig
	HTTPClient *http.Client
	// Timeout bounds a single downstream attempt.
	Timeout time.Duration
	// TransportRetries is how many times a connection-level failure is retried.
	// Responses with a non-2xx status are never retried.
	TransportRetries int
	RetryDelay       time.Duration
	Metrics          *metrics.Registry
}

// Gateway forwards an image URL to the inference function and relays its JSON.
type Gateway struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	metrics    *metrics.Registry
}

func New(opts Options) *Gateway {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := opts.TransportRetries
	if retries < 0 {
		retries = 0
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	return &Gateway{
		url:        opts.Endpoint.FunctionURL(config.InferenceFunction),
		httpClient: client,
		timeout:    timeout,
		retries:    retries,
		retryDelay: delay,
		metrics:    opts.Metrics,
	}
}

// URL is the resolved downstream function URL.
func (g *Gateway) URL() string {
	return g.url
}

// Handle validates req, calls the inference function once (plus transport
// retries) and returns its JSON body untouched. Every error is a *models.Error.
func (g *Gateway) Handle(ctx context.Context, req models.ImageRequest) (json.RawMessage, error) {
	logger := zerolog.Ctx(ctx)

	if req.ImageURL == "" {
		logger.Info().Msg("rejected request without image URL")
		g.count(ctx, string(models.KindInvalidArgument))
		return nil, models.InvalidArgument("Image URL is required.")
	}

	logger.Info().Str("image_url", req.ImageURL).Msg("orchestrator received image")

	payload, err := json.Marshal(req)
	if err != nil {
		g.count(ctx, string(models.KindInternal))
		return nil, models.Internal(fmt.Sprintf("Failed to process image: %s", err), err)
	}

	logger.Info().Str("url", g.url).Msg("calling inference function")

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		status, raw, err := g.post(ctx, payload)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("inference transport failure")
			return err
		}
		if status < 200 || status > 299 {
			return backoff.Permanent(&statusError{status: status, body: raw})
		}
		body = raw
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.retryDelay), uint64(g.retries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		var gwErr *models.Error
		if se, ok := err.(*statusError); ok {
			gwErr = models.Internal(fmt.Sprintf("Inference failed: %d - %s", se.status, truncate(string(se.body), maxErrorBody)), se)
			logger.Error().Int("status", se.status).Str("body", string(se.body)).Msg("inference function returned an error")
		} else {
			gwErr = models.Internal(fmt.Sprintf("Failed to process image: %s", err), err)
			logger.Error().Err(err).Int("attempts", attempt).Msg("inference request failed")
		}
		g.count(ctx, string(models.KindInternal))
		return nil, gwErr
	}

	var compacted bytes.Buffer
	if err := json.Compact(&compacted, body); err != nil {
		logger.Error().Err(err).Str("body", truncate(string(body), maxLoggedBytes)).Msg("inference returned malformed JSON")
		g.count(ctx, string(models.KindInternal))
		return nil, models.Internal(fmt.Sprintf("Failed to process image: %s", err), err)
	}

	logger.Info().Str("result", truncate(compacted.String(), maxLoggedBytes)).Msg("inference successful")
	g.count(ctx, "success")
	return json.RawMessage(bytes.TrimSpace(body)), nil
}

// post performs one attempt. A non-nil error means no HTTP response was read.
func (g *Gateway) post(ctx context.Context, payload []byte) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Best effort: an unreadable error body still yields the status.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return resp.StatusCode, raw, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (g *Gateway) count(ctx context.Context, outcome string) {
	g.metrics.Inc(ctx, "gateway_calls_total", map[string]string{"outcome": outcome}, 1)
}

type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("inference function returned %d", e.status)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
