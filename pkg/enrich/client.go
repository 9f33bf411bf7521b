package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds each individual ML call.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxRetries is the number of re-attempts after the first try.
	DefaultMaxRetries = 2
	// DefaultMaxTextLen is the truncation point applied before every call.
	DefaultMaxTextLen = 5000
	// DefaultEntityLimit caps entities kept per text field.
	DefaultEntityLimit = 500

	sentimentPath = "/ml/analyze-sentiment"
	entitiesPath  = "/ml/extract-entities"
)

// ClientConfig configures the ML service client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// MaxRetries is the number of re-attempts after the first try. Zero
	// means the default; a negative value disables retries.
	MaxRetries  int
	MaxTextLen  int
	EntityLimit int
	// RateLimit is calls per second across both endpoints. Zero disables
	// client-side limiting.
	RateLimit float64
}

// Client talks to the ML microservice. Safe for concurrent use.
type Client struct {
	baseURL     string
	httpc       *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	maxTextLen  int
	entityLimit int
}

// NewClient builds a client with defaults filled in.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxTextLen <= 0 {
		cfg.MaxTextLen = DefaultMaxTextLen
	}
	if cfg.EntityLimit <= 0 {
		cfg.EntityLimit = DefaultEntityLimit
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpc:       &http.Client{Timeout: cfg.Timeout},
		limiter:     limiter,
		maxRetries:  cfg.MaxRetries,
		maxTextLen:  cfg.MaxTextLen,
		entityLimit: cfg.EntityLimit,
	}
}

// AnalyzeSentiment classifies one text field.
//
// Empty text short-circuits to the neutral sentinel without a call. Transient
// failures (timeouts, connection errors, 5xx) are retried with exponential
// backoff; 4xx responses are not. The error is returned after retries are
// exhausted so the caller can count the field unscored.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return Neutral(), nil
	}

	var out Sentiment
	err := c.post(ctx, sentimentPath, truncate(text, c.maxTextLen), &out)
	if err != nil {
		return Neutral(), err
	}
	if out.Label == "" {
		out.Label = LabelNeutral
	}
	if out.Confidence == 0 {
		out.Confidence = 0.5
	}
	return out, nil
}

// ExtractEntities returns named entities for one text field, capped at the
// configured entity limit. Empty text yields no entities and no call.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var out struct {
		Entities []Entity `json:"entities"`
	}
	if err := c.post(ctx, entitiesPath, truncate(text, c.maxTextLen), &out); err != nil {
		return nil, err
	}
	if len(out.Entities) > c.entityLimit {
		out.Entities = out.Entities[:c.entityLimit]
	}
	return out.Entities, nil
}

// statusError marks an HTTP-level failure and carries the code for the
// transient/permanent decision.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ml service returned %d: %s", e.code, e.body)
}

func (c *Client) post(ctx context.Context, path, text string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode ml request: %w", err)
	}

	return retry.Do(
		func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			return c.doOnce(ctx, path, payload, out)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)+1),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(2*time.Second),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) doOnce(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("build ml request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call ml service %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ml response from %s: %w", path, err)
	}
	return nil
}

// isTransient reports whether a failed attempt is worth retrying: network
// errors, timeouts, and 5xx responses are; everything else is not.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// http.Client wraps transport failures in *url.Error, which implements
	// net.Error, so anything left is a protocol or encoding fault.
	return false
}

// truncate cuts text to at most max runes, preserving rune boundaries so the
// same input always yields the same payload.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
