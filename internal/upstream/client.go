package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"miniups-gateway/internal/config"
)

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client

	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64
	BreakerMinRequests  uint32
}

func OptionsFromConfig(cfg config.UpstreamConfig) Options {
	return Options{
		BaseURL:             cfg.BaseURL,
		Timeout:             cfg.Timeout,
		MaxRetries:          cfg.RetryMaxAttempts,
		InitialInterval:     cfg.RetryInitialInterval,
		MaxInterval:         cfg.RetryMaxInterval,
		BreakerMaxRequests:  cfg.BreakerMaxRequests,
		BreakerInterval:     cfg.BreakerInterval,
		BreakerTimeout:      cfg.BreakerTimeout,
		BreakerFailureRatio: cfg.BreakerFailureRatio,
		BreakerMinRequests:  cfg.BreakerMinRequests,
	}
}

// Client talks to the Mini-UPS REST API on behalf of dashboard users.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	opts    Options
	log     *logrus.Entry
}

func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.InitialInterval == 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	if opts.MaxInterval == 0 {
		opts.MaxInterval = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BreakerFailureRatio == 0 {
		opts.BreakerFailureRatio = 0.6
	}
	if opts.BreakerMinRequests == 0 {
		opts.BreakerMinRequests = 5
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	log := logrus.WithField("component", "upstream")

	settings := gobreaker.Settings{
		Name:        "miniups-api",
		MaxRequests: opts.BreakerMaxRequests,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < opts.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= opts.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			status := StatusOf(err)
			return status > 0 && status < 500
		},
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker(settings),
		opts:    opts,
		log:     log,
	}
}

// BreakerState reports the circuit breaker state for health checks.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Request describes one upstream call. Version, when positive, is sent as
// If-Match for optimistic concurrency.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Version int64
}

func (r Request) idempotent() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Do performs req and decodes the response data into out. Safe requests are
// retried with exponential backoff on network errors and 5xx answers; 4xx
// answers are returned at once.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	attempt := 0
	var body []byte
	operation := func() error {
		attempt++
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.send(ctx, req, payload)
		})
		if err != nil {
			if !c.retryable(req, err) {
				return backoff.Permanent(err)
			}
			c.log.WithFields(logrus.Fields{
				"method":  req.Method,
				"path":    req.Path,
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("upstream call failed, retrying")
			return err
		}
		body = res.([]byte)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	b.MaxElapsedTime = 0

	retries := 0
	if req.idempotent() {
		retries = c.opts.MaxRetries
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)); err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}

	return decode(req, body, out)
}

func (c *Client) retryable(req Request, err error) bool {
	if !req.idempotent() {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status := StatusOf(err)
	return status == 0 || status >= 500
}

func (c *Client) send(ctx context.Context, req Request, payload []byte) ([]byte, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFrom(ctx); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if req.Version > 0 {
		httpReq.Header.Set("If-Match", strconv.Quote(strconv.FormatInt(req.Version, 10)))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			Method:  req.Method,
			Path:    req.Path,
			Status:  resp.StatusCode,
			Message: errorMessage(respBody),
			Body:    respBody,
		}
	}

	return respBody, nil
}

func decode(req Request, body []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	data := json.RawMessage(body)
	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Success != nil {
		if !*env.Success {
			return &APIError{
				Method:  req.Method,
				Path:    req.Path,
				Status:  http.StatusBadGateway,
				Message: env.Message,
				Body:    body,
			}
		}
		data = env.Data
	}

	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var msg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &msg) != nil {
		return ""
	}
	if msg.Message != "" {
		return msg.Message
	}
	return msg.Error
}
