// Package dify provides a client for a Dify-style chat-completion API.
//
// Every AI channel in the system (news collection, metrics collection,
// advice generation, message analysis) speaks the same call shape with a
// distinct credential; construct one Client per channel.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cryptodesk/advisor-engine/internal/telemetry"
)

const (
	// DefaultTimeout is generous because chat-completion responses take
	// tens of seconds to minutes; callers bound the wait via context or
	// this client timeout, never indefinitely.
	DefaultTimeout   = 3 * time.Minute
	DefaultRateLimit = 2 // requests per second
)

// Client calls one chat channel of the provider.
type Client struct {
	baseURL    string
	apiKey     string
	channel    string // label for logs and metrics
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit sets the request rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for one channel.
func NewClient(baseURL, apiKey, channel string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		channel: channel,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Channel    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dify: request failed (status: %d, channel: %s)", e.StatusCode, e.Channel)
}

type chatRequest struct {
	Inputs       map[string]string `json:"inputs"`
	Query        string            `json:"query"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

// Chat sends a blocking chat-completion request and returns the model's
// answer text. A timeout, non-2xx status, or empty answer is an error:
// callers must treat failure as "no advice produced", never invent
// fallback content.
func (c *Client) Chat(ctx context.Context, query, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Inputs:       map[string]string{},
		Query:        query,
		ResponseMode: "blocking",
		User:         user,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	slog.Debug("dify request", "channel", c.channel, "user", user)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.AIRequests.WithLabelValues(c.channel, "error").Inc()
		return "", fmt.Errorf("execute chat request (channel %s): %w", c.channel, err)
	}
	defer resp.Body.Close()
	defer telemetry.AIRequestDuration.WithLabelValues(c.channel).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		telemetry.AIRequests.WithLabelValues(c.channel, "error").Inc()
		return "", &APIError{StatusCode: resp.StatusCode, Channel: c.channel}
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		telemetry.AIRequests.WithLabelValues(c.channel, "error").Inc()
		return "", fmt.Errorf("decode chat response (channel %s): %w", c.channel, err)
	}
	if strings.TrimSpace(cr.Answer) == "" {
		telemetry.AIRequests.WithLabelValues(c.channel, "error").Inc()
		return "", fmt.Errorf("dify: empty answer (channel %s)", c.channel)
	}

	telemetry.AIRequests.WithLabelValues(c.channel, "ok").Inc()
	slog.Debug("dify response",
		"channel", c.channel,
		"elapsed", time.Since(start),
		"answer_len", len(cr.Answer),
	)
	return cr.Answer, nil
}
