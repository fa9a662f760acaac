package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/provider/resilience"
)

const (
	// ProviderName identifies the passthrough peer for circuit breaker naming.
	ProviderName = "passthrough"

	// NotifyPath is the peer endpoint the envelope is POSTed to.
	NotifyPath = "/notifications/notify-external"

	// DefaultTimeout bounds one relay call.
	DefaultTimeout = 30 * time.Second
)

// Error is a relay delivery failure. Message carries the peer's error text or
// a transport description; Err is the underlying cause, if any.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the relay client.
type ClientConfig struct {
	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 30s).
	Timeout time.Duration

	// Logger for relay operations.
	Logger zerolog.Logger
}

// Client delivers envelopes to a passthrough peer server.
type Client struct {
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new relay client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// peerError is the error shape a peer may return on a non-2xx response.
type peerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Send POSTs the envelope to the peer server with the given bearer token.
// A 2xx response is success. Any other outcome returns an *Error.
func (c *Client) Send(ctx context.Context, server, token string, env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return &Error{Message: "encoding envelope", Err: err}
	}

	url := strings.TrimSuffix(server, "/") + NotifyPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Message: "building relay request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.logger.Debug().
		Str("platform", env.Platform).
		Str("server", server).
		Msg("relaying notification to passthrough server")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures (DNS, timeout, refused) surface as a generic
		// relay error carrying the underlying message.
		return &Error{Message: "passthrough server unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &Error{Message: c.errorMessage(resp)}
}

// errorMessage extracts the peer's error text: the body's "error" field, then
// "message", then a plain HTTP status fallback.
func (c *Client) errorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(body) > 0 {
		var pe peerError
		if json.Unmarshal(body, &pe) == nil {
			if pe.Error != "" {
				return pe.Error
			}
			if pe.Message != "" {
				return pe.Message
			}
		}
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
