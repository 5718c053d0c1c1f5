package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/observability"
)

const (
	contentType  = "application/vnd.api+json"
	maxBodyBytes = 1 << 20
)

// TokenStore is the slice of the session store the gateway needs.
type TokenStore interface {
	Token(ctx context.Context) (string, bool, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Client performs the typed REST calls against the fleet backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	log     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("component", "gateway").Logger()
	return c
}

type call struct {
	op     string
	method string
	path   string
	body   any
	bearer bool
	// credentials marks login/register: any non-2xx is an AuthError.
	credentials bool
}

func (c *Client) do(ctx context.Context, rq call, out any) error {
	var token string
	if rq.bearer {
		tok, ok, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", rq.op, err)
		}
		if !ok {
			return ErrNoSession
		}
		token = tok
	}

	var body io.Reader = http.NoBody
	if rq.body != nil {
		b, err := json.Marshal(rq.body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", rq.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, rq.method, c.baseURL+rq.path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", rq.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if rq.body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.GatewayRequestDuration.WithLabelValues(rq.op, "error").Observe(time.Since(start).Seconds())
		return &NetworkError{Op: rq.op, Err: err}
	}
	defer resp.Body.Close()
	observability.GatewayRequestDuration.WithLabelValues(rq.op, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &NetworkError{Op: rq.op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(payload)
		switch {
		case rq.credentials:
			return &AuthError{Op: rq.op, Status: resp.StatusCode, Message: msg}
		case rq.bearer && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden):
			return &AuthError{Op: rq.op, Status: resp.StatusCode, Message: msg}
		default:
			return &StatusError{Op: rq.op, Status: resp.StatusCode, Message: msg}
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &DataError{Op: rq.op, Err: err}
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// IsNetwork reports whether err came from the transport rather than the backend.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
