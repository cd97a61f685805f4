// Package ipv64 publishes dns-01 TXT records through the IPv64 API.
package ipv64

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/evanofslack/ipv64-dns01/internal/config"
	"github.com/evanofslack/ipv64-dns01/internal/metrics"
	"github.com/evanofslack/ipv64-dns01/internal/provider"
)

const (
	Endpoint = "https://ipv64.net/api.php"

	tokenLength    = 32
	defaultTimeout = 30 * time.Second
	maxBodySize    = 1 << 20

	recordType         = "TXT"
	statusSuccess      = "success"
	statusUnauthorized = "Unauthorized"
)

// Logger is the subset of *slog.Logger the client writes to.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(h Httper) Option {
	return func(c *Client) { c.http = h }
}

// WithEndpoint points the client at another API URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// Client creates and deletes TXT records. It holds only immutable
// configuration and is safe for concurrent use.
type Client struct {
	endpoint string
	token    string
	timeout  time.Duration
	http     Httper
	log      Logger
	metrics  *metrics.Metrics
}

var _ provider.RecordManager = (*Client)(nil)

// New validates the bearer token and builds a client. A bad token fails
// here, before any request is made.
func New(cfg config.IPv64, log Logger, metrics *metrics.Metrics, opts ...Option) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	if n := utf8.RuneCountInString(cfg.BearerToken); n != tokenLength {
		metrics.IncCredentialFailure()
		log.Error("The bearer token must be 32 characters long", "length", n)
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCredentialLength, n)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		endpoint: Endpoint,
		token:    cfg.BearerToken,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		log:      log,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type operation struct {
	name   string
	verb   string
	method string
	key    string
	metric string
}

var (
	opAdd    = operation{name: "add", verb: "Adding", method: http.MethodPost, key: "add_record", metric: "create"}
	opDelete = operation{name: "delete", verb: "Deleting", method: http.MethodDelete, key: "del_record", metric: "delete"}
)

// AddRecord creates a TXT record for fqdn. Any failure is fatal to the
// caller's validation.
func (c *Client) AddRecord(ctx context.Context, fqdn, content string) error {
	if err := c.change(ctx, opAdd, fqdn, content); err != nil {
		c.log.Error("Failed to add TXT record", "name", fqdn, "error", err)
		return err
	}
	c.log.Info("Successfully added TXT record", "name", fqdn)
	return nil
}

// RemoveRecord deletes the TXT record for fqdn. Failures are logged at warn
// and returned as soft errors (see IsSoft) so cleanup can carry on.
func (c *Client) RemoveRecord(ctx context.Context, fqdn, content string) error {
	if err := c.change(ctx, opDelete, fqdn, content); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.Soft = true
		}
		c.log.Warn("Failed to delete TXT record", "name", fqdn, "error", err)
		return err
	}
	c.log.Info("Successfully deleted TXT record", "name", fqdn)
	return nil
}

func (c *Client) change(ctx context.Context, op operation, fqdn, content string) error {
	prefix, zone, err := SplitName(fqdn)
	if err != nil {
		return &APIError{Kind: KindMalformedName, Op: op.name, Name: fqdn, Err: err}
	}
	c.log.Info(op.verb+" TXT record", "name", fqdn, "zone", zone)

	form := url.Values{}
	form.Set(op.key, zone)
	form.Set("praefix", prefix)
	form.Set("type", recordType)
	form.Set("content", content)

	start := time.Now()
	reply, err := c.send(ctx, op.method, form)
	c.metrics.ObserveDNSRequest(op.metric, time.Since(start))
	if err != nil {
		c.metrics.IncDNSRequest(op.metric, zone, false)
		return &APIError{Kind: KindTransport, Op: op.name, Name: fqdn, Zone: zone, Err: err}
	}

	// Unauthorized first: it never carries a useful record diagnostic.
	switch {
	case reply.Info == statusUnauthorized:
		c.metrics.IncDNSRequest(op.metric, zone, false)
		return &APIError{Kind: KindUnauthorized, Op: op.name, Name: fqdn, Zone: zone, Message: reply.Info}
	case reply.Info != statusSuccess:
		c.metrics.IncDNSRequest(op.metric, zone, false)
		return &APIError{Kind: KindProviderRejected, Op: op.name, Name: fqdn, Zone: zone, Message: reply.message()}
	}

	c.metrics.IncDNSRequest(op.metric, zone, true)
	return nil
}

// apiResponse is the reply to both add and delete calls. The diagnostic
// fields are not always strings, so they are kept raw.
type apiResponse struct {
	Info      string          `json:"info"`
	AddRecord json.RawMessage `json:"add_record"`
	DelRecord json.RawMessage `json:"del_record"`
}

func (r apiResponse) message() string {
	for _, raw := range []json.RawMessage{r.AddRecord, r.DelRecord} {
		if s := rawText(raw); s != "" {
			return s
		}
	}
	return r.Info
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// send performs one form-encoded request and decodes the JSON reply. The
// HTTP status is not checked: the API reports failures in the body.
func (c *Client) send(ctx context.Context, method string, form url.Values) (apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apiResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("%s %s: %w", method, c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return apiResponse{}, fmt.Errorf("read response: %w", err)
	}

	var reply apiResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return apiResponse{}, fmt.Errorf("decode response, status=%d: %w: %s", resp.StatusCode, err, snippet(body))
	}
	if reply.Info == "" {
		return apiResponse{}, fmt.Errorf("response without info field, status=%d: %s", resp.StatusCode, snippet(body))
	}
	return reply, nil
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
