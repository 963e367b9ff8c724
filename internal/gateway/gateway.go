// Package gateway is the client for the lease service's signing endpoints.
//
//	GET  {base}/api/sign/{token}   session: document, field definitions, signer
//	POST {base}/api/sign/{token}   completed signature payload
//
// Every failure leaves the package as a *SessionLoadError or a
// *SubmissionError carrying a message fit for the signer.
package gateway

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"leasesign/internal/field"
)

//go:embed session.schema.json
var sessionSchemaJSON []byte

const (
	sessionSchemaURL  = "https://leasesign.local/schemas/session.schema.json"
	instrumentation   = "leasesign/gateway"
	maxSessionBytes   = 16 << 20
	maxDocumentBytes  = 32 << 20
	defaultTimeout    = 30 * time.Second
	defaultSubmitRate = 1.0
	defaultBurst      = 3
)

// Session is what the lease service returns for a signing token.
type Session struct {
	DocumentTitle   string        `json:"documentTitle,omitempty"`
	DocumentContent string        `json:"documentContent,omitempty"`
	DocumentURL     string        `json:"documentUrl,omitempty"`
	SignerName      string        `json:"signerName"`
	SignerEmail     string        `json:"signerEmail"`
	ExpiresAt       *time.Time    `json:"expiresAt,omitempty"`
	Fields          []field.Field `json:"fieldDefinitions"`
}

// FieldValue is one non-signature value in a submission.
type FieldValue struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Submission is the completed payload.
type Submission struct {
	SignatureImage string       `json:"signatureImage"`
	SignerName     string       `json:"signerName"`
	SignerEmail    string       `json:"signerEmail"`
	Consent        bool         `json:"consent"`
	InitialsData   []FieldValue `json:"initialsData"`
	FieldValues    []FieldValue `json:"fieldValues,omitempty"`
}

// Client talks to one lease service.
type Client struct {
	base      *url.URL
	http      *http.Client
	bearer    string
	userAgent string
	limiter   *rate.Limiter
	schema    *jsonschema.Schema

	tracer   trace.Tracer
	requests metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithBearerToken authenticates every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearer = token }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithSubmitRate throttles SubmitSignature. A non-positive perSecond
// disables throttling.
func WithSubmitRate(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTelemetry uses the given providers instead of the otel globals.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(instrumentation)
		}
		if mp != nil {
			c.initMetrics(mp.Meter(instrumentation))
		}
	}
}

// New returns a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:      base,
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: "leasesign/1",
		limiter:   rate.NewLimiter(rate.Limit(defaultSubmitRate), defaultBurst),
		tracer:    otel.Tracer(instrumentation),
	}
	c.initMetrics(otel.Meter(instrumentation))
	for _, opt := range opts {
		opt(c)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(sessionSchemaURL, bytes.NewReader(sessionSchemaJSON)); err != nil {
		return nil, fmt.Errorf("load session schema: %w", err)
	}
	if c.schema, err = compiler.Compile(sessionSchemaURL); err != nil {
		return nil, fmt.Errorf("compile session schema: %w", err)
	}
	return c, nil
}

func (c *Client) initMetrics(m metric.Meter) {
	// Instrument errors only occur for invalid names; the no-op fallbacks
	// returned alongside them are still usable.
	c.requests, _ = m.Int64Counter("leasesign.gateway.requests",
		metric.WithDescription("Requests sent to the lease service"),
		metric.WithUnit("{request}"),
	)
	c.failures, _ = m.Int64Counter("leasesign.gateway.failures",
		metric.WithDescription("Requests that ended in a load or submission error"),
		metric.WithUnit("{error}"),
	)
	c.duration, _ = m.Float64Histogram("leasesign.gateway.duration",
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
	)
}

// BaseURL is the service root.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) sessionURL(token string) string {
	return c.base.String() + "/api/sign/" + url.PathEscape(token)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	return req, nil
}

// do sends req and records telemetry. The caller closes the body.
func (c *Client) do(ctx context.Context, op string, req *http.Request) (*http.Response, trace.Span, error) {
	ctx, span := c.tracer.Start(ctx, "gateway."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", req.URL.Host),
		),
	)
	attrs := metric.WithAttributes(attribute.String("op", op))
	c.requests.Add(ctx, 1, attrs)

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(ctx))
	c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		c.failures.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, span, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.failures.Add(ctx, 1, attrs)
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, span, nil
}

// LoadSession fetches the session for token.
func (c *Client) LoadSession(ctx context.Context, token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &SessionLoadError{Message: msgInvalidLink}
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.sessionURL(token), nil)
	if err != nil {
		return nil, &SessionLoadError{Message: msgLoadFailed, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, span, err := c.do(ctx, "load_session", req)
	defer span.End()
	if err != nil {
		return nil, &SessionLoadError{Message: msgUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, loadStatusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionBytes))
	if err != nil {
		return nil, &SessionLoadError{Status: resp.StatusCode, Message: msgUnreachable, Err: err}
	}
	s, err := c.decodeSession(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid session")
		return nil, &SessionLoadError{Status: resp.StatusCode, Message: msgBadSession, Err: err}
	}
	span.SetAttributes(attribute.Int("leasesign.fields", len(s.Fields)))
	return s, nil
}

func (c *Client) decodeSession(body []byte) (*Session, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if seen[f.ID] {
			return nil, fmt.Errorf("duplicate field id %q", f.ID)
		}
		seen[f.ID] = true
	}
	return &s, nil
}

// FetchDocument returns the session's HTML, fetching DocumentURL when the
// content was not inlined. Relative URLs resolve against the base URL.
func (c *Client) FetchDocument(ctx context.Context, s *Session) (string, error) {
	if s.DocumentContent != "" || s.DocumentURL == "" {
		return s.DocumentContent, nil
	}
	ref, err := url.Parse(s.DocumentURL)
	if err != nil {
		return "", &SessionLoadError{Message: msgDocumentFailed, Err: err}
	}
	target := c.base.ResolveReference(ref).String()

	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &SessionLoadError{Message: msgDocumentFailed, Err: err}
	}
	req.Header.Set("Accept", "text/html")

	resp, span, err := c.do(ctx, "fetch_document", req)
	defer span.End()
	if err != nil {
		return "", &SessionLoadError{Message: msgUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := loadStatusError(resp)
		if e.Message == msgInvalidLink {
			e.Message = msgDocumentFailed
		}
		return "", e
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", &SessionLoadError{Status: resp.StatusCode, Message: msgDocumentFailed, Err: err}
	}
	return string(body), nil
}

// SubmitSignature posts the completed payload. A non-empty idempotencyKey
// is sent as Idempotency-Key; reuse it when retrying the same submission.
func (c *Client) SubmitSignature(ctx context.Context, token string, sub Submission, idempotencyKey string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &SubmissionError{Message: msgSubmitFailed, Err: err}
		}
	}
	if sub.InitialsData == nil {
		sub.InitialsData = []FieldValue{}
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return &SubmissionError{Message: msgSubmitFailed, Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.sessionURL(token), bytes.NewReader(body))
	if err != nil {
		return &SubmissionError{Message: msgSubmitFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, span, err := c.do(ctx, "submit_signature", req)
	defer span.End()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &SubmissionError{Message: msgSubmitFailed, Err: err}
		}
		return &SubmissionError{Message: msgUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return submitStatusError(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return nil
}
