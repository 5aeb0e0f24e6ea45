// Package shotsense provides a client for the ShotSense analysis service.
package shotsense

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/shotsense-cli/internal/resilience"
)

// Client defines the analysis service operations.
type Client interface {
	// Upload submits a shot video for analysis.
	Upload(ctx context.Context, req UploadRequest) (Payload, error)
	// GetAnalysis fetches one analysis record by identifier.
	GetAnalysis(ctx context.Context, id string) (Payload, error)
	// ListAnalyses returns the session's analysis history, newest first.
	ListAnalyses(ctx context.Context) ([]Payload, error)
	// CurrentUser returns the signed-in account.
	CurrentUser(ctx context.Context) (*User, error)
	// SignIn establishes a session cookie.
	SignIn(ctx context.Context, email, password string) error
	// SignUp creates an account and establishes a session cookie.
	SignUp(ctx context.Context, name, email, password string) error
}

// Payload is an undecoded JSON object from the service. Field names drift
// between service revisions, so decoding is left to the caller.
type Payload map[string]json.RawMessage

// Has reports whether key is present and not null.
func (p Payload) Has(key string) bool {
	raw, ok := p[key]
	return ok && !isNull(raw)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// UploadRequest is a video submission.
type UploadRequest struct {
	Filename    string
	ContentType string
	Body        io.Reader
	ShootingArm string
}

// User is the account returned by GET /user.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// APIError is a non-success answer from the service.
type APIError struct {
	StatusCode int
	// Message is the service's {"error": ...} text, if it sent one.
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("shotsense: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("shotsense: status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// AsAPIError extracts an *APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUnauthorized reports whether err is a 401 from the service.
func IsUnauthorized(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the service URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// WithCookieJar sets the jar that carries the session cookie.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *httpClient) {
		c.jar = jar
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithRateLimit throttles requests to rps. Zero or less disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetryPolicy sets the retry policy for idempotent requests.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

// WithBreaker sets the circuit breaker shared by all requests.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	jar       http.CookieJar
	limiter   *rate.Limiter
	retry     resilience.Policy
	breaker   *resilience.Breaker
}

// NewClient creates a service client. Without WithBaseURL it talks to a
// local development server.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   "http://127.0.0.1:5000",
		userAgent: "shotsense-cli",
		http: &http.Client{
			Timeout: 2 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.jar != nil {
		hc := *c.http
		hc.Jar = c.jar
		c.http = &hc
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker(resilience.DefaultBreakerConfig())
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("shotsense")
	}
	return c
}

type response struct {
	status int
	body   []byte
}

// once sends a single request through the breaker.
func (c *httpClient) once(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*response, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) (*response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "shotsense: rate limit")
			}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "shotsense: create request")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", uuid.NewString())

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "shotsense: request failed")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "shotsense: read response body")
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := newAPIError(resp.StatusCode, body)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
			}
			return nil, apiErr
		}
		return &response{status: resp.StatusCode, body: body}, nil
	})
}

// get retries idempotent requests under the client's policy.
func (c *httpClient) get(ctx context.Context, path string) (*response, error) {
	return resilience.Retry(ctx, c.retry, func(ctx context.Context) (*response, error) {
		return c.once(ctx, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		})
	})
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Message = envelope.Error
	}
	return apiErr
}

func (c *httpClient) Upload(ctx context.Context, ur UploadRequest) (Payload, error) {
	if ur.Body == nil {
		return nil, eris.New("shotsense: upload body is nil")
	}

	// The body is buffered so the request can be built inside the breaker
	// and has a known Content-Length.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename="%s"`, escapeQuotes(ur.Filename)))
	contentType := ur.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, eris.Wrap(err, "shotsense: create video part")
	}
	if _, err := io.Copy(part, ur.Body); err != nil {
		return nil, eris.Wrap(err, "shotsense: read video")
	}

	arm := ur.ShootingArm
	if arm == "" {
		arm = "RIGHT"
	}
	if err := mw.WriteField("shootingArm", arm); err != nil {
		return nil, eris.Wrap(err, "shotsense: write shootingArm field")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "shotsense: close multipart body")
	}

	payload := buf.Bytes()
	resp, err := c.once(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "shotsense: upload")
	}

	var out Payload
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, eris.Wrap(err, "shotsense: unmarshal upload response")
	}
	return out, nil
}

func (c *httpClient) GetAnalysis(ctx context.Context, id string) (Payload, error) {
	resp, err := c.get(ctx, "/analyses/"+url.PathEscape(id))
	if err != nil {
		return nil, eris.Wrapf(err, "shotsense: get analysis %s", id)
	}

	var out Payload
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, eris.Wrapf(err, "shotsense: unmarshal analysis %s", id)
	}
	return out, nil
}

func (c *httpClient) ListAnalyses(ctx context.Context) ([]Payload, error) {
	resp, err := c.get(ctx, "/get-analyses")
	if err != nil {
		return nil, eris.Wrap(err, "shotsense: list analyses")
	}

	body := bytes.TrimSpace(resp.body)
	if len(body) > 0 && body[0] == '{' {
		var envelope struct {
			Analyses []Payload `json:"analyses"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, eris.Wrap(err, "shotsense: unmarshal analyses")
		}
		return nonNil(envelope.Analyses), nil
	}

	var out []Payload
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "shotsense: unmarshal analyses")
	}
	return nonNil(out), nil
}

func nonNil(p []Payload) []Payload {
	if p == nil {
		return []Payload{}
	}
	return p
}

func (c *httpClient) CurrentUser(ctx context.Context) (*User, error) {
	resp, err := c.get(ctx, "/user")
	if err != nil {
		return nil, eris.Wrap(err, "shotsense: current user")
	}

	var u User
	if err := json.Unmarshal(resp.body, &u); err != nil {
		return nil, eris.Wrap(err, "shotsense: unmarshal user")
	}
	return &u, nil
}

func (c *httpClient) SignIn(ctx context.Context, email, password string) error {
	return c.postCredentials(ctx, "/signin", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *httpClient) SignUp(ctx context.Context, name, email, password string) error {
	return c.postCredentials(ctx, "/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

func (c *httpClient) postCredentials(ctx context.Context, path string, body map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "shotsense: marshal credentials")
	}

	resp, err := c.once(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return eris.Wrapf(err, "shotsense: post %s", path)
	}

	// Sign-in rejects bad credentials with a 2xx and an error body.
	if apiErr := newAPIError(resp.status, resp.body); apiErr.Message != "" {
		return eris.Wrapf(apiErr, "shotsense: post %s", path)
	}
	return nil
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
