// Package analysis talks to the remote product analysis service: one JSON
// POST per attempt, typed failures, a shared timeout/cancel token and
// exponential-backoff retries for transient failures.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gadget-sense/gadget-sense/internal/observability"
	"github.com/gadget-sense/gadget-sense/internal/validate"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:3001"
	// AnalyzePath is appended to the base URL.
	AnalyzePath = "/api/analyze"

	unsupportedRetailerError = "Unsupported retailer"
	maxResponseBytes         = 10 << 20
)

// Request is the JSON body posted to the analysis service.
type Request struct {
	URL     string `json:"url"`
	Purpose string `json:"purpose"`
}

// Client performs analysis requests. It holds no per-request state and may
// be shared between goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     RetryPolicy
	sleep      Sleeper
	timeout    time.Duration
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the analysis service root, e.g. https://api.example.com.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithHTTPClient replaces the HTTP client. Its cookie jar is dropped and
// redirects never carry a Referer.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryPolicy sets the policy AnalyzeWithRetry uses.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithSleeper replaces the backoff sleep, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithTimeout bounds one AnalyzeWithRetry call including its retries.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit throttles attempts to rps per second with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		policy:  DefaultRetryPolicy(),
		sleep:   SleepContext,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	var hc http.Client
	if c.httpClient != nil {
		hc = *c.httpClient
	} else {
		hc.Transport = observability.WrapTransport(http.DefaultTransport)
	}
	hc.Jar = nil
	hc.CheckRedirect = withoutReferer(hc.CheckRedirect)
	c.httpClient = &hc

	return c
}

// Endpoint is the URL attempts are posted to.
func (c *Client) Endpoint() string {
	return c.baseURL + AnalyzePath
}

// AnalyzeWithRetry runs Analyze under a fresh timeout token and the
// configured retry policy. The token spans every attempt and backoff.
func (c *Client) AnalyzeWithRetry(ctx context.Context, rawURL, purpose string) (Report, error) {
	token := NewToken(ctx, c.timeout)
	defer token.Cancel()

	return RetryWithBackoff(token.Context(), c.policy, c.sleep, func(ctx context.Context) (Report, error) {
		return c.Analyze(ctx, rawURL, purpose)
	})
}

// Analyze performs exactly one request. Every failure is an *Error.
//
// The URL only gets a default scheme here; allow-listing is left to the
// validate package and, finally, to the service.
func (c *Client) Analyze(ctx context.Context, rawURL, purpose string) (Report, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, invalidInput("url", "Invalid URL provided")
	}
	if strings.TrimSpace(purpose) == "" {
		return nil, invalidInput("purpose", "Invalid purpose provided")
	}

	target := validate.EnsureScheme(rawURL)
	info := observability.AnalyzeSpanInfo{Purpose: strings.TrimSpace(purpose)}
	if u, err := url.Parse(target); err == nil {
		info.Host, info.Path = u.Hostname(), u.Path
	}

	ctx, span := observability.StartAnalyzeSpan(ctx, info)
	defer span.End()

	start := time.Now()
	report, status, err := c.do(ctx, Request{URL: target, Purpose: info.Purpose})

	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
		span.RecordError(err)
	}
	observability.RecordAnalyzeAttempt(ctx, observability.AnalyzeAttemptMetrics{
		Outcome:  outcome,
		Status:   status,
		Duration: time.Since(start),
	})

	return report, err
}

func (c *Client) do(ctx context.Context, body Request) (Report, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, 0, cancelledError(ctx)
			}
			// The limiter refuses waits that would outlive the deadline.
			return nil, 0, &Error{Kind: KindCancelled, Message: "Request timed out", Details: map[string]any{"cancelled": true}, Err: err}
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, &Error{Kind: KindClient, Status: http.StatusBadRequest, Message: "Invalid request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, 0, &Error{Kind: KindClient, Message: "Invalid analysis endpoint", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, cancelledError(ctx)
		}
		return nil, 0, networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, resp.StatusCode, cancelledError(ctx)
		}
		return nil, resp.StatusCode, networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		failure := classifyFailure(resp.StatusCode, statusText(resp), resp.Header.Get("Content-Type"), data)
		log.Debug().
			Int("status", resp.StatusCode).
			Str("kind", failure.Kind.String()).
			Str("message", failure.Message).
			Msg("Analysis service returned an error")
		return nil, resp.StatusCode, failure
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil || report == nil {
		return nil, resp.StatusCode, invalidResponse(err)
	}
	return report, resp.StatusCode, nil
}

// classifyFailure turns a non-2xx response into an *Error.
func classifyFailure(status int, text, contentType string, body []byte) *Error {
	e := &Error{Status: status, Message: "Analysis failed"}
	switch {
	case status >= 500:
		e.Kind = KindServer
	case status >= 400:
		e.Kind = KindClient
	default:
		e.Kind = KindServer
	}

	if !gjson.ValidBytes(body) {
		if text != "" {
			e.Message = text
		}
		if title := htmlTitle(contentType, body); title != "" {
			e.Details = map[string]any{"page_title": title}
		}
		return e
	}

	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return e
	}

	errField := res.Get("error").String()
	if status == http.StatusUnprocessableEntity && errField == unsupportedRetailerError {
		e.Kind = KindUnsupportedRetailer
		e.Retailer = res.Get("retailer").String()
		e.Message = firstNonEmpty(res.Get("message").String(), errField)
		res.Get("supportedRetailers").ForEach(func(_, v gjson.Result) bool {
			e.SupportedRetailers = append(e.SupportedRetailers, Retailer{
				Name: v.Get("name").String(),
				URL:  v.Get("url").String(),
			})
			return true
		})
	} else {
		e.Message = firstNonEmpty(errField, res.Get("message").String(), e.Message)
	}

	if details := res.Get("details"); details.IsObject() {
		if m, ok := details.Value().(map[string]any); ok {
			e.Details = m
		}
	}
	return e
}

// htmlTitle extracts <title> from HTML error pages served by proxies in
// front of the service.
func htmlTitle(contentType string, body []byte) string {
	if !strings.Contains(strings.ToLower(contentType), "html") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// statusText is the reason phrase of resp, e.g. "Bad Gateway".
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func withoutReferer(next func(*http.Request, []*http.Request) error) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		req.Header.Del("Referer")
		if next != nil {
			return next(req, via)
		}
		if len(via) >= 10 {
			return fmt.Errorf("stopped after %d redirects", len(via))
		}
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
