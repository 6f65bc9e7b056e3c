package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `{
	"product": {"title": "ThinkPad X1 Carbon", "marketplace": "amazon"},
	"analysis": {"verdict": "Consider", "confidence": 82, "redFlags": ["Soldered RAM"]}
}`

// newTestClient points a client at an httptest server and records backoff delays.
func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *recordingSleeper) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sleeper := &recordingSleeper{}
	opts = append([]Option{WithBaseURL(server.URL + "/"), WithSleeper(sleeper.Sleep)}, opts...)
	return New(opts...), sleeper
}

func TestAnalyzePostsJSON(t *testing.T) {
	var received Request

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, AnalyzePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Referer"))
		assert.Empty(t, r.Header.Get("Cookie"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleReport))
	})

	report, err := client.Analyze(context.Background(), "www.amazon.com/dp/B0TEST1234", " gaming ")
	require.NoError(t, err)

	assert.Equal(t, "https://www.amazon.com/dp/B0TEST1234", received.URL)
	assert.Equal(t, "gaming", received.Purpose)
	assert.Equal(t, VerdictConsider, report.Verdict())
	assert.Equal(t, "ThinkPad X1 Carbon", report.ProductTitle())
}

func TestAnalyzeKeepsExplicitScheme(t *testing.T) {
	var received Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte(sampleReport))
	})

	_, err := client.Analyze(context.Background(), "http://www.flipkart.com/p/itm123", "office")
	require.NoError(t, err)
	assert.Equal(t, "http://www.flipkart.com/p/itm123", received.URL)
}

func TestAnalyzeRejectsEmptyInputWithoutNetwork(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	tests := []struct {
		name    string
		url     string
		purpose string
		field   string
	}{
		{"empty url", "", "gaming", "url"},
		{"blank url", "   ", "gaming", "url"},
		{"empty purpose", "amazon.com/dp/B0", "", "purpose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Analyze(context.Background(), tt.url, tt.purpose)

			var aerr *Error
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, KindClient, aerr.Kind)
			assert.Equal(t, http.StatusBadRequest, aerr.Status)
			assert.Equal(t, tt.field, aerr.Details["field"])
		})
	}
	assert.Zero(t, calls.Load())
}

func TestAnalyzeClassifiesFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		kind        Kind
		message     string
		details     map[string]any
	}{
		{
			name:   "server error with json error",
			status: http.StatusInternalServerError, contentType: "application/json",
			body: `{"error":"Scraper crashed"}`,
			kind: KindServer, message: "Scraper crashed",
		},
		{
			name:   "server error with plain text",
			status: http.StatusServiceUnavailable, contentType: "text/plain",
			body: "upstream down",
			kind: KindServer, message: "Service Unavailable",
		},
		{
			name:   "html error page",
			status: http.StatusBadGateway, contentType: "text/html; charset=utf-8",
			body: "<html><head><title>502 Bad Gateway</title></head><body>nginx</body></html>",
			kind: KindServer, message: "Bad Gateway",
			details: map[string]any{"page_title": "502 Bad Gateway"},
		},
		{
			name:   "client error uses message field",
			status: http.StatusNotFound, contentType: "application/json",
			body: `{"message":"Product not found"}`,
			kind: KindClient, message: "Product not found",
		},
		{
			name:   "client error carries details",
			status: http.StatusBadRequest, contentType: "application/json",
			body: `{"error":"Invalid purpose","details":{"field":"purpose"}}`,
			kind: KindClient, message: "Invalid purpose",
			details: map[string]any{"field": "purpose"},
		},
		{
			name:   "json array body",
			status: http.StatusBadRequest, contentType: "application/json",
			body: `["nope"]`,
			kind: KindClient, message: "Analysis failed",
		},
		{
			name:   "other 422",
			status: http.StatusUnprocessableEntity, contentType: "application/json",
			body: `{"error":"Out of stock"}`,
			kind: KindClient, message: "Out of stock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Analyze(context.Background(), "https://www.amazon.com/dp/B0", "gaming")

			var aerr *Error
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.kind, aerr.Kind)
			assert.Equal(t, tt.status, aerr.Status)
			assert.Equal(t, tt.message, aerr.Message)
			if tt.details != nil {
				assert.Equal(t, tt.details, aerr.Details)
			}
		})
	}
}

func TestAnalyzeUnsupportedRetailer(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{
			"error": "Unsupported retailer",
			"retailer": "walmart",
			"message": "We can't analyze Walmart listings yet",
			"supportedRetailers": [
				{"name": "Amazon", "url": "https://www.amazon.com"},
				{"name": "Best Buy", "url": "https://www.bestbuy.com"}
			]
		}`))
	})

	_, err := client.Analyze(context.Background(), "https://www.walmart.com/ip/123", "gaming")

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindUnsupportedRetailer, aerr.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, aerr.Status)
	assert.Equal(t, "walmart", aerr.Retailer)
	assert.Equal(t, "We can't analyze Walmart listings yet", aerr.Message)
	assert.Equal(t, []Retailer{
		{Name: "Amazon", URL: "https://www.amazon.com"},
		{Name: "Best Buy", URL: "https://www.bestbuy.com"},
	}, aerr.SupportedRetailers)
}

func TestAnalyzeRejectsMalformedSuccessBody(t *testing.T) {
	for _, body := range []string{`["a","b"]`, `null`, `not json`, `42`} {
		t.Run(body, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			_, err := client.Analyze(context.Background(), "https://www.amazon.com/dp/B0", "gaming")

			var aerr *Error
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, KindServer, aerr.Kind)
			assert.Equal(t, "Invalid response format", aerr.Message)
		})
	}
}

func TestAnalyzeUnreachableServiceIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := New(WithBaseURL(baseURL))
	_, err := client.Analyze(context.Background(), "https://www.amazon.com/dp/B0", "gaming")

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindNetwork, aerr.Kind)
	assert.Zero(t, aerr.Status)
	assert.Equal(t, true, aerr.Details["network"])
}

func TestAnalyzeCancelledMidFlightIsNeverNetwork(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	token := NewToken(context.Background(), time.Minute)
	time.AfterFunc(20*time.Millisecond, token.Cancel)

	_, err := client.Analyze(token.Context(), "https://www.amazon.com/dp/B0", "gaming")

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindCancelled, aerr.Kind)
	assert.NotEqual(t, KindNetwork, aerr.Kind)
	assert.Equal(t, "Request cancelled", aerr.Message)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestAnalyzeWithRetryTimesOut(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	client, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}, WithTimeout(30*time.Millisecond))
	defer close(release)

	_, err := client.AnalyzeWithRetry(context.Background(), "https://www.amazon.com/dp/B0", "gaming")

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindCancelled, aerr.Kind)
	assert.Equal(t, "Request timed out", aerr.Message)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, sleeper.Delays())
}

func TestAnalyzeWithRetryRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Scraper crashed"}`))
	})

	_, err := client.AnalyzeWithRetry(context.Background(), "https://www.amazon.com/dp/B0", "gaming")

	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.Delays())
}

func TestAnalyzeWithRetryDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid URL"}`))
	})

	_, err := client.AnalyzeWithRetry(context.Background(), "https://www.amazon.com/dp/B0", "gaming")

	assert.Equal(t, KindClient, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, sleeper.Delays())
}

func TestAnalyzeWithRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	client, sleeper := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(sampleReport))
	}, WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: 250 * time.Millisecond}))

	report, err := client.AnalyzeWithRetry(context.Background(), "amazon.com/dp/B0", "gaming")
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}, sleeper.Delays())
	assert.Equal(t, []string{"Soldered RAM"}, report.Findings("redFlags"))
}

func TestRedirectsDropReferer(t *testing.T) {
	var referer string
	var hops atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc(AnalyzePath, func(w http.ResponseWriter, r *http.Request) {
		hops.Add(1)
		http.Redirect(w, r, "/v2/analyze", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/v2/analyze", func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		_, _ = w.Write([]byte(sampleReport))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := New(WithBaseURL(server.URL))
	_, err := client.Analyze(context.Background(), "https://www.amazon.com/dp/B0", "gaming")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hops.Load())
	assert.Empty(t, referer)
}

func TestNewDropsCookieJar(t *testing.T) {
	hc := &http.Client{Jar: &stubJar{}}
	client := New(WithHTTPClient(hc))

	assert.Nil(t, client.httpClient.Jar)
	assert.NotNil(t, hc.Jar, "caller's client must not be mutated")
}

func TestWithRateLimit(t *testing.T) {
	assert.Nil(t, New(WithRateLimit(0, 5)).limiter)

	limited := New(WithRateLimit(2, 0))
	require.NotNil(t, limited.limiter)
	assert.Equal(t, 1, limited.limiter.Burst())
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:3001/api/analyze", New().Endpoint())
	assert.Equal(t, "https://api.example.com/api/analyze", New(WithBaseURL(" https://api.example.com/ ")).Endpoint())
}

type stubJar struct{}

func (stubJar) SetCookies(_ *url.URL, _ []*http.Cookie) {}
func (stubJar) Cookies(_ *url.URL) []*http.Cookie      { return nil }
