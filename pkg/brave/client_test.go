package brave

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analyst/internal/resilience"
)

func TestSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/web/search", r.URL.Path)
		assert.Equal(t, "Acme Corp revenue", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		assert.Equal(t, "secret", r.Header.Get("X-Subscription-Token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[
			{"title":"Acme 10-K","url":"https://acme.test/10k","description":"Revenue grew"},
			{"title":"Acme news","url":"https://news.test/acme","description":"Acme raises"}
		]}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	c := NewClient("secret", WithBaseURL(ts.URL))
	results, err := c.Search(context.Background(), "Acme Corp revenue", 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Acme 10-K", results[0].Title)
	assert.Equal(t, "https://news.test/acme", results[1].URL)
}

func TestSearch_TruncatesToCount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"web":{"results":[{"title":"a"},{"title":"b"},{"title":"c"}]}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	results, err := NewClient("k", WithBaseURL(ts.URL)).Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_NoWebSection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"type":"search"}`)) //nolint:errcheck
	}))
	defer ts.Close()

	results, err := NewClient("k", WithBaseURL(ts.URL)).Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_PermanentError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad token"}`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := NewClient("k", WithBaseURL(ts.URL)).Search(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
	assert.False(t, resilience.IsTransient(err))
}

func TestSearch_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"web":{"results":[{"title":"ok"}]}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	p := resilience.NewPolicy("brave", 3, 1, 5, 1)
	p.Retry.MaxBackoff = 5 * time.Millisecond

	results, err := NewClient("k", WithBaseURL(ts.URL), WithPolicy(p), WithRateLimit(1000)).
		Search(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(2), calls.Load())
}
