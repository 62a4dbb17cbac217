package oddsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footylab/nrl-tipping/internal/platform/logging"
)

func newTestClient(t *testing.T, handler http.Handler, maxRetries int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{
		HTTPClient: server.Client(),
		BaseURL:    server.URL,
		APIKey:     "secret-key",
		MaxRetries: maxRetries,
		Logger:     logging.NewNop(),
	})
}

func TestFetchUpcomingOdds(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotQuery url.Values
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotQuery = r.URL.Query()
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"id": "ev-1",
				"commence_time": "2026-05-08T09:50:00Z",
				"home_team": "Brisbane Broncos",
				"away_team": "Melbourne Storm",
				"bookmakers": [
					{
						"key": "bookie",
						"markets": [
							{
								"key": "h2h",
								"outcomes": [
									{"name": "Brisbane Broncos", "price": 1.55},
									{"name": "Melbourne Storm", "price": 2.45}
								]
							}
						]
					}
				]
			},
			{
				"id": "",
				"commence_time": "2026-05-08T09:50:00Z",
				"home_team": "No ID",
				"away_team": "Dropped"
			}
		]`))
	}), 0)

	events, details, err := client.FetchUpcomingOdds(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, "Brisbane Broncos", ev.HomeTeam)
	assert.Equal(t, "Melbourne Storm", ev.AwayTeam)
	require.NotNil(t, ev.HomePrice)
	require.NotNil(t, ev.AwayPrice)
	assert.InDelta(t, 1.55, *ev.HomePrice, 0.001)
	assert.InDelta(t, 2.45, *ev.AwayPrice, 0.001)
	assert.NotEmpty(t, ev.RawJSON)

	assert.Equal(t, 1, details["events"])
	assert.Equal(t, 1, details["with_prices"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "secret-key", gotQuery.Get("apiKey"))
	assert.Equal(t, "h2h", gotQuery.Get("markets"))
	assert.Equal(t, "au", gotQuery.Get("regions"))
}

func TestFetchRecentScores_NarrowsRejectedWindow(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var windows []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window := r.URL.Query().Get("daysFrom")
		mu.Lock()
		windows = append(windows, window)
		mu.Unlock()
		if window == "30" {
			http.Error(w, `{"message":"daysFrom too large"}`, http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"id": "ev-done",
				"commence_time": "2026-05-01T09:50:00Z",
				"home_team": "Sydney Roosters",
				"away_team": "Penrith Panthers",
				"completed": true,
				"scores": [
					{"name": "Sydney Roosters", "score": "20"},
					{"name": "Penrith Panthers", "score": "10"}
				]
			}
		]`))
	}), 0)

	events, details, err := client.FetchRecentScores(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.True(t, ev.Completed)
	assert.Equal(t, "Sydney Roosters", ev.Winner)
	require.NotNil(t, ev.HomeScore)
	assert.Equal(t, 20, *ev.HomeScore)

	mu.Lock()
	assert.Equal(t, []string{"30", "14"}, windows)
	mu.Unlock()
	assert.Equal(t, 14, details["days_from"])
	assert.Equal(t, []int{30, 14}, details["windows_tried"])
}

func TestFetchRecentScores_AllWindowsRejected(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	requests := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		http.Error(w, `{"message":"no"}`, http.StatusBadRequest)
	}), 0)

	events, details, err := client.FetchRecentScores(context.Background(), 45)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotEmpty(t, details["warning"])
	assert.Equal(t, []int{45, 30, 14, 7, 3, 1}, details["windows_tried"])

	// The requested window plus every fallback, each tried once.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 6, requests)
}

func TestExecuteRequest_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempt := attempts
		attempts++
		mu.Unlock()
		if attempt == 0 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}), 1)

	events, _, err := client.FetchUpcomingOdds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts)
}

func TestHistoryEnvelope_AcceptsBothShapes(t *testing.T) {
	t.Parallel()

	t.Run("wrapped", func(t *testing.T) {
		t.Parallel()
		var env historyEnvelope
		err := env.UnmarshalJSON([]byte(`{"timestamp":"2026-03-01T12:00:00Z","data":[{"id":"ev-1"}]}`))
		require.NoError(t, err)
		require.Len(t, env.events(), 1)
		assert.Equal(t, "ev-1", env.events()[0].ID)
	})

	t.Run("bare array", func(t *testing.T) {
		t.Parallel()
		var env historyEnvelope
		err := env.UnmarshalJSON([]byte(`[{"id":"ev-2"}]`))
		require.NoError(t, err)
		require.Len(t, env.events(), 1)
		assert.Equal(t, "ev-2", env.events()[0].ID)
	})
}

func TestFetchHistorySnapshots_SkipsUnavailableSnapshots(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	served := false
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		alreadyServed := served
		served = true
		mu.Unlock()
		if alreadyServed {
			http.Error(w, `{"message":"plan does not include history"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"timestamp": "2026-03-01T12:00:00Z",
			"data": [
				{
					"id": "ev-hist",
					"commence_time": "2026-03-05T09:50:00Z",
					"home_team": "Brisbane Broncos",
					"away_team": "Melbourne Storm"
				}
			]
		}`))
	}), 0)

	events, details, err := client.FetchHistorySnapshots(context.Background(), 2026)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-hist", events[0].ID)
	assert.Equal(t, 1, details["snapshots_fetched"])
	assert.Greater(t, details["snapshots_skipped"].(int), 0)
}

func TestSanitizeSensitiveText(t *testing.T) {
	t.Parallel()

	got := sanitizeSensitiveText(`Get "https://host/path?apiKey=secret-key": timeout`, "secret-key")
	assert.NotContains(t, got, "secret-key")
	assert.Contains(t, got, "REDACTED")
}

func TestRedactAPIURL(t *testing.T) {
	t.Parallel()

	got := redactAPIURL("https://host/sports/odds?apiKey=secret&regions=au")
	assert.NotContains(t, got, "secret")
	assert.Contains(t, got, "apiKey=REDACTED")
}
