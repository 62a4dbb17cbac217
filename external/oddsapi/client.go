package oddsapi

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
	"github.com/footylab/nrl-tipping/internal/platform/logging"
	"github.com/footylab/nrl-tipping/internal/platform/resilience"
	"github.com/footylab/nrl-tipping/internal/usecase"
)

const (
	defaultBaseURL   = "https://api.the-odds-api.com/v4"
	defaultSportKey  = "rugbyleague_nrl"
	defaultRegion    = "au"
	marketHeadToHead = "h2h"

	historySnapshotStep = 7 * 24 * time.Hour
	historySnapshotHour = 12
)

var apiKeyParamRegex = regexp.MustCompile(`(?i)apikey=[^&\s"']+`)
var errOddsTransient = crerr.New("odds api transient failure")

// Fallback day windows for the scores endpoint. The provider rejects wide
// windows on some plans, so requests degrade through these until one is
// accepted.
var scoresFallbackWindows = []int{30, 14, 7, 3, 1}

// Two generations of the historical odds endpoint exist; a 404 on the first
// means the account only has the other.
var historyPathTemplates = []string{
	"/historical/sports/%s/odds",
	"/sports/%s/odds-history",
}

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	SportKey       string
	Region         string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	sportKey       string
	region         string
	maxRetries     int
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}
	if httpClient.Transport == nil {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	sportKey := strings.TrimSpace(cfg.SportKey)
	if sportKey == "" {
		sportKey = defaultSportKey
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		sportKey:       sportKey,
		region:         region,
		maxRetries:     maxInt(cfg.MaxRetries, 0),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// FetchUpcomingOdds pulls the open head-to-head markets for the sport.
func (c *Client) FetchUpcomingOdds(ctx context.Context) ([]usecase.ExternalEvent, usecase.SourceDetails, error) {
	path := fmt.Sprintf("/sports/%s/odds", c.sportKey)
	query := map[string]string{
		"regions":    c.region,
		"markets":    marketHeadToHead,
		"oddsFormat": "decimal",
		"dateFormat": "iso",
	}

	var items []oddsEvent
	if _, err := c.doJSON(ctx, path, query, &items); err != nil {
		return nil, nil, fmt.Errorf("fetch upcoming odds: %w", err)
	}

	out := make([]usecase.ExternalEvent, 0, len(items))
	withPrices := 0
	for _, item := range items {
		mapped, ok := mapOddsEvent(item)
		if !ok {
			continue
		}
		if mapped.HomePrice != nil || mapped.AwayPrice != nil {
			withPrices++
		}
		out = append(out, mapped)
	}

	details := usecase.SourceDetails{
		"events":      len(out),
		"with_prices": withPrices,
	}
	return out, details, nil
}

// FetchRecentScores pulls completed and in-progress events from the scores
// endpoint. The requested window is tried first; when the provider rejects
// it the call degrades through the fallback windows, and when every window
// is rejected it returns an empty result with a warning detail instead of
// an error.
func (c *Client) FetchRecentScores(ctx context.Context, daysBack int) ([]usecase.ExternalEvent, usecase.SourceDetails, error) {
	path := fmt.Sprintf("/sports/%s/scores", c.sportKey)

	windows := make([]int, 0, len(scoresFallbackWindows)+1)
	seen := make(map[int]bool, len(scoresFallbackWindows)+1)
	for _, window := range append([]int{daysBack}, scoresFallbackWindows...) {
		if window < 1 || seen[window] {
			continue
		}
		seen[window] = true
		windows = append(windows, window)
	}

	tried := make([]int, 0, len(windows))
	for _, window := range windows {
		tried = append(tried, window)
		query := map[string]string{
			"daysFrom":   strconv.Itoa(window),
			"dateFormat": "iso",
		}

		var items []oddsEvent
		if _, err := c.doJSON(ctx, path, query, &items); err != nil {
			if isWindowRejected(err) {
				c.logger.WarnContext(ctx, "scores window rejected, trying narrower window",
					"days_from", window, "error", err)
				continue
			}
			return nil, usecase.SourceDetails{"windows_tried": tried}, fmt.Errorf("fetch scores days_from=%d: %w", window, err)
		}

		out := make([]usecase.ExternalEvent, 0, len(items))
		completed := 0
		for _, item := range items {
			mapped, ok := mapOddsEvent(item)
			if !ok {
				continue
			}
			if mapped.Completed {
				completed++
			}
			out = append(out, mapped)
		}
		details := usecase.SourceDetails{
			"days_from":     window,
			"windows_tried": tried,
			"events":        len(out),
			"completed":     completed,
		}
		return out, details, nil
	}

	c.logger.WarnContext(ctx, "all scores windows rejected, returning no results", "windows_tried", tried)
	details := usecase.SourceDetails{
		"windows_tried": tried,
		"warning":       "all scores windows were rejected by the provider",
	}
	return []usecase.ExternalEvent{}, details, nil
}

// FetchHistorySnapshots walks weekly historical odds snapshots across the
// season (March through October) and returns the union of events seen, the
// later snapshot winning per event. Snapshots the account cannot access are
// skipped.
func (c *Client) FetchHistorySnapshots(ctx context.Context, seasonYear int) ([]usecase.ExternalEvent, usecase.SourceDetails, error) {
	start := time.Date(seasonYear, time.March, 1, historySnapshotHour, 0, 0, 0, time.UTC)
	end := time.Date(seasonYear, time.November, 1, historySnapshotHour, 0, 0, 0, time.UTC)

	byID := make(map[string]usecase.ExternalEvent, 256)
	fetched := 0
	skipped := 0
	for at := start; at.Before(end); at = at.Add(historySnapshotStep) {
		items, ok, err := c.fetchHistorySnapshot(ctx, at)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch history snapshot at=%s: %w", at.Format(time.RFC3339), err)
		}
		if !ok {
			skipped++
			continue
		}
		fetched++
		for _, item := range items {
			mapped, mok := mapOddsEvent(item)
			if !mok {
				continue
			}
			byID[mapped.ID] = mapped
		}
	}

	out := make([]usecase.ExternalEvent, 0, len(byID))
	for _, item := range byID {
		out = append(out, item)
	}
	details := usecase.SourceDetails{
		"snapshots_fetched": fetched,
		"snapshots_skipped": skipped,
		"events":            len(out),
	}
	return out, details, nil
}

func (c *Client) fetchHistorySnapshot(ctx context.Context, at time.Time) ([]oddsEvent, bool, error) {
	query := map[string]string{
		"regions":    c.region,
		"markets":    marketHeadToHead,
		"oddsFormat": "decimal",
		"dateFormat": "iso",
		"date":       at.UTC().Format(time.RFC3339),
	}

	for _, template := range historyPathTemplates {
		path := fmt.Sprintf(template, c.sportKey)

		var envelope historyEnvelope
		if _, err := c.doJSON(ctx, path, query, &envelope); err != nil {
			if isSnapshotUnavailable(err) {
				continue
			}
			return nil, false, err
		}
		return envelope.events(), true, nil
	}
	return nil, false, nil
}

func (c *Client) doJSON(ctx context.Context, path string, query map[string]string, target any) ([]byte, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "odds api circuit breaker rejected request", "state", c.breaker.State())
			return nil, fmt.Errorf("%w: odds provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}
	values.Set("apiKey", c.apiKey)

	fullURL := c.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	key := path + "?" + values.Encode()
	out, err := c.flight.Do(key, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && isOddsCircuitFailure(reqErr) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return nil, err
	}

	raw, ok := out.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload type %T", out)
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode provider payload: %w", err)
	}

	return raw, nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %s", errOddsTransient, sanitizeSensitiveText(err.Error(), c.apiKey))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 6<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("%w: read response body: %v", errOddsTransient, readErr)
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			} else {
				statusErr := &statusError{code: resp.StatusCode, body: abbreviateBody(raw)}
				if isRetryableStatus(resp.StatusCode) {
					lastErr = fmt.Errorf("%w: %s", errOddsTransient, statusErr.Error())
				} else {
					return nil, statusErr
				}
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "odds api request failed", "url", redactAPIURL(fullURL), "error", lastErr)
	return nil, lastErr
}

// statusError preserves the HTTP status of a non-retryable provider reply
// so callers can tell rejected parameters apart from provider outages.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider status=%d body=%s", e.code, e.body)
}

func isWindowRejected(err error) bool {
	var se *statusError
	if !stderrors.As(err, &se) {
		return false
	}
	return se.code == http.StatusBadRequest || se.code == http.StatusUnprocessableEntity
}

func isSnapshotUnavailable(err error) bool {
	var se *statusError
	if !stderrors.As(err, &se) {
		return false
	}
	return se.code == http.StatusNotFound || se.code == http.StatusUnprocessableEntity ||
		se.code == http.StatusUnauthorized || se.code == http.StatusPaymentRequired
}

func isOddsCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, errOddsTransient)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func sanitizeSensitiveText(value, apiKey string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if apiKey != "" {
		value = strings.ReplaceAll(value, apiKey, "REDACTED")
	}
	value = apiKeyParamRegex.ReplaceAllString(value, "apiKey=REDACTED")
	return value
}

func redactAPIURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	if query.Has("apiKey") {
		query.Set("apiKey", "REDACTED")
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

func maxInt(left, right int) int {
	if left > right {
		return left
	}
	return right
}

func mapOddsEvent(item oddsEvent) (usecase.ExternalEvent, bool) {
	id := strings.TrimSpace(item.ID)
	home := strings.TrimSpace(item.HomeTeam)
	away := strings.TrimSpace(item.AwayTeam)
	if id == "" || home == "" || away == "" {
		return usecase.ExternalEvent{}, false
	}
	kickoff, err := time.Parse(time.RFC3339, strings.TrimSpace(item.CommenceTime))
	if err != nil {
		return usecase.ExternalEvent{}, false
	}

	out := usecase.ExternalEvent{
		ID:        id,
		KickoffAt: kickoff.UTC(),
		HomeTeam:  home,
		AwayTeam:  away,
		Completed: item.Completed,
	}

	if homeScore, awayScore, ok := resolveScores(item.Scores, home, away); ok {
		out.HomeScore = homeScore
		out.AwayScore = awayScore
	}
	if item.Completed {
		out.Winner = resolveWinner(out.HomeScore, out.AwayScore, home, away)
	}
	out.HomePrice, out.AwayPrice = resolvePrices(item.Bookmakers, home, away)

	if raw, err := sonic.Marshal(item); err == nil {
		out.RawJSON = string(raw)
	}
	return out, true
}

func resolveScores(entries []scoreEntry, home, away string) (*int, *int, bool) {
	if len(entries) == 0 {
		return nil, nil, false
	}

	var homeScore, awayScore *int
	for _, entry := range entries {
		value, err := strconv.Atoi(strings.TrimSpace(entry.Score))
		if err != nil || value < 0 {
			continue
		}
		switch {
		case fixture.TeamNamesMatch(entry.Name, home):
			homeScore = ptrInt(value)
		case fixture.TeamNamesMatch(entry.Name, away):
			awayScore = ptrInt(value)
		}
	}
	if homeScore == nil && awayScore == nil {
		return nil, nil, false
	}
	return homeScore, awayScore, true
}

func resolveWinner(homeScore, awayScore *int, home, away string) string {
	if homeScore == nil || awayScore == nil {
		return fixture.WinnerUnknown
	}
	switch {
	case *homeScore > *awayScore:
		return home
	case *awayScore > *homeScore:
		return away
	default:
		return fixture.WinnerDraw
	}
}

func resolvePrices(bookmakers []bookmaker, home, away string) (*float64, *float64) {
	for _, maker := range bookmakers {
		for _, mkt := range maker.Markets {
			if !strings.EqualFold(strings.TrimSpace(mkt.Key), marketHeadToHead) {
				continue
			}

			var homePrice, awayPrice *float64
			for _, out := range mkt.Outcomes {
				if out.Price <= 0 {
					continue
				}
				switch {
				case fixture.TeamNamesMatch(out.Name, home):
					homePrice = ptrFloat(out.Price)
				case fixture.TeamNamesMatch(out.Name, away):
					awayPrice = ptrFloat(out.Price)
				}
			}
			if homePrice != nil && awayPrice != nil {
				return homePrice, awayPrice
			}
		}
	}
	return nil, nil
}

func ptrInt(value int) *int {
	v := value
	return &v
}

func ptrFloat(value float64) *float64 {
	v := value
	return &v
}

type oddsEvent struct {
	ID           string       `json:"id"`
	SportKey     string       `json:"sport_key"`
	CommenceTime string       `json:"commence_time"`
	HomeTeam     string       `json:"home_team"`
	AwayTeam     string       `json:"away_team"`
	Completed    bool         `json:"completed"`
	Scores       []scoreEntry `json:"scores"`
	LastUpdate   string       `json:"last_update"`
	Bookmakers   []bookmaker  `json:"bookmakers"`
}

type scoreEntry struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

type bookmaker struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Markets []market `json:"markets"`
}

type market struct {
	Key      string    `json:"key"`
	Outcomes []outcome `json:"outcomes"`
}

type outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// historyEnvelope accepts both the wrapped historical payload and a bare
// event array.
type historyEnvelope struct {
	Timestamp string      `json:"timestamp"`
	Data      []oddsEvent `json:"data"`

	direct []oddsEvent
}

func (h *historyEnvelope) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return sonic.Unmarshal(data, &h.direct)
	}

	type alias historyEnvelope
	var wrapped alias
	if err := sonic.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	h.Timestamp = wrapped.Timestamp
	h.Data = wrapped.Data
	return nil
}

func (h historyEnvelope) events() []oddsEvent {
	if len(h.direct) > 0 {
		return h.direct
	}
	return h.Data
}
