package nrldraw

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	sonic "github.com/bytedance/sonic"
	"github.com/panjf2000/ants/v2"
	"github.com/valyala/fasthttp"

	"github.com/footylab/nrl-tipping/internal/platform/logging"
	"github.com/footylab/nrl-tipping/internal/usecase"
)

const (
	defaultBaseURL       = "https://www.nrl.com"
	defaultCompetitionID = 111
	defaultMaxRound      = 27
	defaultConcurrency   = 4
	defaultTimeout       = 15 * time.Second
)

var roundDigitsRegex = regexp.MustCompile(`\d+`)

type ClientConfig struct {
	BaseURL       string
	CompetitionID int
	MaxRound      int
	Concurrency   int
	Timeout       time.Duration
	Logger        *logging.Logger
}

// Client scrapes the official draw pages. Every page embeds its data as a
// JSON blob in a q-data attribute, so parsing is attribute extraction plus
// a decode rather than DOM walking.
type Client struct {
	httpClient    *fasthttp.Client
	baseURL       string
	competitionID int
	maxRound      int
	concurrency   int
	timeout       time.Duration
	logger        *logging.Logger
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	competitionID := cfg.CompetitionID
	if competitionID <= 0 {
		competitionID = defaultCompetitionID
	}
	maxRound := cfg.MaxRound
	if maxRound <= 0 {
		maxRound = defaultMaxRound
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		baseURL:       baseURL,
		competitionID: competitionID,
		maxRound:      maxRound,
		concurrency:   concurrency,
		timeout:       timeout,
		logger:        logger,
	}
}

// FetchSeasonDraw scrapes the season's round pages and returns the union of
// draw entries. The first page advertises which round numbers exist, so one
// fetch decides the crawl instead of probing every possible round; the rest
// are fetched concurrently. Scraping is best effort: failed or empty rounds
// are reported in the details, never as an error, so a site change degrades
// the sync instead of breaking it.
func (c *Client) FetchSeasonDraw(ctx context.Context, seasonYear int) ([]usecase.ExternalDrawFixture, usecase.SourceDetails, error) {
	var (
		mu            sync.Mutex
		entries       []usecase.ExternalDrawFixture
		seen          = make(map[string]bool, 256)
		roundsFetched int
		roundsFailed  int
	)
	collect := func(items []usecase.ExternalDrawFixture) {
		for _, item := range items {
			key := dedupKey(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			entries = append(entries, item)
		}
	}

	rounds := make([]int, 0, c.maxRound)
	first, err := c.fetchRoundPayload(ctx, seasonYear, 1)
	if err != nil {
		roundsFailed++
		c.logger.WarnContext(ctx, "draw round page fetch failed",
			"season_year", seasonYear, "round", 1, "error", err)
		// No page to discover from; walk the remaining rounds blind.
		for round := 2; round <= c.maxRound; round++ {
			rounds = append(rounds, round)
		}
	} else {
		roundsFetched++
		collect(c.mapRoundFixtures(first, 1))
		for _, round := range discoverRounds(first.FilterRounds, c.maxRound) {
			if round != 1 {
				rounds = append(rounds, round)
			}
		}
	}

	pool, err := ants.NewPool(c.concurrency)
	if err != nil {
		return nil, nil, fmt.Errorf("create draw fetch pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, round := range rounds {
		round := round
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			if ctx.Err() != nil {
				return
			}
			payload, err := c.fetchRoundPayload(ctx, seasonYear, round)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				roundsFailed++
				c.logger.WarnContext(ctx, "draw round page fetch failed",
					"season_year", seasonYear, "round", round, "error", err)
				return
			}
			roundsFetched++
			collect(c.mapRoundFixtures(payload, round))
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			roundsFailed++
			mu.Unlock()
		}
	}
	wg.Wait()

	details := usecase.SourceDetails{
		"rounds_fetched": roundsFetched,
		"rounds_failed":  roundsFailed,
		"entries":        len(entries),
	}
	if len(entries) == 0 {
		details["warning"] = "draw scrape produced no entries"
	}
	return entries, details, nil
}

// discoverRounds reads the round numbers the first page advertises. Values
// outside 1..maxRound are ignored; when nothing usable remains the full
// range is the fallback.
func discoverRounds(filters []filterRound, maxRound int) []int {
	seen := make(map[int]bool, len(filters))
	out := make([]int, 0, len(filters))
	for _, f := range filters {
		if f.Value < 1 || f.Value > maxRound || seen[f.Value] {
			continue
		}
		seen[f.Value] = true
		out = append(out, f.Value)
	}
	if len(out) == 0 {
		for round := 1; round <= maxRound; round++ {
			out = append(out, round)
		}
		return out
	}
	sort.Ints(out)
	return out
}

func (c *Client) fetchRoundPayload(ctx context.Context, seasonYear, round int) (drawPayload, error) {
	if err := ctx.Err(); err != nil {
		return drawPayload{}, err
	}

	pageURL := fmt.Sprintf("%s/draw/?competition=%d&round=%d&season=%d",
		c.baseURL, c.competitionID, round, seasonYear)
	body, err := c.get(pageURL)
	if err != nil {
		return drawPayload{}, err
	}
	return extractDrawPayload(body)
}

func (c *Client) mapRoundFixtures(payload drawPayload, round int) []usecase.ExternalDrawFixture {
	out := make([]usecase.ExternalDrawFixture, 0, len(payload.Fixtures))
	for _, item := range payload.Fixtures {
		mapped, ok := c.mapDrawFixture(item, round)
		if !ok {
			continue
		}
		out = append(out, mapped)
	}
	return out
}

func (c *Client) get(pageURL string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(pageURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("accept", "text/html")
	req.Header.SetUserAgent("nrl-tipping-engine/1.0")

	if err := c.httpClient.DoTimeout(req, resp, c.timeout); err != nil {
		return nil, fmt.Errorf("fetch draw page: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("draw page status=%d", resp.StatusCode())
	}

	// Copy before the response buffer is released back to the pool.
	return append([]byte(nil), resp.Body()...), nil
}

func extractDrawPayload(body []byte) (drawPayload, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return drawPayload{}, fmt.Errorf("parse draw page html: %w", err)
	}

	raw, ok := doc.Find("#vue-draw").Attr("q-data")
	if !ok {
		raw, ok = doc.Find("[q-data]").First().Attr("q-data")
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return drawPayload{}, fmt.Errorf("draw page has no embedded data attribute")
	}

	var payload drawPayload
	if err := sonic.Unmarshal([]byte(raw), &payload); err != nil {
		return drawPayload{}, fmt.Errorf("decode embedded draw data: %w", err)
	}
	return payload, nil
}

func (c *Client) mapDrawFixture(item drawFixture, requestedRound int) (usecase.ExternalDrawFixture, bool) {
	if item.Type != "" && !strings.EqualFold(item.Type, "Match") {
		return usecase.ExternalDrawFixture{}, false
	}

	home := strings.TrimSpace(item.HomeTeam.NickName)
	away := strings.TrimSpace(item.AwayTeam.NickName)
	if home == "" || away == "" {
		return usecase.ExternalDrawFixture{}, false
	}

	kickoff, ok := parseKickoffTime(item.Clock.KickOffTimeLong)
	if !ok {
		return usecase.ExternalDrawFixture{}, false
	}

	round := parseRoundTitle(item.RoundTitle, requestedRound)

	return usecase.ExternalDrawFixture{
		Round:       round,
		KickoffAt:   kickoff,
		HomeTeam:    home,
		AwayTeam:    away,
		Venue:       strings.TrimSpace(item.Venue),
		City:        strings.TrimSpace(item.VenueCity),
		HomeLogoURL: c.teamBadgeURL(item.HomeTeam),
		AwayLogoURL: c.teamBadgeURL(item.AwayTeam),
	}, true
}

// teamBadgeURL prefers the theme badge asset; the page-provided logo path is
// the fallback when no theme key is present.
func (c *Client) teamBadgeURL(team drawTeam) string {
	key := strings.TrimSpace(team.Theme.Key)
	if key != "" {
		return fmt.Sprintf("%s/.theme/%s/badge.svg", c.baseURL, key)
	}
	logo := strings.TrimSpace(team.LogoURL)
	if logo == "" {
		return ""
	}
	if strings.HasPrefix(logo, "http://") || strings.HasPrefix(logo, "https://") {
		return logo
	}
	return c.baseURL + "/" + strings.TrimLeft(logo, "/")
}

func parseKickoffTime(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseRoundTitle(raw string, fallback int) int {
	candidate := roundDigitsRegex.FindString(strings.TrimSpace(raw))
	if candidate == "" {
		return fallback
	}
	value, err := strconv.Atoi(candidate)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func dedupKey(item usecase.ExternalDrawFixture) string {
	return fmt.Sprintf("%d:%s:%s:%d", item.Round,
		strings.ToLower(item.HomeTeam), strings.ToLower(item.AwayTeam),
		item.KickoffAt.Unix())
}

type drawPayload struct {
	Fixtures     []drawFixture `json:"fixtures"`
	FilterRounds []filterRound `json:"filterRounds"`
}

type filterRound struct {
	Value int `json:"value"`
}

type drawFixture struct {
	Type       string    `json:"type"`
	RoundTitle string    `json:"roundTitle"`
	HomeTeam   drawTeam  `json:"homeTeam"`
	AwayTeam   drawTeam  `json:"awayTeam"`
	Venue      string    `json:"venue"`
	VenueCity  string    `json:"venueCity"`
	Clock      drawClock `json:"clock"`
}

type drawTeam struct {
	NickName string    `json:"nickName"`
	LogoURL  string    `json:"logoUrl"`
	Theme    drawTheme `json:"theme"`
}

type drawTheme struct {
	Key string `json:"key"`
}

type drawClock struct {
	KickOffTimeLong string `json:"kickOffTimeLong"`
}
