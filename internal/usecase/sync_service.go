package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/sourcegraph/conc"
	"github.com/valyala/bytebufferpool"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
	"github.com/footylab/nrl-tipping/internal/domain/settings"
	"github.com/footylab/nrl-tipping/internal/platform/logging"
)

// SourceDetails carries per-adapter observability data (counts, warnings,
// windows tried) into the sync summary.
type SourceDetails map[string]any

// ExternalEvent is a normalized odds-market event at the adapter boundary.
// Adapters drop malformed events before they reach this type.
type ExternalEvent struct {
	ID        string
	KickoffAt time.Time
	HomeTeam  string
	AwayTeam  string
	Completed bool
	HomeScore *int
	AwayScore *int
	Winner    string
	HomePrice *float64
	AwayPrice *float64
	RawJSON   string
}

// ExternalDrawFixture is one entry scraped from the official draw page.
type ExternalDrawFixture struct {
	Round       int
	KickoffAt   time.Time
	HomeTeam    string
	AwayTeam    string
	Venue       string
	City        string
	HomeLogoURL string
	AwayLogoURL string
}

// OddsProvider fetches events from the odds/results API.
type OddsProvider interface {
	FetchUpcomingOdds(ctx context.Context) ([]ExternalEvent, SourceDetails, error)
	// FetchRecentScores degrades through fallback day windows and returns an
	// empty slice with warning details rather than failing on a rejected
	// window value.
	FetchRecentScores(ctx context.Context, daysBack int) ([]ExternalEvent, SourceDetails, error)
	FetchHistorySnapshots(ctx context.Context, seasonYear int) ([]ExternalEvent, SourceDetails, error)
}

// DrawProvider scrapes the official round-indexed draw.
type DrawProvider interface {
	FetchSeasonDraw(ctx context.Context, seasonYear int) ([]ExternalDrawFixture, SourceDetails, error)
}

const (
	sourceUpcomingOdds = "upcoming_odds"
	sourceScores       = "scores"
	sourceHistory      = "history"
	sourceDraw         = "nrl_draw"
)

type SyncConfig struct {
	// APIKeySet mirrors whether odds API credentials were configured; a
	// full sync refuses to run without them.
	APIKeySet       bool
	ScoresDaysBack  int
	RoundGap        time.Duration
	DrawMatchWindow time.Duration
	MaxRound        int
	MinScoreAge     time.Duration
	RawDownloadDir  string
}

type SyncService struct {
	cfg          SyncConfig
	odds         OddsProvider
	draw         DrawProvider
	fixtureRepo  fixture.Repository
	settingsRepo settings.Repository
	autoTips     *AutoTipService
	scoring      *ScoringService
	logger       *logging.Logger
	now          func() time.Time
}

func NewSyncService(
	cfg SyncConfig,
	odds OddsProvider,
	draw DrawProvider,
	fixtureRepo fixture.Repository,
	settingsRepo settings.Repository,
	autoTips *AutoTipService,
	scoring *ScoringService,
	logger *logging.Logger,
) *SyncService {
	if cfg.ScoresDaysBack <= 0 {
		cfg.ScoresDaysBack = 3
	}
	if cfg.RoundGap <= 0 {
		cfg.RoundGap = 60 * time.Hour
	}
	if cfg.DrawMatchWindow <= 0 {
		cfg.DrawMatchWindow = 36 * time.Hour
	}
	if cfg.MaxRound <= 0 {
		cfg.MaxRound = 27
	}
	if cfg.MinScoreAge <= 0 {
		cfg.MinScoreAge = 2 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &SyncService{
		cfg:          cfg,
		odds:         odds,
		draw:         draw,
		fixtureRepo:  fixtureRepo,
		settingsRepo: settingsRepo,
		autoTips:     autoTips,
		scoring:      scoring,
		logger:       logger,
		now:          time.Now,
	}
}

type SyncInput struct {
	SeasonYear int `validate:"required,gte=2000,lte=2100"`
}

// SyncSummary is the outbound contract of a full sync run.
type SyncSummary struct {
	SeasonYear        int                      `json:"season_year"`
	Inserted          int                      `json:"inserted"`
	Updated           int                      `json:"updated"`
	TotalMerged       int                      `json:"total_merged"`
	Pruned            int                      `json:"pruned"`
	RoundsAssigned    int                      `json:"rounds_assigned"`
	AutoUnderdogTips  int                      `json:"auto_underdog_tips_added"`
	TipsRescored      int                      `json:"tips_rescored"`
	RawDownloadFile   string                   `json:"raw_download_file,omitempty"`
	BySourceCounts    map[string]int           `json:"by_source_counts"`
	DrawEnrichment    map[string]int           `json:"draw_enrichment"`
	SourceDiagnostics map[string]SourceDetails `json:"source_diagnostics,omitempty"`
	CompletedAtUTC    time.Time                `json:"completed_at_utc"`
}

// SyncSeason runs the full reconciliation pipeline for one season: fetch
// all sources, merge by event identity, enrich from the official draw,
// upsert, prune other seasons, assign rounds, auto-fill underdog tips and
// rescore.
func (s *SyncService) SyncSeason(ctx context.Context, input SyncInput) (SyncSummary, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncSeason")
	defer span.End()

	if err := validateInput(input); err != nil {
		return SyncSummary{}, err
	}
	if !s.cfg.APIKeySet {
		return SyncSummary{}, fmt.Errorf("%w: odds API key is not configured", ErrMissingCredentials)
	}
	if s.odds == nil || s.fixtureRepo == nil {
		return SyncSummary{}, fmt.Errorf("%w: sync service is not fully configured", ErrDependencyUnavailable)
	}

	seasonYear := input.SeasonYear

	var (
		upEvents, scoreEvents, histEvents    []ExternalEvent
		upDetails, scoreDetails, histDetails SourceDetails
		upErr, scoreErr, histErr             error
	)
	var fetchers conc.WaitGroup
	fetchers.Go(func() {
		upEvents, upDetails, upErr = s.odds.FetchUpcomingOdds(ctx)
	})
	fetchers.Go(func() {
		scoreEvents, scoreDetails, scoreErr = s.odds.FetchRecentScores(ctx, s.cfg.ScoresDaysBack)
	})
	fetchers.Go(func() {
		histEvents, histDetails, histErr = s.odds.FetchHistorySnapshots(ctx, seasonYear)
	})
	fetchers.Wait()

	if upErr != nil {
		return SyncSummary{}, fmt.Errorf("fetch upcoming odds: %w", upErr)
	}
	if histErr != nil {
		return SyncSummary{}, fmt.Errorf("fetch odds history: %w", histErr)
	}
	if scoreErr != nil {
		// Scores are a best-effort source; the catch-up worker retries later.
		s.logger.WarnContext(ctx, "scores fetch failed, continuing without results", "error", scoreErr)
		if scoreDetails == nil {
			scoreDetails = SourceDetails{}
		}
		scoreDetails["error"] = scoreErr.Error()
		scoreEvents = nil
	}

	merged := make(map[string]fixture.Fixture, len(upEvents)+len(histEvents))
	for _, group := range []struct {
		source string
		events []ExternalEvent
	}{
		{sourceHistory, histEvents},
		{sourceUpcomingOdds, upEvents},
		{sourceScores, scoreEvents},
	} {
		for _, ev := range group.events {
			candidate := mapExternalEventToFixture(ev, group.source)
			if existing, ok := merged[candidate.ID]; ok {
				merged[candidate.ID] = fixture.Merge(existing, candidate)
			} else {
				merged[candidate.ID] = candidate
			}
		}
	}

	var drawEntries []ExternalDrawFixture
	var drawDetails SourceDetails
	if s.draw != nil {
		var drawErr error
		drawEntries, drawDetails, drawErr = s.draw.FetchSeasonDraw(ctx, seasonYear)
		if drawErr != nil {
			s.logger.WarnContext(ctx, "draw scrape failed, continuing without enrichment", "error", drawErr)
			if drawDetails == nil {
				drawDetails = SourceDetails{}
			}
			drawDetails["error"] = drawErr.Error()
			drawEntries = nil
		}
	}
	enrichment := s.applyDrawFallback(merged, drawEntries, seasonYear)

	inserted := 0
	updated := 0
	for _, fx := range sortedFixtures(merged) {
		stored, ok, err := s.fixtureRepo.GetByID(ctx, fx.ID)
		if err != nil {
			return SyncSummary{}, fmt.Errorf("load fixture id=%s: %w", fx.ID, err)
		}
		final := fx
		if ok {
			final = fixture.Merge(stored, fx)
		}
		created, err := s.fixtureRepo.Upsert(ctx, final)
		if err != nil {
			return SyncSummary{}, fmt.Errorf("upsert fixture id=%s: %w", fx.ID, err)
		}
		if created {
			inserted++
		} else {
			updated++
		}
	}

	pruned, err := s.fixtureRepo.PruneOtherSeasons(ctx, seasonYear)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("prune other seasons: %w", err)
	}

	stored, err := s.fixtureRepo.ListBySeason(ctx, seasonYear)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("list season fixtures: %w", err)
	}
	assignments := assignRounds(stored, s.cfg.RoundGap)
	if len(assignments) > 0 {
		if err := s.fixtureRepo.SetRoundNumbers(ctx, assignments); err != nil {
			return SyncSummary{}, fmt.Errorf("assign round numbers: %w", err)
		}
	}

	autoTipsAdded := 0
	if s.autoTips != nil {
		autoTipsAdded, err = s.autoTips.FillUnderdogTips(ctx, AutoFillParams{SeasonYear: seasonYear})
		if err != nil {
			return SyncSummary{}, fmt.Errorf("auto-fill underdog tips: %w", err)
		}
	}

	tipsRescored := 0
	if s.scoring != nil {
		tipsRescored, err = s.scoring.RescoreTips(ctx)
		if err != nil {
			return SyncSummary{}, fmt.Errorf("rescore tips: %w", err)
		}
	}

	summary := SyncSummary{
		SeasonYear:       seasonYear,
		Inserted:         inserted,
		Updated:          updated,
		TotalMerged:      len(merged),
		Pruned:           pruned,
		RoundsAssigned:   len(assignments),
		AutoUnderdogTips: autoTipsAdded,
		TipsRescored:     tipsRescored,
		BySourceCounts: map[string]int{
			sourceUpcomingOdds: len(upEvents),
			sourceScores:       len(scoreEvents),
			sourceHistory:      len(histEvents),
			sourceDraw:         len(drawEntries),
		},
		DrawEnrichment: enrichment,
		SourceDiagnostics: map[string]SourceDetails{
			sourceUpcomingOdds: upDetails,
			sourceScores:       scoreDetails,
			sourceHistory:      histDetails,
			sourceDraw:         drawDetails,
		},
		CompletedAtUTC: s.now().UTC(),
	}

	if path, err := s.writeRawDownload(seasonYear, merged); err != nil {
		s.logger.WarnContext(ctx, "write raw download file failed", "error", err)
	} else {
		summary.RawDownloadFile = path
	}

	if err := s.persistSummary(ctx, summary); err != nil {
		s.logger.WarnContext(ctx, "persist sync summary failed", "error", err)
	}

	s.logger.InfoContext(ctx, "season sync completed",
		"season_year", seasonYear,
		"inserted", inserted,
		"updated", updated,
		"pruned", pruned,
		"rounds_assigned", len(assignments),
		"auto_tips_added", autoTipsAdded,
		"tips_rescored", tipsRescored,
	)
	return summary, nil
}

func mapExternalEventToFixture(ev ExternalEvent, source string) fixture.Fixture {
	status := fixture.StatusScheduled
	if ev.Completed {
		status = fixture.StatusCompleted
	}

	kickoff := ev.KickoffAt.UTC()
	return fixture.Fixture{
		ID:         ev.ID,
		SeasonYear: kickoff.Year(),
		KickoffAt:  kickoff,
		HomeTeam:   ev.HomeTeam,
		AwayTeam:   ev.AwayTeam,
		Status:     status,
		HomeScore:  ev.HomeScore,
		AwayScore:  ev.AwayScore,
		Winner:     ev.Winner,
		HomePrice:  ev.HomePrice,
		AwayPrice:  ev.AwayPrice,
		Source:     source,
		RawJSON:    ev.RawJSON,
	}
}

// applyDrawFallback reconciles merged odds-side fixtures against the
// official draw. The draw decides what counts as a real fixture: odds
// fixtures in the target season without a draw match are dropped, draw
// entries without an odds match are inserted under a derived key.
func (s *SyncService) applyDrawFallback(merged map[string]fixture.Fixture, entries []ExternalDrawFixture, seasonYear int) map[string]int {
	enrichment := map[string]int{
		"matched":  0,
		"dropped":  0,
		"inserted": 0,
	}
	if len(entries) == 0 {
		return enrichment
	}

	valid := make([]ExternalDrawFixture, 0, len(entries))
	for _, entry := range entries {
		if entry.Round < 1 || entry.Round > s.cfg.MaxRound {
			continue
		}
		if entry.HomeTeam == "" || entry.AwayTeam == "" || entry.KickoffAt.IsZero() {
			continue
		}
		valid = append(valid, entry)
	}
	if len(valid) == 0 {
		return enrichment
	}

	matchedEntries := make(map[int]bool, len(valid))
	for id, fx := range merged {
		if fx.SeasonYear != seasonYear {
			continue
		}

		bestIdx := -1
		bestFlipped := false
		var bestDelta time.Duration
		for idx, entry := range valid {
			matched, flipped := drawTeamsMatch(fx, entry)
			if !matched {
				continue
			}
			delta := fx.KickoffAt.Sub(entry.KickoffAt.UTC())
			if delta < 0 {
				delta = -delta
			}
			if delta > s.cfg.DrawMatchWindow {
				continue
			}
			if bestIdx == -1 || delta < bestDelta {
				bestIdx = idx
				bestFlipped = flipped
				bestDelta = delta
			}
		}

		if bestIdx == -1 {
			// No official draw entry: preseason trial or stray market.
			delete(merged, id)
			enrichment["dropped"]++
			continue
		}

		entry := valid[bestIdx]
		matchedEntries[bestIdx] = true
		round := entry.Round
		fx.RoundNumber = &round
		fx.KickoffAt = entry.KickoffAt.UTC()
		if entry.Venue != "" {
			fx.StadiumName = entry.Venue
		}
		if entry.City != "" {
			fx.StadiumCity = entry.City
		}
		homeLogo, awayLogo := entry.HomeLogoURL, entry.AwayLogoURL
		if bestFlipped {
			// The odds feed and the draw disagree on who hosts; follow the
			// odds orientation so each side keeps its own crest.
			homeLogo, awayLogo = awayLogo, homeLogo
		}
		if homeLogo != "" {
			fx.HomeLogoURL = homeLogo
		}
		if awayLogo != "" {
			fx.AwayLogoURL = awayLogo
		}
		merged[id] = fx
		enrichment["matched"]++
	}

	for idx, entry := range valid {
		if matchedEntries[idx] {
			continue
		}
		round := entry.Round
		key := fixture.DrawKey(seasonYear, round, entry.HomeTeam, entry.AwayTeam, entry.KickoffAt)
		if _, exists := merged[key]; exists {
			continue
		}
		merged[key] = fixture.Fixture{
			ID:          key,
			SeasonYear:  seasonYear,
			RoundNumber: &round,
			KickoffAt:   entry.KickoffAt.UTC(),
			HomeTeam:    entry.HomeTeam,
			AwayTeam:    entry.AwayTeam,
			StadiumName: entry.Venue,
			StadiumCity: entry.City,
			HomeLogoURL: entry.HomeLogoURL,
			AwayLogoURL: entry.AwayLogoURL,
			Status:      fixture.StatusScheduled,
			Source:      sourceDraw,
		}
		enrichment["inserted"]++
	}

	return enrichment
}

// drawTeamsMatch pairs a merged fixture with a draw entry. flipped reports
// that the entry lists the same two teams with home and away swapped.
func drawTeamsMatch(fx fixture.Fixture, entry ExternalDrawFixture) (matched, flipped bool) {
	if fixture.TeamNamesMatch(fx.HomeTeam, entry.HomeTeam) &&
		fixture.TeamNamesMatch(fx.AwayTeam, entry.AwayTeam) {
		return true, false
	}
	if fixture.TeamNamesMatch(fx.HomeTeam, entry.AwayTeam) &&
		fixture.TeamNamesMatch(fx.AwayTeam, entry.HomeTeam) {
		return true, true
	}
	return false, false
}

// assignRounds numbers the fixtures that still lack a round. Fixtures are
// walked per season in kickoff order; the running round advances whenever
// the gap since the previous kickoff exceeds the threshold, and follows any
// explicitly numbered fixture it passes.
func assignRounds(items []fixture.Fixture, gap time.Duration) map[string]int {
	ordered := make([]fixture.Fixture, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SeasonYear != ordered[j].SeasonYear {
			return ordered[i].SeasonYear < ordered[j].SeasonYear
		}
		if !ordered[i].KickoffAt.Equal(ordered[j].KickoffAt) {
			return ordered[i].KickoffAt.Before(ordered[j].KickoffAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	type seasonState struct {
		current int
		prev    time.Time
		hasPrev bool
	}
	states := make(map[int]*seasonState)
	out := make(map[string]int)

	for _, fx := range ordered {
		state, ok := states[fx.SeasonYear]
		if !ok {
			state = &seasonState{}
			states[fx.SeasonYear] = state
		}

		if fx.RoundNumber != nil {
			if *fx.RoundNumber > state.current {
				state.current = *fx.RoundNumber
			}
			state.prev = fx.KickoffAt
			state.hasPrev = true
			continue
		}

		switch {
		case state.current == 0:
			state.current = 1
		case state.hasPrev && fx.KickoffAt.Sub(state.prev) > gap:
			state.current++
		}

		out[fx.ID] = state.current
		state.prev = fx.KickoffAt
		state.hasPrev = true
	}

	return out
}

func sortedFixtures(merged map[string]fixture.Fixture) []fixture.Fixture {
	out := make([]fixture.Fixture, 0, len(merged))
	for _, fx := range merged {
		out = append(out, fx)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].KickoffAt.Equal(out[j].KickoffAt) {
			return out[i].KickoffAt.Before(out[j].KickoffAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *SyncService) writeRawDownload(seasonYear int, merged map[string]fixture.Fixture) (string, error) {
	if s.cfg.RawDownloadDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.cfg.RawDownloadDir, 0o755); err != nil {
		return "", fmt.Errorf("create raw download dir: %w", err)
	}

	payload := struct {
		SeasonYear int               `json:"season_year"`
		Fixtures   []fixture.Fixture `json:"fixtures"`
	}{
		SeasonYear: seasonYear,
		Fixtures:   sortedFixtures(merged),
	}

	raw, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode raw download payload: %w", err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.Write(raw)
	buf.WriteByte('\n')

	path := filepath.Join(s.cfg.RawDownloadDir, fmt.Sprintf("nrl_season_%d.json", seasonYear))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write raw download file: %w", err)
	}
	return path, nil
}

func (s *SyncService) persistSummary(ctx context.Context, summary SyncSummary) error {
	if s.settingsRepo == nil {
		return nil
	}
	if err := s.settingsRepo.Set(ctx, settings.KeyLastSyncAt, summary.CompletedAtUTC.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record last sync timestamp: %w", err)
	}
	raw, err := sonic.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode sync summary: %w", err)
	}
	if err := s.settingsRepo.Set(ctx, settings.KeyLastSyncSummary, string(raw)); err != nil {
		return fmt.Errorf("record sync summary: %w", err)
	}
	return nil
}
