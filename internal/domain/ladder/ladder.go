package ladder

import (
	"sort"

	"github.com/footylab/nrl-tipping/internal/domain/fixture"
)

// Row is one team's derived season standing. Rows are always recomputed
// from completed fixtures and never stored.
type Row struct {
	Team          string
	Played        int
	Won           int
	Drawn         int
	Lost          int
	PointsFor     int
	PointsAgainst int
	PointDiff     int
	CompPoints    int
}

const (
	pointsWin  = 2
	pointsDraw = 1
)

// Compute builds the season ladder from completed fixtures with scores,
// folding each fixture in from both teams' perspectives. Order: competition
// points desc, point differential desc, points for desc, team name asc.
func Compute(fixtures []fixture.Fixture) []Row {
	byTeam := make(map[string]*Row)

	add := func(team string, scored, conceded int) {
		row, ok := byTeam[team]
		if !ok {
			row = &Row{Team: team}
			byTeam[team] = row
		}
		row.Played++
		row.PointsFor += scored
		row.PointsAgainst += conceded
		switch {
		case scored > conceded:
			row.Won++
			row.CompPoints += pointsWin
		case scored == conceded:
			row.Drawn++
			row.CompPoints += pointsDraw
		default:
			row.Lost++
		}
	}

	for _, fx := range fixtures {
		if !fixture.IsCompletedStatus(fx.Status) || fx.HomeScore == nil || fx.AwayScore == nil {
			continue
		}
		if fx.HomeTeam == "" || fx.AwayTeam == "" {
			continue
		}
		add(fx.HomeTeam, *fx.HomeScore, *fx.AwayScore)
		add(fx.AwayTeam, *fx.AwayScore, *fx.HomeScore)
	}

	out := make([]Row, 0, len(byTeam))
	for _, row := range byTeam {
		row.PointDiff = row.PointsFor - row.PointsAgainst
		out = append(out, *row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompPoints != out[j].CompPoints {
			return out[i].CompPoints > out[j].CompPoints
		}
		if out[i].PointDiff != out[j].PointDiff {
			return out[i].PointDiff > out[j].PointDiff
		}
		if out[i].PointsFor != out[j].PointsFor {
			return out[i].PointsFor > out[j].PointsFor
		}
		return out[i].Team < out[j].Team
	})

	return out
}

// ScorePrediction sums each team's absolute positional distance between a
// predicted order and the actual ladder order. Lower is better; 0 is a
// perfect call. Teams absent from the actual order contribute nothing.
func ScorePrediction(predicted, actual []string) int {
	actualPos := make(map[string]int, len(actual))
	for idx, team := range actual {
		actualPos[fixture.NormalizeTeamName(team)] = idx
	}

	score := 0
	for idx, team := range predicted {
		pos, ok := actualPos[fixture.NormalizeTeamName(team)]
		if !ok {
			continue
		}
		delta := idx - pos
		if delta < 0 {
			delta = -delta
		}
		score += delta
	}
	return score
}
