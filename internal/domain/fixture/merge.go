package fixture

// Merge folds an incoming candidate for the same identity into the existing
// record. Field rules:
//
//   - kickoff keeps the earliest known instant
//   - team names, venue and season overwrite when the incoming value is set
//   - round number and logos fill only when currently absent
//   - odds prices fill only when currently absent
//   - status never reverts from completed to scheduled
//   - scores and winner overwrite unless the incoming winner is unknown;
//     an unknown incoming winner only fills an empty one
//   - raw payload and source tag always follow the most recent call
func Merge(existing, incoming Fixture) Fixture {
	out := existing

	if !incoming.KickoffAt.IsZero() {
		if out.KickoffAt.IsZero() || incoming.KickoffAt.Before(out.KickoffAt) {
			out.KickoffAt = incoming.KickoffAt
		}
	}

	if incoming.HomeTeam != "" {
		out.HomeTeam = incoming.HomeTeam
	}
	if incoming.AwayTeam != "" {
		out.AwayTeam = incoming.AwayTeam
	}
	if incoming.StadiumName != "" {
		out.StadiumName = incoming.StadiumName
	}
	if incoming.StadiumCity != "" {
		out.StadiumCity = incoming.StadiumCity
	}
	if incoming.SeasonYear > 0 {
		out.SeasonYear = incoming.SeasonYear
	}

	if out.RoundNumber == nil && incoming.RoundNumber != nil {
		out.RoundNumber = cloneInt(incoming.RoundNumber)
	}
	if out.HomeLogoURL == "" {
		out.HomeLogoURL = incoming.HomeLogoURL
	}
	if out.AwayLogoURL == "" {
		out.AwayLogoURL = incoming.AwayLogoURL
	}

	if out.HomePrice == nil && incoming.HomePrice != nil {
		out.HomePrice = cloneFloat(incoming.HomePrice)
	}
	if out.AwayPrice == nil && incoming.AwayPrice != nil {
		out.AwayPrice = cloneFloat(incoming.AwayPrice)
	}

	if IsCompletedStatus(incoming.Status) {
		out.Status = StatusCompleted
	} else if out.Status == "" {
		out.Status = NormalizeStatus(incoming.Status)
	}

	switch {
	case incoming.HasKnownWinner():
		out.Winner = incoming.Winner
		out.HomeScore = cloneInt(incoming.HomeScore)
		out.AwayScore = cloneInt(incoming.AwayScore)
	case incoming.Winner == WinnerUnknown && out.Winner == "":
		out.Winner = WinnerUnknown
	}

	if incoming.RawJSON != "" {
		out.RawJSON = incoming.RawJSON
		out.Source = incoming.Source
	}
	if incoming.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = incoming.UpdatedAt
	}

	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
