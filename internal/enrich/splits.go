package enrich

import (
	"context"

	"mlb_daily/ingestion/internal/metrics"
	"mlb_daily/ingestion/internal/models"
)

// Season-line estimation offsets: left gets the higher line
const (
	estimateAVGDelta = 0.010
	estimateOPSDelta = 0.030
)

// splitStep is one link of the fallback chain. load returns whatever sides
// it could produce; a nil side or an error moves the chain on.
type splitStep struct {
	label string
	load  func(ctx context.Context) (models.SplitPair, error)
}

// splitChain walks steps in order, filling only sides still missing, and
// stops at the first step that completes the pair. It returns the pair and
// the label of the completing step.
func splitChain(ctx context.Context, entity string, steps []splitStep) (models.SplitPair, string) {
	var pair models.SplitPair
	for _, step := range steps {
		got, err := step.load(ctx)
		if err != nil {
			continue
		}
		if pair.Left == nil && got.Left != nil {
			pair.Left = relabel(got.Left, step.label)
		}
		if pair.Right == nil && got.Right != nil {
			pair.Right = relabel(got.Right, step.label)
		}
		if pair.Complete() {
			metrics.RecordFallbackStep(entity, step.label)
			return pair, step.label
		}
	}

	// The league-average step is total, so this is reached only with no steps
	avg := models.LeagueAverageSplit()
	if pair.Left == nil {
		pair.Left = relabel(&avg, models.SourceLeagueAverage)
	}
	if pair.Right == nil {
		pair.Right = relabel(&avg, models.SourceLeagueAverage)
	}
	metrics.RecordFallbackStep(entity, models.SourceLeagueAverage)
	return pair, models.SourceLeagueAverage
}

func relabel(line *models.SplitLine, label string) *models.SplitLine {
	out := *line
	out.SourceLabel = label
	return &out
}

// estimatedStep derives both sides from a season avg/ops
func estimatedStep(avg, ops *float64) splitStep {
	return splitStep{
		label: models.SourceEstimatedFromSeason,
		load: func(context.Context) (models.SplitPair, error) {
			if avg == nil || ops == nil {
				return models.SplitPair{}, errNoSeasonLine
			}
			left := models.NewSplitLine(*avg+estimateAVGDelta, *ops+estimateOPSDelta, nil, models.SourceEstimatedFromSeason)
			right := models.NewSplitLine(*avg-estimateAVGDelta, *ops-estimateOPSDelta, nil, models.SourceEstimatedFromSeason)
			return models.SplitPair{Left: &left, Right: &right}, nil
		},
	}
}

// leagueAverageStep always succeeds
func leagueAverageStep() splitStep {
	return splitStep{
		label: models.SourceLeagueAverage,
		load: func(context.Context) (models.SplitPair, error) {
			left := models.LeagueAverageSplit()
			right := models.LeagueAverageSplit()
			return models.SplitPair{Left: &left, Right: &right}, nil
		},
	}
}
