package forecast

import (
	"math"

	"github.com/irfndi/costcast/internal/models"
)

const (
	scoringForecastDays = 7
	scoringHistoryDays  = 30
)

// performanceScore compares the near-term forecast level with recent actuals.
// A zero recent mean gives no signal either way and scores 0.5.
func performanceScore(points []models.ForecastPoint, history []float64) float64 {
	if len(points) == 0 || len(history) == 0 {
		return 0
	}
	n := min(scoringForecastDays, len(points))
	predicted := make([]float64, n)
	for i := 0; i < n; i++ {
		predicted[i] = points[i].PredictedCost
	}
	forecastMean := mean(predicted)
	recentMean := mean(lastN(history, scoringHistoryDays))
	if recentMean == 0 {
		return 0.5
	}
	return clamp01(math.Max(0, 1-math.Abs(forecastMean-recentMean)/recentMean))
}

func scoreOutcomes(outcomes []Outcome, history []float64) map[models.ForecastMethod]float64 {
	scores := make(map[models.ForecastMethod]float64, len(outcomes))
	for _, o := range outcomes {
		scores[o.Method] = performanceScore(o.Points, history)
	}
	return scores
}

// assessAccuracy rates a forecast from data volume and average method performance
func assessAccuracy(dataPoints int, scores map[models.ForecastMethod]float64) models.AccuracyLevel {
	if len(scores) == 0 {
		switch {
		case dataPoints >= 30:
			return models.AccuracyMedium
		case dataPoints >= 14:
			return models.AccuracyLow
		default:
			return models.AccuracyVeryLow
		}
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))

	switch {
	case avg > 0.8 && dataPoints >= 30:
		return models.AccuracyHigh
	case avg > 0.6 && dataPoints >= 14:
		return models.AccuracyMedium
	case avg > 0.4:
		return models.AccuracyLow
	default:
		return models.AccuracyVeryLow
	}
}
