package forecast

import (
	"math"
	"sort"

	"github.com/irfndi/costcast/internal/models"
)

// combine merges successful outcomes step by step into confidence-weighted
// ensemble points. Steps run to the longest contributing horizon.
func combine(outcomes []Outcome) []models.ForecastPoint {
	steps := 0
	for _, o := range outcomes {
		steps = max(steps, len(o.Points))
	}

	points := make([]models.ForecastPoint, 0, steps)
	for i := 0; i < steps; i++ {
		var contributors []models.ForecastPoint
		for _, o := range outcomes {
			if i < len(o.Points) {
				contributors = append(contributors, o.Points[i])
			}
		}
		if len(contributors) == 0 {
			break
		}
		points = append(points, combineStep(contributors))
	}
	return points
}

func combineStep(contributors []models.ForecastPoint) models.ForecastPoint {
	predictions := make([]float64, len(contributors))
	var totalConfidence float64
	drivers := make(map[string]struct{})
	for j, p := range contributors {
		predictions[j] = p.PredictedCost
		totalConfidence += p.ConfidenceScore
		for _, d := range p.KeyDrivers {
			drivers[d] = struct{}{}
		}
	}

	var value float64
	if totalConfidence > 0 {
		for _, p := range contributors {
			value += p.PredictedCost * (p.ConfidenceScore / totalConfidence)
		}
	} else {
		value = mean(predictions)
	}
	value = floorZero(value)

	spread := 0.0
	if len(contributors) > 1 {
		spread = z95 * stdDev(predictions)
	}

	union := make([]string, 0, len(drivers))
	for d := range drivers {
		union = append(union, d)
	}
	sort.Strings(union)

	return models.ForecastPoint{
		Date:          contributors[0].Date,
		PredictedCost: value,
		ConfidenceInterval: models.ConfidenceInterval{
			Lower: floorZero(value - spread),
			Upper: value + spread,
		},
		MethodUsed:      models.MethodEnsemble,
		ConfidenceScore: clamp01(totalConfidence / float64(len(contributors))),
		KeyDrivers:      union,
	}
}

// total sums the horizon into a single amount with a variance range
func total(points []models.ForecastPoint) models.TotalForecast {
	var t models.TotalForecast
	if len(points) == 0 {
		return t
	}
	var confidence float64
	for _, p := range points {
		t.Amount += p.PredictedCost
		t.VarianceRange.Min += p.ConfidenceInterval.Lower
		t.VarianceRange.Max += p.ConfidenceInterval.Upper
		confidence += p.ConfidenceScore
	}
	t.Confidence = clamp01(confidence / float64(len(points)))
	t.Amount = math.Max(0, t.Amount)
	t.VarianceRange.Min = math.Max(0, t.VarianceRange.Min)
	return t
}
