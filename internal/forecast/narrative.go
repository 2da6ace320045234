package forecast

import (
	"strings"

	"github.com/irfndi/costcast/internal/models"
)

const (
	AssumptionHistoricalPatterns = "Historical patterns continue"
	AssumptionNoInfraChanges     = "No major infrastructure changes"
	AssumptionStableUsage        = "Current usage patterns remain stable"
	AssumptionLimitedData        = "Limited historical data"
	AssumptionUpwardTrend        = "Recent upward trend continues"
	AssumptionDownwardTrend      = "Recent downward trend continues"
	AssumptionInsufficientData   = "Insufficient historical data"
	AssumptionLastKnownValue     = "Using last known cost value"
	AssumptionAllMethodsFailed   = "All forecasting methods failed; using last known cost value"
	AssumptionNoData             = "No usable historical data"
)

var methodNames = map[models.ForecastMethod]string{
	models.MethodARIMA:                "ARIMA",
	models.MethodProphet:              "Prophet-style seasonal decomposition",
	models.MethodExponentialSmoothing: "Holt-Winters exponential smoothing",
	models.MethodAI:                   "AI-assisted analysis",
}

func methodName(m models.ForecastMethod) string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return string(m)
}

func assumptions(values []float64) []string {
	out := []string{AssumptionHistoricalPatterns, AssumptionNoInfraChanges, AssumptionStableUsage}
	if len(values) < 30 {
		out = append(out, AssumptionLimitedData)
	}
	if change, ok := recentChangePercent(values); ok {
		switch {
		case change > trendChangeThreshold:
			out = append(out, AssumptionUpwardTrend)
		case change < -trendChangeThreshold:
			out = append(out, AssumptionDownwardTrend)
		}
	}
	return out
}

// joinNatural renders "A", "A and B" or "A, B and C"
func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func methodology(methods []models.ForecastMethod) string {
	if len(methods) == 0 {
		return "Minimal forecast projecting the last known cost value"
	}
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = methodName(m)
	}
	if len(names) == 1 {
		return "Forecast generated with " + names[0]
	}
	return "Ensemble forecast combining " + joinNatural(names)
}
