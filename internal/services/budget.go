package services

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/irfndi/costcast/internal/config"
	"github.com/irfndi/costcast/internal/models"
	"github.com/irfndi/costcast/internal/utils"
)

// BudgetEvaluator compares forecast totals against spending thresholds
type BudgetEvaluator struct {
	warningRatio     decimal.Decimal
	defaultThreshold float64
	currency         string
	printer          *message.Printer
}

// NewBudgetEvaluator creates an evaluator from the budget configuration section
func NewBudgetEvaluator(cfg config.BudgetConfig) *BudgetEvaluator {
	ratio := cfg.WarningRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.8
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	return &BudgetEvaluator{
		warningRatio:     decimal.NewFromFloat(ratio),
		defaultThreshold: cfg.DefaultThreshold,
		currency:         currency,
		printer:          message.NewPrinter(language.English),
	}
}

// Threshold returns requested, or the configured default when requested is zero
func (b *BudgetEvaluator) Threshold(requested float64) float64 {
	if requested == 0 {
		return b.defaultThreshold
	}
	return requested
}

// Evaluate returns nil when threshold is zero. The status is EXCEEDED when the
// forecast amount is above the threshold and WARNING when utilisation reaches
// the warning ratio or the upper variance bound is above the threshold.
func (b *BudgetEvaluator) Evaluate(result *models.ForecastResult, threshold float64) (*models.BudgetEvaluation, error) {
	if threshold < 0 {
		return nil, utils.NewFieldError("budget_threshold", "must not be negative, got %v", threshold)
	}
	if threshold == 0 || result == nil {
		return nil, nil
	}

	limit := decimal.NewFromFloat(threshold)
	amount := decimal.NewFromFloat(result.TotalForecast.Amount).Round(2)
	upper := decimal.NewFromFloat(result.TotalForecast.VarianceRange.Max).Round(2)
	utilization := amount.Div(limit).Round(4)
	overrun := decimal.Max(amount.Sub(limit), decimal.Zero)

	status := models.BudgetOK
	switch {
	case amount.GreaterThan(limit):
		status = models.BudgetExceeded
	case utilization.GreaterThanOrEqual(b.warningRatio), upper.GreaterThan(limit):
		status = models.BudgetWarning
	}

	return &models.BudgetEvaluation{
		Threshold:        limit,
		ForecastAmount:   amount,
		UpperBoundAmount: upper,
		Utilization:      utilization,
		ProjectedOverrun: overrun,
		Status:           status,
		Currency:         b.currency,
		Message:          b.describe(status, amount, upper, limit, utilization, overrun),
	}, nil
}

func (b *BudgetEvaluator) describe(status models.BudgetStatus, amount, upper, limit, utilization, overrun decimal.Decimal) string {
	if status == models.BudgetExceeded {
		return b.printer.Sprintf("Forecast spend of %s %.2f exceeds the %s %.2f budget by %s %.2f",
			b.currency, amount.InexactFloat64(), b.currency, limit.InexactFloat64(), b.currency, overrun.InexactFloat64())
	}

	msg := b.printer.Sprintf("Forecast spend of %s %.2f is %.1f%% of the %s %.2f budget",
		b.currency, amount.InexactFloat64(), utilization.InexactFloat64()*100, b.currency, limit.InexactFloat64())
	if upper.GreaterThan(limit) {
		msg += b.printer.Sprintf("; the upper bound of %s %.2f exceeds it", b.currency, upper.InexactFloat64())
	}
	return msg
}
