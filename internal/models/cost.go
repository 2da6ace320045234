package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day layout used for every date in the API and storage.
const DateLayout = "2006-01-02"

// HistoricalPoint represents the total spend recorded for one calendar day
type HistoricalPoint struct {
	Date string          `json:"date" db:"cost_date"`
	Cost decimal.Decimal `json:"cost" db:"total_cost"`
}

// Day parses the point's date as a UTC calendar day
func (p HistoricalPoint) Day() (time.Time, error) {
	return time.ParseInLocation(DateLayout, p.Date, time.UTC)
}

// DailyCost is a stored daily cost row for a client
type DailyCost struct {
	ClientID  string          `json:"client_id" db:"client_id"`
	CostDate  time.Time       `json:"cost_date" db:"cost_date"`
	TotalCost decimal.Decimal `json:"total_cost" db:"total_cost"`
	Currency  string          `json:"currency" db:"currency"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// BudgetStatus is the outcome of comparing a forecast against a spending threshold
type BudgetStatus string

const (
	BudgetOK       BudgetStatus = "OK"
	BudgetWarning  BudgetStatus = "WARNING"
	BudgetExceeded BudgetStatus = "EXCEEDED"
)

// BudgetEvaluation describes how a forecast total compares to a budget threshold
type BudgetEvaluation struct {
	Threshold        decimal.Decimal `json:"threshold"`
	ForecastAmount   decimal.Decimal `json:"forecast_amount"`
	UpperBoundAmount decimal.Decimal `json:"upper_bound_amount"`
	Utilization      decimal.Decimal `json:"utilization"` // forecast / threshold
	ProjectedOverrun decimal.Decimal `json:"projected_overrun"`
	Status           BudgetStatus    `json:"status"`
	Currency         string          `json:"currency"`
	Message          string          `json:"message"`
}
