package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/costcast/internal/models"
	"github.com/irfndi/costcast/internal/utils"
)

// DatabasePool is the subset of pgxpool.Pool used by repositories.
// pgxmock.PgxPoolIface satisfies it directly.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CostRepository stores daily cost history and generated forecasts
type CostRepository struct {
	pool     DatabasePool
	currency string
	logger   *logrus.Logger
}

func NewCostRepository(pool DatabasePool, currency string, logger *logrus.Logger) *CostRepository {
	if currency == "" {
		currency = "USD"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CostRepository{pool: pool, currency: currency, logger: logger}
}

const selectDailyCosts = `
	SELECT cost_date, total_cost::text
	FROM daily_costs
	WHERE client_id = $1 AND cost_date BETWEEN $2 AND $3
	ORDER BY cost_date ASC`

// GetDailyCosts returns the client's costs between from and to inclusive, oldest first
func (r *CostRepository) GetDailyCosts(ctx context.Context, clientID string, from, to time.Time) ([]models.HistoricalPoint, error) {
	rows, err := r.pool.Query(ctx, selectDailyCosts, clientID, from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily costs: %w", err)
	}
	defer rows.Close()

	points := make([]models.HistoricalPoint, 0)
	for rows.Next() {
		var day time.Time
		var raw string
		if err := rows.Scan(&day, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan daily cost: %w", err)
		}
		cost, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid stored cost %q for %s: %w", raw, day.Format(models.DateLayout), err)
		}
		points = append(points, models.HistoricalPoint{Date: day.Format(models.DateLayout), Cost: cost})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily costs: %w", err)
	}
	return points, nil
}

const upsertDailyCost = `
	INSERT INTO daily_costs (client_id, cost_date, total_cost, currency, updated_at)
	VALUES ($1, $2, $3::numeric, $4, CURRENT_TIMESTAMP)
	ON CONFLICT (client_id, cost_date)
	DO UPDATE SET
		total_cost = EXCLUDED.total_cost,
		currency = EXCLUDED.currency,
		updated_at = CURRENT_TIMESTAMP`

// UpsertDailyCosts writes every point in one transaction; a later value for a day replaces the stored one
func (r *CostRepository) UpsertDailyCosts(ctx context.Context, clientID string, points []models.HistoricalPoint) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}
	for i, p := range points {
		if _, err := p.Day(); err != nil {
			return 0, utils.NewValidationErrorf("point %d: invalid date %q", i, p.Date)
		}
		if p.Cost.IsNegative() {
			return 0, utils.NewValidationErrorf("point %d: negative cost %s", i, p.Cost.String())
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var affected int64
	for _, p := range points {
		tag, err := tx.Exec(ctx, upsertDailyCost, clientID, p.Date, p.Cost.String(), r.currency)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("failed to upsert cost for %s: %w", p.Date, err)
		}
		affected += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit daily costs: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"points":    len(points),
		"affected":  affected,
	}).Debug("Daily costs stored")
	return affected, nil
}

const insertForecast = `
	INSERT INTO forecasts (id, client_id, generated_at, horizon, total_amount, accuracy, result)
	VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
	ON CONFLICT (id)
	DO UPDATE SET
		generated_at = EXCLUDED.generated_at,
		result = EXCLUDED.result`

// SaveForecast stores result as JSONB keyed by its forecast id
func (r *CostRepository) SaveForecast(ctx context.Context, clientID string, result *models.ForecastResult) error {
	if result == nil || result.Metadata.ForecastID == "" {
		return utils.NewValidationError("forecast result has no id")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode forecast: %w", err)
	}
	amount := decimal.NewFromFloat(result.TotalForecast.Amount).Round(4)

	_, err = r.pool.Exec(ctx, insertForecast,
		result.Metadata.ForecastID,
		clientID,
		result.Metadata.GeneratedAt,
		result.Metadata.Horizon,
		amount.String(),
		string(result.AccuracyAssessment),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save forecast: %w", err)
	}
	return nil
}

const selectLatestForecast = `
	SELECT result
	FROM forecasts
	WHERE client_id = $1
	ORDER BY generated_at DESC
	LIMIT 1`

// LatestForecast returns the most recently generated forecast for the client
func (r *CostRepository) LatestForecast(ctx context.Context, clientID string) (*models.ForecastResult, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, selectLatestForecast, clientID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewNotFoundError("forecast for client", clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest forecast: %w", err)
	}

	var result models.ForecastResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored forecast: %w", err)
	}
	return &result, nil
}
