package database

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/costcast/internal/models"
	"github.com/irfndi/costcast/internal/utils"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func day(s string) time.Time {
	d, err := time.ParseInLocation(models.DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}

func newMockRepo(t *testing.T) (*CostRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewCostRepository(mock, "", quietLogger()), mock
}

func point(date, cost string) models.HistoricalPoint {
	return models.HistoricalPoint{Date: date, Cost: decimal.RequireFromString(cost)}
}

func TestCostRepository_GetDailyCosts(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := pgxmock.NewRows([]string{"cost_date", "total_cost"}).
		AddRow(day("2024-03-01"), "120.5000").
		AddRow(day("2024-03-02"), "98.2500").
		AddRow(day("2024-03-03"), "0.0000")
	mock.ExpectQuery("SELECT cost_date, total_cost::text").
		WithArgs("acme", "2024-03-01", "2024-03-31").
		WillReturnRows(rows)

	points, err := repo.GetDailyCosts(context.Background(), "acme", day("2024-03-01"), day("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "2024-03-01", points[0].Date)
	assert.True(t, decimal.RequireFromString("120.5").Equal(points[0].Cost))
	assert.True(t, points[2].Cost.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRepository_GetDailyCosts_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT cost_date").
		WithArgs("ghost", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"cost_date", "total_cost"}))

	points, err := repo.GetDailyCosts(context.Background(), "ghost", day("2024-01-01"), day("2024-01-02"))
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestCostRepository_GetDailyCosts_Errors(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT cost_date").WillReturnError(errors.New("connection reset"))

		_, err := repo.GetDailyCosts(context.Background(), "acme", day("2024-01-01"), day("2024-01-02"))
		assert.ErrorContains(t, err, "failed to query daily costs")
	})

	t.Run("corrupt cost", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT cost_date").
			WillReturnRows(pgxmock.NewRows([]string{"cost_date", "total_cost"}).AddRow(day("2024-01-01"), "NaN?"))

		_, err := repo.GetDailyCosts(context.Background(), "acme", day("2024-01-01"), day("2024-01-02"))
		assert.ErrorContains(t, err, "invalid stored cost")
	})
}

func TestCostRepository_UpsertDailyCosts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_costs").
		WithArgs("acme", "2024-03-01", "10.5", "USD").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO daily_costs").
		WithArgs("acme", "2024-03-02", "11", "USD").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := repo.UpsertDailyCosts(context.Background(), "acme", []models.HistoricalPoint{
		point("2024-03-01", "10.50"),
		point("2024-03-02", "11"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRepository_UpsertDailyCosts_RollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_costs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.UpsertDailyCosts(context.Background(), "acme", []models.HistoricalPoint{point("2024-03-01", "1")})
	assert.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRepository_UpsertDailyCosts_Validation(t *testing.T) {
	repo, mock := newMockRepo(t)

	tests := []struct {
		name   string
		points []models.HistoricalPoint
	}{
		{"bad date", []models.HistoricalPoint{point("03/01/2024", "1")}},
		{"negative cost", []models.HistoricalPoint{point("2024-03-01", "-4")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.UpsertDailyCosts(context.Background(), "acme", tt.points)
			assert.True(t, utils.IsValidationError(err))
		})
	}

	n, err := repo.UpsertDailyCosts(context.Background(), "acme", nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
	// nothing reaches the database
	require.NoError(t, mock.ExpectationsWereMet())
}

func sampleResult() *models.ForecastResult {
	return &models.ForecastResult{
		ForecastPeriod: "2024-04-01 to 2024-04-07",
		Predictions: []models.ForecastPoint{{
			Date:          "2024-04-01",
			PredictedCost: 101.25,
			MethodUsed:    models.MethodEnsemble,
		}},
		TotalForecast:      models.TotalForecast{Amount: 708.123456},
		AccuracyAssessment: models.AccuracyMedium,
		Metadata: models.ForecastMetadata{
			ForecastID:  "5f1c9a34-1d8e-5f7e-9c33-0a1f5d8e6b21",
			GeneratedAt: time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC),
			Horizon:     7,
		},
	}
}

func TestCostRepository_SaveForecast(t *testing.T) {
	repo, mock := newMockRepo(t)
	result := sampleResult()

	mock.ExpectExec("INSERT INTO forecasts").
		WithArgs(result.Metadata.ForecastID, "acme", result.Metadata.GeneratedAt, 7, "708.1235", "MEDIUM", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SaveForecast(context.Background(), "acme", result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRepository_SaveForecast_Errors(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.SaveForecast(context.Background(), "acme", &models.ForecastResult{})
	assert.True(t, utils.IsValidationError(err))

	mock.ExpectExec("INSERT INTO forecasts").WillReturnError(errors.New("constraint"))
	err = repo.SaveForecast(context.Background(), "acme", sampleResult())
	assert.ErrorContains(t, err, "failed to save forecast")
}

func TestCostRepository_LatestForecast(t *testing.T) {
	repo, mock := newMockRepo(t)
	stored := sampleResult()
	payload, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT result").
		WithArgs("acme").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(payload))

	got, err := repo.LatestForecast(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, stored.Metadata.ForecastID, got.Metadata.ForecastID)
	assert.Equal(t, stored.Predictions, got.Predictions)
	assert.True(t, stored.Metadata.GeneratedAt.Equal(got.Metadata.GeneratedAt))
}

func TestCostRepository_LatestForecast_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT result").WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

	_, err := repo.LatestForecast(context.Background(), "ghost")
	assert.True(t, utils.IsNotFound(err))
}

func TestNewCostRepository_Defaults(t *testing.T) {
	repo := NewCostRepository(nil, "", nil)
	assert.Equal(t, "USD", repo.currency)
	assert.NotNil(t, repo.logger)
}
