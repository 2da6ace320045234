package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/costcast/internal/config"
	"github.com/irfndi/costcast/internal/database"
)

// CleanupService periodically removes forecasts and daily costs past their retention
type CleanupService struct {
	pool   database.DatabasePool
	config config.RetentionConfig
	logger *logrus.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// CleanupResult counts the rows removed by one cleanup run
type CleanupResult struct {
	ForecastsDeleted int64
	CostsDeleted     int64
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(pool database.DatabasePool, cfg config.RetentionConfig, logger *logrus.Logger) *CleanupService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CleanupService{
		pool:   pool,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start runs one cleanup immediately and then one per interval until Stop or ctx is done
func (c *CleanupService) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil || c.config.Interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	c.logger.WithFields(logrus.Fields{
		"forecast_days": c.config.ForecastDays,
		"cost_days":     c.config.CostDays,
		"interval":      c.config.Interval.String(),
	}).Info("Starting cleanup service")

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.config.Interval)
		defer ticker.Stop()

		c.runLogged(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runLogged(ctx)
			}
		}
	}()
}

// Stop stops the cleanup loop and waits for a running cleanup to finish
func (c *CleanupService) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	c.logger.Info("Stopping cleanup service")
	cancel()
	<-done
}

func (c *CleanupService) runLogged(ctx context.Context) {
	result, err := c.RunCleanup(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.WithError(err).Error("Cleanup failed")
		}
		return
	}
	if result.ForecastsDeleted > 0 || result.CostsDeleted > 0 {
		c.logger.WithFields(logrus.Fields{
			"forecasts_deleted": result.ForecastsDeleted,
			"costs_deleted":     result.CostsDeleted,
		}).Info("Data cleanup completed")
	}
}

// RunCleanup performs one cleanup. A retention of zero days skips that table.
func (c *CleanupService) RunCleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	now := c.now().UTC()

	if c.config.ForecastDays > 0 {
		cutoff := now.AddDate(0, 0, -c.config.ForecastDays)
		tag, err := c.pool.Exec(ctx, "DELETE FROM forecasts WHERE generated_at < $1", cutoff)
		if err != nil {
			return result, fmt.Errorf("failed to cleanup forecasts: %w", err)
		}
		result.ForecastsDeleted = tag.RowsAffected()
	}

	if c.config.CostDays > 0 {
		cutoff := now.AddDate(0, 0, -c.config.CostDays).Format("2006-01-02")
		tag, err := c.pool.Exec(ctx, "DELETE FROM daily_costs WHERE cost_date < $1", cutoff)
		if err != nil {
			return result, fmt.Errorf("failed to cleanup daily costs: %w", err)
		}
		result.CostsDeleted = tag.RowsAffected()
	}
	return result, nil
}
