package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/costcast/internal/config"
)

//go:embed schema.sql
var schemaSQL string

type PostgresDB struct {
	Pool   *pgxpool.Pool
	logger *logrus.Logger
}

// BuildDSN prefers DatabaseURL and otherwise assembles a keyword DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
}

// poolConfig applies the pool sizing and lifetimes from cfg
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(BuildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 && cfg.MaxIdleConns <= cfg.MaxOpenConns {
		pc.MinConns = int32(cfg.MaxIdleConns)
	}
	if d, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil && d > 0 {
		pc.MaxConnLifetime = d
	}
	if d, err := time.ParseDuration(cfg.ConnMaxIdleTime); err == nil && d > 0 {
		pc.MaxConnIdleTime = d
	}
	return pc, nil
}

func NewPostgresConnection(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (*PostgresDB, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":      pc.ConnConfig.Host,
		"database":  pc.ConnConfig.Database,
		"max_conns": pc.MaxConns,
	}).Info("Successfully connected to PostgreSQL")

	return &PostgresDB{Pool: pool, logger: logger}, nil
}

// EnsureSchema creates the cost and forecast tables when missing
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		if db.logger != nil {
			db.logger.Info("PostgreSQL connection closed")
		}
	}
}

func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	return db.Pool.Ping(ctx)
}
