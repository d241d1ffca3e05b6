package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/util"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultBackoffFactor  = 2.0
	defaultMinJitter      = 100 * time.Millisecond
	defaultMaxJitter      = 1 * time.Second
	defaultMaxIdleConns   = 10
	defaultMaxOpenConns   = 100
	defaultConnLifetime   = 1 * time.Hour
)

func normalizeDatabaseConfig(cfg config.DatabaseConfig) config.DatabaseConfig {
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = 0
	}
	if cfg.ReconnectFactor < 1 {
		cfg.ReconnectFactor = defaultBackoffFactor
	}
	if cfg.MinJitter <= 0 {
		cfg.MinJitter = defaultMinJitter
	}
	if cfg.MaxJitter <= 0 {
		cfg.MaxJitter = defaultMaxJitter
	}
	if cfg.MaxJitter < cfg.MinJitter {
		cfg.MaxJitter = cfg.MinJitter
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.MaxActiveConns <= 0 {
		cfg.MaxActiveConns = defaultMaxOpenConns
	}
	if cfg.MaxConnLifetime <= 0 {
		cfg.MaxConnLifetime = defaultConnLifetime
	}

	return cfg
}

// NewPostgresConnection dials with retries until ctx ends or MaxRetry is spent.
func NewPostgresConnection(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database dsn is required")
	}

	cfg = normalizeDatabaseConfig(cfg)
	connectTimeout := cfg.PingInterval
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	logger := logrus.WithField("postgres_dsn", MaskDSN(cfg.DSN))
	rng := util.NewRand()
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		db, err := sqlx.ConnectContext(attemptCtx, "postgres", cfg.DSN)
		cancel()
		if err == nil {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetMaxOpenConns(cfg.MaxActiveConns)
			db.SetConnMaxLifetime(cfg.MaxConnLifetime)
			if cfg.PingInterval > 0 {
				db.SetConnMaxIdleTime(cfg.PingInterval)
			}

			logger.WithFields(logrus.Fields{
				"max_idle_conns":   cfg.MaxIdleConns,
				"max_active_conns": cfg.MaxActiveConns,
			}).Info("postgres connection established")

			return db, nil
		}

		lastErr = err
		if attempt == cfg.MaxRetry {
			break
		}

		wait := util.BackoffWithJitter(attempt, cfg.ReconnectFactor, cfg.MinJitter, cfg.MaxJitter, rng)
		logger.WithFields(logrus.Fields{
			"attempt":  attempt + 1,
			"retry_in": wait.String(),
		}).Warnf("postgres connection failed: %v", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("connect postgres after %d attempts: %w", cfg.MaxRetry+1, lastErr)
}

// RunPostgresHealthCheck pings db every interval until ctx is cancelled.
func RunPostgresHealthCheck(ctx context.Context, db *sqlx.DB, interval time.Duration) {
	if db == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := db.PingContext(pingCtx)
			cancel()
			if err != nil {
				logrus.Errorf("postgres health check failed: %v", err)
			}
		}
	}
}

// MaskDSN hides the credentials part of a connection url.
func MaskDSN(dsn string) string {
	idx := strings.LastIndex(dsn, "@")
	if idx == -1 {
		return dsn
	}

	prefix := dsn[:idx]
	schemeIdx := strings.Index(prefix, "://")
	if schemeIdx == -1 {
		return "***" + dsn[idx:]
	}

	return prefix[:schemeIdx+3] + "***" + dsn[idx:]
}
