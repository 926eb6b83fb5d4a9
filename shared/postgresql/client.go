package postgresql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	defaultConnectAttempts = 5
	defaultConnectBackoff  = time.Second
	defaultPingTimeout     = 5 * time.Second
	maxConnectBackoff      = 30 * time.Second
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectAttempts bounds how often startup retries an unreachable server.
	// The wait between attempts starts at ConnectBackoff and doubles.
	ConnectAttempts int
	ConnectBackoff  time.Duration
	PingTimeout     time.Duration
}

// DSN renders the lib/pq keyword/value connection string
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode,
	)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ConnectAttempts <= 0 {
		out.ConnectAttempts = defaultConnectAttempts
	}
	if out.ConnectBackoff <= 0 {
		out.ConnectBackoff = defaultConnectBackoff
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = defaultPingTimeout
	}
	return out
}

// Client owns the pooled connection shared by the storage packages
type Client struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewClient connects to PostgreSQL, retrying while the server is not yet
// reachable, and applies the pool limits
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	return NewClientContext(context.Background(), config, logger)
}

// NewClientContext is NewClient with a context that aborts the retry loop
func NewClientContext(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	cfg := config.withDefaults()

	logger.Info("Connecting to PostgreSQL",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("database", cfg.Database),
		slog.Int("max_attempts", cfg.ConnectAttempts),
	)

	db, err := connect(ctx, &cfg, logger)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	logger.Info("Successfully connected to PostgreSQL",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
	)

	return &Client{db: db, logger: logger}, nil
}

func connect(ctx context.Context, cfg *Config, logger *slog.Logger) (*sqlx.DB, error) {
	wait := cfg.ConnectBackoff
	var lastErr error

	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		db, err := ping(ctx, cfg)
		if err == nil {
			return db, nil
		}
		lastErr = err

		if attempt == cfg.ConnectAttempts {
			break
		}
		logger.Warn("PostgreSQL not reachable, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait = min(wait*2, maxConnectBackoff)
	}

	logger.Error("Failed to connect to PostgreSQL",
		slog.Int("attempts", cfg.ConnectAttempts),
		slog.Any("error", lastErr),
	)
	return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", cfg.ConnectAttempts, lastErr)
}

// ping opens a pool and checks it answers within PingTimeout
func ping(ctx context.Context, cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close PostgreSQL connection", slog.Any("error", err))
		return err
	}
	c.logger.Info("PostgreSQL connection closed")
	return nil
}

// HealthCheck runs a trivial query and reports pool exhaustion
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := c.db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	stats := c.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections && stats.WaitCount > 0 {
		c.logger.Warn("PostgreSQL pool saturated",
			slog.Int("in_use", stats.InUse),
			slog.Int64("wait_count", stats.WaitCount),
			slog.Duration("wait_duration", stats.WaitDuration),
		)
	}
	return nil
}
