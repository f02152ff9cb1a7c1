package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Driver names as registered with database/sql.
const (
	DriverClickHouse = "clickhouse"
	DriverPostgres   = "postgres"
	DriverMySQL      = "mysql"
)

// Client manages a connection pool for one of the supported drivers.
type Client struct {
	db     *sql.DB
	driver string
}

// NewClient opens a pool for the configured URL.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		Ping:            true,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	driver, dsn, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s open: %w", driver, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{db: db, driver: driver}
	if cfg.Ping {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
		defer cancel()
		if err := c.Health(ctx); err != nil {
			_ = db.Close() // best-effort close
			return nil, fmt.Errorf("%s ping: %w", driver, err)
		}
	}

	return c, nil
}

// DB returns *sql.DB for direct use.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Driver returns the database/sql driver name.
func (c *Client) Driver() string {
	return c.driver
}

// Health performs health check.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes connection pool.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// ParseURL maps a connection URL to a driver name and the DSN that driver expects.
func ParseURL(raw string) (driver, dsn string, err error) {
	if raw == "" {
		return "", "", fmt.Errorf("database url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse database url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "clickhouse", "clickhouse+http":
		return DriverClickHouse, raw, nil
	case "postgres", "postgresql":
		return DriverPostgres, raw, nil
	case "mysql":
		return DriverMySQL, mysqlDSN(u), nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
}

func mysqlDSN(u *url.URL) string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.ParseTime = true
	return cfg.FormatDSN()
}
