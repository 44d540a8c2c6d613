// Package engine talks to the analytical query engine that plans and
// previews segment queries. Every interaction opens its own connection and
// releases it before returning.
package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/kyleking/segmentsql/internal/config"
	"github.com/kyleking/segmentsql/internal/errors"
)

// Supported engine drivers
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

const defaultQueryTimeout = 30 * time.Second

// Opener returns a fresh database handle for a single engine interaction.
// The caller owns the handle and must close it.
type Opener func(ctx context.Context) (*sql.DB, error)

// Engine holds what every engine call needs: how to connect and how long to wait
type Engine struct {
	driver  string
	open    Opener
	timeout time.Duration
}

// New creates an engine from an explicit opener
func New(driver string, open Opener, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}

	return &Engine{
		driver:  strings.ToLower(driver),
		open:    open,
		timeout: timeout,
	}
}

// NewFromConfig creates an engine for the configured driver and DSN
func NewFromConfig(cfg config.EngineConfig) (*Engine, error) {
	open, err := NewOpener(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	return New(cfg.Driver, open, config.Duration(cfg.QueryTimeout, defaultQueryTimeout)), nil
}

// DriverName maps a configured driver onto its database/sql registration name
func DriverName(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverDuckDB, "":
		return "duckdb", nil
	case DriverPostgres, "postgresql", "pgx":
		return "pgx", nil
	default:
		return "", errors.NewConfigError("unsupported engine driver: "+driver, "engine.driver")
	}
}

// NewOpener returns an opener that connects with a single-connection pool
func NewOpener(driver, dsn string) (Opener, error) {
	name, err := DriverName(driver)
	if err != nil {
		return nil, err
	}

	if name == "duckdb" && dsn != ":memory:" {
		dsn = config.ExpandPath(dsn)
	}

	return func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open(name, dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeQueryEngine, "failed to open query engine")
		}

		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, errors.WrapDeadline(err, errors.ErrTypeQueryEngine, "failed to connect to query engine")
		}

		return db, nil
	}, nil
}

// Driver returns the lower-cased configured driver
func (e *Engine) Driver() string {
	return e.driver
}

// connect applies the query timeout and opens a dedicated handle. The
// returned release func closes the handle and cancels the context.
func (e *Engine) connect(ctx context.Context) (context.Context, *sql.DB, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)

	db, err := e.open(ctx)
	if err != nil {
		cancel()

		if errors.GetType(err) == errors.ErrTypeInternal {
			err = errors.WrapDeadline(err, errors.ErrTypeQueryEngine, "failed to connect to query engine")
		}

		return nil, nil, nil, err
	}

	release := func() {
		_ = db.Close()
		cancel()
	}

	return ctx, db, release, nil
}

// stripTerminator removes surrounding whitespace and trailing semicolons
func stripTerminator(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
}
