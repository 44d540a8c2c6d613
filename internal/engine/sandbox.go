package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/logging"
	"github.com/kyleking/segmentsql/internal/schema"
	"github.com/kyleking/segmentsql/internal/sqllex"
)

const sandboxTableDDL = `
	CREATE TABLE IF NOT EXISTS sandbox_schemas (
		schema_id VARCHAR NOT NULL,
		version VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (schema_id, version)
	);`

var (
	plainIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	columnTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ]*(\(\s*\d+\s*(,\s*\d+\s*)?\))?$`)
)

// SandboxStatus reports whether a schema version has been created in the sandbox
type SandboxStatus struct {
	SchemaID  string    `json:"schema_id"`
	Version   string    `json:"version"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

// Sandbox creates empty tables for a schema so queries can be planned and
// previewed against a local engine
type Sandbox struct {
	engine *Engine
}

// NewSandbox creates a sandbox manager backed by e
func NewSandbox(e *Engine) *Sandbox {
	return &Sandbox{engine: e}
}

// TableDDL returns one CREATE TABLE statement per table, in document order
func TableDDL(def *schema.Definition) []string {
	statements := make([]string, 0, len(def.Tables()))

	for _, table := range def.Tables() {
		var columns, keys []string

		for _, field := range table.Fields() {
			col := quoteIdent(field.Name) + " " + columnType(field.Type)
			if !field.Nullable {
				col += " NOT NULL"
			}

			columns = append(columns, col)

			if field.PrimaryKey {
				keys = append(keys, quoteIdent(field.Name))
			}
		}

		if len(keys) > 0 {
			columns = append(columns, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
		}

		statements = append(statements, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
			quoteIdent(table.Name), strings.Join(columns, ",\n\t")))
	}

	return statements
}

// Init creates the schema's tables once per schema version. It reports
// whether anything was applied.
func (s *Sandbox) Init(ctx context.Context, def *schema.Definition) (bool, error) {
	logger := logging.FromContext(ctx).WithField("schema", def.ID)

	ctx, db, release, err := s.engine.connect(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	if _, err := db.ExecContext(ctx, sandboxTableDDL); err != nil {
		return false, errors.Wrap(err, errors.ErrTypeQueryEngine, "failed to create sandbox tracking table")
	}

	var n int

	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sandbox_schemas WHERE schema_id = $1 AND version = $2",
		def.ID, def.Version).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrTypeQueryEngine, "failed to check sandbox status")
	}

	if n > 0 {
		logger.Debug("sandbox already initialized")
		return false, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrTypeQueryEngine, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	for _, stmt := range TableDDL(def) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return false, errors.Wrapf(err, errors.ErrTypeQueryEngine, "failed to create sandbox table for %s", def.ID)
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO sandbox_schemas (schema_id, version) VALUES ($1, $2)",
		def.ID, def.Version)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrTypeQueryEngine, "failed to record sandbox schema %s", def.ID)
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, errors.ErrTypeQueryEngine, "failed to commit sandbox schema")
	}

	logger.WithField("tables", len(def.Tables())).Info("sandbox initialized")

	return true, nil
}

// Status returns the sandbox record for the schema's current version
func (s *Sandbox) Status(ctx context.Context, def *schema.Definition) (SandboxStatus, error) {
	status := SandboxStatus{SchemaID: def.ID, Version: def.Version}

	ctx, db, release, err := s.engine.connect(ctx)
	if err != nil {
		return status, err
	}
	defer release()

	if _, err := db.ExecContext(ctx, sandboxTableDDL); err != nil {
		return status, errors.Wrap(err, errors.ErrTypeQueryEngine, "failed to create sandbox tracking table")
	}

	rows, err := db.QueryContext(ctx,
		"SELECT applied_at FROM sandbox_schemas WHERE schema_id = $1 AND version = $2",
		def.ID, def.Version)
	if err != nil {
		return status, errors.Wrap(err, errors.ErrTypeQueryEngine, "failed to query sandbox status")
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&status.AppliedAt); err != nil {
			return status, errors.Wrap(err, errors.ErrTypeQueryEngine, "failed to scan sandbox status")
		}

		status.Applied = true
	}

	return status, rows.Err()
}

func quoteIdent(name string) string {
	if plainIdentPattern.MatchString(name) && !sqllex.IsKeyword(name) {
		return name
	}

	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnType(declared string) string {
	t := strings.TrimSpace(declared)
	if t == "" || !columnTypePattern.MatchString(t) {
		return "VARCHAR"
	}

	return strings.ToUpper(t)
}
