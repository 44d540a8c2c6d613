package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kyleking/segmentsql/internal/config"
	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/logging"
	"github.com/kyleking/segmentsql/internal/sqllex"
)

// CountErrorID is the query id reported when the count round trip fails
const CountErrorID = "error"

// Column describes one result column
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// PreviewResult holds a row-limited sample of a segment and its full size.
// CountQueryID is CountErrorID when the total could not be computed.
type PreviewResult struct {
	Rows          []map[string]interface{} `json:"rows"`
	Columns       []Column                 `json:"columns"`
	RowCount      int                      `json:"rowCount"`
	TotalEstimate int64                    `json:"totalEstimate"`
	ExecutionTime int64                    `json:"executionTime"`
	QueryID       string                   `json:"queryId"`
	CountQueryID  string                   `json:"countQueryId"`
}

// CountEstimate is the size of a segment. QueryID is CountErrorID when the
// count could not be computed.
type CountEstimate struct {
	Count   int64  `json:"count"`
	QueryID string `json:"queryId"`
}

// RowBounds limits how many rows a preview may return
type RowBounds struct {
	Min     int
	Max     int
	Default int
}

// DefaultRowBounds are used when no configuration is supplied
var DefaultRowBounds = RowBounds{Min: 1, Max: 1000, Default: 100}

// Clamp resolves a requested row count. Zero or negative requests get the default.
func (b RowBounds) Clamp(requested int) int {
	n := requested
	if n <= 0 {
		n = b.Default
	}

	if n < b.Min {
		n = b.Min
	}

	if n > b.Max {
		n = b.Max
	}

	return n
}

// Executor runs previews and counts against the engine
type Executor struct {
	engine *Engine
	bounds RowBounds
}

// NewExecutor creates an executor with the given row bounds
func NewExecutor(e *Engine, bounds RowBounds) *Executor {
	if bounds.Min < 1 {
		bounds.Min = DefaultRowBounds.Min
	}

	if bounds.Max < bounds.Min {
		bounds.Max = DefaultRowBounds.Max
	}

	if bounds.Default <= 0 {
		bounds.Default = DefaultRowBounds.Default
	}

	return &Executor{engine: e, bounds: bounds}
}

// BoundsFromConfig reads preview row bounds from engine configuration
func BoundsFromConfig(cfg config.EngineConfig) RowBounds {
	return RowBounds{Min: cfg.PreviewMinRows, Max: cfg.PreviewMaxRows, Default: cfg.PreviewRows}
}

// WithLimit bounds a query to n rows. Queries with their own top-level
// LIMIT or FETCH are wrapped so the smaller bound wins. Clauses start on a
// new line so a trailing line comment cannot swallow them.
func WithLimit(sql string, n int) string {
	query := stripTerminator(sql)
	if sqllex.HasTopLevel(query, "LIMIT", "FETCH") {
		return fmt.Sprintf("SELECT * FROM (\n%s\n) AS segment_preview\nLIMIT %d", query, n)
	}

	return fmt.Sprintf("%s\nLIMIT %d", query, n)
}

// CountQuery wraps a query so the engine returns its cardinality
func CountQuery(sql string) string {
	return fmt.Sprintf("WITH segment_query AS (\n%s\n) SELECT COUNT(*) FROM segment_query", stripTerminator(sql))
}

// Preview fetches up to maxRows rows and the full count. A failed count does
// not discard the fetched rows.
func (x *Executor) Preview(ctx context.Context, sql string, maxRows int) (*PreviewResult, error) {
	logger := logging.FromContext(ctx).WithField("component", "preview")
	start := time.Now()

	ctx, db, release, err := x.engine.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	limit := x.bounds.Clamp(maxRows)

	rows, err := db.QueryContext(ctx, WithLimit(sql, limit))
	if err != nil {
		return nil, errors.WrapDeadline(err, errors.ErrTypeQueryEngine, "preview query failed")
	}

	columns, values, err := collect(rows)
	_ = rows.Close()

	if err != nil {
		return nil, errors.WrapDeadline(err, errors.ErrTypeQueryEngine, "failed to read preview rows")
	}

	records := make([]map[string]interface{}, 0, len(values))

	for _, row := range values {
		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col.Name] = row[i]
		}

		records = append(records, record)
	}

	estimate := count(ctx, db, sql)
	if estimate.QueryID == CountErrorID {
		logger.Warn("segment count failed, returning preview rows without a total")
	}

	result := &PreviewResult{
		Rows:          records,
		Columns:       columns,
		RowCount:      len(records),
		TotalEstimate: estimate.Count,
		ExecutionTime: time.Since(start).Milliseconds(),
		QueryID:       uuid.NewString(),
		CountQueryID:  estimate.QueryID,
	}

	logger.WithFields(map[string]interface{}{
		"rows":     result.RowCount,
		"total":    result.TotalEstimate,
		"duration": result.ExecutionTime,
	}).Debug("preview complete")

	return result, nil
}

// Count computes the full cardinality of a segment on its own connection
func (x *Executor) Count(ctx context.Context, sql string) (CountEstimate, error) {
	ctx, db, release, err := x.engine.connect(ctx)
	if err != nil {
		return CountEstimate{QueryID: CountErrorID}, err
	}
	defer release()

	return count(ctx, db, sql), nil
}

func count(ctx context.Context, db *sql.DB, query string) CountEstimate {
	var n int64

	if err := db.QueryRowContext(ctx, CountQuery(query)).Scan(&n); err != nil {
		logging.FromContext(ctx).WithError(err).Debug("count query failed")
		return CountEstimate{Count: 0, QueryID: CountErrorID}
	}

	return CountEstimate{Count: n, QueryID: uuid.NewString()}
}

// collect reads every row, converting byte slices to strings
func collect(rows *sql.Rows) ([]Column, [][]interface{}, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}

	columns := make([]Column, len(types))
	for i, t := range types {
		columns[i] = Column{Name: t.Name(), Type: t.DatabaseTypeName()}
	}

	var values [][]interface{}

	for rows.Next() {
		row := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))

		for i := range row {
			ptrs[i] = &row[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}

		values = append(values, row)
	}

	return columns, values, rows.Err()
}
