package engine

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/logging"
	"github.com/kyleking/segmentsql/internal/validation"
)

// Complexity classes
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

const (
	highRowThreshold   = 1_000_000
	mediumRowThreshold = 100_000
)

// Operations is the plan vocabulary recognized by AnalyzePlan, in report order
var Operations = []string{"table scan", "filter", "join", "aggregate", "sort", "limit", "distinct", "project", "group by"}

var rowHintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brows\s*=\s*(\d[\d,]*)`),
	regexp.MustCompile(`(?i)\brows:\s*(\d[\d,]*)`),
	regexp.MustCompile(`(?i)\bcardinality\s*[:=]\s*(\d[\d,]*)`),
	regexp.MustCompile(`(?i)\boutput\s*=\s*(\d[\d,]*)`),
	regexp.MustCompile(`\bEC:\s*(\d[\d,]*)`),
	regexp.MustCompile(`(?i)~\s*(\d[\d,]*)\s+rows\b`),
}

var separatorPattern = regexp.MustCompile(`[\s_]+`)

// ExplainAnalysis is derived from plan text and never stored
type ExplainAnalysis struct {
	EstimatedRows int64    `json:"estimatedRows"`
	Operations    []string `json:"operations"`
	Complexity    string   `json:"complexity"`
	Summary       string   `json:"summary"`
}

// AnalyzePlan extracts a row estimate, the recognized operations and a
// complexity class from plan text. It never fails: a parsing panic yields
// zero rows, no operations and medium complexity.
func AnalyzePlan(text string) ExplainAnalysis {
	return safeAnalyze(text, analyze)
}

func safeAnalyze(text string, fn func(string) ExplainAnalysis) (result ExplainAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			result = ExplainAnalysis{
				EstimatedRows: 0,
				Operations:    []string{},
				Complexity:    ComplexityMedium,
				Summary:       fmt.Sprintf("query plan could not be parsed: %v", r),
			}
		}
	}()

	return fn(text)
}

func analyze(text string) ExplainAnalysis {
	var estimate int64

	for _, pattern := range rowHintPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			n, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
			if err != nil {
				continue
			}

			if n > estimate {
				estimate = n
			}
		}
	}

	normalized := separatorPattern.ReplaceAllString(strings.ToLower(text), " ")

	ops := []string{}
	present := make(map[string]bool)

	for _, op := range Operations {
		if strings.Contains(normalized, op) {
			ops = append(ops, op)
			present[op] = true
		}
	}

	complexity := classify(estimate, present["join"], present["aggregate"])

	summary := fmt.Sprintf("estimated %d rows, %s complexity", estimate, complexity)
	if len(ops) > 0 {
		summary += "; operations: " + strings.Join(ops, ", ")
	}

	return ExplainAnalysis{
		EstimatedRows: estimate,
		Operations:    ops,
		Complexity:    complexity,
		Summary:       summary,
	}
}

func classify(rows int64, join, aggregate bool) string {
	switch {
	case rows > highRowThreshold:
		return ComplexityHigh
	case join && aggregate:
		return ComplexityHigh
	case rows > mediumRowThreshold:
		return ComplexityMedium
	case join || aggregate:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// PlanReport is the outcome of a plan validation
type PlanReport struct {
	Verdict           validation.Verdict `json:"verdict"`
	EstimatedRowCount int64              `json:"estimatedRowCount"`
	ExecutionPlan     *ExplainAnalysis   `json:"executionPlan,omitempty"`
}

// PlanValidator asks the engine whether it accepts a query and how it would run it
type PlanValidator struct {
	engine *Engine
}

// NewPlanValidator creates a plan validator backed by e
func NewPlanValidator(e *Engine) *PlanValidator {
	return &PlanValidator{engine: e}
}

// Validate submits the query, then its EXPLAIN, and analyzes the plan. An
// engine rejection is reported in the verdict; only connection failures
// and timeouts are returned as errors.
func (p *PlanValidator) Validate(ctx context.Context, sql string) (*PlanReport, error) {
	logger := logging.FromContext(ctx).WithField("component", "plan")

	ctx, db, release, err := p.engine.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := stripTerminator(sql)
	report := &PlanReport{Verdict: validation.NewVerdict()}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WrapDeadline(ctx.Err(), errors.ErrTypeQueryEngine, "query engine did not answer")
		}

		logger.WithError(err).Debug("engine rejected query")
		report.Verdict.AddError(err.Error())

		return report, nil
	}

	_ = rows.Close()

	text, err := explain(ctx, db, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WrapDeadline(ctx.Err(), errors.ErrTypeQueryEngine, "query engine did not answer")
		}

		perr := errors.Wrap(err, errors.ErrTypePlanParsing, "failed to read query plan")
		logger.WithError(perr).Warn("plan unavailable, using default complexity")

		analysis := ExplainAnalysis{
			Operations: []string{},
			Complexity: ComplexityMedium,
			Summary:    "query plan unavailable: " + err.Error(),
		}
		report.ExecutionPlan = &analysis

		return report, nil
	}

	analysis := AnalyzePlan(text)
	report.EstimatedRowCount = analysis.EstimatedRows
	report.ExecutionPlan = &analysis

	logger.WithFields(map[string]interface{}{
		"estimated_rows": analysis.EstimatedRows,
		"complexity":     analysis.Complexity,
	}).Debug("query plan analyzed")

	return report, nil
}

// explain runs EXPLAIN and joins every text column of every plan row
func explain(ctx context.Context, db *sql.DB, query string) (string, error) {
	rows, err := db.QueryContext(ctx, "EXPLAIN "+query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	_, values, err := collect(rows)
	if err != nil {
		return "", err
	}

	var lines []string

	for _, row := range values {
		for _, value := range row {
			if s, ok := value.(string); ok && s != "" {
				lines = append(lines, s)
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}
