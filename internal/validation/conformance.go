package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/schema"
	"github.com/kyleking/segmentsql/internal/sqllex"
)

// Conformance strategies
const (
	StrategyRegex     = "regex"
	StrategyTokenizer = "tokenizer"
)

// Conformance error and warning messages
const (
	MsgNoTables       = "no recognizable tables referenced in query"
	msgInvalidTableF  = "invalid table %s; valid tables: %s"
	msgUnknownFieldF  = "unknown field %s in table %s"
	msgValidatorPanic = "schema validation failed: %v"
)

// SchemaValidator cross-checks a query's references against a schema
type SchemaValidator interface {
	Name() string
	Validate(sql string, def *schema.Definition) Verdict
}

// NewSchemaValidator returns the validator for a strategy name
func NewSchemaValidator(strategy string) (SchemaValidator, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case StrategyRegex, "":
		return RegexValidator{}, nil
	case StrategyTokenizer:
		return TokenValidator{}, nil
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("unknown validation strategy: %s", strategy), "validation.strategy")
	}
}

// CheckConformance runs validator, converting any panic into a single error
func CheckConformance(validator SchemaValidator, sql string, def *schema.Definition) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = Failed(fmt.Sprintf(msgValidatorPanic, r))
		}
	}()

	if def == nil {
		return Failed(fmt.Sprintf(msgValidatorPanic, "schema definition is missing"))
	}

	return validator.Validate(sql, def)
}

// reference is a table or qualified column found in the query, upper-cased
type reference struct {
	tables  []string
	aliases map[string]string
	columns [][2]string
	exclude map[string]struct{}
}

// check applies the shared table and field rules to extracted references
func (r reference) check(def *schema.Definition) Verdict {
	v := NewVerdict()

	if len(r.tables) == 0 {
		v.AddError(MsgNoTables)
		return v
	}

	valid := strings.Join(def.TableNames(), ", ")
	reported := make(map[string]struct{})

	for _, table := range r.tables {
		if def.HasTable(table) {
			continue
		}

		if _, done := reported[table]; done {
			continue
		}

		reported[table] = struct{}{}
		v.AddError(fmt.Sprintf(msgInvalidTableF, table, valid))
	}

	warned := make(map[string]struct{})

	for _, col := range r.columns {
		qualifier, field := col[0], col[1]

		table, ok := r.aliases[qualifier]
		if !ok {
			table = qualifier
		}

		if _, skip := r.exclude[table]; skip || !def.HasTable(table) {
			continue
		}

		if def.HasField(table, field) {
			continue
		}

		key := table + "." + field
		if _, done := warned[key]; done {
			continue
		}

		warned[key] = struct{}{}
		v.AddWarning(fmt.Sprintf(msgUnknownFieldF, field, table))
	}

	return v
}

var (
	stringLiteralPattern = regexp.MustCompile(`'(?:[^']|'')*'`)
	tableRefPattern      = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+((?:[A-Za-z_][\w$]*\.)*[A-Za-z_][\w$]*)`)
	aliasPattern         = regexp.MustCompile(`(?i)^\s+(?:AS\s+)?([A-Za-z_][\w$]*)`)
	fieldRefPattern      = regexp.MustCompile(`\b([A-Za-z_][\w$]*)\.([A-Za-z_][\w$]*)\b`)
)

// RegexValidator is the fast pattern-matching strategy. It is lossy: it
// cannot see through subqueries, CTE names or aliased expressions, so
// unknown fields are only warnings.
type RegexValidator struct{}

// Name returns the strategy name
func (RegexValidator) Name() string { return StrategyRegex }

// Validate extracts FROM/JOIN tables and qualified fields by pattern
func (RegexValidator) Validate(sql string, def *schema.Definition) Verdict {
	text := stringLiteralPattern.ReplaceAllString(sql, "''")

	ref := reference{aliases: make(map[string]string)}

	for _, m := range tableRefPattern.FindAllStringSubmatchIndex(text, -1) {
		parts := strings.Split(text[m[2]:m[3]], ".")
		table := schema.Canonical(parts[len(parts)-1])
		ref.tables = append(ref.tables, table)

		// the alias is read without consuming it, so "FROM a JOIN b" still sees b
		if a := aliasPattern.FindStringSubmatch(text[m[1]:]); a != nil && !sqllex.IsKeyword(a[1]) {
			ref.aliases[schema.Canonical(a[1])] = table
		}
	}

	for _, m := range fieldRefPattern.FindAllStringSubmatch(text, -1) {
		ref.columns = append(ref.columns, [2]string{schema.Canonical(m[1]), schema.Canonical(m[2])})
	}

	return ref.check(def)
}

// TokenValidator is the tokenizer-backed strategy. It ignores literals and
// comments and excludes CTE names from the table check.
type TokenValidator struct{}

// Name returns the strategy name
func (TokenValidator) Name() string { return StrategyTokenizer }

// Validate extracts references from the token stream
func (TokenValidator) Validate(sql string, def *schema.Definition) Verdict {
	refs := sqllex.Extract(sql)

	ref := reference{
		aliases: make(map[string]string),
		exclude: make(map[string]struct{}),
	}

	for _, cte := range refs.CTEs {
		ref.exclude[schema.Canonical(cte)] = struct{}{}
	}

	for _, t := range refs.Tables {
		table := schema.Canonical(t.Name)

		if t.Alias != "" {
			ref.aliases[schema.Canonical(t.Alias)] = table
		}

		if _, isCTE := ref.exclude[table]; isCTE {
			continue
		}

		ref.tables = append(ref.tables, table)
	}

	for _, c := range refs.Columns {
		ref.columns = append(ref.columns, [2]string{schema.Canonical(c.Qualifier), schema.Canonical(c.Column)})
	}

	return ref.check(def)
}
