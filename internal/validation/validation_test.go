package validation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/schema"
)

func sigV2() *schema.Definition {
	return schema.NewDefinition("sig-v2", "2.0",
		schema.NewTable("DATA", "",
			&schema.Field{Name: "HOUSEHOLD_ID", Type: "VARCHAR", PrimaryKey: true},
			&schema.Field{Name: "INCOME_HH", Type: "VARCHAR", ValidValues: []string{"K. $100,000-$149,999"}},
			&schema.Field{Name: "PRESENCE_OF_CHILDREN", Type: "VARCHAR"},
		),
		schema.NewTable("EMAIL", "",
			&schema.Field{Name: "HOUSEHOLD_ID", Type: "VARCHAR"},
			&schema.Field{Name: "EMAIL_ADDRESS", Type: "VARCHAR"},
		),
	)
}

const validSegment = "SELECT DISTINCT d.HOUSEHOLD_ID FROM DATA d WHERE d.INCOME_HH IN ('K. $100,000-$149,999')"

func TestMerge(t *testing.T) {
	a := NewVerdict()
	a.AddWarning("w1")

	b := NewVerdict()
	b.AddError("e1")
	b.AddWarning("w2")

	c := NewVerdict()
	c.AddError("e2")

	merged := Merge(a, b, c)
	assert.False(t, merged.IsValid)
	assert.Equal(t, []string{"e1", "e2"}, merged.Errors)
	assert.Equal(t, []string{"w1", "w2"}, merged.Warnings)

	assert.True(t, Merge(a, NewVerdict()).IsValid)
	assert.True(t, Merge().IsValid)
	assert.NotNil(t, Merge().Errors)
}

func TestMergeIsConjunction(t *testing.T) {
	for _, first := range []bool{true, false} {
		for _, second := range []bool{true, false} {
			v1, v2 := NewVerdict(), NewVerdict()

			if !first {
				v1.AddError("first")
			}

			if !second {
				v2.AddError("second")
			}

			assert.Equal(t, first && second, Merge(v1, v2).IsValid)
		}
	}
}

func TestCheckSyntaxValid(t *testing.T) {
	v := CheckSyntax(validSegment)
	assert.True(t, v.IsValid)
	assert.Empty(t, v.Errors)
	assert.Empty(t, v.Warnings)

}

func TestCheckSyntaxRejectsLeadingWith(t *testing.T) {
	v := CheckSyntax("WITH x AS (SELECT HOUSEHOLD_ID FROM DATA) SELECT DISTINCT HOUSEHOLD_ID FROM x")
	assert.False(t, v.IsValid)
	assert.Equal(t, []string{MsgMustStartSelect}, v.Errors)
}

func TestCheckSyntaxEmpty(t *testing.T) {
	for _, sql := range []string{"", "   ", "\n\t"} {
		v := CheckSyntax(sql)
		assert.False(t, v.IsValid)
		assert.Equal(t, []string{MsgEmptyQuery}, v.Errors)
		assert.Empty(t, v.Warnings)
	}
}

func TestCheckSyntaxDeniedKeywords(t *testing.T) {
	for _, kw := range DeniedKeywords {
		variants := []string{
			kw + " TABLE DATA",
			"SELECT DISTINCT a FROM DATA; " + strings.ToLower(kw) + " something",
			"select distinct a from DATA where x = 1 " + strings.ToUpper(kw[:1]) + strings.ToLower(kw[1:]),
		}

		for _, sql := range variants {
			t.Run(sql, func(t *testing.T) {
				v := CheckSyntax(sql)
				assert.False(t, v.IsValid)
				assert.Contains(t, v.Errors, fmt.Sprintf("forbidden keyword: %s", kw))
			})
		}
	}
}

func TestCheckSyntaxKeywordsAreWholeWords(t *testing.T) {
	v := CheckSyntax("SELECT DISTINCT d.CREATED_AT, d.UPDATE_DATE FROM DATA d WHERE d.DROPPED = 'N'")
	assert.True(t, v.IsValid, "errors: %v", v.Errors)
}

func TestCheckSyntaxRules(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		errors   []string
		warnings []string
	}{
		{
			name:     "missing distinct is a warning",
			sql:      "SELECT d.HOUSEHOLD_ID FROM DATA d",
			warnings: []string{MsgMissingDistinct},
		},
		{
			name:     "distinct star has no warning",
			sql:      "SELECT DISTINCT * FROM DATA",
			warnings: nil,
		},
		{
			name:     "plain select star",
			sql:      "SELECT * FROM DATA",
			warnings: []string{MsgMissingDistinct, MsgSelectStar},
		},
		{
			name:     "unbalanced open",
			sql:      "SELECT DISTINCT COUNT((x) FROM DATA",
			errors:   []string{MsgUnbalancedParens},
			warnings: nil,
		},
		{
			name:   "unbalanced close",
			sql:    "SELECT DISTINCT x) FROM DATA",
			errors: []string{MsgUnbalancedParens},
		},
		{
			name:     "not a select and no from",
			sql:      "EXPLAIN ANALYZE 1",
			errors:   []string{MsgMustStartSelect, MsgMissingFrom},
			warnings: []string{MsgMissingDistinct},
		},
		{
			name:     "selected is not select",
			sql:      "SELECTED DISTINCT FROM DATA",
			errors:   []string{MsgMustStartSelect},
			warnings: nil,
		},
		{
			name: "drop accumulates every problem",
			sql:  "DROP TABLE DATA (",
			errors: []string{
				MsgMustStartSelect,
				MsgMissingFrom,
				"forbidden keyword: DROP",
				MsgUnbalancedParens,
			},
			warnings: []string{MsgMissingDistinct},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := CheckSyntax(tt.sql)

			if len(tt.errors) == 0 {
				assert.True(t, v.IsValid)
				assert.Empty(t, v.Errors)
			} else {
				assert.False(t, v.IsValid)
				assert.Equal(t, tt.errors, v.Errors)
			}

			if tt.warnings == nil {
				assert.Empty(t, v.Warnings)
			} else {
				assert.Equal(t, tt.warnings, v.Warnings)
			}
		})
	}
}

func TestCheckSyntaxBalancedReadOnlyIsValid(t *testing.T) {
	queries := []string{
		"SELECT DISTINCT a FROM t",
		"select distinct (a) from t where (b = 1 and (c = 2))",
		"SELECT DISTINCT a FROM t WHERE b IN (SELECT b FROM u)",
	}

	for _, sql := range queries {
		assert.True(t, CheckSyntax(sql).IsValid, sql)
	}
}

func strategies(t *testing.T) []SchemaValidator {
	t.Helper()

	var out []SchemaValidator

	for _, name := range []string{StrategyRegex, StrategyTokenizer} {
		v, err := NewSchemaValidator(name)
		require.NoError(t, err)

		out = append(out, v)
	}

	return out
}

func TestNewSchemaValidator(t *testing.T) {
	v, err := NewSchemaValidator("")
	require.NoError(t, err)
	assert.Equal(t, StrategyRegex, v.Name())

	v, err = NewSchemaValidator(" Tokenizer ")
	require.NoError(t, err)
	assert.Equal(t, StrategyTokenizer, v.Name())

	_, err = NewSchemaValidator("parser")
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestConformance(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		valid    bool
		errors   []string
		warnings []string
	}{
		{
			name:  "valid segment",
			sql:   validSegment,
			valid: true,
		},
		{
			name:  "lower-case table and alias",
			sql:   "select distinct d.household_id from data d join email e on e.household_id = d.household_id",
			valid: true,
		},
		{
			name:   "unknown table lists valid tables",
			sql:    "SELECT DISTINCT p.HOUSEHOLD_ID FROM PHONE p",
			errors: []string{"invalid table PHONE; valid tables: DATA, EMAIL"},
		},
		{
			name:   "invalid table reported once",
			sql:    "SELECT DISTINCT 1 FROM PHONE JOIN PHONE ON TRUE",
			errors: []string{"invalid table PHONE; valid tables: DATA, EMAIL"},
		},
		{
			name:   "no tables",
			sql:    "SELECT 1",
			errors: []string{MsgNoTables},
		},
		{
			name:   "drop statement has no tables",
			sql:    "DROP TABLE DATA",
			errors: []string{MsgNoTables},
		},
		{
			name:     "unknown field is a warning",
			sql:      "SELECT DISTINCT d.HOUSEHOLD_ID FROM DATA d WHERE d.NET_WORTH = 'A' AND d.NET_WORTH = 'B'",
			valid:    true,
			warnings: []string{"unknown field NET_WORTH in table DATA"},
		},
		{
			name:     "table-qualified field",
			sql:      "SELECT DISTINCT DATA.HOUSEHOLD_ID FROM DATA WHERE DATA.AGE > 30",
			valid:    true,
			warnings: []string{"unknown field AGE in table DATA"},
		},
		{
			name:  "schema qualified table",
			sql:   "SELECT DISTINCT d.HOUSEHOLD_ID FROM main.DATA d",
			valid: true,
		},
		{
			name:  "unknown qualifier is ignored",
			sql:   "SELECT DISTINCT x.FOO FROM DATA d",
			valid: true,
		},
		{
			name:  "dotted text inside literals is ignored",
			sql:   "SELECT DISTINCT d.HOUSEHOLD_ID FROM DATA d WHERE d.INCOME_HH = 'from PHONE.number'",
			valid: true,
		},
	}

	for _, validator := range strategies(t) {
		for _, tt := range tests {
			t.Run(validator.Name()+"/"+tt.name, func(t *testing.T) {
				v := CheckConformance(validator, tt.sql, sigV2())

				if len(tt.errors) > 0 {
					assert.False(t, v.IsValid)
					assert.Equal(t, tt.errors, v.Errors)
				} else {
					assert.Equal(t, tt.valid, v.IsValid, "errors: %v", v.Errors)
					assert.Empty(t, v.Errors)
				}

				if tt.warnings == nil {
					assert.Empty(t, v.Warnings)
				} else {
					assert.Equal(t, tt.warnings, v.Warnings)
				}
			})
		}
	}
}

func TestTokenizerExcludesCTEs(t *testing.T) {
	sql := "WITH rich AS (SELECT HOUSEHOLD_ID FROM DATA WHERE INCOME_HH = 'K') SELECT DISTINCT r.HOUSEHOLD_ID FROM rich r"

	tokenizer := CheckConformance(TokenValidator{}, sql, sigV2())
	assert.True(t, tokenizer.IsValid, "errors: %v", tokenizer.Errors)

	regex := CheckConformance(RegexValidator{}, sql, sigV2())
	assert.False(t, regex.IsValid)
	assert.Contains(t, regex.Errors[0], "invalid table RICH")
}

type panickingValidator struct{}

func (panickingValidator) Name() string { return "panic" }

func (panickingValidator) Validate(string, *schema.Definition) Verdict {
	panic("lookup exploded")
}

func TestCheckConformanceRecovers(t *testing.T) {
	v := CheckConformance(panickingValidator{}, validSegment, sigV2())
	assert.False(t, v.IsValid)
	assert.Equal(t, []string{"schema validation failed: lookup exploded"}, v.Errors)

	missing := CheckConformance(RegexValidator{}, validSegment, nil)
	assert.False(t, missing.IsValid)
	assert.Len(t, missing.Errors, 1)
}

func TestRunStatic(t *testing.T) {
	ctx := context.Background()

	valid := RunStatic(ctx, validSegment, sigV2(), RegexValidator{})
	assert.True(t, valid.IsValid)
	assert.Empty(t, valid.Errors)

	drop := RunStatic(ctx, "DROP TABLE DATA", sigV2(), RegexValidator{})
	assert.False(t, drop.IsValid)
	assert.Equal(t, []string{
		MsgMustStartSelect,
		MsgMissingFrom,
		"forbidden keyword: DROP",
		MsgNoTables,
	}, drop.Errors)
}

func TestRunStaticMatchesSequentialMerge(t *testing.T) {
	queries := []string{
		validSegment,
		"SELECT p.X FROM PHONE p",
		"DELETE FROM DATA",
		"",
		"SELECT DISTINCT d.BOGUS FROM DATA d WHERE (1 = 1",
	}

	for _, sql := range queries {
		for _, validator := range strategies(t) {
			expected := Merge(CheckSyntax(sql), CheckConformance(validator, sql, sigV2()))

			for range 5 {
				assert.Equal(t, expected, RunStatic(context.Background(), sql, sigV2(), validator), sql)
			}
		}
	}
}
