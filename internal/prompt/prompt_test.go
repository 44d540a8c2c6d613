package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/schema"
)

func testDefinition() *schema.Definition {
	def := schema.NewDefinition("sig-v2", "2.0",
		schema.NewTable("DATA", "households",
			&schema.Field{Name: "HOUSEHOLD_ID", Type: "VARCHAR", PrimaryKey: true},
			&schema.Field{
				Name:        "INCOME_HH",
				Type:        "VARCHAR",
				Nullable:    true,
				ValidValues: []string{"A. <15k", "B. 15-20k", "C. 20-30k", "D. 30-40k", "E. 40-50k", "F. 50k+"},
			},
			&schema.Field{
				Name:             "PRESENCE_OF_CHILDREN",
				Type:             "VARCHAR",
				Nullable:         true,
				ValidValues:      []string{"Y", "N"},
				MarketingMeaning: "kids at home",
			},
		),
		schema.NewTable("EMAIL", "",
			&schema.Field{Name: "EMAIL_OPT_IN", Type: "VARCHAR", Nullable: true},
		),
	)
	def.EmailCampaignRules = &schema.UseCaseRules{
		RequiredFilters: []string{"EMAIL.EMAIL_OPT_IN = 'Y'"},
		RequiredFields:  []string{"EMAIL.EMAIL_ADDRESS"},
	}

	return def
}

type mapLookup map[string]*schema.Definition

func (m mapLookup) Load(_ context.Context, id string) (*schema.Definition, error) {
	if def, ok := m[id]; ok {
		return def, nil
	}

	return nil, errors.NewSchemaNotFound(id)
}

func TestEnumeratedPreview(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		expected string
	}{
		{"two values", []string{"Y", "N"}, "'Y', 'N'"},
		{"exactly five", []string{"a", "b", "c", "d", "e"}, "'a', 'b', 'c', 'd', 'e'"},
		{"six values elided", []string{"a", "b", "c", "d", "e", "f"}, "'a', 'b', 'c', ..., 'e', 'f' (6 total)"},
		{"quotes escaped", []string{"O'Brien"}, "'O''Brien'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EnumeratedPreview(tt.values))
		})
	}
}

func TestRenderOrder(t *testing.T) {
	minSize := 1000
	requireEmail := true

	out := Render(testDefinition(), Request{
		Prompt:      "  affluent families with children  ",
		UseCase:     UseCaseEmailMarketing,
		Constraints: &Constraints{MinSize: &minSize, RequireEmail: &requireEmail},
	})

	markers := []string{
		"SQL RULES:",
		"SCHEMA RULES FOR EMAIL-MARKETING:",
		"SCHEMA sig-v2 (version 2.0):",
		"USE CASE: EMAIL MARKETING",
		"CONSTRAINTS:",
		"USER REQUEST:\naffluent families with children\n",
	}

	last := -1

	for _, marker := range markers {
		idx := strings.Index(out, marker)
		require.NotEqual(t, -1, idx, "missing %q", marker)
		assert.Greater(t, idx, last, "%q out of order", marker)
		last = idx
	}

	assert.Contains(t, out, "- Required filter: EMAIL.EMAIL_OPT_IN = 'Y'")
	assert.Contains(t, out, "- Audience must contain at least 1000 households")
	assert.Contains(t, out, "opted-in email")
}

func TestRenderSchemaContext(t *testing.T) {
	out := SchemaContext(testDefinition())

	assert.Contains(t, out, "TABLE DATA: households")
	assert.Contains(t, out, "HOUSEHOLD_ID VARCHAR [primary key]")
	assert.Contains(t, out, "INCOME_HH VARCHAR values: 'A. <15k', 'B. 15-20k', 'C. 20-30k', ..., 'E. 40-50k', 'F. 50k+' (6 total)")
	assert.Contains(t, out, "PRESENCE_OF_CHILDREN VARCHAR values: 'Y', 'N' | meaning: kids at home")
	assert.Contains(t, out, "EMAIL_OPT_IN VARCHAR")
	assert.NotContains(t, out, "D. 30-40k")
	assert.Less(t, strings.Index(out, "TABLE DATA"), strings.Index(out, "TABLE EMAIL"))
}

func TestRenderOptionalBlocks(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		present    []string
		notPresent []string
	}{
		{
			name:       "no use case",
			req:        Request{Prompt: "x"},
			notPresent: []string{"USE CASE:", "SCHEMA RULES FOR", "CONSTRAINTS:"},
		},
		{
			name:       "unknown use case",
			req:        Request{Prompt: "x", UseCase: "billboards"},
			notPresent: []string{"USE CASE:", "SCHEMA RULES FOR"},
		},
		{
			name:       "use case without schema rules",
			req:        Request{Prompt: "x", UseCase: UseCaseLookalike},
			present:    []string{"USE CASE: LOOKALIKE"},
			notPresent: []string{"SCHEMA RULES FOR"},
		},
		{
			name:       "schema lacks rules for direct mail",
			req:        Request{Prompt: "x", UseCase: UseCaseDirectMail},
			present:    []string{"USE CASE: DIRECT MAIL"},
			notPresent: []string{"SCHEMA RULES FOR"},
		},
		{
			name:       "false flags render no constraints",
			req:        Request{Prompt: "x", Constraints: &Constraints{RequirePhone: boolPtr(false)}},
			notPresent: []string{"CONSTRAINTS:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Render(testDefinition(), tt.req)

			for _, s := range tt.present {
				assert.Contains(t, out, s)
			}

			for _, s := range tt.notPresent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestRenderDeterministic(t *testing.T) {
	req := Request{Prompt: "suppress recent movers", UseCase: UseCaseSuppression}
	assert.Equal(t, Render(testDefinition(), req), Render(testDefinition(), req))
}

func TestCompile(t *testing.T) {
	compiler := NewCompiler(mapLookup{"sig-v2": testDefinition()})

	out, err := compiler.Compile(context.Background(), Request{Prompt: "families", SchemaID: "sig-v2"})
	require.NoError(t, err)
	assert.Contains(t, out, "USER REQUEST:\nfamilies")

	_, err = compiler.Compile(context.Background(), Request{Prompt: "families", SchemaID: "nope"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchemaNotFound))
}

func TestUseCaseKnown(t *testing.T) {
	assert.True(t, UseCaseDirectMail.Known())
	assert.False(t, UseCase("billboards").Known())
	assert.False(t, UseCase("").Known())
}

func boolPtr(b bool) *bool { return &b }
