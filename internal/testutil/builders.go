package testutil

import (
	"encoding/json"

	"github.com/kyleking/segmentsql/internal/schema"
)

// FieldOption is a functional option for configuring test fields
type FieldOption func(*schema.Field)

// WithType sets the declared column type
func WithType(t string) FieldOption {
	return func(f *schema.Field) {
		f.Type = t
	}
}

// WithValues sets the enumerated values
func WithValues(values ...string) FieldOption {
	return func(f *schema.Field) {
		f.ValidValues = values
	}
}

// AsPrimaryKey marks the field as the primary key
func AsPrimaryKey() FieldOption {
	return func(f *schema.Field) {
		f.PrimaryKey = true
		f.Nullable = false
	}
}

// WithMeaning sets the marketing annotation
func WithMeaning(meaning string) FieldOption {
	return func(f *schema.Field) {
		f.MarketingMeaning = meaning
	}
}

// NewTestField creates a nullable VARCHAR field with optional overrides
func NewTestField(name string, opts ...FieldOption) *schema.Field {
	f := &schema.Field{
		Name:     name,
		Type:     "VARCHAR",
		Nullable: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// NewHouseholdSchema creates a small identity-graph schema with DATA and
// EMAIL tables keyed by HOUSEHOLD_ID
func NewHouseholdSchema(id string) *schema.Definition {
	return schema.NewDefinition(id, "1.0",
		schema.NewTable("DATA", "Household demographics",
			NewTestField("HOUSEHOLD_ID", AsPrimaryKey()),
			NewTestField("INCOME_HH", WithValues("A. Under $15,000", "K. $100,000-$149,999", "L. $150,000+")),
			NewTestField("PRESENCE_OF_CHILDREN", WithValues("Y", "N")),
			NewTestField("AGE_HH", WithType("INTEGER")),
		),
		schema.NewTable("EMAIL", "Email contacts",
			NewTestField("HOUSEHOLD_ID", AsPrimaryKey()),
			NewTestField("EMAIL_ADDRESS"),
		),
	)
}

// CandidateResponse renders a model response carrying sqlQuery, wrapped in
// prose the way chat models tend to answer
func CandidateResponse(sql string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"sqlQuery":      sql,
		"segmentName":   "Affluent Families",
		"description":   "Households earning $100k-$150k",
		"reasoning":     "Income band K covers the requested range",
		"confidence":    0.9,
		"estimatedSize": 125000,
	})

	return "Here is the segment:\n```json\n" + string(body) + "\n```"
}
