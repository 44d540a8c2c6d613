// Package prompt assembles the generation prompt sent to the language model.
// Output is a pure function of the request and the schema definition.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/kyleking/segmentsql/internal/schema"
)

// UseCase selects additional generation rules
type UseCase string

const (
	UseCaseEmailMarketing UseCase = "email-marketing"
	UseCaseDirectMail     UseCase = "direct-mail"
	UseCaseLookalike      UseCase = "lookalike"
	UseCaseSuppression    UseCase = "suppression"
)

// UseCases is the fixed use-case vocabulary
var UseCases = []UseCase{
	UseCaseEmailMarketing,
	UseCaseDirectMail,
	UseCaseLookalike,
	UseCaseSuppression,
}

// Known reports whether u is in the vocabulary
func (u UseCase) Known() bool {
	for _, known := range UseCases {
		if u == known {
			return true
		}
	}

	return false
}

// Constraints narrows the requested audience
type Constraints struct {
	MinSize      *int  `json:"minSize,omitempty"`
	MaxSize      *int  `json:"maxSize,omitempty"`
	RequireEmail *bool `json:"requireEmail,omitempty"`
	RequirePhone *bool `json:"requirePhone,omitempty"`
}

// IsEmpty reports whether no constraint is set
func (c *Constraints) IsEmpty() bool {
	return c == nil || (c.MinSize == nil && c.MaxSize == nil && c.RequireEmail == nil && c.RequirePhone == nil)
}

// Request is what the compiler needs from a generation request
type Request struct {
	Prompt      string
	SchemaID    string
	UseCase     UseCase
	Constraints *Constraints
}

// Lookup resolves schema ids
type Lookup interface {
	Load(ctx context.Context, id string) (*schema.Definition, error)
}

const (
	// enumerated lists longer than this are elided in the schema context
	maxInlineValues = 5
	headValues      = 3
	tailValues      = 2
)

// Compiler builds prompts against schemas resolved through a Lookup
type Compiler struct {
	schemas Lookup
}

// NewCompiler creates a compiler
func NewCompiler(schemas Lookup) *Compiler {
	return &Compiler{schemas: schemas}
}

// Compile resolves the request's schema and renders the prompt. The only
// failure is an unresolvable schema id.
func (c *Compiler) Compile(ctx context.Context, req Request) (string, error) {
	def, err := c.schemas.Load(ctx, req.SchemaID)
	if err != nil {
		return "", err
	}

	return Render(def, req), nil
}

// Render assembles the prompt in fixed order: base rules, use-case hints
// declared by the schema, schema context, use-case instructions,
// constraints, then the user request.
func Render(def *schema.Definition, req Request) string {
	var sb strings.Builder

	sb.WriteString(baseRules)

	if hints := requiredHints(def, req.UseCase); hints != "" {
		sb.WriteString("\n\n")
		sb.WriteString(hints)
	}

	sb.WriteString("\n\n")
	sb.WriteString(SchemaContext(def))

	if block, ok := useCaseInstructions[req.UseCase]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(block)
	}

	if block := constraintBlock(req.Constraints); block != "" {
		sb.WriteString("\n\n")
		sb.WriteString(block)
	}

	sb.WriteString("\n\nUSER REQUEST:\n")
	sb.WriteString(strings.TrimSpace(req.Prompt))
	sb.WriteString("\n")

	return sb.String()
}

// RulesFor returns the schema's rules for a use case, if any
func RulesFor(def *schema.Definition, useCase UseCase) *schema.UseCaseRules {
	switch useCase {
	case UseCaseEmailMarketing:
		return def.EmailCampaignRules
	case UseCaseDirectMail:
		return def.DirectMailRules
	default:
		return nil
	}
}

func requiredHints(def *schema.Definition, useCase UseCase) string {
	rules := RulesFor(def, useCase)
	if rules.IsEmpty() {
		return ""
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "SCHEMA RULES FOR %s:", strings.ToUpper(string(useCase)))

	for _, filter := range rules.RequiredFilters {
		fmt.Fprintf(&sb, "\n- Required filter: %s", filter)
	}

	for _, field := range rules.RequiredFields {
		fmt.Fprintf(&sb, "\n- Required field: %s", field)
	}

	return sb.String()
}

// SchemaContext renders the compacted schema description
func SchemaContext(def *schema.Definition) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "SCHEMA %s", def.ID)

	if def.Version != "" {
		fmt.Fprintf(&sb, " (version %s)", def.Version)
	}

	sb.WriteString(":")

	for _, table := range def.Tables() {
		fmt.Fprintf(&sb, "\nTABLE %s", schema.Canonical(table.Name))

		if table.Description != "" {
			fmt.Fprintf(&sb, ": %s", table.Description)
		}

		for _, field := range table.Fields() {
			sb.WriteString("\n  - ")
			sb.WriteString(renderField(field))
		}
	}

	return sb.String()
}

func renderField(field *schema.Field) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s", schema.Canonical(field.Name), field.Type)

	if field.PrimaryKey {
		sb.WriteString(" [primary key]")
	}

	if !field.Nullable && !field.PrimaryKey {
		sb.WriteString(" [not null]")
	}

	if field.IsEnumerated() {
		sb.WriteString(" values: ")
		sb.WriteString(EnumeratedPreview(field.ValidValues))
	}

	if field.MarketingMeaning != "" {
		fmt.Fprintf(&sb, " | meaning: %s", field.MarketingMeaning)
	}

	if field.AIInstructions != "" {
		fmt.Fprintf(&sb, " | guidance: %s", field.AIInstructions)
	}

	if field.CreativePotential != "" {
		fmt.Fprintf(&sb, " | creative: %s", field.CreativePotential)
	}

	return sb.String()
}

// EnumeratedPreview lists every value when there are at most five, otherwise
// the first three, the last two and the total count
func EnumeratedPreview(values []string) string {
	if len(values) <= maxInlineValues {
		return quoteAll(values)
	}

	head := quoteAll(values[:headValues])
	tail := quoteAll(values[len(values)-tailValues:])

	return fmt.Sprintf("%s, ..., %s (%d total)", head, tail, len(values))
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}

	return strings.Join(quoted, ", ")
}

func constraintBlock(c *Constraints) string {
	if c.IsEmpty() {
		return ""
	}

	lines := []string{"CONSTRAINTS:"}

	if c.MinSize != nil {
		lines = append(lines, fmt.Sprintf("- Audience must contain at least %d households", *c.MinSize))
	}

	if c.MaxSize != nil {
		lines = append(lines, fmt.Sprintf("- Audience must contain at most %d households", *c.MaxSize))
	}

	if c.RequireEmail != nil && *c.RequireEmail {
		lines = append(lines, "- Only include households with a deliverable, opted-in email address")
	}

	if c.RequirePhone != nil && *c.RequirePhone {
		lines = append(lines, "- Only include households with a phone number that is not on a do-not-call list")
	}

	if len(lines) == 1 {
		return ""
	}

	return strings.Join(lines, "\n")
}
