package formatter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kyleking/segmentsql/internal/engine"
	"github.com/kyleking/segmentsql/internal/schema"
	"github.com/kyleking/segmentsql/internal/segment"
	"github.com/kyleking/segmentsql/internal/validation"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatLong  OutputFormat = "long"
	FormatShort OutputFormat = "short"
	FormatJSON  OutputFormat = "json"
)

// ParseFormat maps a flag value onto an OutputFormat, defaulting to long
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatLong, "":
		return FormatLong, nil
	case FormatShort:
		return FormatShort, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be long, short or json)", s)
	}
}

const maxCellWidth = 40

// Formatter renders pipeline results for the terminal
type Formatter struct {
	NoColor bool
}

// NewFormatter creates a formatter that colors output only on a terminal
func NewFormatter() *Formatter {
	return &Formatter{NoColor: color.NoColor}
}

func (f *Formatter) paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	if f.NoColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}

	return c.Sprint(s)
}

// FormatResult formats a generated segment
func (f *Formatter) FormatResult(result *segment.Result, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return toJSON(result)
	case FormatShort:
		return fmt.Sprintf("%s  %s  confidence %.2f  ~%s households",
			orDash(result.SegmentName), f.status(result.Validation),
			result.Confidence, f.formatInt(result.EstimatedSize))
	default:
		return f.formatResultLong(result)
	}
}

func (f *Formatter) formatResultLong(result *segment.Result) string {
	var lines []string

	lines = append(lines, "Segment: "+orDash(result.SegmentName))
	lines = append(lines, "Description: "+orDash(result.Description))
	lines = append(lines, fmt.Sprintf("Confidence: %.0f%%", result.Confidence*100))
	lines = append(lines, "Estimated size: "+f.formatInt(result.EstimatedSize)+" households")
	lines = append(lines, fmt.Sprintf("Schema: %s  Model: %s  Generated: %s",
		result.Metadata.Schema, orDash(result.Metadata.Model), f.humanizeTimestamp(result.Metadata.Timestamp)))

	if result.Metadata.UseCase != "" {
		lines = append(lines, "Use case: "+result.Metadata.UseCase)
	}

	if result.Reasoning != "" {
		lines = append(lines, "Reasoning: "+result.Reasoning)
	}

	lines = append(lines, "", "SQL:", indent(result.SQLQuery), "")
	lines = append(lines, f.FormatVerdict(result.Validation))

	return strings.Join(lines, "\n")
}

// FormatVerdict lists errors then warnings under a validity headline
func (f *Formatter) FormatVerdict(v validation.Verdict) string {
	lines := []string{"Validation: " + f.status(v)}

	for _, e := range v.Errors {
		lines = append(lines, "  "+f.paint(color.FgRed, "error")+"   "+e)
	}

	for _, w := range v.Warnings {
		lines = append(lines, "  "+f.paint(color.FgYellow, "warning")+" "+w)
	}

	return strings.Join(lines, "\n")
}

// FormatValidation formats a verdict with plan details when present
func (f *Formatter) FormatValidation(result *segment.ValidateResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return toJSON(result)
	case FormatShort:
		return fmt.Sprintf("%s  %d errors  %d warnings", f.status(result.Verdict), len(result.Errors), len(result.Warnings))
	}

	out := f.FormatVerdict(result.Verdict)

	if plan := result.ExecutionPlan; plan != nil {
		ops := "-"
		if len(plan.Operations) > 0 {
			ops = strings.Join(plan.Operations, ", ")
		}

		out += fmt.Sprintf("\nPlan: %s complexity, ~%s rows\nOperations: %s",
			plan.Complexity, f.formatInt(plan.EstimatedRows), ops)
	}

	return out
}

// FormatPreview renders preview rows as a table followed by a summary line
func (f *Formatter) FormatPreview(result *engine.PreviewResult, format OutputFormat) string {
	if format == FormatJSON {
		return toJSON(result)
	}

	total := f.formatInt(result.TotalEstimate)
	if result.CountQueryID == engine.CountErrorID {
		total = "?"
	}

	summary := fmt.Sprintf("%d of %s households (%d ms, query %s)",
		result.RowCount, total, result.ExecutionTime, result.QueryID)

	if format == FormatShort || len(result.Columns) == 0 {
		return summary
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col.Name
	}

	t.AppendHeader(header)

	for _, record := range result.Rows {
		row := make(table.Row, len(result.Columns))
		for i, col := range result.Columns {
			row[i] = formatValue(record[col.Name])
		}

		t.AppendRow(row)
	}

	return t.Render() + "\n" + summary
}

// FormatSchema renders a schema definition
func (f *Formatter) FormatSchema(def *schema.Definition, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return toJSON(def)
	case FormatShort:
		return fmt.Sprintf("%s  v%s  %d tables  %d fields", def.ID, orDash(def.Version), len(def.Tables()), def.FieldCount())
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Schema: %s (version %s)\n", def.ID, orDash(def.Version))

	for _, tbl := range def.Tables() {
		fmt.Fprintf(&sb, "\n%s", tbl.Name)

		if tbl.Description != "" {
			fmt.Fprintf(&sb, ": %s", tbl.Description)
		}

		sb.WriteString("\n")

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Field", "Type", "Key", "Nullable", "Values"})

		for _, field := range tbl.Fields() {
			key := ""
			if field.PrimaryKey {
				key = "PK"
			}

			values := "-"
			if field.IsEnumerated() {
				values = fmt.Sprintf("%d values", len(field.ValidValues))
			}

			t.AppendRow(table.Row{field.Name, field.Type, key, field.Nullable, values})
		}

		sb.WriteString(t.Render())
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// FormatSchemaList renders schema ids one per line
func (f *Formatter) FormatSchemaList(ids []string, format OutputFormat) string {
	if format == FormatJSON {
		return toJSON(map[string][]string{"schemas": ids})
	}

	if len(ids) == 0 {
		return "No schemas found"
	}

	return strings.Join(ids, "\n")
}

func (f *Formatter) status(v validation.Verdict) string {
	if v.IsValid {
		return f.paint(color.FgGreen, "VALID")
	}

	return f.paint(color.FgRed, "INVALID")
}

// formatInt formats a count with thousands separators, "?" when unknown
func (f *Formatter) formatInt(value int64) string {
	if value < 0 {
		return "?"
	}

	return humanize.Comma(value)
}

// humanizeTimestamp renders an RFC3339 timestamp relative to now
func (f *Formatter) humanizeTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return orDash(ts)
	}

	return humanize.Time(t)
}

func formatValue(v interface{}) string {
	var s string

	switch val := v.(type) {
	case nil:
		s = "NULL"
	case time.Time:
		s = val.Format(time.RFC3339)
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}

		sort.Strings(keys)
		s = "{" + strings.Join(keys, ", ") + "}"
	default:
		s = fmt.Sprint(val)
	}

	if len(s) > maxCellWidth {
		s = s[:maxCellWidth-3] + "..."
	}

	return s
}

func toJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}

	return string(data)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}

	return s
}

func indent(sql string) string {
	lines := strings.Split(strings.TrimSpace(sql), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}

	return strings.Join(lines, "\n")
}
