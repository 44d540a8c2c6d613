// Package schema holds the semantic schema definitions that generation
// prompts and conformance validators are built against.
package schema

import (
	"strings"
)

// Definition is a loaded, immutable semantic schema. Table and field order
// follows the source document; lookups are case-insensitive.
type Definition struct {
	ID                 string
	Version            string
	EmailCampaignRules *UseCaseRules
	DirectMailRules    *UseCaseRules

	tables []*Table
	index  map[string]*Table
}

// Table describes one table of a schema
type Table struct {
	Name        string
	Description string

	fields []*Field
	index  map[string]*Field
}

// Field describes one column. ValidValues, when present, is the enumerated
// constraint: opaque labels compared only by exact membership.
type Field struct {
	Name              string
	Type              string
	Nullable          bool
	PrimaryKey        bool
	ValidValues       []string
	MarketingMeaning  string
	AIInstructions    string
	CreativePotential string
}

// UseCaseRules lists filters and fields a use case requires
type UseCaseRules struct {
	RequiredFilters []string `yaml:"required_filters" json:"required_filters,omitempty"`
	RequiredFields  []string `yaml:"required_fields"  json:"required_fields,omitempty"`
}

// IsEmpty reports whether the rules carry nothing to render
func (r *UseCaseRules) IsEmpty() bool {
	return r == nil || (len(r.RequiredFilters) == 0 && len(r.RequiredFields) == 0)
}

// NewDefinition builds a definition from tables in order
func NewDefinition(id, version string, tables ...*Table) *Definition {
	def := &Definition{
		ID:      id,
		Version: version,
		index:   make(map[string]*Table, len(tables)),
	}

	for _, table := range tables {
		def.addTable(table)
	}

	return def
}

// NewTable builds a table from fields in order
func NewTable(name, description string, fields ...*Field) *Table {
	table := &Table{
		Name:        name,
		Description: description,
		index:       make(map[string]*Field, len(fields)),
	}

	for _, field := range fields {
		table.addField(field)
	}

	return table
}

func (d *Definition) addTable(table *Table) {
	key := canonical(table.Name)
	if _, exists := d.index[key]; !exists {
		d.tables = append(d.tables, table)
	}

	d.index[key] = table
}

func (t *Table) addField(field *Field) {
	key := canonical(field.Name)
	if _, exists := t.index[key]; !exists {
		t.fields = append(t.fields, field)
	}

	t.index[key] = field
}

// Tables returns the tables in document order
func (d *Definition) Tables() []*Table {
	out := make([]*Table, len(d.tables))
	copy(out, d.tables)

	return out
}

// TableNames returns the canonical (upper-cased) table names in document order
func (d *Definition) TableNames() []string {
	names := make([]string, 0, len(d.tables))
	for _, table := range d.tables {
		names = append(names, canonical(table.Name))
	}

	return names
}

// Table looks up a table by name, ignoring case
func (d *Definition) Table(name string) (*Table, bool) {
	table, ok := d.index[canonical(name)]
	return table, ok
}

// HasTable reports whether the schema declares the table
func (d *Definition) HasTable(name string) bool {
	_, ok := d.Table(name)
	return ok
}

// HasField reports whether the table declares the field; false if the table is unknown
func (d *Definition) HasField(table, field string) bool {
	t, ok := d.Table(table)
	if !ok {
		return false
	}

	return t.HasField(field)
}

// FieldCount returns the number of fields across all tables
func (d *Definition) FieldCount() int {
	total := 0
	for _, table := range d.tables {
		total += len(table.fields)
	}

	return total
}

// Fields returns the fields in document order
func (t *Table) Fields() []*Field {
	out := make([]*Field, len(t.fields))
	copy(out, t.fields)

	return out
}

// Field looks up a field by name, ignoring case
func (t *Table) Field(name string) (*Field, bool) {
	field, ok := t.index[canonical(name)]
	return field, ok
}

// HasField reports whether the table declares the field
func (t *Table) HasField(name string) bool {
	_, ok := t.Field(name)
	return ok
}

// FieldNames returns the canonical field names in document order
func (t *Table) FieldNames() []string {
	names := make([]string, 0, len(t.fields))
	for _, field := range t.fields {
		names = append(names, canonical(field.Name))
	}

	return names
}

// IsEnumerated reports whether the field carries an enumerated constraint
func (f *Field) IsEnumerated() bool {
	return len(f.ValidValues) > 0
}

// Canonical is the comparison form of table and field names
func Canonical(name string) string {
	return canonical(name)
}

func canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
