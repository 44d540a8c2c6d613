package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kyleking/segmentsql/internal/errors"
)

// document mirrors the persisted schema form. JSON documents are valid YAML,
// so both formats go through the same node-based decoder, which keeps
// mapping order.
type document struct {
	Version            scalar                    `yaml:"version"`
	Tables             orderedMap[tableDocument] `yaml:"tables"`
	EmailCampaignRules *UseCaseRules             `yaml:"email_campaign_rules"`
	DirectMailRules    *UseCaseRules             `yaml:"direct_mail_rules"`
}

type tableDocument struct {
	Description string                    `yaml:"description"`
	Fields      orderedMap[fieldDocument] `yaml:"fields"`
}

type fieldDocument struct {
	Type              string   `yaml:"type"`
	Nullable          bool     `yaml:"nullable"`
	PrimaryKey        bool     `yaml:"primary_key"`
	ValidValues       []scalar `yaml:"valid_values"`
	MarketingMeaning  string   `yaml:"marketing_meaning"`
	AIInstructions    string   `yaml:"ai_instructions"`
	CreativePotential string   `yaml:"creative_potential"`
}

// scalar keeps the literal text of any scalar node, so numeric versions and
// numeric-looking labels survive untouched
type scalar string

func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}

	*s = scalar(node.Value)

	return nil
}

type entry[V any] struct {
	Key   string
	Value V
}

// orderedMap decodes a mapping node into its entries in document order
type orderedMap[V any] []entry[V]

func (m *orderedMap[V]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	entries := make([]entry[V], 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		var value V
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("%s: %w", node.Content[i].Value, err)
		}

		entries = append(entries, entry[V]{Key: node.Content[i].Value, Value: value})
	}

	*m = entries

	return nil
}

// Decode parses a persisted schema document (JSON or YAML)
func Decode(id string, data []byte) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.Newf(errors.ErrTypeConfig, "schema %s: empty document", id)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeConfig, "schema %s: invalid document", id)
	}

	if len(doc.Tables) == 0 {
		return nil, errors.Newf(errors.ErrTypeConfig, "schema %s: no tables defined", id)
	}

	def := NewDefinition(id, string(doc.Version))
	def.EmailCampaignRules = doc.EmailCampaignRules
	def.DirectMailRules = doc.DirectMailRules

	for _, t := range doc.Tables {
		table := NewTable(t.Key, t.Value.Description)

		for _, f := range t.Value.Fields {
			field := &Field{
				Name:              f.Key,
				Type:              f.Value.Type,
				Nullable:          f.Value.Nullable,
				PrimaryKey:        f.Value.PrimaryKey,
				MarketingMeaning:  f.Value.MarketingMeaning,
				AIInstructions:    f.Value.AIInstructions,
				CreativePotential: f.Value.CreativePotential,
			}

			for _, v := range f.Value.ValidValues {
				field.ValidValues = append(field.ValidValues, string(v))
			}

			table.addField(field)
		}

		def.addTable(table)
	}

	return def, nil
}

type definitionView struct {
	ID                 string        `json:"id"`
	Version            string        `json:"version,omitempty"`
	Tables             []tableView   `json:"tables"`
	EmailCampaignRules *UseCaseRules `json:"email_campaign_rules,omitempty"`
	DirectMailRules    *UseCaseRules `json:"direct_mail_rules,omitempty"`
}

type tableView struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Fields      []fieldView `json:"fields"`
}

type fieldView struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	Nullable          bool     `json:"nullable"`
	PrimaryKey        bool     `json:"primary_key"`
	ValidValues       []string `json:"valid_values,omitempty"`
	MarketingMeaning  string   `json:"marketing_meaning,omitempty"`
	AIInstructions    string   `json:"ai_instructions,omitempty"`
	CreativePotential string   `json:"creative_potential,omitempty"`
}

// MarshalJSON renders tables and fields as arrays so document order survives
func (d *Definition) MarshalJSON() ([]byte, error) {
	view := definitionView{
		ID:                 d.ID,
		Version:            d.Version,
		Tables:             make([]tableView, 0, len(d.tables)),
		EmailCampaignRules: d.EmailCampaignRules,
		DirectMailRules:    d.DirectMailRules,
	}

	for _, table := range d.tables {
		tv := tableView{
			Name:        table.Name,
			Description: table.Description,
			Fields:      make([]fieldView, 0, len(table.fields)),
		}

		for _, field := range table.fields {
			tv.Fields = append(tv.Fields, fieldView{
				Name:              field.Name,
				Type:              field.Type,
				Nullable:          field.Nullable,
				PrimaryKey:        field.PrimaryKey,
				ValidValues:       field.ValidValues,
				MarketingMeaning:  field.MarketingMeaning,
				AIInstructions:    field.AIInstructions,
				CreativePotential: field.CreativePotential,
			})
		}

		view.Tables = append(view.Tables, tv)
	}

	return json.Marshal(view)
}
