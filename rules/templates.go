package rules

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is a named rule preset
type Template struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Conditions  []Condition `json:"conditions"`
}

type templateDoc struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Category    string           `yaml:"category"`
	Conditions  []map[string]any `yaml:"conditions"`
}

var (
	templatesOnce sync.Once
	templateList  []Template
	templatesErr  error
)

// ParseTemplates decodes a YAML template catalog. Conditions go through the
// same JSON decoding as stored rules.
func ParseTemplates(data []byte) ([]Template, error) {
	var docs []templateDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	out := make([]Template, 0, len(docs))
	for _, d := range docs {
		raw, err := json.Marshal(d.Conditions)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", d.ID, err)
		}
		var conds []Condition
		if err := json.Unmarshal(raw, &conds); err != nil {
			return nil, fmt.Errorf("template %s: %w", d.ID, err)
		}
		out = append(out, Template{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Category:    d.Category,
			Conditions:  conds,
		})
	}
	return out, nil
}

// Templates returns the built-in catalog. Callers get their own copy.
func Templates() []Template {
	templatesOnce.Do(func() {
		templateList, templatesErr = ParseTemplates(templatesYAML)
	})
	if templatesErr != nil {
		panic(fmt.Sprintf("embedded templates are invalid: %v", templatesErr))
	}

	out := make([]Template, len(templateList))
	for i, t := range templateList {
		out[i] = t
		out[i].Conditions = make([]Condition, len(t.Conditions))
		for j, c := range t.Conditions {
			out[i].Conditions[j] = c.clone()
		}
	}
	return out
}

// NewRuleFromTemplate instantiates a template as an enabled rule with a
// fresh identifier
func NewRuleFromTemplate(templateID string) (*Rule, error) {
	for _, t := range Templates() {
		if t.ID != templateID {
			continue
		}
		return &Rule{
			ID:          uuid.NewString(),
			Name:        t.Name,
			Description: t.Description,
			Enabled:     true,
			Conditions:  t.Conditions,
		}, nil
	}
	return nil, fmt.Errorf("template %s: %w", templateID, ErrTemplateNotFound)
}
