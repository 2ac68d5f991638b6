package study

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var embedded embed.FS

// Scenario is one topic condition: a narrative case plus a task instruction.
type Scenario struct {
	ID   string `yaml:"id"`
	Case string `yaml:"case"`
	Task string `yaml:"task"`
}

// Section groups questions whose answers are serialized together into one
// record-store field (e.g. familiarity_responses).
type Section struct {
	Key       string   `yaml:"key"`
	Field     string   `yaml:"field"`
	Points    int      `yaml:"points"`
	Labels    []string `yaml:"labels,omitempty"`
	Questions []string `yaml:"questions"`
	// Reverse holds 1-based indices of reverse-worded questions.
	Reverse  []int `yaml:"reverse,omitempty"`
	FreeText bool  `yaml:"free_text,omitempty"`
}

// Page is one step of the fixed linear flow.
type Page struct {
	Name string `yaml:"name"`
	// Table is the record-store table the page submits to. Empty means the
	// page advances without a remote write (check, task, thankyou).
	Table string `yaml:"table,omitempty"`
	// UniqueKey enables the duplicate-guarded insert keyed by this field.
	UniqueKey string `yaml:"unique_key,omitempty"`
	// Progress overrides the position-derived percentage when set.
	Progress *int `yaml:"progress,omitempty"`
	// Fields are scalar answer keys copied into the record as-is.
	Fields []string `yaml:"fields,omitempty"`
	// Required keys must be answered before an unconfirmed submit passes.
	Required []string  `yaml:"required,omitempty"`
	Sections []Section `yaml:"sections,omitempty"`
}

// Definition is the whole declarative study configuration.
type Definition struct {
	Title           string     `yaml:"title"`
	MinDwellSeconds int        `yaml:"min_dwell_seconds"`
	CompletionCode  string     `yaml:"completion_code"`
	CompletionURL   string     `yaml:"completion_url"`
	Scenarios       []Scenario `yaml:"scenarios"`
	Pages           []Page     `yaml:"pages"`
}

// Load reads a study definition from path, or the embedded default when
// path is empty.
func Load(path string) (*Definition, error) {
	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read study file: %w", err)
		}
	} else {
		data, err = embedded.ReadFile("default.yaml")
		if err != nil {
			return nil, fmt.Errorf("read embedded study file: %w", err)
		}
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse study file: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the structural invariants the flow controller relies on.
func (d *Definition) Validate() error {
	if len(d.Pages) == 0 {
		return fmt.Errorf("study: no pages defined")
	}
	if len(d.Scenarios) == 0 {
		return fmt.Errorf("study: no scenarios defined")
	}
	if d.MinDwellSeconds <= 0 {
		return fmt.Errorf("study: min_dwell_seconds must be positive")
	}
	seen := map[string]bool{}
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("study: page with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("study: duplicate page %q", p.Name)
		}
		seen[p.Name] = true
		for _, sec := range p.Sections {
			if sec.Field == "" {
				return fmt.Errorf("study: page %s section %s has no field", p.Name, sec.Key)
			}
			for _, idx := range sec.Reverse {
				if idx < 1 || idx > len(sec.Questions) {
					return fmt.Errorf("study: page %s section %s reverse index %d out of range", p.Name, sec.Key, idx)
				}
			}
		}
	}
	return nil
}

// Page returns the page with the given name, or nil.
func (d *Definition) Page(name string) *Page {
	for i := range d.Pages {
		if d.Pages[i].Name == name {
			return &d.Pages[i]
		}
	}
	return nil
}

// PageIndex returns the position of a page in the flow, or -1.
func (d *Definition) PageIndex(name string) int {
	for i := range d.Pages {
		if d.Pages[i].Name == name {
			return i
		}
	}
	return -1
}

// NextPage returns the name of the page following name, or "" at the end.
func (d *Definition) NextPage(name string) string {
	idx := d.PageIndex(name)
	if idx < 0 || idx+1 >= len(d.Pages) {
		return ""
	}
	return d.Pages[idx+1].Name
}

// ProgressFor computes the progress percentage for a page: the explicit
// override when present, otherwise derived from the page's position.
func (d *Definition) ProgressFor(name string) int {
	idx := d.PageIndex(name)
	if idx < 0 {
		return 0
	}
	if p := d.Pages[idx].Progress; p != nil {
		return *p
	}
	if len(d.Pages) < 2 {
		return 100
	}
	return idx * 100 / (len(d.Pages) - 1)
}

// Scenario returns the scenario with the given id, or nil.
func (d *Definition) Scenario(id string) *Scenario {
	for i := range d.Scenarios {
		if d.Scenarios[i].ID == id {
			return &d.Scenarios[i]
		}
	}
	return nil
}

// RequiredKeys lists every answer key the page treats as required: the
// explicit required list plus all non-free-text section questions.
func (p *Page) RequiredKeys() []string {
	keys := make([]string, 0, len(p.Required))
	keys = append(keys, p.Required...)
	for _, sec := range p.Sections {
		if sec.FreeText {
			continue
		}
		keys = append(keys, sec.Questions...)
	}
	return keys
}

// Interpolate substitutes the {topic} placeholder in question text with the
// assigned scenario id, mirroring the post-survey wording of the instrument.
func Interpolate(question, topic string) string {
	if topic == "" {
		topic = "the topic"
	}
	return strings.ReplaceAll(question, "{topic}", topic)
}
