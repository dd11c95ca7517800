// Package preset holds the ordered table of named output sizes that batch
// conversions iterate over. The table is injected configuration: the
// compositor never depends on a particular list.
package preset

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/maauso/coverfit/internal/compose"
)

// Static errors for preset handling.
var (
	// ErrPresetNotFound is returned when an ID is not in the table.
	ErrPresetNotFound = errors.New("preset not found")
	// ErrInvalidPreset is returned when a preset fails validation.
	ErrInvalidPreset = errors.New("invalid preset")
	// ErrDuplicatePreset is returned when a table lists the same ID twice.
	ErrDuplicatePreset = errors.New("duplicate preset id")
)

var validate = validator.New()

// Preset is a named target size.
type Preset struct {
	ID          string `yaml:"id" json:"id" validate:"required,max=64"`
	Name        string `yaml:"name" json:"name" validate:"required"`
	Width       int    `yaml:"width" json:"width" validate:"required,min=1,max=8192"`
	Height      int    `yaml:"height" json:"height" validate:"required,min=1,max=8192"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Ratio returns Width/Height.
func (p Preset) Ratio() float64 {
	return float64(p.Width) / float64(p.Height)
}

// Target returns the compositor target for this preset.
func (p Preset) Target(blurIntensity int) compose.TargetSpec {
	return compose.TargetSpec{Width: p.Width, Height: p.Height, BlurIntensity: blurIntensity}
}

// Validate checks the preset's fields.
func (p Preset) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidPreset, p.ID, err)
	}
	return nil
}

// Table is an ordered, validated list of presets with unique IDs.
type Table struct {
	presets []Preset
	index   map[string]int
}

// NewTable validates presets and builds a table preserving their order.
func NewTable(presets []Preset) (*Table, error) {
	t := &Table{
		presets: make([]Preset, 0, len(presets)),
		index:   make(map[string]int, len(presets)),
	}
	for _, p := range presets {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.index[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePreset, p.ID)
		}
		t.index[p.ID] = len(t.presets)
		t.presets = append(t.presets, p)
	}
	return t, nil
}

// All returns a copy of the presets in table order.
func (t *Table) All() []Preset {
	out := make([]Preset, len(t.presets))
	copy(out, t.presets)
	return out
}

// Len returns the number of presets.
func (t *Table) Len() int {
	return len(t.presets)
}

// IDs returns the preset IDs in table order.
func (t *Table) IDs() []string {
	ids := make([]string, len(t.presets))
	for i, p := range t.presets {
		ids[i] = p.ID
	}
	return ids
}

// Lookup returns the preset with the given ID.
func (t *Table) Lookup(id string) (Preset, error) {
	i, ok := t.index[id]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, id)
	}
	return t.presets[i], nil
}

// Subset returns the presets named by ids, in the order given.
// An empty ids selects the whole table.
func (t *Table) Subset(ids []string) ([]Preset, error) {
	if len(ids) == 0 {
		return t.All(), nil
	}
	out := make([]Preset, 0, len(ids))
	for _, id := range ids {
		p, err := t.Lookup(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// file is the on-disk YAML layout.
type file struct {
	Presets []Preset `yaml:"presets"`
}

// LoadFile reads a YAML preset table. An empty path returns the built-in table.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read preset file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML preset table.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse preset file: %w", err)
	}
	if len(f.Presets) == 0 {
		return nil, fmt.Errorf("%w: table is empty", ErrInvalidPreset)
	}
	return NewTable(f.Presets)
}
