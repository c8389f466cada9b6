// Package nodetype holds the node templates a canvas can instantiate.
//
// A template fixes a node type's ports, its parameter schema and its typed
// parameter defaults. Parameter bags are validated against the schema and
// normalized through the typed Params variant when a node is created and on
// every parameter patch.
package nodetype

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/porttype"
	"github.com/bert-systems/canvas/pkg/schema"
	"github.com/mitchellh/mapstructure"
)

// Domain is the creative area a template belongs to.
type Domain string

const (
	DomainStory     Domain = "story"
	DomainFashion   Domain = "fashion"
	DomainMoodboard Domain = "moodboard"
	DomainUtility   Domain = "utility"
)

// PortSpec declares a port of a template.
type PortSpec struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     domain.PortType `json:"portType"`
	Required bool            `json:"required,omitempty"`
}

// Template describes how to build a node of a given type.
type Template struct {
	Type          string
	Label         string
	Domain        Domain
	Description   string
	Inputs        []PortSpec
	Outputs       []PortSpec
	CycleTolerant bool
	Schema        schema.Schema

	// Defaults returns a fresh pointer to the typed parameters holding their default values.
	Defaults func() Params
}

// Normalize validates a full parameter bag against the template and returns
// its typed form along with the normalized map. Missing keys take their
// defaults; nil values reset a key to its default.
func (t Template) Normalize(raw map[string]any) (Params, map[string]any, error) {
	merged, err := encode(t.Defaults())
	if err != nil {
		return nil, nil, err
	}
	for k, v := range raw {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if err := schema.Validate(t.Schema, merged); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidParameters, t.Type, err)
	}

	p := t.Defaults()
	if err := decode(merged, p); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidParameters, t.Type, err)
	}
	params, err := encode(p)
	if err != nil {
		return nil, nil, err
	}
	return p, params, nil
}

// Patch validates a partial parameter update and returns the normalized result
// of applying it on top of current.
func (t Template) Patch(current, patch map[string]any) (map[string]any, error) {
	if err := schema.ValidatePatch(t.Schema, patch); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidParameters, t.Type, err)
	}
	merged := maps.Clone(current)
	if merged == nil {
		merged = make(map[string]any, len(patch))
	}
	maps.Copy(merged, patch)
	_, params, err := t.Normalize(merged)
	return params, err
}

// DefaultParameters returns the default bag as a map.
func (t Template) DefaultParameters() map[string]any {
	m, _ := encode(t.Defaults())
	return m
}

// MarshalJSON exposes the template to clients building node palettes.
func (t Template) MarshalJSON() ([]byte, error) {
	inputs, outputs := t.Inputs, t.Outputs
	if inputs == nil {
		inputs = []PortSpec{}
	}
	if outputs == nil {
		outputs = []PortSpec{}
	}
	return json.Marshal(struct {
		Type          string         `json:"nodeType"`
		Label         string         `json:"label"`
		Domain        Domain         `json:"domain"`
		Description   string         `json:"description,omitempty"`
		Inputs        []PortSpec     `json:"inputs"`
		Outputs       []PortSpec     `json:"outputs"`
		CycleTolerant bool           `json:"cycleTolerant,omitempty"`
		Schema        schema.Schema  `json:"schema"`
		Defaults      map[string]any `json:"defaults"`
	}{t.Type, t.Label, t.Domain, t.Description, inputs, outputs, t.CycleTolerant, t.Schema, t.DefaultParameters()})
}

func (t Template) check() error {
	if t.Type == "" {
		return fmt.Errorf("template has no type")
	}
	if t.Defaults == nil {
		return fmt.Errorf("template %s: no defaults", t.Type)
	}
	if got := t.Defaults().NodeType(); got != t.Type {
		return fmt.Errorf("template %s: defaults belong to %s", t.Type, got)
	}
	seen := make(map[string]bool)
	for _, p := range slices.Concat(t.Inputs, t.Outputs) {
		if !porttype.Known(p.Type) {
			return fmt.Errorf("template %s: port %s: %w %q", t.Type, p.ID, domain.ErrUnknownPortType, p.Type)
		}
		if seen[p.ID] {
			return fmt.Errorf("template %s: duplicate port id %s", t.Type, p.ID)
		}
		seen[p.ID] = true
	}
	if _, _, err := t.Normalize(nil); err != nil {
		return fmt.Errorf("template %s: defaults do not validate: %w", t.Type, err)
	}
	return nil
}

// Spec is a request to instantiate a template.
type Spec struct {
	Type       string         `json:"nodeType" yaml:"nodeType"`
	ID         string         `json:"id,omitempty" yaml:"id,omitempty"`
	Label      string         `json:"label,omitempty" yaml:"label,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Registry manages the available templates.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]Template),
	}
}

// Default returns a registry holding the built-in templates.
func Default() *Registry {
	r := NewRegistry()
	for _, t := range Builtin() {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a template to the registry.
// If a template with the same type exists, it is overwritten.
func (r *Registry) Register(t Template) error {
	if err := t.check(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Type] = t
	return nil
}

// Lookup returns the template for a node type.
func (r *Registry) Lookup(nodeType string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[nodeType]
	return t, ok
}

// List returns all templates ordered by type.
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Template, 0, len(r.templates))
	for _, k := range slices.Sorted(maps.Keys(r.templates)) {
		out = append(out, r.templates[k])
	}
	return out
}

// CycleTolerant reports whether nodes of this type may sit on a cycle without a warning.
func (r *Registry) CycleTolerant(nodeType string) bool {
	t, ok := r.Lookup(nodeType)
	return ok && t.CycleTolerant
}

// Build instantiates an idle node from a spec.
func (r *Registry) Build(spec Spec) (domain.Node, error) {
	t, ok := r.Lookup(spec.Type)
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: %q", domain.ErrUnknownNodeType, spec.Type)
	}
	_, params, err := t.Normalize(spec.Parameters)
	if err != nil {
		return domain.Node{}, err
	}
	label := spec.Label
	if label == "" {
		label = t.Label
	}
	return domain.Node{
		ID:         spec.ID,
		Type:       t.Type,
		Label:      label,
		Parameters: params,
		Inputs:     ports(t.Inputs, domain.DirectionInput),
		Outputs:    ports(t.Outputs, domain.DirectionOutput),
		Status:     domain.StatusIdle,
	}, nil
}

// PatchParameters validates a parameter patch for a node and returns the full normalized bag.
func (r *Registry) PatchParameters(node domain.Node, patch map[string]any) (map[string]any, error) {
	t, ok := r.Lookup(node.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownNodeType, node.Type)
	}
	return t.Patch(node.Parameters, patch)
}

// Decode returns the typed parameters of a node.
func (r *Registry) Decode(node domain.Node) (Params, error) {
	t, ok := r.Lookup(node.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownNodeType, node.Type)
	}
	p, _, err := t.Normalize(node.Parameters)
	return p, err
}

func ports(specs []PortSpec, dir domain.Direction) []domain.Port {
	out := make([]domain.Port, 0, len(specs))
	for _, s := range specs {
		out = append(out, domain.Port{
			ID:        s.ID,
			Name:      s.Name,
			Direction: dir,
			Type:      s.Type,
			Required:  dir == domain.DirectionInput && s.Required,
		})
	}
	return out
}

func encode(p Params) (map[string]any, error) {
	out := make(map[string]any)
	if err := mapstructure.Decode(p, &out); err != nil {
		return nil, fmt.Errorf("encode %s parameters: %w", p.NodeType(), err)
	}
	return out, nil
}

func decode(in map[string]any, p Params) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
