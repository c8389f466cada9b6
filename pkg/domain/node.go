package domain

import "maps"

// NodeStatus is the execution status of a node.
type NodeStatus string

const (
	StatusIdle      NodeStatus = "idle"
	StatusRunning   NodeStatus = "running"
	StatusCompleted NodeStatus = "completed"
	StatusError     NodeStatus = "error"
)

// Terminal reports whether no further polling happens in this status.
func (s NodeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// AssetRef points at an artifact produced by a generation job.
type AssetRef struct {
	ID       string            `json:"id" yaml:"id"`
	PortID   string            `json:"portId,omitempty" yaml:"portId,omitempty"` // output port that produced it
	Kind     PortType          `json:"kind,omitempty" yaml:"kind,omitempty"`
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	MimeType string            `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Node is a unit of generative work on the canvas.
type Node struct {
	ID         string         `json:"id" yaml:"id"`
	Type       string         `json:"nodeType" yaml:"nodeType"`
	Label      string         `json:"label" yaml:"label"`
	Parameters map[string]any `json:"parameters" yaml:"parameters"`
	Inputs     []Port         `json:"inputs" yaml:"inputs"`
	Outputs    []Port         `json:"outputs" yaml:"outputs"`

	Status   NodeStatus `json:"status" yaml:"status"`
	Progress *int       `json:"progress,omitempty" yaml:"progress,omitempty"`
	Stage    string     `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error    string     `json:"error,omitempty" yaml:"error,omitempty"`

	IsLocked     bool       `json:"isLocked" yaml:"isLocked"`
	IsExpanded   bool       `json:"isExpanded" yaml:"isExpanded"`
	CachedOutput []AssetRef `json:"cachedOutput,omitempty" yaml:"cachedOutput,omitempty"`

	// Unsynced is set while a remote persistence update for this node is pending retry.
	Unsynced bool `json:"unsynced,omitempty" yaml:"unsynced,omitempty"`
}

// Port looks up a port by id on either side of the node.
func (n Node) Port(id string) (Port, bool) {
	if p, ok := n.InputPort(id); ok {
		return p, true
	}
	return n.OutputPort(id)
}

// InputPort looks up an input port by id.
func (n Node) InputPort(id string) (Port, bool) {
	for _, p := range n.Inputs {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

// OutputPort looks up an output port by id.
func (n Node) OutputPort(id string) (Port, bool) {
	for _, p := range n.Outputs {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

// Clone returns a deep copy so callers cannot mutate the graph through shared maps or slices.
func (n Node) Clone() Node {
	out := n
	if n.Parameters != nil {
		out.Parameters = cloneMap(n.Parameters)
	}
	out.Inputs = append([]Port(nil), n.Inputs...)
	out.Outputs = append([]Port(nil), n.Outputs...)
	if n.Progress != nil {
		p := *n.Progress
		out.Progress = &p
	}
	out.CachedOutput = cloneAssets(n.CachedOutput)
	return out
}

func cloneAssets(in []AssetRef) []AssetRef {
	if in == nil {
		return nil
	}
	out := make([]AssetRef, len(in))
	for i, a := range in {
		out[i] = a
		if a.Metadata != nil {
			out[i].Metadata = maps.Clone(a.Metadata)
		}
	}
	return out
}

// cloneMap copies nested maps and slices that come from JSON/YAML decoding.
func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// IntPtr is a small helper for optional progress values.
func IntPtr(v int) *int { return &v }

// StringPtr is a small helper for optional string fields in patches.
func StringPtr(v string) *string { return &v }

// BoolPtr is a small helper for optional bool fields in patches.
func BoolPtr(v bool) *bool { return &v }
