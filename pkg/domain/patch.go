package domain

import "maps"

// NodePatch is a partial update of the user-editable fields of a node.
// It is also the payload sent to the remote node persistence service.
// Nil fields are left untouched.
type NodePatch struct {
	Label        *string        `json:"label,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	IsLocked     *bool          `json:"isLocked,omitempty"`
	IsExpanded   *bool          `json:"isExpanded,omitempty"`
	CachedOutput []AssetRef     `json:"cachedOutput,omitempty"`
}

// IsEmpty reports whether applying the patch would change nothing.
func (p NodePatch) IsEmpty() bool {
	return p.Label == nil &&
		len(p.Parameters) == 0 &&
		p.IsLocked == nil &&
		p.IsExpanded == nil &&
		p.CachedOutput == nil
}

// OnlyUIState reports whether the patch touches nothing but lock/expand state.
// Those are the only edits allowed on a locked node.
func (p NodePatch) OnlyUIState() bool {
	return p.Label == nil && len(p.Parameters) == 0 && p.CachedOutput == nil
}

// Merge coalesces a later patch into p. Later values win; parameter maps merge key by key.
func (p NodePatch) Merge(later NodePatch) NodePatch {
	out := p
	if later.Label != nil {
		out.Label = later.Label
	}
	if len(later.Parameters) > 0 {
		merged := make(map[string]any, len(p.Parameters)+len(later.Parameters))
		maps.Copy(merged, p.Parameters)
		maps.Copy(merged, later.Parameters)
		out.Parameters = merged
	}
	if later.IsLocked != nil {
		out.IsLocked = later.IsLocked
	}
	if later.IsExpanded != nil {
		out.IsExpanded = later.IsExpanded
	}
	if later.CachedOutput != nil {
		out.CachedOutput = cloneAssets(later.CachedOutput)
	}
	return out
}

// Apply merges the patch into a node in place. A nil parameter value deletes the key.
func (p NodePatch) Apply(n *Node) {
	if p.Label != nil {
		n.Label = *p.Label
	}
	if len(p.Parameters) > 0 {
		if n.Parameters == nil {
			n.Parameters = make(map[string]any, len(p.Parameters))
		}
		for k, v := range p.Parameters {
			if v == nil {
				delete(n.Parameters, k)
				continue
			}
			n.Parameters[k] = cloneValue(v)
		}
	}
	if p.IsLocked != nil {
		n.IsLocked = *p.IsLocked
	}
	if p.IsExpanded != nil {
		n.IsExpanded = *p.IsExpanded
	}
	if p.CachedOutput != nil {
		n.CachedOutput = cloneAssets(p.CachedOutput)
	}
}

// StatusPatch is the execution-side update written by the controller.
type StatusPatch struct {
	Status NodeStatus

	// Progress replaces the current progress when set. ClearProgress removes it.
	Progress      *int
	ClearProgress bool

	// Stage and Error replace their fields when non-nil; an empty string clears them.
	Stage *string
	Error *string

	CachedOutput []AssetRef
}

// Apply merges the status patch into a node in place.
func (p StatusPatch) Apply(n *Node) {
	if p.Status != "" {
		n.Status = p.Status
	}
	switch {
	case p.ClearProgress:
		n.Progress = nil
	case p.Progress != nil:
		v := clampProgress(*p.Progress)
		n.Progress = &v
	}
	if p.Stage != nil {
		n.Stage = *p.Stage
	}
	if p.Error != nil {
		n.Error = *p.Error
	}
	if p.CachedOutput != nil {
		n.CachedOutput = cloneAssets(p.CachedOutput)
	}
}

func clampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Clone returns a copy that shares no maps, slices or pointers with p.
func (p NodePatch) Clone() NodePatch {
	out := NodePatch{CachedOutput: cloneAssets(p.CachedOutput)}
	if p.Parameters != nil {
		out.Parameters = cloneMap(p.Parameters)
	}
	if p.Label != nil {
		out.Label = StringPtr(*p.Label)
	}
	if p.IsLocked != nil {
		out.IsLocked = BoolPtr(*p.IsLocked)
	}
	if p.IsExpanded != nil {
		out.IsExpanded = BoolPtr(*p.IsExpanded)
	}
	return out
}
