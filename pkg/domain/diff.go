package domain

import (
	"reflect"
	"slices"
)

// NodeDiff represents the changes between two versions of a node.
// It is serialized to JSON for partial updates on the client.
type NodeDiff struct {
	// NodeID is always present to identify the target.
	NodeID string `json:"nodeId"`

	Label *string `json:"label,omitempty"`

	// Parameters contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Parameters map[string]any `json:"parameters,omitempty"`

	Status *NodeStatus `json:"status,omitempty"`

	// Progress is the new value; ProgressCleared is set when it was removed.
	Progress        *int `json:"progress,omitempty"`
	ProgressCleared bool `json:"progressCleared,omitempty"`

	Stage *string `json:"stage,omitempty"`
	Error *string `json:"error,omitempty"`

	IsLocked     *bool      `json:"isLocked,omitempty"`
	IsExpanded   *bool      `json:"isExpanded,omitempty"`
	CachedOutput []AssetRef `json:"cachedOutput,omitempty"`
	Unsynced     *bool      `json:"unsynced,omitempty"`
}

// Diff calculates the difference between oldNode and newNode.
// If oldNode is nil, it returns a diff representing the entire newNode.
// It returns nil when nothing changed.
func Diff(oldNode, newNode *Node) *NodeDiff {
	if newNode == nil {
		return nil
	}
	d := &NodeDiff{NodeID: newNode.ID}
	initial := oldNode == nil
	if initial {
		oldNode = &Node{}
	}

	if initial || oldNode.Label != newNode.Label {
		d.Label = &newNode.Label
	}
	d.Parameters = diffParameters(oldNode.Parameters, newNode.Parameters)
	if initial || oldNode.Status != newNode.Status {
		d.Status = &newNode.Status
	}
	switch {
	case newNode.Progress != nil && (oldNode.Progress == nil || *oldNode.Progress != *newNode.Progress):
		v := *newNode.Progress
		d.Progress = &v
	case newNode.Progress == nil && oldNode.Progress != nil:
		d.ProgressCleared = true
	}
	if oldNode.Stage != newNode.Stage {
		d.Stage = &newNode.Stage
	}
	if oldNode.Error != newNode.Error {
		d.Error = &newNode.Error
	}
	if initial || oldNode.IsLocked != newNode.IsLocked {
		d.IsLocked = &newNode.IsLocked
	}
	if initial || oldNode.IsExpanded != newNode.IsExpanded {
		d.IsExpanded = &newNode.IsExpanded
	}
	if !slices.EqualFunc(oldNode.CachedOutput, newNode.CachedOutput, func(a, b AssetRef) bool {
		return reflect.DeepEqual(a, b)
	}) {
		d.CachedOutput = cloneAssets(newNode.CachedOutput)
		if d.CachedOutput == nil {
			d.CachedOutput = []AssetRef{}
		}
	}
	if oldNode.Unsynced != newNode.Unsynced {
		d.Unsynced = &newNode.Unsynced
	}

	if d.IsEmpty() {
		return nil
	}
	return d
}

func diffParameters(oldParams, newParams map[string]any) map[string]any {
	delta := make(map[string]any)
	for k, nv := range newParams {
		ov, exists := oldParams[k]
		if !exists || !reflect.DeepEqual(ov, nv) {
			delta[k] = nv
		}
	}
	for k := range oldParams {
		if _, exists := newParams[k]; !exists {
			delta[k] = nil
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *NodeDiff) IsEmpty() bool {
	return d.Label == nil &&
		len(d.Parameters) == 0 &&
		d.Status == nil &&
		d.Progress == nil &&
		!d.ProgressCleared &&
		d.Stage == nil &&
		d.Error == nil &&
		d.IsLocked == nil &&
		d.IsExpanded == nil &&
		d.CachedOutput == nil &&
		d.Unsynced == nil
}
