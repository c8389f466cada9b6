package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	idle := StatusIdle
	running := StatusRunning
	completed := StatusCompleted

	tests := []struct {
		name     string
		old      *Node
		new      *Node
		wantDiff *NodeDiff // nil means no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &Node{
				ID:         "n1",
				Label:      "Story",
				Status:     StatusIdle,
				Parameters: map[string]any{"genre": "noir"},
			},
			wantDiff: &NodeDiff{
				NodeID:     "n1",
				Label:      StringPtr("Story"),
				Parameters: map[string]any{"genre": "noir"},
				Status:     &idle,
				IsLocked:   BoolPtr(false),
				IsExpanded: BoolPtr(false),
			},
		},
		{
			name: "No Changes",
			old:  &Node{ID: "n1", Label: "Story", Parameters: map[string]any{"genre": "noir"}},
			new:  &Node{ID: "n1", Label: "Story", Parameters: map[string]any{"genre": "noir"}},
		},
		{
			name: "Status and Progress",
			old:  &Node{ID: "n1", Status: StatusIdle},
			new:  &Node{ID: "n1", Status: StatusRunning, Progress: IntPtr(0)},
			wantDiff: &NodeDiff{
				NodeID:   "n1",
				Status:   &running,
				Progress: IntPtr(0),
			},
		},
		{
			name: "Completion Clears Progress",
			old:  &Node{ID: "n1", Status: StatusRunning, Progress: IntPtr(30), Stage: "drafting"},
			new: &Node{ID: "n1", Status: StatusCompleted, CachedOutput: []AssetRef{
				{ID: "a1", Kind: PortStory},
			}},
			wantDiff: &NodeDiff{
				NodeID:          "n1",
				Status:          &completed,
				ProgressCleared: true,
				Stage:           StringPtr(""),
				CachedOutput:    []AssetRef{{ID: "a1", Kind: PortStory}},
			},
		},
		{
			name: "Parameter Deletion",
			old:  &Node{ID: "n1", Parameters: map[string]any{"a": 1, "b": 2}},
			new:  &Node{ID: "n1", Parameters: map[string]any{"a": 1}},
			wantDiff: &NodeDiff{
				NodeID:     "n1",
				Parameters: map[string]any{"b": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Diff() = nil, want %+v", tt.wantDiff)
			}

			if got.NodeID != tt.wantDiff.NodeID {
				t.Errorf("Diff().NodeID = %v, want %v", got.NodeID, tt.wantDiff.NodeID)
			}
			if !reflect.DeepEqual(got.Parameters, tt.wantDiff.Parameters) {
				t.Errorf("Diff().Parameters = %v, want %v", got.Parameters, tt.wantDiff.Parameters)
			}
			if !equalPtr(got.Label, tt.wantDiff.Label) {
				t.Errorf("Diff().Label = %v, want %v", got.Label, tt.wantDiff.Label)
			}
			if !equalPtr(got.Status, tt.wantDiff.Status) {
				t.Errorf("Diff().Status = %v, want %v", got.Status, tt.wantDiff.Status)
			}
			if !equalPtr(got.Progress, tt.wantDiff.Progress) {
				t.Errorf("Diff().Progress = %v, want %v", got.Progress, tt.wantDiff.Progress)
			}
			if got.ProgressCleared != tt.wantDiff.ProgressCleared {
				t.Errorf("Diff().ProgressCleared = %v, want %v", got.ProgressCleared, tt.wantDiff.ProgressCleared)
			}
			if !equalPtr(got.Stage, tt.wantDiff.Stage) {
				t.Errorf("Diff().Stage = %v, want %v", got.Stage, tt.wantDiff.Stage)
			}
			if !equalPtr(got.IsLocked, tt.wantDiff.IsLocked) {
				t.Errorf("Diff().IsLocked = %v, want %v", got.IsLocked, tt.wantDiff.IsLocked)
			}
			if !equalPtr(got.IsExpanded, tt.wantDiff.IsExpanded) {
				t.Errorf("Diff().IsExpanded = %v, want %v", got.IsExpanded, tt.wantDiff.IsExpanded)
			}
			if !reflect.DeepEqual(got.CachedOutput, tt.wantDiff.CachedOutput) {
				t.Errorf("Diff().CachedOutput = %v, want %v", got.CachedOutput, tt.wantDiff.CachedOutput)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Unchanged Parameters Omitted", func(t *testing.T) {
		n1 := &Node{ID: "n1", Parameters: map[string]any{"a": 1}}
		n2 := &Node{ID: "n1", Parameters: map[string]any{"a": 1}, Status: StatusRunning}
		diff := Diff(n1, n2)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if strings.Contains(string(bytes), `"parameters"`) {
			t.Errorf("JSON should not contain 'parameters' when unchanged, got: %s", string(bytes))
		}
	})

	t.Run("Deletions as Null", func(t *testing.T) {
		n1 := &Node{ID: "n1", Parameters: map[string]any{"a": 1, "b": 2}}
		n2 := &Node{ID: "n1", Parameters: map[string]any{"a": 1}}
		diff := Diff(n1, n2)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if !strings.Contains(string(bytes), `"b":null`) {
			t.Errorf("JSON should contain 'b':null for deletion, got: %s", string(bytes))
		}
	})
}

func TestNodePatchMerge(t *testing.T) {
	first := NodePatch{Label: StringPtr("a"), Parameters: map[string]any{"x": 1, "y": 1}}
	second := NodePatch{Parameters: map[string]any{"y": 2}, IsLocked: BoolPtr(true)}

	got := first.Merge(second)
	if *got.Label != "a" {
		t.Errorf("Label = %q, want a", *got.Label)
	}
	if !reflect.DeepEqual(got.Parameters, map[string]any{"x": 1, "y": 2}) {
		t.Errorf("Parameters = %v", got.Parameters)
	}
	if got.IsLocked == nil || !*got.IsLocked {
		t.Errorf("IsLocked = %v, want true", got.IsLocked)
	}
	if first.Parameters["y"] != 1 {
		t.Errorf("Merge must not mutate the receiver, got y=%v", first.Parameters["y"])
	}
	if (NodePatch{}).IsEmpty() != true || got.IsEmpty() {
		t.Error("IsEmpty mismatch")
	}
	if !(NodePatch{IsExpanded: BoolPtr(true)}).OnlyUIState() || got.OnlyUIState() {
		t.Error("OnlyUIState mismatch")
	}
}

func TestStatusPatchApply(t *testing.T) {
	n := Node{ID: "n1", Status: StatusIdle}

	StatusPatch{Status: StatusRunning, Progress: IntPtr(140)}.Apply(&n)
	if n.Status != StatusRunning || n.Progress == nil || *n.Progress != 100 {
		t.Fatalf("unexpected node after running patch: %+v", n)
	}

	StatusPatch{Status: StatusError, ClearProgress: true, Error: StringPtr("boom")}.Apply(&n)
	if n.Progress != nil || n.Error != "boom" {
		t.Fatalf("unexpected node after error patch: %+v", n)
	}
}

func TestNodeCloneIsDeep(t *testing.T) {
	n := Node{
		ID:           "n1",
		Parameters:   map[string]any{"nested": map[string]any{"k": "v"}},
		CachedOutput: []AssetRef{{ID: "a", Metadata: map[string]string{"m": "1"}}},
	}
	c := n.Clone()
	c.Parameters["nested"].(map[string]any)["k"] = "changed"
	c.CachedOutput[0].Metadata["m"] = "2"

	if n.Parameters["nested"].(map[string]any)["k"] != "v" {
		t.Error("clone shares nested parameter maps")
	}
	if n.CachedOutput[0].Metadata["m"] != "1" {
		t.Error("clone shares asset metadata")
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
