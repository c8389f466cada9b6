package domain

// Edge is a directed connection from an output port to an input port.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	SourceNodeID string `json:"sourceNodeId" yaml:"sourceNodeId"`
	SourcePortID string `json:"sourcePortId" yaml:"sourcePortId"`
	TargetNodeID string `json:"targetNodeId" yaml:"targetNodeId"`
	TargetPortID string `json:"targetPortId" yaml:"targetPortId"`
}

// Touches reports whether either endpoint is the given node.
func (e Edge) Touches(nodeID string) bool {
	return e.SourceNodeID == nodeID || e.TargetNodeID == nodeID
}

// GraphSnapshot is an immutable copy of a board at a given revision.
type GraphSnapshot struct {
	Revision uint64 `json:"revision"`
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
}

// Node finds a node in the snapshot by id.
func (g GraphSnapshot) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
