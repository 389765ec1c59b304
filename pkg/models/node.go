package models

import "time"

type NodeType string

const (
	NodeTypeVendor            NodeType = "Vendor"
	NodeTypeJob               NodeType = "Job"
	NodeTypeGeneralContractor NodeType = "GeneralContractor"
)

type NodeStatus string

const (
	NodeStatusActive NodeStatus = "active"
	NodeStatusMerged NodeStatus = "merged"
)

// Node is a canonical entity. Merged nodes are retained as tombstones.
type Node struct {
	ID         string     `json:"id"`
	Type       NodeType   `json:"type"`
	Attributes Attributes `json:"attrs"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (n *Node) IsTombstone() bool {
	return n.Attributes.Status() == NodeStatusMerged
}

// Names returns the primary name followed by the aliases, without duplicates.
func (n *Node) Names() []string {
	names := make([]string, 0, 1+len(n.Attributes.Aliases()))
	seen := map[string]struct{}{}
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		names = append(names, s)
	}
	add(n.Attributes.Name())
	for _, alias := range n.Attributes.Aliases() {
		add(alias)
	}
	return names
}

func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Attributes = n.Attributes.Clone()
	return &c
}

// NodeStats is the read-only aggregate projection of a node's edges.
// Volume sums amounts over every edge touching the node, counting a self-loop once.
type NodeStats struct {
	Inflow    float64 `json:"inflow"`
	Outflow   float64 `json:"outflow"`
	Volume    float64 `json:"volume"`
	EdgeCount int     `json:"edge_count"`
}

type NodeDetail struct {
	Node  *Node     `json:"node"`
	Stats NodeStats `json:"stats"`
}
