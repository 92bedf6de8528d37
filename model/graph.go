package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Node is a typed entity in the knowledge graph. Its ID is deterministic:
// two entities with the same lowercased name and type collapse to one node.
type Node struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Embedding  []float32      `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Edge is a typed, weighted relation between two nodes. Endpoints cascade on
// node deletion.
type Edge struct {
	ID           string         `json:"id"`
	SourceID     string         `json:"source_id"`
	TargetID     string         `json:"target_id"`
	RelationType string         `json:"relation_type"`
	Weight       float64        `json:"weight"`
	Properties   map[string]any `json:"properties,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Neighbor is one adjacency entry of a node.
type Neighbor struct {
	Node         Node
	RelationType string
	Weight       float64
}

// Direction of a traversal step relative to the node it started from.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// TraversalResult is one row of a batched multi-hop walk. Path holds the node
// ids visited after the start node, ending with this node; no node repeats on
// its own path.
type TraversalResult struct {
	Node        Node
	Depth       int
	Relation    string
	Direction   Direction
	StartNodeID string
	Path        []string
}

// Subgraph is the closure of a traversal: every edge has both endpoints in
// Nodes.
type Subgraph struct {
	Nodes []Node
	Edges []Edge
}

// PathNode is a hydrated node on a weighted path.
type PathNode struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphPath is one weighted path between two nodes. Relations has one entry
// per hop; TotalWeight is the sum of edge weights along the path.
type GraphPath struct {
	Nodes       []PathNode `json:"nodes"`
	Relations   []string   `json:"relations"`
	TotalWeight float64    `json:"total_weight"`
}

// GraphBuildResult counts per-row upsert invocations during a graph build,
// overwrites included.
type GraphBuildResult struct {
	NodesCreated int `json:"nodes_created"`
	EdgesCreated int `json:"edges_created"`
}

// NodeID derives the deterministic node id for an entity: "node_" plus the
// first 16 hex characters of SHA-256(lowercased name + "::" + type).
func NodeID(name, entityType string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(name) + "::" + entityType))
	return "node_" + hex.EncodeToString(sum[:])[:16]
}

// EdgeID derives the deterministic edge id from resolved endpoint ids and the
// relation type.
func EdgeID(sourceID, targetID, relationType string) string {
	return fmt.Sprintf("edge_%s_%s_%s", sourceID, relationType, targetID)
}
