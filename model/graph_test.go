package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeID(t *testing.T) {
	id := NodeID("Aspirin", "drug")

	assert.True(t, strings.HasPrefix(id, "node_"))
	assert.Len(t, id, len("node_")+16)

	// case-insensitive on the name, sensitive to the type
	assert.Equal(t, id, NodeID("ASPIRIN", "drug"))
	assert.Equal(t, id, NodeID("aspirin", "drug"))
	assert.NotEqual(t, id, NodeID("Aspirin", "chemical"))
	assert.NotEqual(t, id, NodeID("Ibuprofen", "drug"))
}

func TestNodeID_SeparatorPreventsCollisions(t *testing.T) {
	assert.NotEqual(t, NodeID("ab", "c"), NodeID("a", "bc"))
}

func TestEdgeID(t *testing.T) {
	src := NodeID("Aspirin", "drug")
	tgt := NodeID("Fever", "symptom")

	id := EdgeID(src, tgt, "treats")
	assert.Equal(t, "edge_"+src+"_treats_"+tgt, id)

	// direction matters
	assert.NotEqual(t, id, EdgeID(tgt, src, "treats"))
}
