package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVertexValidateBasic(t *testing.T) {
	genesis := NewGenesisVertexStoreState(VertexMetadata{}, 0)
	assert.NoError(t, genesis.Root.ValidateBasic())

	v, _ := childOf(genesis.HighQC, 1, nil)
	assert.NoError(t, v.ValidateBasic())

	// vertex的view不高于qc的view
	_, pvs := RandValidatorSet(4, 1)
	_, meta1 := childOf(genesis.HighQC, 3, nil)
	qc3 := signQC(t, pvs, 3, NewVoteData(meta1, genesis.RootMetadata(), nil))
	low := NewVertex(0, 3, qc3, nil)
	assert.Equal(t, ErrVertexViewTooLow, low.ValidateBasic())

	noQC := NewVertex(0, 5, nil, nil)
	assert.Equal(t, ErrVertexNoQC, noQC.ValidateBasic())

	wrongEpoch := NewVertex(1, 5, qc3, nil)
	assert.Equal(t, ErrVertexEpochMismatch, wrongEpoch.ValidateBasic())
}

func TestVertexIDIsContentAddressed(t *testing.T) {
	genesis := NewGenesisVertexStoreState(VertexMetadata{}, 0)
	a, _ := childOf(genesis.HighQC, 1, Command("a"))
	b, _ := childOf(genesis.HighQC, 1, Command("a"))
	c, _ := childOf(genesis.HighQC, 1, Command("c"))
	d, _ := childOf(genesis.HighQC, 2, Command("a"))

	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())
	assert.NotEqual(t, a.ID(), d.ID())
	assert.Equal(t, genesis.Root.ID(), a.ParentID())
}

func TestVertexDirectParent(t *testing.T) {
	genesis := NewGenesisVertexStoreState(VertexMetadata{}, 0)
	direct, _ := childOf(genesis.HighQC, 1, nil)
	indirect, _ := childOf(genesis.HighQC, 2, nil)
	assert.True(t, direct.HasDirectParent())
	assert.False(t, indirect.HasDirectParent())
	assert.True(t, direct.TouchesGenesis())
}
