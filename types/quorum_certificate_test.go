package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuorumCertificateVerify(t *testing.T) {
	vals, pvs := RandValidatorSet(4, 1)
	genesis := NewGenesisVertexStoreState(VertexMetadata{}, 0)
	v1, meta1 := childOf(genesis.HighQC, 1, Command("tx"))
	require.NoError(t, v1.ValidateBasic())
	voteData := NewVoteData(meta1, genesis.RootMetadata(), nil)

	qc := signQC(t, pvs, 3, voteData)
	assert.NoError(t, qc.Verify(vals))

	notEnough := signQC(t, pvs, 2, voteData)
	err := notEnough.Verify(vals)
	assert.True(t, IsErrNotEnoughVotingPowerSigned(err))

	dup := NewQuorumCertificate(voteData, append(qc.Signatures, qc.Signatures[0]))
	assert.Equal(t, ErrDuplicateSigner, dup.Verify(vals))

	bad := signQC(t, pvs, 3, voteData)
	bad.Signatures[1].Signature = []byte("garbage")
	assert.Error(t, bad.Verify(vals))

	assert.Equal(t, ErrEmptyQuorumCertificate, genesis.HighQC.Verify(vals))
}

func TestQuorumCertificateHashIgnoresSignatureOrder(t *testing.T) {
	_, pvs := RandValidatorSet(4, 1)
	genesis := NewGenesisVertexStoreState(VertexMetadata{}, 0)
	_, meta1 := childOf(genesis.HighQC, 1, nil)
	voteData := NewVoteData(meta1, genesis.RootMetadata(), nil)

	qc := signQC(t, pvs, 3, voteData)
	reversed := make([]CommitSig, len(qc.Signatures))
	for i, sig := range qc.Signatures {
		reversed[len(reversed)-1-i] = sig
	}
	assert.Equal(t, qc.Hash(), NewQuorumCertificate(voteData, reversed).Hash())
}

func TestGenesisQC(t *testing.T) {
	state := NewGenesisVertexStoreState(NewVertexMetadata(0, 9, []byte("prev"), 42, true), 1)
	qc := state.HighQC
	assert.True(t, qc.IsGenesis())
	assert.EqualValues(t, 1, qc.Epoch())
	assert.True(t, qc.Proposed().Equal(qc.Parent()))
	require.NotNil(t, qc.Committed())
	assert.True(t, qc.Committed().Equal(qc.Proposed()))
	assert.EqualValues(t, 42, qc.Proposed().StateVersion)
}

func TestGenesisQCRejectsForgedShapes(t *testing.T) {
	state := NewGenesisVertexStoreState(VertexMetadata{}, 1)
	genesis := state.RootMetadata()
	_, meta1 := childOf(state.HighQC, 1, nil)

	// committed指向别的vertex
	forged := &QuorumCertificate{VoteData: NewVoteData(genesis, genesis, &meta1)}
	assert.False(t, forged.IsGenesis())

	// 没有committed
	forged = &QuorumCertificate{VoteData: NewVoteData(genesis, genesis, nil)}
	assert.False(t, forged.IsGenesis())

	// proposed不是genesis vertex
	fake := NewVertexMetadata(1, GenesisView, []byte("not genesis"), 0, false)
	forged = NewGenesisQC(fake)
	assert.False(t, forged.IsGenesis())

	// 带签名的不是genesis
	_, pvs := RandValidatorSet(1, 1)
	signed := signQC(t, pvs, 1, state.HighQC.VoteData)
	assert.False(t, signed.IsGenesis())
}
