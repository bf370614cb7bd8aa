package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// signQC 用pvs中前n个签名者为voteData构造QC
func signQC(t *testing.T, pvs []PrivValidator, n int, voteData VoteData) *QuorumCertificate {
	sigs := make([]CommitSig, 0, n)
	for i := 0; i < n; i++ {
		sig, err := pvs[i].Sign(voteData.Hash())
		require.NoError(t, err)
		sigs = append(sigs, CommitSig{ValidatorAddress: pvs[i].GetAddress(), Signature: sig})
	}
	return NewQuorumCertificate(voteData, sigs)
}

// childOf 构造一个以qc为父证明的vertex及其metadata
func childOf(qc *QuorumCertificate, view View, cmd Command) (*Vertex, VertexMetadata) {
	v := NewVertex(qc.Epoch(), view, qc, cmd)
	meta := NewVertexMetadata(v.Epoch, view, v.ID(), qc.Proposed().StateVersion+1, false)
	return v, meta
}
