package consensus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/events"

	cfg "hotbft/config"
	"hotbft/mempool"
	"hotbft/state"
	"hotbft/types"
)

// voteDataFor 按三个连续view的规则计算committed
func voteDataFor(v *types.Vertex, meta types.VertexMetadata) types.VoteData {
	var committed *types.VertexMetadata
	if !v.TouchesGenesis() && v.HasDirectParent() && v.ParentHasDirectParent() {
		gp := v.GrandparentMetadata()
		committed = &gp
	}
	return types.NewVoteData(meta, v.ParentMetadata(), committed)
}

// signQC 所有pvs都对vertex签名
func signQC(t *testing.T, pvs []types.PrivValidator, v *types.Vertex, meta types.VertexMetadata) *types.QuorumCertificate {
	voteData := voteDataFor(v, meta)
	sigs := make([]types.CommitSig, 0, len(pvs))
	for _, pv := range pvs {
		sig, err := pv.Sign(voteData.Hash())
		require.NoError(t, err)
		sigs = append(sigs, types.CommitSig{ValidatorAddress: pv.GetAddress(), Signature: sig})
	}
	return types.NewQuorumCertificate(voteData, sigs)
}

// chainOf 在qc之上依次构造每个view的vertex，返回vertex和证明它们的QC
func chainOf(t *testing.T, pvs []types.PrivValidator, qc *types.QuorumCertificate, views ...types.View) ([]*types.Vertex, []*types.QuorumCertificate) {
	vertices := make([]*types.Vertex, 0, len(views))
	qcs := make([]*types.QuorumCertificate, 0, len(views))
	for _, view := range views {
		v := types.NewVertex(qc.Epoch(), view, qc, types.Command(fmt.Sprintf("k%d=v", view)))
		meta := types.NewVertexMetadata(v.Epoch, view, v.ID(), qc.Proposed().StateVersion+1, false)
		qc = signQC(t, pvs, v, meta)
		vertices = append(vertices, v)
		qcs = append(qcs, qc)
	}
	return vertices, qcs
}

func newTestLedger(computer state.StateComputer) (*state.Ledger, *mempool.ListMempool) {
	mp := mempool.NewListMempool(cfg.TestConfig().Mempool)
	return state.NewLedger(types.VertexMetadata{}, computer, mp, events.NewEventSwitch()), mp
}

type recordingPersister struct {
	states []*types.VerifiedVertexStoreState
	err    error
}

func (p *recordingPersister) SaveVertexStoreState(state *types.VerifiedVertexStoreState) error {
	p.states = append(p.states, state)
	return p.err
}
