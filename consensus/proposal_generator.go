package consensus

import (
	"hotbft/mempool"
	"hotbft/types"
)

// ProposalGenerator 在highQC之上构造新的vertex
type ProposalGenerator struct {
	epoch   int64
	store   *VertexStore
	mempool mempool.Mempool
}

func NewProposalGenerator(epoch int64, store *VertexStore, mempool mempool.Mempool) *ProposalGenerator {
	return &ProposalGenerator{
		epoch:   epoch,
		store:   store,
		mempool: mempool,
	}
}

// GenerateProposal 跳过root到highQC路径上已经prepare过的命令，mempool为空时生成空vertex
func (g *ProposalGenerator) GenerateProposal(view types.View) *types.Vertex {
	highQC := g.store.HighestQC()

	// epoch已经结束，之后的vertex只用来提交它
	if highQC.Proposed().IsEndOfEpoch {
		return types.NewVertex(g.epoch, view, highQC, nil)
	}

	excluded := make(types.CommandIDSet)
	for _, pv := range g.store.GetPathFromRoot(highQC.Proposed().VertexID) {
		if !pv.Vertex.Command.IsEmpty() {
			excluded.Add(pv.Vertex.Command.ID())
		}
	}

	var cmd types.Command
	if cmds := g.mempool.GetCommands(1, excluded); len(cmds) > 0 {
		cmd = cmds[0]
	}
	return types.NewVertex(g.epoch, view, highQC, cmd)
}
