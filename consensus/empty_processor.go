package consensus

import (
	"hotbft/types"
)

// EmptyBFTEventProcessor 不是当前epoch验证者的节点使用，忽略所有共识事件
type EmptyBFTEventProcessor struct{}

var _ BFTEventProcessor = EmptyBFTEventProcessor{}

func (EmptyBFTEventProcessor) Start()                                               {}
func (EmptyBFTEventProcessor) ProcessProposal(_ *types.Proposal)                    {}
func (EmptyBFTEventProcessor) ProcessVote(_ *types.Vote)                            {}
func (EmptyBFTEventProcessor) ProcessNewView(_ *types.NewView)                      {}
func (EmptyBFTEventProcessor) ProcessLocalTimeout(_ types.View)                     {}
func (EmptyBFTEventProcessor) ProcessCommittedStateSync(_ types.CommittedStateSync) {}

func (EmptyBFTEventProcessor) ProcessGetVerticesRequest(_ types.Address, _ *types.GetVerticesRequest) {
}
func (EmptyBFTEventProcessor) ProcessGetVerticesResponse(_ *types.GetVerticesResponse) {}
func (EmptyBFTEventProcessor) ProcessGetVerticesErrorResponse(_ *types.GetVerticesErrorResponse) {
}

