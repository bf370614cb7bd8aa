package types

import (
	"fmt"

	"hotbft/types"
)

// SafetyState 节点唯一需要持久化的安全状态
// 所有view只增不减，任何时候都不允许回滚
type SafetyState struct {
	LockedView    types.View `json:"locked_view"`    // 最高的2-chain的头
	CommittedView types.View `json:"committed_view"` // 最高的3-chain的头
	LastVotedView types.View `json:"last_voted_view"`

	// 见过的最高的QC，可以为空
	GenericQC *types.QuorumCertificate `json:"generic_qc"`
}

func NewSafetyState() SafetyState {
	return SafetyState{
		LockedView:    types.GenesisView,
		CommittedView: types.GenesisView,
		LastVotedView: types.GenesisView,
	}
}

// GenericView 没有QC时返回genesis
func (s SafetyState) GenericView() types.View {
	if s.GenericQC == nil {
		return types.GenesisView
	}
	return s.GenericQC.View()
}

func (s SafetyState) String() string {
	return fmt.Sprintf("SafetyState{locked=%d committed=%d lastVoted=%d generic=%d}",
		s.LockedView, s.CommittedView, s.LastVotedView, s.GenericView())
}
