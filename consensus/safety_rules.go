package consensus

import (
	"fmt"

	"github.com/tendermint/tendermint/libs/log"

	cstypes "hotbft/consensus/types"
	"hotbft/types"
)

// SafetyViolation 投票会破坏安全性，不能投
type SafetyViolation struct {
	View   types.View
	Reason string
}

func (e SafetyViolation) Error() string {
	return fmt.Sprintf("safety violation at view %v: %s", e.View, e.Reason)
}

// SafetyRules 决定是否投票以及锁定和提交哪个vertex
type SafetyRules struct {
	epoch  int64
	self   types.Address
	signer types.PrivValidator

	state     cstypes.SafetyState
	persister SafetyStatePersister

	logger log.Logger
}

func NewSafetyRules(epoch int64, signer types.PrivValidator, state cstypes.SafetyState, persister SafetyStatePersister) *SafetyRules {
	return &SafetyRules{
		epoch:     epoch,
		self:      signer.GetAddress(),
		signer:    signer,
		state:     state,
		persister: persister,
		logger:    log.NewNopLogger(),
	}
}

func (sr *SafetyRules) SetLogger(logger log.Logger) {
	sr.logger = logger
}

// State 当前安全状态的拷贝
func (sr *SafetyRules) State() cstypes.SafetyState {
	return sr.state
}

// Process 用qc更新安全状态，返回新提交的vertex
// 每次调用最多报告一个提交，已经报告过的不会再报告
func (sr *SafetyRules) Process(qc *types.QuorumCertificate) *types.VertexMetadata {
	updated := false

	// 最高的1-chain
	if qc.View().Greater(sr.state.GenericView()) {
		sr.state.GenericQC = qc
		updated = true
	}

	// 连续的2-chain锁定父节点
	parent := qc.Parent()
	if parent.View.Next() == qc.View() && parent.View.Greater(sr.state.LockedView) {
		sr.state.LockedView = parent.View
		updated = true
	}

	var committed *types.VertexMetadata
	if c := qc.Committed(); c != nil && c.View.Greater(sr.state.CommittedView) {
		sr.state.CommittedView = c.View
		meta := *c
		committed = &meta
		updated = true
	}

	if updated {
		sr.persist()
	}
	return committed
}

// VoteFor 为vertex投票，proposed是账本prepare之后的metadata
func (sr *SafetyRules) VoteFor(vertex *types.Vertex, proposed types.VertexMetadata) (*types.Vote, error) {
	if !vertex.View.Greater(sr.state.LastVotedView) {
		return nil, SafetyViolation{
			View:   vertex.View,
			Reason: fmt.Sprintf("already voted at view %v", sr.state.LastVotedView),
		}
	}
	if vertex.ParentView().Less(sr.state.LockedView) {
		return nil, SafetyViolation{
			View:   vertex.View,
			Reason: fmt.Sprintf("parent view %v is below locked view %v", vertex.ParentView(), sr.state.LockedView),
		}
	}

	sr.state.LastVotedView = vertex.View
	sr.persist()

	// 三个连续的view才能提交祖父节点
	var committed *types.VertexMetadata
	if !vertex.TouchesGenesis() && vertex.HasDirectParent() && vertex.ParentHasDirectParent() {
		grandparent := vertex.GrandparentMetadata()
		committed = &grandparent
	}
	voteData := types.NewVoteData(proposed, vertex.ParentMetadata(), committed)

	sig, err := sr.signer.Sign(voteData.Hash())
	if err != nil {
		return nil, err
	}
	return types.NewVote(sr.self, voteData, sig), nil
}

func (sr *SafetyRules) SignProposal(vertex *types.Vertex, highestCommittedQC *types.QuorumCertificate) (*types.Proposal, error) {
	proposal := types.NewProposal(vertex, highestCommittedQC, sr.self, nil)
	sig, err := sr.signer.Sign(proposal.SignBytes())
	if err != nil {
		return nil, err
	}
	proposal.Signature = sig
	return proposal, nil
}

func (sr *SafetyRules) SignNewView(view types.View, highQC, highestCommittedQC *types.QuorumCertificate) (*types.NewView, error) {
	sig, err := sr.signer.Sign(types.NewViewSignBytes(sr.epoch, view))
	if err != nil {
		return nil, err
	}
	return types.NewNewView(sr.epoch, view, highQC, highestCommittedQC, sr.self, sig), nil
}

// 落盘失败时不能继续，否则重启后可能重复投票
func (sr *SafetyRules) persist() {
	if sr.persister == nil {
		return
	}
	if err := sr.persister.SaveSafetyState(sr.epoch, sr.state); err != nil {
		panic(fmt.Sprintf("failed to persist safety state: %v", err))
	}
}
