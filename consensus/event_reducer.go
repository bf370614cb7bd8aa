package consensus

import (
	"bytes"

	"github.com/tendermint/tendermint/libs/log"

	cstypes "hotbft/consensus/types"
	"hotbft/libs/metric"
	"hotbft/types"
)

// BFTEventReducer 一个epoch内的共识状态机
// 提案人按view轮换，投票发给下一个view的提案人，由它聚合出QC后提出下一个提案
type BFTEventReducer struct {
	epoch int64
	self  types.Address
	vals  *types.ValidatorSet

	safetyRules  *SafetyRules
	pacemaker    *Pacemaker
	store        *VertexStore
	sync         *VertexStoreSync
	pendingVotes *cstypes.PendingVotes
	generator    *ProposalGenerator
	sender       BFTEventSender

	// 防止同一个view提出两次提案
	lastProposedView types.View

	metric   *consensusMetric
	counters metric.SystemCounters
	logger   log.Logger
}

var _ BFTEventProcessor = (*BFTEventReducer)(nil)

func NewBFTEventReducer(
	vals *types.ValidatorSet,
	safetyRules *SafetyRules,
	pacemaker *Pacemaker,
	store *VertexStore,
	sync *VertexStoreSync,
	generator *ProposalGenerator,
	sender BFTEventSender,
	counters metric.SystemCounters,
) *BFTEventReducer {
	return &BFTEventReducer{
		epoch:            store.Root().Vertex.Epoch,
		self:             safetyRules.self,
		vals:             vals,
		safetyRules:      safetyRules,
		pacemaker:        pacemaker,
		store:            store,
		sync:             sync,
		pendingVotes:     cstypes.NewPendingVotes(),
		generator:        generator,
		sender:           sender,
		lastProposedView: types.GenesisView,
		metric:           newConsensusMetric(),
		counters:         counters,
		logger:           log.NewNopLogger(),
	}
}

func (r *BFTEventReducer) SetLogger(logger log.Logger) {
	r.logger = logger
}

func (r *BFTEventReducer) setMetric(m *consensusMetric) {
	r.metric = m
}

// Start 用store中最高的QC进入第一个view
func (r *BFTEventReducer) Start() {
	r.logger.Info("start bft event reducer", "epoch", r.epoch, "highQC", r.store.HighestQC())
	r.processQC(r.store.HighestQC())
	r.updateMetric()
}

func (r *BFTEventReducer) isProposer(view types.View, addr types.Address) bool {
	proposer := r.vals.GetProposer(view)
	return proposer != nil && bytes.Equal(proposer.Address, addr)
}

func (r *BFTEventReducer) proposer(view types.View) types.Address {
	return r.vals.GetProposer(view).Address
}

func (r *BFTEventReducer) verifyQC(qc *types.QuorumCertificate) error {
	return verifyQC(r.store, r.vals, qc)
}

// syncQC 同步到qc之后处理它，需要等待同步时返回false，同步完成后调用replay
func (r *BFTEventReducer) syncQC(qc, committedQC *types.QuorumCertificate, author types.Address, replay func()) bool {
	if !r.sync.SyncToQC(qc, committedQC, author, replay) {
		r.logger.Debug("waiting for vertex sync", "qc", qc, "author", author)
		return false
	}
	r.processQC(qc)
	return true
}

// processQC 提交新的3-chain，并推进view
func (r *BFTEventReducer) processQC(qc *types.QuorumCertificate) {
	if committed := r.safetyRules.Process(qc); committed != nil {
		r.store.Commit(*committed, qc)
		r.sync.ProcessCommit()
	}
	if view, ok := r.pacemaker.ProcessQC(qc.View()); ok {
		r.proceedToView(view)
	}
}

func (r *BFTEventReducer) proceedToView(view types.View) {
	if r.isProposer(view, r.self) {
		r.propose(view)
	}
}

func (r *BFTEventReducer) propose(view types.View) {
	if !view.Greater(r.lastProposedView) {
		return
	}
	r.lastProposedView = view

	vertex := r.generator.GenerateProposal(view)
	proposal, err := r.safetyRules.SignProposal(vertex, r.store.HighestCommittedQC())
	if err != nil {
		r.logger.Error("failed to sign proposal", "view", view, "err", err)
		return
	}
	r.logger.Info("propose", "view", view, "vertex", vertex)
	r.counters.Increment(metric.ConsensusProposals)

	nodes := make([]types.Address, 0, r.vals.Size())
	r.vals.Iterate(func(_ int, val *types.Validator) bool {
		nodes = append(nodes, val.Address)
		return false
	})
	r.sender.BroadcastProposal(proposal, nodes)
}

// ProcessProposal 校验提案，同步它的QC，然后在当前view投票
func (r *BFTEventReducer) ProcessProposal(proposal *types.Proposal) {
	defer r.updateMetric()

	vertex := proposal.Vertex
	if vertex == nil {
		return
	}
	if vertex.View.Less(r.pacemaker.CurrentView()) {
		r.logger.Debug("ignore stale proposal", "view", vertex.View, "current", r.pacemaker.CurrentView())
		return
	}
	if !r.isProposer(vertex.View, proposal.Author) {
		r.rejectProposal(proposal, "author is not the proposer of the view")
		return
	}
	if err := proposal.Verify(r.vals); err != nil {
		r.rejectProposal(proposal, err.Error())
		return
	}
	if err := r.verifyQC(vertex.QC); err != nil {
		r.rejectProposal(proposal, err.Error())
		return
	}
	if err := r.verifyQC(proposal.HighestCommittedQC); err != nil {
		r.rejectProposal(proposal, err.Error())
		return
	}

	if !r.syncQC(vertex.QC, proposal.HighestCommittedQC, proposal.Author, func() { r.ProcessProposal(proposal) }) {
		return
	}

	current := r.pacemaker.CurrentView()
	if !vertex.View.Equal(current) {
		r.logger.Debug("ignore proposal of other view", "view", vertex.View, "current", current)
		return
	}

	pv, err := r.store.Insert(vertex)
	if err != nil {
		r.rejectProposal(proposal, err.Error())
		return
	}
	if !vertex.HasDirectParent() {
		r.counters.Increment(metric.ConsensusIndirectParent)
	}

	vote, err := r.safetyRules.VoteFor(vertex, pv.Metadata)
	if err != nil {
		r.logger.Info("not voting", "vertex", vertex, "err", err)
		return
	}
	next := r.proposer(current.Next())
	r.logger.Debug("vote", "view", current, "vertex", vertex.ID(), "to", next)
	r.sender.SendVote(vote, next)
}

func (r *BFTEventReducer) rejectProposal(proposal *types.Proposal, reason string) {
	r.counters.Increment(metric.ConsensusRejectedProposals)
	r.logger.Info("reject proposal", "proposal", proposal, "reason", reason)
}

// ProcessVote 聚合投票，形成QC后推进到下一个view
func (r *BFTEventReducer) ProcessVote(vote *types.Vote) {
	defer r.updateMetric()

	r.counters.Increment(metric.ConsensusVotes)
	qc, err := r.pendingVotes.InsertVote(vote, r.vals)
	if err != nil {
		r.logger.Info("invalid vote", "vote", vote, "err", err)
		return
	}
	if qc == nil {
		return
	}
	r.logger.Debug("formed qc", "qc", qc)
	r.syncQC(qc, r.store.HighestCommittedQC(), vote.Author, func() { r.processQC(qc) })
}

// ProcessNewView 新的提案人收集new-view，达到quorum后提出提案
func (r *BFTEventReducer) ProcessNewView(nv *types.NewView) {
	defer r.updateMetric()

	if err := nv.Verify(r.vals); err != nil {
		r.logger.Info("invalid new-view", "nv", nv, "err", err)
		return
	}
	if nv.HighQC == nil {
		return
	}
	if err := r.verifyQC(nv.HighQC); err != nil {
		r.logger.Info("invalid new-view high qc", "nv", nv, "err", err)
		return
	}
	if err := r.verifyQC(nv.HighestCommittedQC); err != nil {
		r.logger.Info("invalid new-view committed qc", "nv", nv, "err", err)
		return
	}

	if !r.syncQC(nv.HighQC, nv.HighestCommittedQC, nv.Author, func() { r.ProcessNewView(nv) }) {
		return
	}

	if view, ok := r.pacemaker.ProcessNewView(nv, r.vals); ok {
		r.logger.Debug("new-view quorum", "view", view)
		r.proceedToView(view)
	}
}

// ProcessLocalTimeout 当前view超时，把new-view发给下一个view的提案人
func (r *BFTEventReducer) ProcessLocalTimeout(view types.View) {
	defer r.updateMetric()

	next, ok := r.pacemaker.ProcessLocalTimeout(view)
	if !ok {
		return
	}
	r.sync.ProcessLocalTimeout()
	r.counters.Increment(metric.ConsensusTimeout)
	r.counters.Set(metric.ConsensusTimeoutView, view.Int64())
	r.logger.Info("view timed out", "view", view, "next", next)

	nv, err := r.safetyRules.SignNewView(next, r.store.HighestQC(), r.store.HighestCommittedQC())
	if err != nil {
		r.logger.Error("failed to sign new-view", "view", next, "err", err)
		return
	}
	r.sender.SendNewView(nv, r.proposer(next))
}

func (r *BFTEventReducer) ProcessGetVerticesRequest(from types.Address, req *types.GetVerticesRequest) {
	r.sync.ProcessGetVerticesRequest(from, req)
}

func (r *BFTEventReducer) ProcessGetVerticesResponse(resp *types.GetVerticesResponse) {
	defer r.updateMetric()
	r.sync.ProcessGetVerticesResponse(resp)
}

func (r *BFTEventReducer) ProcessGetVerticesErrorResponse(resp *types.GetVerticesErrorResponse) {
	defer r.updateMetric()
	r.sync.ProcessGetVerticesErrorResponse(resp)
}

func (r *BFTEventReducer) ProcessCommittedStateSync(synced types.CommittedStateSync) {
	defer r.updateMetric()
	r.sync.ProcessCommittedStateSync(synced)
}

func (r *BFTEventReducer) updateMetric() {
	view := r.pacemaker.CurrentView()
	r.metric.MarkView(view, r.isProposer(view, r.self))
	r.metric.MarkStore(r.store, r.sync.IsSyncing())
}
