package consensus

import (
	"bytes"
	"errors"
	"sort"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/log"

	"hotbft/libs/metric"
	"hotbft/types"
)

var (
	errEmptyVerticesResponse = errors.New("empty vertices response")
	errUnexpectedVertex      = errors.New("vertices are not a parent chain of the requested vertex")
	errForgedGenesisQC       = errors.New("qc without signatures is not the genesis qc of the epoch")
	errForgedGenesisVertex   = errors.New("genesis vertex does not belong to the epoch")
)

// verifyQC 不带签名的QC只能是本epoch的genesis QC，其余的必须有足够的合法签名
func verifyQC(store *VertexStore, vals *types.ValidatorSet, qc *types.QuorumCertificate) error {
	if qc == nil {
		return nil
	}
	if len(qc.Signatures) == 0 {
		if store.IsGenesisQC(qc) {
			return nil
		}
		return errForgedGenesisQC
	}
	return qc.Verify(vals)
}

// 一个请求连续这么多次超时都没有回应就放弃这次同步
const maxSyncRetries = 3

type syncStage int

const (
	syncStageQC syncStage = iota
	syncStageCommitted
	syncStageLedger
)

// 一个正在进行的同步，以要同步的QC的proposed vertex id为key
type syncState struct {
	key         string
	qc          *types.QuorumCertificate
	committedQC *types.QuorumCertificate
	author      types.Address
	stage       syncStage

	// QC阶段已经取回的vertex，子节点在前
	fetched []*types.Vertex
	// committed阶段取回的3-chain
	committedChain []*types.Vertex

	// 等待回应的请求，超时后换一个节点重发
	pendingID    tmbytes.HexBytes
	pendingCount int
	retries      int

	onSynced []func()
}

// VertexStoreSync 在VertexStore缺少vertex时从其他节点取回
//  - 缺少QC的祖先: 一个一个向author请求父节点，直到接上store
//  - 对方提交的vertex超过了自己的root: 先取回3-chain，等账本同步到那个位置后重建store
type VertexStoreSync struct {
	epoch int64
	self  types.Address
	vals  *types.ValidatorSet
	store *VertexStore

	ledger     Ledger
	rpcSender  SyncVerticesRPCSender
	syncSender SyncRequestSender

	syncing map[string]*syncState
	// 请求的vertex id -> sync key
	requests map[string]string

	counters metric.SystemCounters
	logger   log.Logger
}

func NewVertexStoreSync(
	epoch int64,
	self types.Address,
	vals *types.ValidatorSet,
	store *VertexStore,
	ledger Ledger,
	rpcSender SyncVerticesRPCSender,
	syncSender SyncRequestSender,
	counters metric.SystemCounters,
) *VertexStoreSync {
	return &VertexStoreSync{
		epoch:      epoch,
		self:       self,
		vals:       vals,
		store:      store,
		ledger:     ledger,
		rpcSender:  rpcSender,
		syncSender: syncSender,
		syncing:    make(map[string]*syncState),
		requests:   make(map[string]string),
		counters:   counters,
		logger:     log.NewNopLogger(),
	}
}

func (s *VertexStoreSync) SetLogger(logger log.Logger) {
	s.logger = logger
}

// SyncToQC qc已经可以加入store时返回true
// 否则开始同步并返回false，同步完成后调用onSynced
func (s *VertexStoreSync) SyncToQC(qc, committedQC *types.QuorumCertificate, author types.Address, onSynced func()) bool {
	if qc.View().Less(s.store.Root().View()) {
		return true
	}
	if s.store.AddQC(qc) {
		return true
	}

	key := string(qc.Proposed().VertexID)
	if st, ok := s.syncing[key]; ok {
		if onSynced != nil {
			st.onSynced = append(st.onSynced, onSynced)
		}
		return false
	}

	st := &syncState{
		key:         key,
		qc:          qc,
		committedQC: committedQC,
		author:      author,
	}
	if onSynced != nil {
		st.onSynced = append(st.onSynced, onSynced)
	}
	s.syncing[key] = st
	s.counters.Increment(metric.ConsensusSyncRequests)

	if committedQC != nil && s.needsCommittedSync(committedQC) {
		st.stage = syncStageCommitted
		s.logger.Info("start committed sync", "qc", qc, "committed", committedQC.Committed(), "root", s.store.Root().Metadata)
		s.request(st, committedQC.Proposed().VertexID, 3)
	} else {
		st.stage = syncStageQC
		s.logger.Debug("start qc sync", "qc", qc)
		s.request(st, qc.Proposed().VertexID, 1)
	}
	return false
}

func (s *VertexStoreSync) needsCommittedSync(committedQC *types.QuorumCertificate) bool {
	c := committedQC.Committed()
	if c == nil || !c.View.Greater(s.store.Root().View()) {
		return false
	}
	return !s.store.Contains(c.VertexID)
}

func (s *VertexStoreSync) request(st *syncState, id tmbytes.HexBytes, count int) {
	st.pendingID = id
	st.pendingCount = count
	st.retries = 0
	s.requests[string(id)] = st.key
	s.sendRequest(st, st.author)
}

func (s *VertexStoreSync) sendRequest(st *syncState, to types.Address) {
	s.rpcSender.SendGetVerticesRequest(to, &types.GetVerticesRequest{
		Epoch:    s.epoch,
		VertexID: st.pendingID,
		Count:    st.pendingCount,
	})
}

// 按key排序，保证重发的顺序固定
func (s *VertexStoreSync) sortedSyncs() []*syncState {
	syncs := make([]*syncState, 0, len(s.syncing))
	for _, st := range s.syncing {
		syncs = append(syncs, st)
	}
	sort.Slice(syncs, func(i, j int) bool { return syncs[i].key < syncs[j].key })
	return syncs
}

// ProcessLocalTimeout 请求或者回应可能丢失了
// 已经能加入store的QC直接完成，其余的轮流向QC的签名者重发，超过maxSyncRetries次就放弃
func (s *VertexStoreSync) ProcessLocalTimeout() {
	for _, st := range s.sortedSyncs() {
		if cur, ok := s.syncing[st.key]; !ok || cur != st {
			continue
		}
		if st.qc.View().Less(s.store.Root().View()) || s.store.AddQC(st.qc) {
			s.finish(st)
			continue
		}
		if st.stage == syncStageLedger {
			// 等待账本同步，由sync service负责重试
			continue
		}
		st.retries++
		if st.retries > maxSyncRetries {
			s.logger.Info("vertex sync timed out", "qc", st.qc, "retries", maxSyncRetries)
			s.abandon(st)
			continue
		}
		peers := s.qcPeers(st.qc, st.author)
		peer := peers[st.retries%len(peers)]
		s.logger.Debug("retry vertex sync", "id", st.pendingID, "peer", peer, "retries", st.retries)
		s.sendRequest(st, peer)
	}
}

// ProcessCommit root前进之后，proposed不高于root的QC不再需要同步
func (s *VertexStoreSync) ProcessCommit() {
	root := s.store.Root().View()
	for _, st := range s.sortedSyncs() {
		if !st.qc.View().Greater(root) {
			s.logger.Debug("drop stale vertex sync", "qc", st.qc, "root", root)
			s.abandon(st)
		}
	}
}

// ProcessGetVerticesRequest 回答其他节点的请求，store中没有时返回自己最高的QC
func (s *VertexStoreSync) ProcessGetVerticesRequest(from types.Address, req *types.GetVerticesRequest) {
	count := req.Count
	if count <= 0 {
		count = 1
	}
	vertices := s.store.GetVertices(req.VertexID, count)
	if len(vertices) == 0 {
		s.rpcSender.SendGetVerticesErrorResponse(from, &types.GetVerticesErrorResponse{
			Epoch:              s.epoch,
			VertexID:           req.VertexID,
			HighestQC:          s.store.HighestQC(),
			HighestCommittedQC: s.store.HighestCommittedQC(),
		})
		return
	}
	s.rpcSender.SendGetVerticesResponse(from, &types.GetVerticesResponse{
		Epoch:    s.epoch,
		VertexID: req.VertexID,
		Vertices: vertices,
	})
}

func (s *VertexStoreSync) ProcessGetVerticesResponse(resp *types.GetVerticesResponse) {
	key, ok := s.requests[string(resp.VertexID)]
	if !ok {
		s.logger.Debug("unexpected vertices response", "id", resp.VertexID)
		return
	}
	delete(s.requests, string(resp.VertexID))
	st, ok := s.syncing[key]
	if !ok {
		return
	}

	if err := s.verifyChain(resp.VertexID, resp.Vertices); err != nil {
		s.logger.Info("invalid vertices response", "id", resp.VertexID, "err", err)
		s.abandon(st)
		return
	}

	switch st.stage {
	case syncStageQC:
		s.processQCVertices(st, resp.Vertices)
	case syncStageCommitted:
		s.processCommittedVertices(st, resp.Vertices)
	}
}

// verifyChain vertices必须从id开始，依次是前一个的父节点，并且带有合法的QC
func (s *VertexStoreSync) verifyChain(id []byte, vertices []*types.Vertex) error {
	if len(vertices) == 0 {
		return errEmptyVerticesResponse
	}
	expected := id
	for _, v := range vertices {
		if !bytes.Equal(v.ID(), expected) {
			return errUnexpectedVertex
		}
		if err := v.ValidateBasic(); err != nil {
			return err
		}
		if v.Epoch != s.epoch {
			return types.ErrVertexEpochMismatch
		}
		if v.IsGenesis() {
			if !bytes.Equal(v.ID(), types.NewGenesisVertex(s.epoch).ID()) {
				return errForgedGenesisVertex
			}
			break
		}
		if err := verifyQC(s.store, s.vals, v.QC); err != nil {
			return err
		}
		expected = v.ParentID()
	}
	return nil
}

func (s *VertexStoreSync) processQCVertices(st *syncState, vertices []*types.Vertex) {
	for _, v := range vertices {
		if !v.View.Greater(s.store.Root().View()) {
			// 对方在另一个已经被裁剪的分支上
			s.logger.Info("fetched vertex is below root", "vertex", v, "root", s.store.Root().Metadata)
			s.abandon(st)
			return
		}
		st.fetched = append(st.fetched, v)
		if s.store.Contains(v.ParentID()) {
			s.insertFetched(st)
			return
		}
	}
	last := st.fetched[len(st.fetched)-1]
	s.request(st, last.ParentID(), 1)
}

func (s *VertexStoreSync) insertFetched(st *syncState) {
	for i := len(st.fetched) - 1; i >= 0; i-- {
		if _, err := s.store.Insert(st.fetched[i]); err != nil {
			s.logger.Error("failed to insert fetched vertex", "vertex", st.fetched[i], "err", err)
			s.abandon(st)
			return
		}
	}
	if !s.store.AddQC(st.qc) {
		s.logger.Error("synced qc is still missing its vertex", "qc", st.qc)
		s.abandon(st)
		return
	}
	s.finish(st)
}

func (s *VertexStoreSync) processCommittedVertices(st *syncState, vertices []*types.Vertex) {
	committed := st.committedQC.Committed()
	if len(vertices) < 3 || !bytes.Equal(vertices[2].ID(), committed.VertexID) {
		s.logger.Info("incomplete committed chain", "got", len(vertices), "committed", committed)
		s.abandon(st)
		return
	}
	st.committedChain = vertices[:3]
	st.stage = syncStageLedger

	s.ledger.IfCommitSynced(*committed, st.key,
		func() { s.rebuildAndSyncQC(st) },
		func() {
			s.logger.Info("waiting for ledger to sync", "target", committed)
			s.syncSender.SendLocalSyncRequest(types.LocalSyncRequest{
				Target: *committed,
				Peers:  s.syncPeers(st),
			})
		},
	)
}

// 签名者和author都已经提交过这个位置
func (s *VertexStoreSync) syncPeers(st *syncState) []types.Address {
	return s.qcPeers(st.committedQC, st.author)
}

// author在最前，然后是除自己以外的qc签名者
func (s *VertexStoreSync) qcPeers(qc *types.QuorumCertificate, author types.Address) []types.Address {
	peers := []types.Address{author}
	for _, sig := range qc.Signatures {
		if !bytes.Equal(sig.ValidatorAddress, author) && !bytes.Equal(sig.ValidatorAddress, s.self) {
			peers = append(peers, sig.ValidatorAddress)
		}
	}
	return peers
}

// ProcessCommittedStateSync 账本已经同步到等待的位置
func (s *VertexStoreSync) ProcessCommittedStateSync(synced types.CommittedStateSync) {
	key, ok := synced.Opaque.(string)
	if !ok {
		return
	}
	st, ok := s.syncing[key]
	if !ok || st.stage != syncStageLedger {
		return
	}
	s.rebuildAndSyncQC(st)
}

func (s *VertexStoreSync) rebuildAndSyncQC(st *syncState) {
	chain := st.committedChain
	state, err := types.NewVerifiedVertexStoreState(
		st.committedQC,
		chain[2],
		[]*types.Vertex{chain[1], chain[0]},
		st.committedQC,
	)
	if err != nil {
		s.logger.Error("invalid committed chain", "err", err)
		s.abandon(st)
		return
	}
	if err := s.store.Rebuild(state); err != nil {
		s.logger.Error("failed to rebuild vertex store", "err", err)
		s.abandon(st)
		return
	}

	if s.store.AddQC(st.qc) {
		s.finish(st)
		return
	}
	st.stage = syncStageQC
	st.fetched = nil
	s.request(st, st.qc.Proposed().VertexID, 1)
}

// ProcessGetVerticesErrorResponse 对方没有请求的vertex，通常是已经提交并裁剪了
func (s *VertexStoreSync) ProcessGetVerticesErrorResponse(resp *types.GetVerticesErrorResponse) {
	key, ok := s.requests[string(resp.VertexID)]
	if !ok {
		return
	}
	delete(s.requests, string(resp.VertexID))
	st, ok := s.syncing[key]
	if !ok {
		return
	}

	if st.stage == syncStageQC && resp.HighestCommittedQC != nil && s.needsCommittedSync(resp.HighestCommittedQC) {
		if err := resp.HighestCommittedQC.Verify(s.vals); err == nil {
			s.logger.Info("switch to committed sync", "committed", resp.HighestCommittedQC.Committed())
			st.committedQC = resp.HighestCommittedQC
			st.stage = syncStageCommitted
			st.fetched = nil
			s.request(st, st.committedQC.Proposed().VertexID, 3)
			return
		}
	}
	s.logger.Info("vertex sync failed", "id", resp.VertexID, "highQC", resp.HighestQC)
	s.abandon(st)
}

func (s *VertexStoreSync) finish(st *syncState) {
	s.forget(st)
	s.logger.Debug("synced", "qc", st.qc)
	for _, cb := range st.onSynced {
		cb()
	}
}

// 放弃的同步中缓存的事件直接丢弃，依赖之后的消息重新触发
func (s *VertexStoreSync) abandon(st *syncState) {
	s.forget(st)
}

func (s *VertexStoreSync) forget(st *syncState) {
	delete(s.syncing, st.key)
	for id, key := range s.requests {
		if key == st.key {
			delete(s.requests, id)
		}
	}
}

func (s *VertexStoreSync) IsSyncing() bool {
	return len(s.syncing) > 0
}
