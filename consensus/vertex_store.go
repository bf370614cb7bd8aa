package consensus

import (
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/log"

	"hotbft/libs/metric"
	"hotbft/types"
)

// MissingParentError 插入的vertex的父节点不在store中，需要向其他节点同步
type MissingParentError struct {
	VertexID tmbytes.HexBytes
	ParentID tmbytes.HexBytes
}

func (e *MissingParentError) Error() string {
	return fmt.Sprintf("parent %v of vertex %v is missing", e.ParentID, e.VertexID)
}

// VertexStore 以最后提交的vertex为根的vertex树
// 所有vertex都可以从root沿着父节点到达，提交时裁剪掉不再可达的分支
// NOTE 只在共识goroutine中使用，不加锁
type VertexStore struct {
	ledger    Ledger
	persister VertexStoreStatePersister

	root   *types.PreparedVertex
	rootQC *types.QuorumCertificate // rootQC.Committed() == root

	highQC             *types.QuorumCertificate
	highestCommittedQC *types.QuorumCertificate
	genesisQC          *types.QuorumCertificate

	vertices map[string]*types.PreparedVertex
	children map[string][]string

	counters metric.SystemCounters
	logger   log.Logger
}

func NewVertexStore(
	state *types.VerifiedVertexStoreState,
	ledger Ledger,
	persister VertexStoreStatePersister,
	counters metric.SystemCounters,
) (*VertexStore, error) {
	vs := &VertexStore{
		ledger:    ledger,
		persister: persister,
		counters:  counters,
		logger:    log.NewNopLogger(),
	}
	if err := vs.Rebuild(state); err != nil {
		return nil, err
	}
	return vs, nil
}

func (vs *VertexStore) SetLogger(logger log.Logger) {
	vs.logger = logger
}

// Rebuild 丢弃当前所有vertex，用快照重建
// 先在新的store里插入，全部成功之后才替换，失败时原来的store不变
func (vs *VertexStore) Rebuild(state *types.VerifiedVertexStoreState) error {
	root := &types.PreparedVertex{Vertex: state.Root, Metadata: state.RootMetadata()}
	next := &VertexStore{
		ledger:             vs.ledger,
		root:               root,
		rootQC:             state.RootQC,
		highQC:             state.HighQC,
		highestCommittedQC: state.RootQC,
		genesisQC:          vs.genesisQC,
		vertices:           map[string]*types.PreparedVertex{string(root.ID()): root},
		children:           make(map[string][]string),
	}
	switch {
	case state.Root.IsGenesis():
		next.genesisQC = state.RootQC
	case state.GenesisQC != nil:
		next.genesisQC = state.GenesisQC
	}
	if next.genesisQC != nil && next.genesisQC.Epoch() != state.Epoch() {
		next.genesisQC = nil
	}

	for _, v := range state.Vertices {
		if _, err := next.insert(v); err != nil {
			return fmt.Errorf("rebuild vertex store: %w", err)
		}
	}
	if c := state.HighQC.Committed(); c != nil && c.View.Greater(next.rootQC.Committed().View) {
		next.highestCommittedQC = state.HighQC
	}

	vs.root = next.root
	vs.rootQC = next.rootQC
	vs.highQC = next.highQC
	vs.highestCommittedQC = next.highestCommittedQC
	vs.genesisQC = next.genesisQC
	vs.vertices = next.vertices
	vs.children = next.children
	vs.counters.Set(metric.ConsensusVertexStoreSize, int64(len(vs.vertices)))
	vs.logger.Info("vertex store rebuilt", "state", state)
	return nil
}

// IsGenesisQC qc是否就是本epoch的genesis QC，不带签名的QC只有这一个是合法的
func (vs *VertexStore) IsGenesisQC(qc *types.QuorumCertificate) bool {
	return vs.genesisQC != nil && qc.IsGenesis() && qc.VoteData.Equal(vs.genesisQC.VoteData)
}

func (vs *VertexStore) Root() *types.PreparedVertex {
	return vs.root
}

func (vs *VertexStore) RootQC() *types.QuorumCertificate {
	return vs.rootQC
}

// HighestQC proposed view最高的QC
func (vs *VertexStore) HighestQC() *types.QuorumCertificate {
	return vs.highQC
}

// HighestCommittedQC committed view最高的QC
func (vs *VertexStore) HighestCommittedQC() *types.QuorumCertificate {
	return vs.highestCommittedQC
}

func (vs *VertexStore) Size() int {
	return len(vs.vertices)
}

func (vs *VertexStore) Contains(id []byte) bool {
	_, ok := vs.vertices[string(id)]
	return ok
}

func (vs *VertexStore) Get(id []byte) *types.PreparedVertex {
	return vs.vertices[string(id)]
}

// Insert 父节点必须已经在store中，否则返回*MissingParentError
func (vs *VertexStore) Insert(vertex *types.Vertex) (*types.PreparedVertex, error) {
	if err := vertex.ValidateBasic(); err != nil {
		return nil, err
	}
	pv, err := vs.insert(vertex)
	if err != nil {
		return nil, err
	}
	vs.AddQC(vertex.QC)
	vs.counters.Set(metric.ConsensusVertexStoreSize, int64(len(vs.vertices)))
	return pv, nil
}

func (vs *VertexStore) insert(vertex *types.Vertex) (*types.PreparedVertex, error) {
	id := string(vertex.ID())
	if pv, ok := vs.vertices[id]; ok {
		return pv, nil
	}
	parentID := vertex.ParentID()
	if !vs.Contains(parentID) {
		return nil, &MissingParentError{VertexID: vertex.ID(), ParentID: parentID}
	}

	pv, err := vs.ledger.Prepare(vs.GetPathFromRoot(parentID), vertex)
	if err != nil {
		return nil, err
	}
	vs.vertices[id] = pv
	vs.children[string(parentID)] = append(vs.children[string(parentID)], id)
	return pv, nil
}

// AddQC qc证明的vertex不在store中时返回false
func (vs *VertexStore) AddQC(qc *types.QuorumCertificate) bool {
	if !vs.Contains(qc.Proposed().VertexID) {
		return false
	}
	if qc.View().Greater(vs.highQC.View()) {
		vs.highQC = qc
	}
	if c := qc.Committed(); c != nil && c.View.Greater(vs.highestCommittedQC.Committed().View) {
		vs.highestCommittedQC = qc
	}
	return true
}

// GetPathFromRoot 从root(不含)到id(含)的路径，id不可达时返回nil
func (vs *VertexStore) GetPathFromRoot(id []byte) []*types.PreparedVertex {
	var path []*types.PreparedVertex
	cur, ok := vs.vertices[string(id)]
	for ok && cur != vs.root {
		path = append(path, cur)
		cur, ok = vs.vertices[string(cur.Vertex.ParentID())]
	}
	if !ok {
		return nil
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// GetVertices 从id开始沿父节点最多取count个vertex，子节点在前
func (vs *VertexStore) GetVertices(id []byte, count int) []*types.Vertex {
	vertices := make([]*types.Vertex, 0, count)
	cur, ok := vs.vertices[string(id)]
	for ok && len(vertices) < count {
		vertices = append(vertices, cur.Vertex)
		if cur == vs.root {
			break
		}
		cur, ok = vs.vertices[string(cur.Vertex.ParentID())]
	}
	return vertices
}

// Commit 提交committed以及root到它之间的所有vertex，然后以它为新的root裁剪
// 路径断开说明store已经损坏，直接panic
func (vs *VertexStore) Commit(committed types.VertexMetadata, commitQC *types.QuorumCertificate) []*types.PreparedVertex {
	if !committed.View.Greater(vs.root.View()) {
		return nil
	}
	target, ok := vs.vertices[string(committed.VertexID)]
	if !ok {
		panic(fmt.Sprintf("committing vertex %v which is not in the store", committed.VertexID))
	}
	path := vs.GetPathFromRoot(committed.VertexID)
	if len(path) == 0 {
		panic(fmt.Sprintf("no path from root %v to committed vertex %v", vs.root.ID(), committed.VertexID))
	}

	for _, pv := range path {
		vs.ledger.CommitVertex(pv)
	}

	pruned := vs.prune(target)
	vs.root = target
	vs.rootQC = commitQC
	if !vs.Contains(vs.highQC.Proposed().VertexID) {
		vs.highQC = commitQC
	}
	if vs.highestCommittedQC.Committed().View.Less(committed.View) {
		vs.highestCommittedQC = commitQC
	}
	vs.counters.Set(metric.ConsensusVertexStoreSize, int64(len(vs.vertices)))
	vs.logger.Debug("committed", "vertex", committed, "path", len(path), "pruned", pruned)

	if vs.persister != nil {
		if err := vs.persister.SaveVertexStoreState(vs.ToState()); err != nil {
			vs.logger.Error("failed to persist vertex store", "err", err)
		}
	}
	return path
}

// 广搜删除所有不在newRoot子树中的vertex，返回删除的数量
func (vs *VertexStore) prune(newRoot *types.PreparedVertex) int {
	pruned := 0
	queue := []string{string(vs.root.ID())}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == string(newRoot.ID()) {
			continue
		}
		queue = append(queue, vs.children[id]...)
		delete(vs.vertices, id)
		delete(vs.children, id)
		pruned++
	}
	return pruned
}

// ToState 当前store的快照，父节点在前
func (vs *VertexStore) ToState() *types.VerifiedVertexStoreState {
	vertices := make([]*types.Vertex, 0, len(vs.vertices)-1)
	queue := append([]string(nil), vs.children[string(vs.root.ID())]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		vertices = append(vertices, vs.vertices[id].Vertex)
		queue = append(queue, vs.children[id]...)
	}

	state, err := types.NewVerifiedVertexStoreState(vs.rootQC, vs.root.Vertex, vertices, vs.highQC)
	if err != nil {
		panic(fmt.Sprintf("vertex store is inconsistent: %v", err))
	}
	state.GenesisQC = vs.genesisQC
	return state
}
