package types

import (
	"bytes"
	"fmt"
)

// VerifiedVertexStoreState 经过校验的vertex store快照，可以用于恢复
// 只能通过NewVerifiedVertexStoreState构造
type VerifiedVertexStoreState struct {
	RootQC   *QuorumCertificate `json:"root_qc"`
	Root     *Vertex            `json:"root"`
	Vertices []*Vertex          `json:"vertices"` // 父节点在前
	HighQC   *QuorumCertificate `json:"high_qc"`

	// 本epoch的genesis QC，root离开genesis之后用来识别不带签名的QC
	GenesisQC *QuorumCertificate `json:"genesis_qc,omitempty"`
}

// NewVerifiedVertexStoreState 校验:
//  1. rootQC提交的正是root
//  2. 每个非root vertex的父节点都在它之前出现
//  3. highQC的proposed在快照中
//  4. highQC的parent在快照中，除非proposed就是root
//  5. highQC的committed在快照中，或者在root之前已经提交
func NewVerifiedVertexStoreState(rootQC *QuorumCertificate, root *Vertex, vertices []*Vertex, highQC *QuorumCertificate) (*VerifiedVertexStoreState, error) {
	if rootQC == nil || root == nil || highQC == nil {
		return nil, fmt.Errorf("incomplete vertex store state")
	}
	committed := rootQC.Committed()
	if committed == nil || !bytes.Equal(committed.VertexID, root.ID()) {
		return nil, fmt.Errorf("root qc %v does not commit root %v", rootQC, root.ID())
	}

	seen := map[string]*Vertex{string(root.ID()): root}
	for _, v := range vertices {
		if _, ok := seen[string(v.ParentID())]; !ok {
			return nil, fmt.Errorf("vertex %v is missing parent %v", v.ID(), v.ParentID())
		}
		seen[string(v.ID())] = v
	}

	proposed := highQC.Proposed()
	if _, ok := seen[string(proposed.VertexID)]; !ok {
		return nil, fmt.Errorf("highQC proposed %v is missing", proposed.VertexID)
	}
	if !bytes.Equal(proposed.VertexID, root.ID()) {
		if _, ok := seen[string(highQC.Parent().VertexID)]; !ok {
			return nil, fmt.Errorf("highQC parent %v is missing", highQC.Parent().VertexID)
		}
	}
	if c := highQC.Committed(); c != nil {
		if _, ok := seen[string(c.VertexID)]; !ok && c.View.Greater(committed.View) {
			return nil, fmt.Errorf("highQC committed %v is missing", c.VertexID)
		}
	}

	return &VerifiedVertexStoreState{
		RootQC:   rootQC,
		Root:     root,
		Vertices: vertices,
		HighQC:   highQC,
	}, nil
}

// NewGenesisVertexStoreState 每个epoch开始时从ancestor构造的初始状态
func NewGenesisVertexStoreState(ancestor VertexMetadata, epoch int64) *VerifiedVertexStoreState {
	genesis := NewGenesisVertex(epoch)
	meta := NewVertexMetadata(epoch, GenesisView, genesis.ID(), ancestor.StateVersion, false)
	qc := NewGenesisQC(meta)
	state, err := NewVerifiedVertexStoreState(qc, genesis, nil, qc)
	if err != nil {
		panic(err)
	}
	state.GenesisQC = qc
	return state
}

// SetGenesisQC qc必须是同一个epoch的genesis QC
func (s *VerifiedVertexStoreState) SetGenesisQC(qc *QuorumCertificate) error {
	if qc == nil {
		return nil
	}
	if !qc.IsGenesis() || qc.Epoch() != s.Epoch() {
		return fmt.Errorf("%v is not the genesis qc of epoch %d", qc, s.Epoch())
	}
	s.GenesisQC = qc
	return nil
}

func (s *VerifiedVertexStoreState) RootMetadata() VertexMetadata {
	return *s.RootQC.Committed()
}

func (s *VerifiedVertexStoreState) Epoch() int64 {
	return s.Root.Epoch
}

func (s *VerifiedVertexStoreState) String() string {
	return fmt.Sprintf("VertexStoreState{root=%v vertices=%d highQC=%v}", s.RootMetadata(), len(s.Vertices), s.HighQC)
}
