package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

var (
	ErrVertexNoQC          = errors.New("vertex has no parent quorum certificate")
	ErrVertexViewTooLow    = errors.New("vertex view must be greater than the view of its parent qc")
	ErrVertexEpochMismatch = errors.New("vertex epoch does not match its parent qc")
)

// Vertex 共识提出的基本单位 - 一个view、一个指向父节点的QC和一个可选的命令
// vertex不保存孩子节点，DAG通过父节点id查找重建
type Vertex struct {
	Epoch   int64              `json:"epoch"`
	View    View               `json:"view"`
	QC      *QuorumCertificate `json:"qc"`
	Command Command            `json:"command"`

	id tmbytes.HexBytes // temp value
}

func NewVertex(epoch int64, view View, qc *QuorumCertificate, cmd Command) *Vertex {
	return &Vertex{
		Epoch:   epoch,
		View:    view,
		QC:      qc,
		Command: cmd,
	}
}

// NewGenesisVertex 每个epoch的第一个vertex，不带QC
func NewGenesisVertex(epoch int64) *Vertex {
	return &Vertex{
		Epoch: epoch,
		View:  GenesisView,
	}
}

// ID vertex的内容地址
func (v *Vertex) ID() tmbytes.HexBytes {
	if v.id == nil {
		epoch := make([]byte, 8)
		binary.BigEndian.PutUint64(epoch, uint64(v.Epoch))
		v.id = merkle.HashFromByteSlices([][]byte{
			epoch,
			v.View.Hash(),
			v.QC.Hash(),
			v.Command,
		})
	}
	return v.id
}

func (v *Vertex) IsGenesis() bool {
	return v.View.IsGenesis()
}

func (v *Vertex) ParentID() tmbytes.HexBytes {
	if v.QC == nil {
		return nil
	}
	return v.QC.Proposed().VertexID
}

func (v *Vertex) ParentMetadata() VertexMetadata {
	return v.QC.Proposed()
}

func (v *Vertex) GrandparentMetadata() VertexMetadata {
	return v.QC.Parent()
}

func (v *Vertex) ParentView() View {
	return v.QC.View()
}

// HasDirectParent parent的view正好是当前view的前一个
func (v *Vertex) HasDirectParent() bool {
	return v.ParentView().Next() == v.View
}

func (v *Vertex) ParentHasDirectParent() bool {
	return v.GrandparentMetadata().View.Next() == v.ParentView()
}

// TouchesGenesis 自己、父节点或祖父节点是genesis
func (v *Vertex) TouchesGenesis() bool {
	return v.View.IsGenesis() || v.ParentView().IsGenesis() || v.GrandparentMetadata().View.IsGenesis()
}

// ValidateBasic 检验一个vertex是否合法 - 这里的合法指的是没有明确的错误
func (v *Vertex) ValidateBasic() error {
	if v.IsGenesis() {
		return nil
	}
	if v.QC == nil {
		return ErrVertexNoQC
	}
	if !v.View.Greater(v.QC.View()) {
		return ErrVertexViewTooLow
	}
	if v.QC.Epoch() != v.Epoch {
		return ErrVertexEpochMismatch
	}
	return nil
}

func (v *Vertex) String() string {
	if v == nil {
		return "nil-Vertex"
	}
	return fmt.Sprintf("Vertex{epoch=%d view=%d id=%v qc=%v cmd=%d bytes}", v.Epoch, v.View, v.ID(), v.QC, len(v.Command))
}

// PreparedVertex 已经交给账本预执行过的vertex
type PreparedVertex struct {
	Vertex   *Vertex
	Metadata VertexMetadata

	// 非空说明这是一个epoch切换的vertex
	NextValidators *ValidatorSet
}

func (pv *PreparedVertex) ID() tmbytes.HexBytes {
	return pv.Vertex.ID()
}

func (pv *PreparedVertex) View() View {
	return pv.Vertex.View
}
