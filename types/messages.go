package types

import (
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// ===== 节点之间的同步消息 =====

// GetVerticesRequest 请求从VertexID开始(包含)向祖先方向的Count个vertex
type GetVerticesRequest struct {
	Epoch    int64            `json:"epoch"`
	VertexID tmbytes.HexBytes `json:"vertex_id"`
	Count    int              `json:"count"`
}

func (req *GetVerticesRequest) GetEpoch() int64 {
	return req.Epoch
}

func (req *GetVerticesRequest) String() string {
	return fmt.Sprintf("GetVerticesRequest{epoch=%d id=%v count=%d}", req.Epoch, req.VertexID, req.Count)
}

// GetVerticesResponse vertices按照 子->父 的顺序排列
type GetVerticesResponse struct {
	Epoch    int64            `json:"epoch"`
	VertexID tmbytes.HexBytes `json:"vertex_id"`
	Vertices []*Vertex        `json:"vertices"`
}

func (resp *GetVerticesResponse) GetEpoch() int64 {
	return resp.Epoch
}

func (resp *GetVerticesResponse) String() string {
	return fmt.Sprintf("GetVerticesResponse{epoch=%d id=%v n=%d}", resp.Epoch, resp.VertexID, len(resp.Vertices))
}

// GetVerticesErrorResponse 对方没有请求的vertex，返回自己的QC状态
type GetVerticesErrorResponse struct {
	Epoch              int64              `json:"epoch"`
	VertexID           tmbytes.HexBytes   `json:"vertex_id"`
	HighestQC          *QuorumCertificate `json:"highest_qc"`
	HighestCommittedQC *QuorumCertificate `json:"highest_committed_qc"`
}

func (resp *GetVerticesErrorResponse) GetEpoch() int64 {
	return resp.Epoch
}

func (resp *GetVerticesErrorResponse) String() string {
	return fmt.Sprintf("GetVerticesErrorResponse{epoch=%d id=%v highQC=%v}", resp.Epoch, resp.VertexID, resp.HighestQC)
}

// CommittedCommand 一个已提交的命令以及它在账本上的位置
type CommittedCommand struct {
	Command  Command        `json:"command"`
	Metadata VertexMetadata `json:"metadata"`

	// 结束epoch的命令携带下一个epoch的验证者
	NextValidators *ValidatorSet `json:"next_validators,omitempty"`
}

func (cc CommittedCommand) StateVersion() int64 {
	return cc.Metadata.StateVersion
}

// SyncRequest 请求state version在 (StateVersion, StateVersion+BatchSize] 之间的已提交命令
type SyncRequest struct {
	StateVersion int64 `json:"state_version"`
	BatchSize    int   `json:"batch_size"`
}

func (req *SyncRequest) String() string {
	return fmt.Sprintf("SyncRequest{version=%d batch=%d}", req.StateVersion, req.BatchSize)
}

type SyncResponse struct {
	Commands []CommittedCommand `json:"commands"`
}

func (resp *SyncResponse) String() string {
	return fmt.Sprintf("SyncResponse{n=%d}", len(resp.Commands))
}

// ===== 节点内部事件 =====

// LocalTimeout pacemaker在某个view超时
type LocalTimeout struct {
	Epoch int64 `json:"epoch"`
	View  View  `json:"view"`
}

func (t LocalTimeout) GetEpoch() int64 {
	return t.Epoch
}

func (t LocalTimeout) String() string {
	return fmt.Sprintf("LocalTimeout{epoch=%d view=%d}", t.Epoch, t.View)
}

// LocalSyncRequest 账本落后时交给同步服务的请求
type LocalSyncRequest struct {
	Target VertexMetadata `json:"target"`
	Peers  []Address      `json:"peers"`
}

func (req LocalSyncRequest) String() string {
	return fmt.Sprintf("LocalSyncRequest{target=%v peers=%d}", req.Target, len(req.Peers))
}

// EpochChange 提交了一个epoch结束的vertex，下一个epoch从Ancestor开始
type EpochChange struct {
	Ancestor   VertexMetadata `json:"ancestor"`
	Validators *ValidatorSet  `json:"validators"`
}

func (ec EpochChange) NextEpoch() int64 {
	return ec.Ancestor.Epoch + 1
}

func (ec EpochChange) String() string {
	return fmt.Sprintf("EpochChange{ancestor=%v vals=%d}", ec.Ancestor, ec.Validators.Size())
}

// CommittedStateSync 账本已经追上了某个等待中的state version
type CommittedStateSync struct {
	StateVersion int64       `json:"state_version"`
	Opaque       interface{} `json:"-"`
}

func (s CommittedStateSync) String() string {
	return fmt.Sprintf("CommittedStateSync{version=%d}", s.StateVersion)
}
