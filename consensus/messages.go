package consensus

import (
	"time"

	cstypes "hotbft/consensus/types"
	"hotbft/types"
)

// ------ Sender ------
// 发送都是fire-and-forget，发给自己的消息也要经过网络层回到自己的消息队列

// BFTEventSender 共识消息的发送接口
type BFTEventSender interface {
	BroadcastProposal(proposal *types.Proposal, nodes []types.Address)
	SendNewView(nv *types.NewView, leader types.Address)
	SendVote(vote *types.Vote, leader types.Address)
}

// SyncVerticesRPCSender vertex同步的rpc
type SyncVerticesRPCSender interface {
	SendGetVerticesRequest(node types.Address, req *types.GetVerticesRequest)
	SendGetVerticesResponse(node types.Address, resp *types.GetVerticesResponse)
	SendGetVerticesErrorResponse(node types.Address, resp *types.GetVerticesErrorResponse)
}

// TimeoutScheduler 新的超时会取消之前还没有触发的超时
type TimeoutScheduler interface {
	ScheduleTimeout(timeout types.LocalTimeout, duration time.Duration)
}

// SyncRequestSender 通知同步服务追赶已提交的命令
type SyncRequestSender interface {
	SendLocalSyncRequest(req types.LocalSyncRequest)
}

// ------ Collaborators ------

// Ledger 见state.Ledger
type Ledger interface {
	Prepare(previous []*types.PreparedVertex, vertex *types.Vertex) (*types.PreparedVertex, error)
	CommitVertex(pv *types.PreparedVertex) bool
	IfCommitSynced(target types.VertexMetadata, opaque interface{}, onSynced func(), onNotSynced func())
}

type SafetyStatePersister interface {
	SaveSafetyState(epoch int64, state cstypes.SafetyState) error
}

type VertexStoreStatePersister interface {
	SaveVertexStoreState(state *types.VerifiedVertexStoreState) error
}

// ------ Processor ------

// BFTEventProcessor 一个epoch内的共识事件处理器
// 所有方法都在同一个goroutine中调用
type BFTEventProcessor interface {
	Start()
	ProcessProposal(proposal *types.Proposal)
	ProcessVote(vote *types.Vote)
	ProcessNewView(nv *types.NewView)
	ProcessLocalTimeout(view types.View)
	ProcessGetVerticesRequest(from types.Address, req *types.GetVerticesRequest)
	ProcessGetVerticesResponse(resp *types.GetVerticesResponse)
	ProcessGetVerticesErrorResponse(resp *types.GetVerticesErrorResponse)
	ProcessCommittedStateSync(synced types.CommittedStateSync)
}
