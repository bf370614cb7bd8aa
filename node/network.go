package node

import (
	"sync"

	"github.com/tendermint/tendermint/libs/log"

	"hotbft/consensus"
	"hotbft/syncservice"
	"hotbft/types"
)

// Receiver 接收网络消息，不能阻塞发送方
type Receiver interface {
	Receive(from types.Address, msg interface{})
}

// DropFunc 返回true的消息被丢弃
type DropFunc func(from, to types.Address, msg interface{}) bool

// LocalNetwork 进程内的网络，消息直接交给目标节点的Receiver
// 不保证送达，未知的目标直接丢弃
type LocalNetwork struct {
	mtx   sync.RWMutex
	peers map[string]Receiver
	drop  DropFunc

	logger log.Logger
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{
		peers:  make(map[string]Receiver),
		logger: log.NewNopLogger(),
	}
}

func (ln *LocalNetwork) SetLogger(logger log.Logger) {
	ln.logger = logger
}

// SetDropFunc 设置丢包规则，nil表示不丢包
func (ln *LocalNetwork) SetDropFunc(drop DropFunc) {
	ln.mtx.Lock()
	defer ln.mtx.Unlock()
	ln.drop = drop
}

// Join 注册addr的接收者
func (ln *LocalNetwork) Join(addr types.Address, r Receiver) {
	ln.mtx.Lock()
	defer ln.mtx.Unlock()
	ln.peers[string(addr)] = r
}

func (ln *LocalNetwork) Leave(addr types.Address) {
	ln.mtx.Lock()
	defer ln.mtx.Unlock()
	delete(ln.peers, string(addr))
}

// Sender 以from的身份发送消息
func (ln *LocalNetwork) Sender(from types.Address) *LocalSender {
	return &LocalSender{net: ln, from: from}
}

func (ln *LocalNetwork) send(from, to types.Address, msg interface{}) {
	ln.mtx.RLock()
	r, ok := ln.peers[string(to)]
	drop := ln.drop
	ln.mtx.RUnlock()

	if !ok {
		ln.logger.Debug("drop message to unknown peer", "to", to, "msg", msg)
		return
	}
	if drop != nil && drop(from, to, msg) {
		return
	}
	r.Receive(from, msg)
}

// LocalSender 一个节点在LocalNetwork上的发送端
type LocalSender struct {
	net  *LocalNetwork
	from types.Address
}

var (
	_ consensus.ConsensusNetwork = (*LocalSender)(nil)
	_ syncservice.Sender         = (*LocalSender)(nil)
)

func (s *LocalSender) BroadcastProposal(proposal *types.Proposal, nodes []types.Address) {
	for _, node := range nodes {
		s.net.send(s.from, node, proposal)
	}
}

func (s *LocalSender) SendNewView(nv *types.NewView, leader types.Address) {
	s.net.send(s.from, leader, nv)
}

func (s *LocalSender) SendVote(vote *types.Vote, leader types.Address) {
	s.net.send(s.from, leader, vote)
}

func (s *LocalSender) SendGetVerticesRequest(node types.Address, req *types.GetVerticesRequest) {
	s.net.send(s.from, node, req)
}

func (s *LocalSender) SendGetVerticesResponse(node types.Address, resp *types.GetVerticesResponse) {
	s.net.send(s.from, node, resp)
}

func (s *LocalSender) SendGetVerticesErrorResponse(node types.Address, resp *types.GetVerticesErrorResponse) {
	s.net.send(s.from, node, resp)
}

func (s *LocalSender) SendSyncRequest(peer types.Address, req *types.SyncRequest) {
	s.net.send(s.from, peer, req)
}

func (s *LocalSender) SendSyncResponse(peer types.Address, resp *types.SyncResponse) {
	s.net.send(s.from, peer, resp)
}
