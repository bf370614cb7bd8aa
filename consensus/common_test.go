package consensus

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"

	cfg "hotbft/config"
	"hotbft/libs/metric"
	"hotbft/mempool"
	"hotbft/state"
	"hotbft/types"
)

func getTestLog() log.Logger {
	return log.TestingLogger()
}

func getTestLogWithDebug() log.Logger {
	return log.NewFilter(log.TestingLogger(), log.AllowDebug())
}

// ------ collaborators ------

type fakeScheduler struct {
	scheduled []types.LocalTimeout
}

func (s *fakeScheduler) ScheduleTimeout(timeout types.LocalTimeout, _ time.Duration) {
	s.scheduled = append(s.scheduled, timeout)
}

// epochComputer 到达epochViews时切换到同一组验证者的下一个epoch
type epochComputer struct {
	epochViews types.View
	vals       *types.ValidatorSet
}

func (c *epochComputer) Prepare(vertex *types.Vertex) (*types.ValidatorSet, error) {
	if c.epochViews > 0 && !vertex.View.Less(c.epochViews) {
		return c.vals, nil
	}
	return nil, nil
}

func (c *epochComputer) Commit(_ types.CommittedCommand) error {
	return nil
}

// ------ deterministic network ------

type testMessage struct {
	from types.Address
	to   types.Address
	msg  interface{}
}

type testNode struct {
	pv        types.PrivValidator
	em        *EpochManager
	ledger    *state.Ledger
	mempool   *mempool.ListMempool
	counters  metric.SystemCounters
	timeout   *types.LocalTimeout
	committed []types.CommittedCommand
}

func (n *testNode) ScheduleTimeout(timeout types.LocalTimeout, _ time.Duration) {
	t := timeout
	n.timeout = &t
}

// testNetwork 所有消息按发送顺序逐个处理，队列为空时触发所有节点的超时
type testNetwork struct {
	t     *testing.T
	vals  *types.ValidatorSet
	nodes []*testNode
	queue []testMessage

	// 返回true的消息被丢弃
	drop func(m testMessage) bool
	// 所有广播过的提案
	proposals []*types.Proposal
}

type nodeSender struct {
	net  *testNetwork
	from types.Address
}

func (s nodeSender) send(to types.Address, msg interface{}) {
	m := testMessage{from: s.from, to: to, msg: msg}
	if s.net.drop != nil && s.net.drop(m) {
		return
	}
	s.net.queue = append(s.net.queue, m)
}

func (s nodeSender) BroadcastProposal(proposal *types.Proposal, nodes []types.Address) {
	s.net.proposals = append(s.net.proposals, proposal)
	for _, n := range nodes {
		s.send(n, proposal)
	}
}

func (s nodeSender) SendNewView(nv *types.NewView, leader types.Address) { s.send(leader, nv) }
func (s nodeSender) SendVote(vote *types.Vote, leader types.Address)     { s.send(leader, vote) }

func (s nodeSender) SendGetVerticesRequest(node types.Address, req *types.GetVerticesRequest) {
	s.send(node, req)
}

func (s nodeSender) SendGetVerticesResponse(node types.Address, resp *types.GetVerticesResponse) {
	s.send(node, resp)
}

func (s nodeSender) SendGetVerticesErrorResponse(node types.Address, resp *types.GetVerticesErrorResponse) {
	s.send(node, resp)
}

func (s nodeSender) SendLocalSyncRequest(req types.LocalSyncRequest) {
	s.net.t.Fatalf("unexpected ledger sync request %v", req)
}

func newTestNetwork(t *testing.T, n int, epochViews types.View, commands int) *testNetwork {
	vals, pvs := types.RandValidatorSet(n, 10)
	net := &testNetwork{t: t, vals: vals}

	for _, pv := range pvs {
		node := &testNode{pv: pv, counters: metric.NewSystemCounters()}
		node.mempool = mempool.NewListMempool(cfg.TestConfig().Mempool)
		for i := 0; i < commands; i++ {
			require.NoError(t, node.mempool.Add(types.Command(fmt.Sprintf("k%d=v%d", i, i))))
		}

		evsw := events.NewEventSwitch()
		self := pv.GetAddress()
		require.NoError(t, evsw.AddListenerForEvent("test", state.EventCommittedCommand, func(data events.EventData) {
			node.committed = append(node.committed, data.(types.CommittedCommand))
		}))
		require.NoError(t, evsw.AddListenerForEvent("test", state.EventEpochChange, func(data events.EventData) {
			net.queue = append(net.queue, testMessage{from: self, to: self, msg: data})
		}))

		computer := &epochComputer{epochViews: epochViews, vals: vals}
		node.ledger = state.NewLedger(types.VertexMetadata{}, computer, node.mempool, evsw, state.WithCounters(node.counters))

		sender := nodeSender{net: net, from: self}
		node.em = NewEpochManager(
			cfg.TestConfig().Consensus,
			pv,
			node.ledger,
			node.mempool,
			sender,
			node,
			sender,
			WithCounters(node.counters),
		)
		node.em.SetLogger(getTestLog().With("node", self.String()[:6]))
		net.nodes = append(net.nodes, node)
	}
	return net
}

func (net *testNetwork) start() {
	genesis := types.NewGenesisVertexStoreState(types.VertexMetadata{}, 1)
	for _, node := range net.nodes {
		node.em.Start(net.vals, genesis)
	}
}

func (net *testNetwork) node(addr types.Address) *testNode {
	for _, n := range net.nodes {
		if bytes.Equal(n.pv.GetAddress(), addr) {
			return n
		}
	}
	net.t.Fatalf("unknown node %v", addr)
	return nil
}

func (net *testNetwork) deliver(m testMessage) {
	em := net.node(m.to).em
	switch msg := m.msg.(type) {
	case *types.Proposal:
		em.ProcessProposal(msg)
	case *types.Vote:
		em.ProcessVote(msg)
	case *types.NewView:
		em.ProcessNewView(msg)
	case *types.GetVerticesRequest:
		em.ProcessGetVerticesRequest(m.from, msg)
	case *types.GetVerticesResponse:
		em.ProcessGetVerticesResponse(msg)
	case *types.GetVerticesErrorResponse:
		em.ProcessGetVerticesErrorResponse(msg)
	case types.EpochChange:
		em.ProcessEpochChange(msg)
	case types.CommittedStateSync:
		em.ProcessCommittedStateSync(msg)
	default:
		net.t.Fatalf("unknown message %T", msg)
	}
}

// step 处理一个消息或者触发一轮超时，没有任何事件时返回false
func (net *testNetwork) step() bool {
	if len(net.queue) > 0 {
		m := net.queue[0]
		net.queue = net.queue[1:]
		net.deliver(m)
		return true
	}

	fired := false
	for _, node := range net.nodes {
		if node.timeout == nil {
			continue
		}
		timeout := *node.timeout
		node.timeout = nil
		node.em.ProcessLocalTimeout(timeout)
		fired = true
	}
	return fired
}

// runUntil 最多处理maxSteps步
func (net *testNetwork) runUntil(maxSteps int, done func() bool) {
	for i := 0; i < maxSteps; i++ {
		if done() {
			return
		}
		if !net.step() {
			net.t.Fatalf("network stalled after %d steps", i)
		}
	}
	net.t.Fatalf("condition not reached after %d steps", maxSteps)
}

func (net *testNetwork) minCommitted() int {
	min := -1
	for _, n := range net.nodes {
		if min < 0 || len(n.committed) < min {
			min = len(n.committed)
		}
	}
	return min
}

// requireConsistentLedgers 所有节点提交的序列互为前缀
func (net *testNetwork) requireConsistentLedgers() {
	var longest []types.CommittedCommand
	for _, n := range net.nodes {
		if len(n.committed) > len(longest) {
			longest = n.committed
		}
	}
	for _, n := range net.nodes {
		for i, cc := range n.committed {
			require.Equal(net.t, longest[i].Metadata, cc.Metadata, "ledgers diverge at %d", i)
			require.Equal(net.t, longest[i].Command, cc.Command)
			require.Equal(net.t, int64(i+1), cc.StateVersion())
		}
	}
}
