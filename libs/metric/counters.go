package metric

import (
	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

// CounterType 系统计数器的名字
type CounterType string

const (
	ConsensusView              = CounterType("consensus.view")
	ConsensusTimeout           = CounterType("consensus.timeout")
	ConsensusTimeoutView       = CounterType("consensus.timeout_view")
	ConsensusIndirectParent    = CounterType("consensus.indirect_parent")
	ConsensusRejectedProposals = CounterType("consensus.rejected_proposals")
	ConsensusProposals         = CounterType("consensus.proposals")
	ConsensusVotes             = CounterType("consensus.votes")
	ConsensusSyncRequests      = CounterType("consensus.vertex_sync_requests")
	ConsensusVertexStoreSize   = CounterType("consensus.vertex_store_size")
	EpochManagerEpoch          = CounterType("epoch_manager.epoch")
	EpochManagerQueued         = CounterType("epoch_manager.queued_events")
	LedgerStateVersion         = CounterType("ledger.state_version")
	LedgerCommittedCommands    = CounterType("ledger.committed_commands")
	SyncProcessed              = CounterType("sync.processed")
	SyncTargetVersion          = CounterType("sync.target_version")
	SyncRequestsSent           = CounterType("sync.requests_sent")
	SyncQueueSize              = CounterType("sync.queue_size")
	MempoolSize                = CounterType("mempool.size")
)

// SystemCounters 节点内部的可观测计数，只是副作用，不影响协议
type SystemCounters interface {
	MetricItem

	Increment(counterType CounterType)
	Add(counterType CounterType, amount int64)
	Set(counterType CounterType, value int64)
	Get(counterType CounterType) int64
}

// systemCounters 基于go-metrics的registry实现
type systemCounters struct {
	registry metrics.Registry
}

var _ SystemCounters = (*systemCounters)(nil)

func NewSystemCounters() SystemCounters {
	return &systemCounters{
		registry: metrics.NewRegistry(),
	}
}

// Increment 计数器加一
func (sc *systemCounters) Increment(counterType CounterType) {
	sc.Add(counterType, 1)
}

func (sc *systemCounters) Add(counterType CounterType, amount int64) {
	metrics.GetOrRegisterCounter(string(counterType), sc.registry).Inc(amount)
}

// Set 用gauge表示的瞬时值，如view和state version
func (sc *systemCounters) Set(counterType CounterType, value int64) {
	metrics.GetOrRegisterGauge(string(counterType), sc.registry).Update(value)
}

// Get 计数器和gauge共用一个名字空间
func (sc *systemCounters) Get(counterType CounterType) int64 {
	switch m := sc.registry.Get(string(counterType)).(type) {
	case metrics.Counter:
		return m.Count()
	case metrics.Gauge:
		return m.Value()
	default:
		return 0
	}
}

func (sc *systemCounters) JSONString() string {
	values := make(map[string]int64)
	sc.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			values[name] = m.Count()
		case metrics.Gauge:
			values[name] = m.Value()
		}
	})
	s, _ := jsoniter.MarshalToString(values)
	return s
}
