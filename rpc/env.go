package rpc

import (
	"hotbft/libs/metric"
	"hotbft/mempool"
	"hotbft/state"
	"hotbft/store"
	"hotbft/types"
)

// Querier 查询应用状态
type Querier interface {
	Query(key []byte) ([]byte, error)
}

// Environment 一个节点对外提供rpc服务需要的组件
// 同一个进程里可以有多个节点，所以每个节点一个Environment
type Environment struct {
	Moniker string
	Address types.Address

	Mempool mempool.Mempool
	Ledger  *state.Ledger
	Store   *store.CommittedStore
	App     Querier

	Counters  metric.SystemCounters
	MetricSet *metric.MetricSet
}
