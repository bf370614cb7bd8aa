package mock

import (
	mempl "hotbft/mempool"
	"hotbft/types"
)

// Mempool is an empty implementation of a Mempool, useful for testing.
// 没有命令来源的节点只提出空vertex
type Mempool struct{}

var _ mempl.Mempool = Mempool{}

func (Mempool) Add(_ types.Command) error { return nil }
func (Mempool) GetCommands(_ int, _ types.CommandIDSet) []types.Command {
	return nil
}
func (Mempool) Remove(_ types.Command) {}
func (Mempool) Flush()                 {}
func (Mempool) Size() int              { return 0 }
func (Mempool) CommandsBytes() int64   { return 0 }
