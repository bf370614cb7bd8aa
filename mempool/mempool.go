package mempool

import (
	"hotbft/types"
)

// Mempool 共识使用的外部命令来源
// 准入策略不属于共识的职责，这里只保证同一个命令不会重复出现
type Mempool interface {
	// Add 加入一个新命令
	Add(cmd types.Command) error

	// GetCommands 按照加入的顺序取出最多max个不在excluded中的命令
	// 命令不会被删除，直到被提交后调用Remove
	GetCommands(max int, excluded types.CommandIDSet) []types.Command

	// Remove 命令被提交后从mempool中删去
	Remove(cmd types.Command)

	// Flush将mempool中的所有命令清空
	Flush()

	// Size返回mempool中的命令条数
	Size() int

	// CommandsBytes返回mempool所有命令的byte大小
	CommandsBytes() int64
}
