package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"hotbft/types"
)

type ResultBroadcastCommand struct {
	ID          string `json:"id"`
	MempoolSize int    `json:"mempool_size"`
}

// BroadcastCommand 把命令加入本节点的mempool，不等待提交
// 命令不会在节点之间转发，轮到本节点做leader时才会被提议
func (env *Environment) BroadcastCommand(ctx *rpctypes.Context, command string) (*ResultBroadcastCommand, error) {
	cmd := types.Command(command)
	if err := env.Mempool.Add(cmd); err != nil {
		return nil, err
	}
	return &ResultBroadcastCommand{ID: cmd.ID().String(), MempoolSize: env.Mempool.Size()}, nil
}
