package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

// Routes 节点的所有rpc方法
func (env *Environment) Routes() map[string]*rpc.RPCFunc {
	return map[string]*rpc.RPCFunc{
		"status":            rpc.NewRPCFunc(env.Status, ""),
		"broadcast_command": rpc.NewRPCFunc(env.BroadcastCommand, "command"),
		"query":             rpc.NewRPCFunc(env.Query, "key"),
		"committed":         rpc.NewRPCFunc(env.Committed, "version,count"),
		"metrics":           rpc.NewRPCFunc(env.JSONMetrics, "label"),
	}
}
