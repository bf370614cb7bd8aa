package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultQuery struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Exists bool   `json:"exists"`
}

// Query 查询已提交的key-value
func (env *Environment) Query(ctx *rpctypes.Context, key string) (*ResultQuery, error) {
	value, err := env.App.Query([]byte(key))
	if err != nil {
		return nil, err
	}
	return &ResultQuery{Key: key, Value: string(value), Exists: value != nil}, nil
}
