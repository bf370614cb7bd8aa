package rpc

import (
	"fmt"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultMetrics struct {
	Metrics map[string]string `json:"metrics"`
}

// JSONMetrics label为空时返回所有的metric
func (env *Environment) JSONMetrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	if label == "" {
		return &ResultMetrics{Metrics: env.MetricSet.Snapshot()}, nil
	}

	item := env.MetricSet.GetMetrics(label)
	if item == nil {
		return nil, fmt.Errorf("unknown metric label %q", label)
	}
	return &ResultMetrics{Metrics: map[string]string{label: item.JSONString()}}, nil
}
