package rpc

import (
	"fmt"

	"github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"hotbft/libs/metric"
	"hotbft/types"
)

// 一次最多返回的已提交命令数
const maxCommittedPerRequest = 100

type ResultStatus struct {
	Moniker string         `json:"moniker"`
	Address bytes.HexBytes `json:"address"`

	LastCommitted types.VertexMetadata `json:"last_committed"`
	Epoch         int64                `json:"epoch"`
	View          int64                `json:"view"`
	Timeouts      int64                `json:"timeouts"`
	MempoolSize   int                  `json:"mempool_size"`
}

type ResultCommitted struct {
	Commands []ResultCommand `json:"commands"`
}

type ResultCommand struct {
	StateVersion int64          `json:"state_version"`
	Command      string         `json:"command"`
	Epoch        int64          `json:"epoch"`
	View         int64          `json:"view"`
	VertexID     bytes.HexBytes `json:"vertex_id"`
	EndOfEpoch   bool           `json:"end_of_epoch"`
}

func (env *Environment) Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	return &ResultStatus{
		Moniker:       env.Moniker,
		Address:       bytes.HexBytes(env.Address),
		LastCommitted: env.Ledger.LastCommitted(),
		Epoch:         env.Counters.Get(metric.EpochManagerEpoch),
		View:          env.Counters.Get(metric.ConsensusView),
		Timeouts:      env.Counters.Get(metric.ConsensusTimeout),
		MempoolSize:   env.Mempool.Size(),
	}, nil
}

// Committed 返回state version在 (version, version+count] 之间的已提交命令
func (env *Environment) Committed(ctx *rpctypes.Context, version int64, count int) (*ResultCommitted, error) {
	if version < 0 {
		return nil, fmt.Errorf("version must not be negative, got %d", version)
	}
	if count <= 0 || count > maxCommittedPerRequest {
		count = maxCommittedPerRequest
	}

	ccs, err := env.Store.GetCommittedAfter(version, count)
	if err != nil {
		return nil, err
	}

	commands := make([]ResultCommand, 0, len(ccs))
	for _, cc := range ccs {
		commands = append(commands, ResultCommand{
			StateVersion: cc.StateVersion(),
			Command:      string(cc.Command),
			Epoch:        cc.Metadata.Epoch,
			View:         cc.Metadata.View.Int64(),
			VertexID:     cc.Metadata.VertexID,
			EndOfEpoch:   cc.NextValidators != nil,
		})
	}
	return &ResultCommitted{Commands: commands}, nil
}
