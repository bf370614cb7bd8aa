package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "hotbft/config"
	"hotbft/libs/metric"
	"hotbft/types"
)

func TestEpochManagerNonValidatorIgnoresEvents(t *testing.T) {
	net := newTestNetwork(t, 4, 0, 0)
	others, _ := types.RandValidatorSet(4, 10)
	n := net.nodes[0]
	n.em.Start(others, types.NewGenesisVertexStoreState(types.VertexMetadata{}, 1))

	_, ok := n.em.processor.(EmptyBFTEventProcessor)
	require.True(t, ok)
	assert.Equal(t, int64(1), n.em.CurrentEpoch())

	n.em.ProcessNewView(signedNewView(t, net.nodes[1].pv, 1, 3))
	n.em.ProcessLocalTimeout(types.LocalTimeout{Epoch: 1, View: 1})
	assert.Empty(t, net.queue)
}

func TestEpochManagerQueuesNextEpochEvents(t *testing.T) {
	net := newTestNetwork(t, 4, 0, 0)
	net.start()
	n := net.nodes[0]
	max := cfg.TestConfig().Consensus.MaxFutureEpochEvents

	for i := 0; i < max+5; i++ {
		n.em.ProcessNewView(signedNewView(t, net.nodes[1].pv, 2, types.View(i+1)))
	}
	assert.Equal(t, int64(max), n.counters.Get(metric.EpochManagerQueued))

	// 更远的epoch和过去的epoch直接丢弃
	n.em.ProcessNewView(signedNewView(t, net.nodes[1].pv, 3, 1))
	n.em.ProcessNewView(signedNewView(t, net.nodes[1].pv, 0, 1))
	assert.Equal(t, int64(max), n.counters.Get(metric.EpochManagerQueued))

	n.em.ProcessEpochChange(types.EpochChange{
		Ancestor:   types.NewGenesisVertexStoreState(types.VertexMetadata{}, 1).RootMetadata(),
		Validators: net.vals,
	})
	assert.Equal(t, int64(2), n.em.CurrentEpoch())
	assert.Equal(t, int64(0), n.counters.Get(metric.EpochManagerQueued))
	assert.Equal(t, int64(2), n.counters.Get(metric.EpochManagerEpoch))

	// 重复的epoch切换被忽略
	n.em.ProcessEpochChange(types.EpochChange{Validators: net.vals})
	assert.Equal(t, int64(2), n.em.CurrentEpoch())
}
