package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotbft/libs/metric"
	"hotbft/types"
)

func signedNewView(t *testing.T, pv types.PrivValidator, epoch int64, view types.View) *types.NewView {
	genesis := types.NewGenesisVertexStoreState(types.VertexMetadata{}, epoch)
	sig, err := pv.Sign(types.NewViewSignBytes(epoch, view))
	require.NoError(t, err)
	return types.NewNewView(epoch, view, genesis.HighQC, genesis.RootQC, pv.GetAddress(), sig)
}

func TestPacemakerProcessQC(t *testing.T) {
	sched := &fakeScheduler{}
	counters := metric.NewSystemCounters()
	p := NewPacemaker(1, time.Second, sched, counters)

	view, ok := p.ProcessQC(0)
	require.True(t, ok)
	assert.Equal(t, types.View(1), view)
	assert.Equal(t, []types.LocalTimeout{{Epoch: 1, View: 1}}, sched.scheduled)

	// 旧的QC不会推进view
	_, ok = p.ProcessQC(0)
	assert.False(t, ok)

	view, ok = p.ProcessQC(5)
	require.True(t, ok)
	assert.Equal(t, types.View(6), view)
	assert.Equal(t, int64(6), counters.Get(metric.ConsensusView))
	assert.Len(t, sched.scheduled, 2)
}

func TestPacemakerProcessLocalTimeout(t *testing.T) {
	sched := &fakeScheduler{}
	p := NewPacemaker(1, time.Second, sched, metric.NewSystemCounters())
	p.ProcessQC(0)

	_, ok := p.ProcessLocalTimeout(3)
	assert.False(t, ok)

	view, ok := p.ProcessLocalTimeout(1)
	require.True(t, ok)
	assert.Equal(t, types.View(2), view)
	assert.Equal(t, types.LocalTimeout{Epoch: 1, View: 2}, sched.scheduled[len(sched.scheduled)-1])

	// 同一个超时只处理一次
	_, ok = p.ProcessLocalTimeout(1)
	assert.False(t, ok)
	assert.Equal(t, types.View(2), p.CurrentView())
}

func TestPacemakerNewViewQuorum(t *testing.T) {
	vals, pvs := types.RandValidatorSet(4, 1)
	sched := &fakeScheduler{}
	p := NewPacemaker(1, time.Second, sched, metric.NewSystemCounters())
	p.ProcessQC(0)

	for i := 0; i < 2; i++ {
		_, ok := p.ProcessNewView(signedNewView(t, pvs[i], 1, 5), vals)
		assert.False(t, ok)
	}
	view, ok := p.ProcessNewView(signedNewView(t, pvs[2], 1, 5), vals)
	require.True(t, ok)
	assert.Equal(t, types.View(5), view)
	assert.Equal(t, types.View(5), p.CurrentView())
	assert.Equal(t, types.LocalTimeout{Epoch: 1, View: 5}, sched.scheduled[len(sched.scheduled)-1])

	// 已经同步过的view的new-view被忽略
	_, ok = p.ProcessNewView(signedNewView(t, pvs[3], 1, 4), vals)
	assert.False(t, ok)
}

func TestPacemakerNewViewBehindCurrentView(t *testing.T) {
	vals, pvs := types.RandValidatorSet(4, 1)
	p := NewPacemaker(1, time.Second, &fakeScheduler{}, metric.NewSystemCounters())
	p.ProcessQC(0)
	p.ProcessLocalTimeout(1)
	p.ProcessLocalTimeout(2)
	require.Equal(t, types.View(3), p.CurrentView())

	// quorum的view低于当前view
	for i := 0; i < 3; i++ {
		_, ok := p.ProcessNewView(signedNewView(t, pvs[i], 1, 2), vals)
		assert.False(t, ok)
	}
	for i := 0; i < 3; i++ {
		_, ok := p.ProcessNewView(signedNewView(t, pvs[i], 1, 3), vals)
		assert.Equal(t, i == 2, ok)
	}
	assert.Equal(t, types.View(3), p.CurrentView())

	_, ok := p.ProcessNewView(signedNewView(t, pvs[3], 1, 1), vals)
	assert.False(t, ok)
}

func TestPacemakerRejectsInvalidNewView(t *testing.T) {
	vals, _ := types.RandValidatorSet(4, 1)
	p := NewPacemaker(1, time.Second, &fakeScheduler{}, metric.NewSystemCounters())

	outsider := types.NewMockPV()
	_, ok := p.ProcessNewView(signedNewView(t, outsider, 1, 3), vals)
	assert.False(t, ok)
	assert.Equal(t, types.GenesisView, p.CurrentView())
}
