package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"

	cfg "hotbft/config"
	"hotbft/mempool"
	"hotbft/types"
)

type recordingComputer struct {
	nextValidators *types.ValidatorSet
	prepareErr     error
	committed      []types.CommittedCommand
}

func (c *recordingComputer) Prepare(vertex *types.Vertex) (*types.ValidatorSet, error) {
	return c.nextValidators, c.prepareErr
}

func (c *recordingComputer) Commit(cc types.CommittedCommand) error {
	c.committed = append(c.committed, cc)
	return nil
}

func newTestLedger(t *testing.T, sc StateComputer) (*Ledger, *mempool.ListMempool, events.EventSwitch) {
	evsw := events.NewEventSwitch()
	require.NoError(t, evsw.Start())
	t.Cleanup(func() { _ = evsw.Stop() })

	mem := mempool.NewListMempool(cfg.TestConfig().Mempool)
	l := NewLedger(types.VertexMetadata{}, sc, mem, evsw)
	l.SetLogger(log.TestingLogger())
	return l, mem, evsw
}

func meta(version int64) types.VertexMetadata {
	return types.NewVertexMetadata(1, types.View(version), []byte{byte(version)}, version, false)
}

func TestLedgerCommitOnlyNextVersion(t *testing.T) {
	sc := &recordingComputer{}
	l, mem, evsw := newTestLedger(t, sc)

	var committed []int64
	require.NoError(t, evsw.AddListenerForEvent("test", EventCommittedCommand, func(data events.EventData) {
		committed = append(committed, data.(types.CommittedCommand).StateVersion())
	}))

	cmd := types.Command("a=1")
	require.NoError(t, mem.Add(cmd))

	assert.False(t, l.Commit(types.Command("b=2"), meta(2)), "gap")
	assert.True(t, l.Commit(cmd, meta(1)))
	assert.False(t, l.Commit(cmd, meta(1)), "already committed")
	assert.True(t, l.Commit(types.Command("b=2"), meta(2)))

	assert.Equal(t, int64(2), l.CurrentVersion())
	assert.Equal(t, meta(2), l.LastCommitted())
	assert.Equal(t, []int64{1, 2}, committed)
	assert.Len(t, sc.committed, 2)
	assert.Equal(t, 0, mem.Size())
}

func TestLedgerPrepare(t *testing.T) {
	sc := &recordingComputer{}
	l, _, _ := newTestLedger(t, sc)

	genesis := types.NewGenesisVertexStoreState(types.VertexMetadata{}, 1)
	empty := types.NewVertex(1, 1, genesis.HighQC, nil)
	pv, err := l.Prepare(nil, empty)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pv.Metadata.StateVersion)
	assert.False(t, pv.Metadata.IsEndOfEpoch)
	assert.Equal(t, empty.ID(), pv.Metadata.VertexID)

	withCmd := types.NewVertex(1, 1, genesis.HighQC, types.Command("x"))
	pv, err = l.Prepare(nil, withCmd)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pv.Metadata.StateVersion)

	// 同一分支上已经有这个命令
	_, err = l.Prepare([]*types.PreparedVertex{pv}, types.NewVertex(1, 2, genesis.HighQC, types.Command("x")))
	assert.Equal(t, ErrCommandAlreadyPrepared, err)

	sc.prepareErr = errors.New("boom")
	_, err = l.Prepare(nil, withCmd)
	assert.Error(t, err)
}

func TestLedgerPrepareEndOfEpoch(t *testing.T) {
	vals, _ := types.RandValidatorSet(4, 10)
	sc := &recordingComputer{nextValidators: vals}
	l, _, _ := newTestLedger(t, sc)

	genesis := types.NewGenesisVertexStoreState(types.VertexMetadata{}, 1)
	last := types.NewVertex(1, 1, genesis.HighQC, types.Command("x"))
	pv, err := l.Prepare(nil, last)
	require.NoError(t, err)
	assert.True(t, pv.Metadata.IsEndOfEpoch)
	assert.Equal(t, int64(1), pv.Metadata.StateVersion)
	assert.True(t, vals.Equal(pv.NextValidators))

	// 父节点结束了epoch，子节点的命令不再执行
	qc := types.NewQuorumCertificate(types.NewVoteData(pv.Metadata, genesis.RootMetadata(), nil), nil)
	child := types.NewVertex(1, 2, qc, types.Command("y"))
	cpv, err := l.Prepare([]*types.PreparedVertex{pv}, child)
	require.NoError(t, err)
	assert.True(t, cpv.Metadata.IsEndOfEpoch)
	assert.Equal(t, int64(1), cpv.Metadata.StateVersion)
	assert.Nil(t, cpv.NextValidators)
}

func TestLedgerEpochChangeEvent(t *testing.T) {
	vals, _ := types.RandValidatorSet(4, 10)
	l, _, evsw := newTestLedger(t, &recordingComputer{})

	var changes []types.EpochChange
	require.NoError(t, evsw.AddListenerForEvent("test", EventEpochChange, func(data events.EventData) {
		changes = append(changes, data.(types.EpochChange))
	}))

	m := meta(1)
	m.IsEndOfEpoch = true
	genesis := types.NewGenesisVertexStoreState(types.VertexMetadata{}, 1)
	pv := &types.PreparedVertex{
		Vertex:         types.NewVertex(1, 1, genesis.HighQC, nil),
		Metadata:       m,
		NextValidators: vals,
	}
	require.True(t, l.CommitVertex(pv))
	require.Len(t, changes, 1)
	assert.Equal(t, int64(2), changes[0].NextEpoch())
	assert.True(t, vals.Equal(changes[0].Validators))
}

func TestLedgerIfCommitSynced(t *testing.T) {
	l, _, evsw := newTestLedger(t, &recordingComputer{})

	var synced []types.CommittedStateSync
	require.NoError(t, evsw.AddListenerForEvent("test", EventCommittedStateSync, func(data events.EventData) {
		synced = append(synced, data.(types.CommittedStateSync))
	}))

	require.True(t, l.Commit(nil, meta(1)))

	onSynced, onNotSynced := 0, 0
	l.IfCommitSynced(meta(1), "a", func() { onSynced++ }, func() { onNotSynced++ })
	assert.Equal(t, 1, onSynced)
	assert.Equal(t, 0, onNotSynced)

	l.IfCommitSynced(meta(3), "a", func() { onSynced++ }, func() { onNotSynced++ })
	l.IfCommitSynced(meta(3), "a", func() { onSynced++ }, func() { onNotSynced++ })
	l.IfCommitSynced(meta(2), "b", func() { onSynced++ }, func() { onNotSynced++ })
	assert.Equal(t, 1, onSynced)
	assert.Equal(t, 3, onNotSynced)

	require.True(t, l.CommitSynced(types.CommittedCommand{Metadata: meta(2)}))
	require.Len(t, synced, 1)
	assert.Equal(t, types.CommittedStateSync{StateVersion: 2, Opaque: "b"}, synced[0])

	require.True(t, l.CommitSynced(types.CommittedCommand{Metadata: meta(3)}))
	// 同一个opaque只通知一次
	require.Len(t, synced, 2)
	assert.Equal(t, types.CommittedStateSync{StateVersion: 3, Opaque: "a"}, synced[1])
}
