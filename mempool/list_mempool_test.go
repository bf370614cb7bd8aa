package mempool

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	cfg "hotbft/config"
	"hotbft/types"
)

// ----- utility func -----

func newMempool() *ListMempool {
	return newMempoolWithConfig(cfg.DefaultMempoolConfig())
}

func newMempoolWithConfig(config *cfg.MempoolConfig) *ListMempool {
	mempool := NewListMempool(config)
	mempool.SetLogger(log.TestingLogger())
	return mempool
}

// 随机生成一些命令，并加入mempool
func addCommands(t *testing.T, mempool Mempool, count int) []types.Command {
	cmds := make([]types.Command, count)
	for i := 0; i < count; i++ {
		cmdBytes := make([]byte, 20)
		_, err := rand.Read(cmdBytes)
		require.NoError(t, err)
		cmds[i] = types.Command(cmdBytes)
		if err := mempool.Add(cmds[i]); err != nil {
			t.Fatalf("add failed: %v while adding #%d command", err, i)
		}
	}
	return cmds
}

// ----- tests -----

func TestBasicMempool(t *testing.T) {
	mem := newMempool()

	tests := []struct {
		numCmdsToCreate int
		expectedNum     int
		expectedBytes   int64
	}{
		{0, 0, 0},
		{1, 1, 20},
		{10, 10, 200},
	}

	for index, test := range tests {
		addCommands(t, mem, test.numCmdsToCreate)
		assert.Equal(t, test.expectedNum, mem.Size(),
			"[memNum] Got %d, expected %d tc #%d",
			mem.Size(), test.expectedNum, index)
		assert.Equal(t, test.expectedBytes, mem.CommandsBytes(),
			"[memBytes] Got %d, expected %d tc #%d",
			mem.CommandsBytes(), test.expectedBytes, index)
		mem.Flush()
		assert.Equal(t, 0, mem.Size())
		assert.EqualValues(t, 0, mem.CommandsBytes())
	}
}

func TestAddRejects(t *testing.T) {
	mem := newMempoolWithConfig(&cfg.MempoolConfig{Size: 2, MaxCommandBytes: 10})

	assert.Equal(t, ErrEmptyCommand, mem.Add(nil))
	assert.Equal(t, ErrCommandTooLarge{Max: 10, Actual: 11}, mem.Add(make([]byte, 11)))

	require.NoError(t, mem.Add(types.Command("a")))
	assert.Equal(t, ErrCommandInMap, mem.Add(types.Command("a")))
	require.NoError(t, mem.Add(types.Command("b")))
	assert.Equal(t, ErrMempoolIsFull{NumCommands: 2, MaxCommands: 2}, mem.Add(types.Command("c")))
}

func TestGetCommandsExcludes(t *testing.T) {
	mem := newMempool()
	cmds := addCommands(t, mem, 5)

	got := mem.GetCommands(2, nil)
	assert.Equal(t, cmds[:2], got)

	excluded := types.CommandIDSet{}
	excluded.Add(cmds[0].ID())
	excluded.Add(cmds[2].ID())
	got = mem.GetCommands(3, excluded)
	assert.Equal(t, []types.Command{cmds[1], cmds[3], cmds[4]}, got)

	// GetCommands不会删除命令
	assert.Equal(t, 5, mem.Size())
}

func TestRemove(t *testing.T) {
	mem := newMempool()
	cmds := addCommands(t, mem, 3)

	mem.Remove(cmds[1])
	assert.Equal(t, 2, mem.Size())
	assert.EqualValues(t, 40, mem.CommandsBytes())
	assert.Equal(t, []types.Command{cmds[0], cmds[2]}, mem.GetCommands(10, nil))

	// 删除不存在的命令没有影响
	mem.Remove(types.Command("missing"))
	assert.Equal(t, 2, mem.Size())

	// 删除之后可以重新加入
	require.NoError(t, mem.Add(cmds[1]))
	js := mem.Metric().JSONString()
	assert.Contains(t, js, `"commands_num":3`)
	assert.Contains(t, js, `"added":4`)
	assert.Contains(t, js, `"removed":1`)
}

func TestPreCheck(t *testing.T) {
	rejectAll := func(types.Command) error { return ErrEmptyCommand }
	mem := NewListMempool(cfg.DefaultMempoolConfig(), SetPreCheck(rejectAll))
	assert.Equal(t, ErrEmptyCommand, mem.Add(types.Command("x")))
	assert.Equal(t, 0, mem.Size())
	assert.Contains(t, mem.Metric().JSONString(), `"rejected":1`)
}
