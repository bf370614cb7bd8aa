package node

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	cfg "hotbft/config"
	"hotbft/libs/metric"
	"hotbft/types"
)

type testCluster struct {
	t      *testing.T
	net    *LocalNetwork
	genDoc *types.GenesisDoc
	pvs    []types.PrivValidator
	dbs    []tmdb.DB
	nodes  []*Node
}

func newTestGenesis(t *testing.T, vals *types.ValidatorSet, epochViews int64) *types.GenesisDoc {
	genDoc := &types.GenesisDoc{ChainID: "test-chain", EpochViews: epochViews}
	for i, val := range vals.Validators {
		genDoc.Validators = append(genDoc.Validators, types.GenesisValidator{
			Address: val.Address,
			PubKey:  val.PubKey,
			Power:   val.VotingPower,
			Name:    fmt.Sprintf("node%d", i),
		})
	}
	require.NoError(t, genDoc.ValidateAndComplete())
	return genDoc
}

func newTestCluster(t *testing.T, n int, epochViews int64) *testCluster {
	vals, pvs := types.RandValidatorSet(n, 10)
	c := &testCluster{
		t:      t,
		net:    NewLocalNetwork(),
		genDoc: newTestGenesis(t, vals, epochViews),
		pvs:    pvs,
	}
	for range pvs {
		c.dbs = append(c.dbs, tmdb.NewMemDB())
	}
	c.makeNodes()
	return c
}

// makeNodes 用同样的私钥和数据库创建节点，可以用来模拟重启
func (c *testCluster) makeNodes() {
	c.nodes = nil
	for i, pv := range c.pvs {
		config := cfg.TestConfig()
		config.Moniker = fmt.Sprintf("node%d", i)
		logger := log.TestingLogger().With("node", i)
		node, err := NewNode(config, pv, c.genDoc, c.net, logger, WithDB(c.dbs[i]))
		require.NoError(c.t, err)
		c.nodes = append(c.nodes, node)
	}
}

func (c *testCluster) start() {
	for _, node := range c.nodes {
		require.NoError(c.t, node.Start())
	}
}

func (c *testCluster) stop() {
	for _, node := range c.nodes {
		require.NoError(c.t, node.Stop())
	}
	for _, node := range c.nodes {
		node.Wait()
	}
}

// addCommands 每个节点的mempool都收到同样的命令
func (c *testCluster) addCommands(from, to int) {
	for _, node := range c.nodes {
		for i := from; i < to; i++ {
			require.NoError(c.t, node.AddCommand(types.Command(fmt.Sprintf("k%d=v%d", i, i))))
		}
	}
}

func (c *testCluster) minVersion(nodes []*Node) int64 {
	min := int64(-1)
	for _, node := range nodes {
		if v := node.Ledger().CurrentVersion(); min < 0 || v < min {
			min = v
		}
	}
	return min
}

func (c *testCluster) waitVersion(nodes []*Node, version int64, timeout time.Duration) {
	require.Eventually(c.t, func() bool {
		return c.minVersion(nodes) >= version
	}, timeout, 20*time.Millisecond, "ledgers did not reach version %d", version)
}

func (c *testCluster) requireQuery(node *Node, key, value string) {
	bz, err := node.Query([]byte(key))
	require.NoError(c.t, err)
	assert.Equal(c.t, value, string(bz), "node %v key %s", node.NodeInfo(), key)
}

func TestNodeClusterCommitsCommands(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	c := newTestCluster(t, 4, 0)
	c.addCommands(0, 20)
	c.start()
	c.waitVersion(c.nodes, 20, 10*time.Second)
	c.stop()

	for _, node := range c.nodes {
		for i := 0; i < 20; i++ {
			c.requireQuery(node, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
		}
		assert.EqualValues(t, 0, node.Counters().Get(metric.ConsensusRejectedProposals))
		assert.Equal(t, []string{"consensus", "counters", "mempool"}, node.MetricSet().Labels())
	}

	// 所有节点提交的序列一致
	for v := int64(1); v <= 20; v++ {
		first, err := c.nodes[0].committedStore.GetCommitted(v)
		require.NoError(t, err)
		require.NotNil(t, first, "version %d", v)
		for _, node := range c.nodes[1:] {
			cc, err := node.committedStore.GetCommitted(v)
			require.NoError(t, err)
			require.NotNil(t, cc, "version %d", v)
			assert.Equal(t, first.Command, cc.Command, "version %d", v)
		}
	}
}

func TestNodeClusterEpochChange(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	c := newTestCluster(t, 4, 5)
	c.addCommands(0, 50)
	c.start()
	require.Eventually(t, func() bool {
		for _, node := range c.nodes {
			if node.Counters().Get(metric.EpochManagerEpoch) < 3 {
				return false
			}
		}
		return true
	}, 10*time.Second, 20*time.Millisecond)
	c.stop()

	for _, node := range c.nodes {
		ec, err := node.committedStore.LatestEpochChange()
		require.NoError(t, err)
		require.NotNil(t, ec)
		assert.GreaterOrEqual(t, ec.NextEpoch(), int64(3))
		assert.Equal(t, c.genDoc.ValidatorSet().Size(), ec.Validators.Size())
	}
}

func TestNodeClusterRestart(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	c := newTestCluster(t, 4, 0)
	c.addCommands(0, 10)
	c.start()
	c.waitVersion(c.nodes, 10, 10*time.Second)
	c.stop()
	before := c.minVersion(c.nodes)

	c.makeNodes()
	for _, node := range c.nodes {
		assert.GreaterOrEqual(t, node.Ledger().CurrentVersion(), before)
	}
	c.addCommands(100, 110)
	c.start()
	c.waitVersion(c.nodes, before+10, 10*time.Second)
	c.stop()

	for _, node := range c.nodes {
		c.requireQuery(node, "k3", "v3")
		c.requireQuery(node, "k105", "v105")
	}
}

func TestNodeLaggingNodeCatchesUp(t *testing.T) {
	defer leaktest.CheckTimeout(t, 20*time.Second)()

	// 一个节点掉线时，5个节点仍然有连续4个在线的leader
	c := newTestCluster(t, 5, 0)
	lagging := c.nodes[4]
	others := c.nodes[:4]
	laggingAddr := lagging.NodeInfo().Address
	c.net.SetDropFunc(func(from, to types.Address, msg interface{}) bool {
		return bytes.Equal(from, laggingAddr) || bytes.Equal(to, laggingAddr)
	})

	c.addCommands(0, 40)
	c.start()
	c.waitVersion(others, 12, 15*time.Second)
	assert.EqualValues(t, 0, lagging.Ledger().CurrentVersion())

	c.net.SetDropFunc(nil)
	target := c.minVersion(others)
	c.waitVersion([]*Node{lagging}, target, 15*time.Second)
	c.stop()

	assert.Greater(t, lagging.Counters().Get(metric.SyncProcessed), int64(0))
	for i := int64(0); i < target; i++ {
		c.requireQuery(lagging, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}
}

func TestNewNodeForNonValidator(t *testing.T) {
	vals, _ := types.RandValidatorSet(4, 10)
	genDoc := newTestGenesis(t, vals, 0)

	// 不在验证者集合里的节点也可以启动，只是不参与共识
	node, err := NewNode(cfg.TestConfig(), types.NewMockPV(), genDoc, NewLocalNetwork(), log.TestingLogger())
	require.NoError(t, err)
	assert.NoError(t, node.NodeInfo().Validate())

	info := node.NodeInfo()
	info.Address = vals.Validators[0].Address
	assert.Error(t, info.Validate())
}

// 共识goroutine panic之后整个节点停止，其余节点不受影响
func TestNodeStopsOnConsensusFailure(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	c := newTestCluster(t, 4, 0)
	c.start()
	failed := c.nodes[0]

	// 空指针的vote让共识goroutine panic
	failed.Receive(c.pvs[1].GetAddress(), (*types.Vote)(nil))

	done := make(chan struct{})
	go func() {
		failed.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop after consensus failure")
	}
	assert.False(t, failed.IsRunning())
	assert.Error(t, failed.Stop())

	for _, node := range c.nodes[1:] {
		assert.True(t, node.IsRunning())
		require.NoError(t, node.Stop())
	}
	for _, node := range c.nodes[1:] {
		node.Wait()
	}
}
