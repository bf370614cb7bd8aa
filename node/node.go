package node

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
	tmdb "github.com/tendermint/tm-db"

	cfg "hotbft/config"
	"hotbft/consensus"
	"hotbft/libs/metric"
	"hotbft/mempool"
	"hotbft/privval"
	"hotbft/rpc"
	"hotbft/state"
	"hotbft/store"
	"hotbft/syncservice"
	"hotbft/types"
)

const (
	msgQueueSize = 1000

	// 创世验证者集合对应的epoch
	genesisEpoch = 1

	dbName = "hotbft"

	listenerID = "node"
)

// msgs from the network or from the ledger
type msgInfo struct {
	Msg  interface{}
	From types.Address
}

// Node 一个验证者节点
// 共识相关的消息都在receiveRoutine里串行处理
type Node struct {
	service.BaseService

	config        *cfg.Config
	genDoc        *types.GenesisDoc
	privValidator types.PrivValidator
	nodeInfo      NodeInfo

	db             tmdb.DB
	ownDB          bool
	committedStore *store.CommittedStore
	stateComputer  *store.KVStateComputer
	vertexStates   *store.VertexStoreStateStore

	mempool      *mempool.ListMempool
	evsw         events.EventSwitch
	ledger       *state.Ledger
	epochManager *consensus.EpochManager
	ticker       *consensus.TimeoutTicker
	syncRunner   *syncservice.Runner

	network     *LocalNetwork
	rpcListener net.Listener

	// 启动时的验证者集合和store快照
	startVals  *types.ValidatorSet
	startState *types.VerifiedVertexStoreState

	peerMsgQueue     chan msgInfo
	internalMsgQueue chan msgInfo
	done             chan struct{}

	counters  metric.SystemCounters
	metricSet *metric.MetricSet
}

type Option func(*Node)

// WithDB 使用外部的数据库，节点停止时不会关闭它
func WithDB(db tmdb.DB) Option {
	return func(n *Node) {
		n.db = db
	}
}

// DefaultNewNode 从配置的路径读取验证者私钥和genesis
func DefaultNewNode(config *cfg.Config, network *LocalNetwork, logger log.Logger) (*Node, error) {
	pv, err := privval.LoadFilePV(config.PrivValidatorKeyFile())
	if err != nil {
		return nil, err
	}
	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, errors.Wrap(err, "load genesis")
	}
	return NewNode(config, pv, genDoc, network, logger)
}

func NewNode(
	config *cfg.Config,
	privValidator types.PrivValidator,
	genDoc *types.GenesisDoc,
	network *LocalNetwork,
	logger log.Logger,
	options ...Option,
) (*Node, error) {
	nodeInfo, err := NewNodeInfo(privValidator, genDoc.ChainID, config.Moniker)
	if err != nil {
		return nil, err
	}

	n := &Node{
		config:           config,
		genDoc:           genDoc,
		privValidator:    privValidator,
		nodeInfo:         nodeInfo,
		network:          network,
		peerMsgQueue:     make(chan msgInfo, msgQueueSize),
		internalMsgQueue: make(chan msgInfo, msgQueueSize),
		done:             make(chan struct{}),
		counters:         metric.NewSystemCounters(),
		metricSet:        metric.NewMetricSet(),
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	for _, option := range options {
		option(n)
	}

	if n.db == nil {
		db, err := tmdb.NewDB(dbName, tmdb.BackendType(config.DBBackend), config.DBDir())
		if err != nil {
			return nil, errors.Wrap(err, "open db")
		}
		n.db = db
		n.ownDB = true
	}
	n.committedStore = store.NewCommittedStore(n.db)
	n.vertexStates = store.NewVertexStoreStateStore(n.db)

	if err := n.loadStartState(); err != nil {
		n.closeDB()
		return nil, err
	}
	lastCommitted, err := n.committedStore.LastCommitted()
	if err != nil {
		n.closeDB()
		return nil, err
	}

	n.stateComputer = store.NewKVStateComputer(
		n.db, n.committedStore, n.startVals, genDoc.EpochViews, logger.With("module", "state"))

	n.mempool = mempool.NewListMempool(config.Mempool)
	n.mempool.SetLogger(logger.With("module", "mempool"))

	n.evsw = events.NewEventSwitch()
	n.evsw.SetLogger(logger.With("module", "events"))

	n.ledger = state.NewLedger(lastCommitted, n.stateComputer, n.mempool, n.evsw, state.WithCounters(n.counters))
	n.ledger.SetLogger(logger.With("module", "ledger"))

	sender := network.Sender(n.nodeInfo.Address)

	n.syncRunner = syncservice.NewRunner(
		config.Sync,
		n.nodeInfo.Address,
		n.ledger,
		n.committedStore,
		sender,
		syncservice.WithCounters(n.counters),
	)
	n.syncRunner.SetLogger(logger.With("module", "sync"))

	n.ticker = consensus.NewTimeoutTicker()
	n.ticker.SetLogger(logger.With("module", "ticker"))

	n.epochManager = consensus.NewEpochManager(
		config.Consensus,
		privValidator,
		n.ledger,
		n.mempool,
		sender,
		n.ticker,
		n.syncRunner,
		consensus.WithSafetyStore(store.NewSafetyStore(n.db)),
		consensus.WithVertexStorePersister(n.vertexStates),
		consensus.WithCounters(n.counters),
	)
	n.epochManager.SetLogger(logger.With("module", "consensus"))

	if err := n.metricSet.SetMetrics("consensus", n.epochManager.Metric()); err != nil {
		return nil, err
	}
	if err := n.metricSet.SetMetrics("mempool", n.mempool.Metric()); err != nil {
		return nil, err
	}
	if err := n.metricSet.SetMetrics("counters", n.counters); err != nil {
		return nil, err
	}

	return n, nil
}

// loadStartState 重启时从最近的epoch change和store快照恢复，否则从genesis开始
func (n *Node) loadStartState() error {
	vals := n.genDoc.ValidatorSet()
	epoch := int64(genesisEpoch)
	var ancestor types.VertexMetadata

	ec, err := n.committedStore.LatestEpochChange()
	if err != nil {
		return errors.Wrap(err, "load epoch change")
	}
	if ec != nil {
		vals = ec.Validators
		epoch = ec.NextEpoch()
		ancestor = ec.Ancestor
	}
	if err := vals.ValidateBasic(); err != nil {
		return errors.Wrap(err, "validator set")
	}

	saved, err := n.vertexStates.LoadVertexStoreState()
	if err != nil {
		return errors.Wrap(err, "load vertex store state")
	}
	if saved != nil && saved.Epoch() == epoch {
		n.startState = saved
	} else {
		n.startState = types.NewGenesisVertexStoreState(ancestor, epoch)
	}
	n.startVals = vals
	return nil
}

func (n *Node) OnStart() error {
	if err := n.evsw.Start(); err != nil {
		return err
	}
	err := n.evsw.AddListenerForEvent(listenerID, state.EventEpochChange, func(data events.EventData) {
		n.sendInternalMessage(msgInfo{Msg: data})
	})
	if err != nil {
		return err
	}
	err = n.evsw.AddListenerForEvent(listenerID, state.EventCommittedStateSync, func(data events.EventData) {
		n.sendInternalMessage(msgInfo{Msg: data})
	})
	if err != nil {
		return err
	}

	if err := n.ticker.Start(); err != nil {
		return err
	}
	if err := n.syncRunner.Start(); err != nil {
		return err
	}

	if n.config.RPC.IsEnabled() {
		listener, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListener = listener
	}

	n.network.Join(n.nodeInfo.Address, n)
	n.Logger.Info("start node", "info", n.nodeInfo, "epoch", n.startState.Epoch(),
		"root", n.startState.RootMetadata())

	go n.receiveRoutine()
	return nil
}

func (n *Node) OnStop() {
	n.network.Leave(n.nodeInfo.Address)

	if n.rpcListener != nil {
		if err := n.rpcListener.Close(); err != nil {
			n.Logger.Error("Error closing listener", "listener", n.rpcListener, "err", err)
		}
	}

	if err := n.syncRunner.Stop(); err != nil {
		n.Logger.Error("stop sync runner", "err", err)
	}
	if err := n.ticker.Stop(); err != nil {
		n.Logger.Error("stop timeout ticker", "err", err)
	}
	n.evsw.RemoveListener(listenerID)
	if err := n.evsw.Stop(); err != nil {
		n.Logger.Error("stop event switch", "err", err)
	}
}

// ConfigureRPC 节点的rpc环境
func (n *Node) ConfigureRPC() *rpc.Environment {
	return &rpc.Environment{
		Moniker:   n.nodeInfo.Moniker,
		Address:   n.nodeInfo.Address,
		Mempool:   n.mempool,
		Ledger:    n.ledger,
		Store:     n.committedStore,
		App:       n.stateComputer,
		Counters:  n.counters,
		MetricSet: n.metricSet,
	}
}

func (n *Node) startRPC() (net.Listener, error) {
	routes := n.ConfigureRPC().Routes()

	config := rpcserver.DefaultConfig()
	config.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	mux := http.NewServeMux()
	rpcLogger := n.Logger.With("module", "rpc-server")
	wm := rpcserver.NewWebsocketManager(routes)
	wm.SetLogger(rpcLogger.With("protocol", "websocket"))
	mux.HandleFunc("/websocket", wm.WebsocketHandler)
	rpcserver.RegisterRPCFuncs(mux, routes, rpcLogger)

	listener, err := rpcserver.Listen(n.config.RPC.ListenAddress, config)
	if err != nil {
		return nil, errors.Wrap(err, "listen rpc")
	}
	go func() {
		if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
			n.Logger.Info("rpc server stopped", "err", err)
		}
	}()
	n.Logger.Info("rpc server started", "addr", listener.Addr())
	return listener, nil
}

// RPCAddress rpc服务实际监听的地址，没有启动时为空
func (n *Node) RPCAddress() string {
	if n.rpcListener == nil {
		return ""
	}
	return n.rpcListener.Addr().String()
}

// Wait 等待receiveRoutine退出
func (n *Node) Wait() {
	<-n.done
}

func (n *Node) closeDB() {
	if !n.ownDB {
		return
	}
	if err := n.db.Close(); err != nil {
		n.Logger.Error("close db", "err", err)
	}
}

// Receive 网络层调用，不会阻塞
func (n *Node) Receive(from types.Address, msg interface{}) {
	switch msg := msg.(type) {
	case *types.SyncRequest:
		n.syncRunner.ProcessSyncRequest(from, msg)
	case *types.SyncResponse:
		n.syncRunner.ProcessSyncResponse(from, msg)
	default:
		mi := msgInfo{Msg: msg, From: from}
		select {
		case n.peerMsgQueue <- mi:
		default:
			go func() {
				select {
				case n.peerMsgQueue <- mi:
				case <-n.Quit():
				}
			}()
		}
	}
}

// 账本的事件可能在共识goroutine里触发，不能阻塞
func (n *Node) sendInternalMessage(mi msgInfo) {
	select {
	case n.internalMsgQueue <- mi:
	default:
		n.Logger.Debug("internal msg queue is full. Using a go-routine")
		go func() {
			select {
			case n.internalMsgQueue <- mi:
			case <-n.Quit():
			}
		}()
	}
}

func (n *Node) receiveRoutine() {
	defer func() {
		if r := recover(); r != nil {
			n.Logger.Error("CONSENSUS FAILURE!!!", "err", r, "stack", string(debug.Stack()))
			// 共识状态已经不可信，先停掉整个节点再关闭数据库
			if err := n.Stop(); err != nil {
				n.Logger.Error("stop node after consensus failure", "err", err)
			}
		}
		n.closeDB()
		close(n.done)
	}()

	n.epochManager.Start(n.startVals, n.startState)

	for {
		select {
		case <-n.Quit():
			return
		case mi := <-n.peerMsgQueue:
			n.handleMsg(mi)
		case mi := <-n.internalMsgQueue:
			n.handleMsg(mi)
		case timeout := <-n.ticker.Chan():
			n.epochManager.ProcessLocalTimeout(timeout)
		}
	}
}

func (n *Node) handleMsg(mi msgInfo) {
	em := n.epochManager
	switch msg := mi.Msg.(type) {
	case *types.Proposal:
		em.ProcessProposal(msg)
	case *types.Vote:
		em.ProcessVote(msg)
	case *types.NewView:
		em.ProcessNewView(msg)
	case *types.GetVerticesRequest:
		em.ProcessGetVerticesRequest(mi.From, msg)
	case *types.GetVerticesResponse:
		em.ProcessGetVerticesResponse(msg)
	case *types.GetVerticesErrorResponse:
		em.ProcessGetVerticesErrorResponse(msg)
	case types.EpochChange:
		em.ProcessEpochChange(msg)
	case types.CommittedStateSync:
		em.ProcessCommittedStateSync(msg)
	default:
		n.Logger.Error("unknown msg type", "type", fmt.Sprintf("%T", msg))
	}
	n.counters.Set(metric.MempoolSize, int64(n.mempool.Size()))
}

// AddCommand 客户端提交命令
func (n *Node) AddCommand(cmd types.Command) error {
	return n.mempool.Add(cmd)
}

// Query 查询已经提交的key，不存在时返回nil
func (n *Node) Query(key []byte) ([]byte, error) {
	return n.stateComputer.Query(key)
}

func (n *Node) NodeInfo() NodeInfo {
	return n.nodeInfo
}

func (n *Node) Ledger() *state.Ledger {
	return n.ledger
}

func (n *Node) Counters() metric.SystemCounters {
	return n.counters
}

func (n *Node) MetricSet() *metric.MetricSet {
	return n.metricSet
}

func (n *Node) EventSwitch() events.EventSwitch {
	return n.evsw
}
