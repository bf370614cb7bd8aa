package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"

	"hotbft/libs/metric"
	"hotbft/mempool"
	"hotbft/types"
)

// 账本通过EventSwitch通知的事件
const (
	EventCommittedCommand   = "CommittedCommand"
	EventEpochChange        = "EpochChange"
	EventCommittedStateSync = "CommittedStateSync"
)

var (
	ErrCommandAlreadyPrepared = errors.New("command already prepared on this branch")
)

// StateComputer 外部的命令执行引擎
type StateComputer interface {
	// Prepare 预执行vertex，返回非空的验证者集合表示这个vertex结束当前epoch
	Prepare(vertex *types.Vertex) (*types.ValidatorSet, error)

	// Commit 真正执行一个已经提交的命令
	Commit(cc types.CommittedCommand) error
}

// Ledger 保证state version严格递增地提交命令
// 共识主循环和同步服务都会调用，内部状态由mtx保护
type Ledger struct {
	mtx            sync.Mutex
	currentVersion int64
	lastCommitted  types.VertexMetadata

	stateComputer StateComputer
	mempool       mempool.Mempool
	evsw          events.EventSwitch

	// state version -> 等待者的opaque
	waiters map[int64]map[interface{}]struct{}

	counters metric.SystemCounters
	logger   log.Logger
}

type LedgerOption func(*Ledger)

func WithCounters(counters metric.SystemCounters) LedgerOption {
	return func(l *Ledger) {
		l.counters = counters
	}
}

// NewLedger lastCommitted是账本上最后一个提交的位置，新集群使用空的metadata
func NewLedger(
	lastCommitted types.VertexMetadata,
	stateComputer StateComputer,
	mempool mempool.Mempool,
	evsw events.EventSwitch,
	options ...LedgerOption,
) *Ledger {
	l := &Ledger{
		currentVersion: lastCommitted.StateVersion,
		lastCommitted:  lastCommitted,
		stateComputer:  stateComputer,
		mempool:        mempool,
		evsw:           evsw,
		waiters:        make(map[int64]map[interface{}]struct{}),
		counters:       metric.NewSystemCounters(),
		logger:         log.NewNopLogger(),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *Ledger) SetLogger(logger log.Logger) {
	l.logger = logger
}

// Prepare 计算vertex执行后的账本位置
// 父节点已经结束epoch时不再执行任何命令，state version保持不变
func (l *Ledger) Prepare(previous []*types.PreparedVertex, vertex *types.Vertex) (*types.PreparedVertex, error) {
	parent := vertex.ParentMetadata()
	if parent.IsEndOfEpoch {
		meta := types.NewVertexMetadata(vertex.Epoch, vertex.View, vertex.ID(), parent.StateVersion, true)
		return &types.PreparedVertex{Vertex: vertex, Metadata: meta}, nil
	}

	if !vertex.Command.IsEmpty() {
		id := vertex.Command.ID()
		for _, pv := range previous {
			if !pv.Vertex.Command.IsEmpty() && pv.Vertex.Command.ID() == id {
				return nil, ErrCommandAlreadyPrepared
			}
		}
	}

	nextValidators, err := l.stateComputer.Prepare(vertex)
	if err != nil {
		return nil, fmt.Errorf("prepare vertex %v: %w", vertex.ID(), err)
	}

	version := parent.StateVersion
	if !vertex.Command.IsEmpty() || nextValidators != nil {
		version++
	}
	meta := types.NewVertexMetadata(vertex.Epoch, vertex.View, vertex.ID(), version, nextValidators != nil)
	return &types.PreparedVertex{
		Vertex:         vertex,
		Metadata:       meta,
		NextValidators: nextValidators,
	}, nil
}

// Commit 只有 state version == current + 1 时才提交，否则什么都不做
func (l *Ledger) Commit(cmd types.Command, meta types.VertexMetadata) bool {
	return l.commit(types.CommittedCommand{Command: cmd, Metadata: meta})
}

// CommitVertex 共识提交的vertex，可能带有下一个epoch的验证者
func (l *Ledger) CommitVertex(pv *types.PreparedVertex) bool {
	return l.commit(types.CommittedCommand{
		Command:        pv.Vertex.Command,
		Metadata:       pv.Metadata,
		NextValidators: pv.NextValidators,
	})
}

// CommitSynced 同步服务从其他节点取得的已提交命令
func (l *Ledger) CommitSynced(cc types.CommittedCommand) bool {
	return l.commit(cc)
}

func (l *Ledger) commit(cc types.CommittedCommand) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	version := cc.StateVersion()
	if version != l.currentVersion+1 {
		l.logger.Debug("skip commit", "version", version, "current", l.currentVersion)
		return false
	}

	if err := l.stateComputer.Commit(cc); err != nil {
		// 账本和共识已经不一致，不能继续运行
		panic(fmt.Sprintf("failed to commit state version %d: %v", version, err))
	}
	l.currentVersion = version
	l.lastCommitted = cc.Metadata

	if !cc.Command.IsEmpty() {
		l.mempool.Remove(cc.Command)
	}
	l.counters.Set(metric.LedgerStateVersion, version)
	l.counters.Increment(metric.LedgerCommittedCommands)
	l.logger.Debug("committed", "version", version, "meta", cc.Metadata)

	// 监听者不能阻塞，也不能回调账本
	l.evsw.FireEvent(EventCommittedCommand, cc)
	if cc.NextValidators != nil {
		l.evsw.FireEvent(EventEpochChange, types.EpochChange{
			Ancestor:   cc.Metadata,
			Validators: cc.NextValidators,
		})
	}
	for _, synced := range l.releaseWaiters(version) {
		l.evsw.FireEvent(EventCommittedStateSync, synced)
	}
	return true
}

// IfCommitSynced 已经同步到target时同步调用onSynced
// 否则登记等待者(同一个opaque只登记一次)并调用onNotSynced，
// 之后由commit通过EventCommittedStateSync事件通知
func (l *Ledger) IfCommitSynced(target types.VertexMetadata, opaque interface{}, onSynced func(), onNotSynced func()) {
	l.mtx.Lock()
	if target.StateVersion <= l.currentVersion {
		l.mtx.Unlock()
		onSynced()
		return
	}
	ws, ok := l.waiters[target.StateVersion]
	if !ok {
		ws = make(map[interface{}]struct{})
		l.waiters[target.StateVersion] = ws
	}
	ws[opaque] = struct{}{}
	l.mtx.Unlock()

	onNotSynced()
}

// NOTE caller负责加锁
func (l *Ledger) releaseWaiters(version int64) []types.CommittedStateSync {
	versions := make([]int64, 0)
	for v := range l.waiters {
		if v <= version {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	var synced []types.CommittedStateSync
	for _, v := range versions {
		for opaque := range l.waiters[v] {
			synced = append(synced, types.CommittedStateSync{StateVersion: v, Opaque: opaque})
		}
		delete(l.waiters, v)
	}
	return synced
}

// CurrentVersion 已提交的最高state version
func (l *Ledger) CurrentVersion() int64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.currentVersion
}

func (l *Ledger) LastCommitted() types.VertexMetadata {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.lastCommitted
}
