package mempool

import (
	"sync"
	"sync/atomic"

	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"

	cfg "hotbft/config"
	"hotbft/types"
)

func NewListMempool(config *cfg.MempoolConfig, options ...ListMempoolOption) *ListMempool {
	mem := &ListMempool{
		config: config,
		cmds:   clist.New(),
		logger: log.NewNopLogger(),
		metric: newMemMetric(),
	}

	for _, option := range options {
		option(mem)
	}

	return mem
}

// ListMempool 基于并发安全的双向链表，按照加入顺序保存命令
type ListMempool struct {
	// Atomic integers
	cmdsBytes int64 // total size of mempool, in bytes

	config *cfg.MempoolConfig

	updateMtx sync.Mutex
	preCheck  PreCheckFunc

	cmds    *clist.CList
	cmdsMap sync.Map // CommandID -> *clist.CElement

	logger log.Logger
	metric *memMetric
}

type ListMempoolOption func(memppol *ListMempool)

// PreCheckFunc 加入mempool前对命令的检查
type PreCheckFunc func(types.Command) error

func SetPreCheck(precheck PreCheckFunc) ListMempoolOption {
	return func(mem *ListMempool) {
		mem.preCheck = precheck
	}
}

var _ Mempool = (*ListMempool)(nil)

func (mem *ListMempool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

// Metric 返回mempool的统计信息
func (mem *ListMempool) Metric() *memMetric {
	return mem.metric
}

// Add 失败的命令计入rejected
func (mem *ListMempool) Add(cmd types.Command) error {
	err := mem.add(cmd)
	mem.metric.markAdded(err == nil)
	return err
}

func (mem *ListMempool) add(cmd types.Command) error {
	if cmd.IsEmpty() {
		return ErrEmptyCommand
	}
	if max := mem.config.MaxCommandBytes; max > 0 && len(cmd) > max {
		return ErrCommandTooLarge{Max: max, Actual: len(cmd)}
	}
	if mem.preCheck != nil {
		if err := mem.preCheck(cmd); err != nil {
			return err
		}
	}

	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	if size := mem.cmds.Len(); mem.config.Size > 0 && size >= mem.config.Size {
		return ErrMempoolIsFull{NumCommands: size, MaxCommands: mem.config.Size}
	}

	id := cmd.ID()
	if _, ok := mem.cmdsMap.Load(id); ok {
		return ErrCommandInMap
	}

	e := mem.cmds.PushBack(cmd)
	mem.cmdsMap.Store(id, e)
	atomic.AddInt64(&mem.cmdsBytes, cmd.Size())
	mem.updateMetric()

	mem.logger.Debug("added command", "id", id, "size", len(cmd))
	return nil
}

func (mem *ListMempool) GetCommands(max int, excluded types.CommandIDSet) []types.Command {
	cmds := make([]types.Command, 0, max)
	for e := mem.cmds.Front(); e != nil && len(cmds) < max; e = e.Next() {
		cmd := e.Value.(types.Command)
		if excluded != nil && excluded.Has(cmd.ID()) {
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func (mem *ListMempool) Remove(cmd types.Command) {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	id := cmd.ID()
	if e, ok := mem.cmdsMap.Load(id); ok {
		elem := e.(*clist.CElement)
		mem.cmds.Remove(elem)
		elem.DetachPrev()
		mem.cmdsMap.Delete(id)
		atomic.AddInt64(&mem.cmdsBytes, -cmd.Size())
		mem.metric.markRemoved()
		mem.updateMetric()
	}
}

func (mem *ListMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	for e := mem.cmds.Front(); e != nil; e = e.Next() {
		mem.cmds.Remove(e)
		e.DetachPrev()
	}
	mem.cmdsMap.Range(func(key, _ interface{}) bool {
		mem.cmdsMap.Delete(key)
		return true
	})
	atomic.StoreInt64(&mem.cmdsBytes, 0)
	mem.updateMetric()
}

func (mem *ListMempool) Size() int {
	return mem.cmds.Len()
}

func (mem *ListMempool) CommandsBytes() int64 {
	return atomic.LoadInt64(&mem.cmdsBytes)
}

// CommandsWaitChan 有命令加入时关闭
func (mem *ListMempool) CommandsWaitChan() <-chan struct{} {
	return mem.cmds.WaitChan()
}

// NOTE caller负责加锁
func (mem *ListMempool) updateMetric() {
	mem.metric.markSize(mem.cmds.Len(), atomic.LoadInt64(&mem.cmdsBytes))
}
