package syncservice

import (
	"bytes"
	"sync"
	"time"

	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/libs/service"

	cfg "hotbft/config"
	"hotbft/libs/metric"
	"hotbft/types"
)

const msgQueueSize = 1000

// CommandProcessor 按版本顺序接收同步到的命令，见state.Ledger
type CommandProcessor interface {
	CommitSynced(cc types.CommittedCommand) bool
	CurrentVersion() int64
}

// CommittedReader 为其他节点读取已提交的命令，见store.CommittedStore
type CommittedReader interface {
	GetCommittedAfter(version int64, count int) ([]types.CommittedCommand, error)
}

type Sender interface {
	SendSyncRequest(peer types.Address, req *types.SyncRequest)
	SendSyncResponse(peer types.Address, resp *types.SyncResponse)
}

type msgInfo struct {
	msg  interface{}
	from types.Address
}

// Runner 把落后的账本追到目标版本，同时回答其他节点的同步请求
// 所有状态只在syncRoutine中修改
type Runner struct {
	service.BaseService

	config    *cfg.SyncConfig
	self      types.Address
	processor CommandProcessor
	reader    CommittedReader
	sender    Sender

	msgQueue chan msgInfo
	patience *time.Timer

	mtx sync.Mutex
	// 目标版本，不大于当前版本时说明没有在同步
	targetVersion int64
	// 目标位置由commit QC证明
	target types.VertexMetadata
	peers         []types.Address
	// 已经请求到的最高版本
	requested int64
	// 上次设置patience时的版本，用于判断是否有进展
	armedAt int64
	atoms   *atomSet

	counters metric.SystemCounters
}

type RunnerOption func(*Runner)

func WithCounters(counters metric.SystemCounters) RunnerOption {
	return func(r *Runner) {
		r.counters = counters
	}
}

func NewRunner(
	config *cfg.SyncConfig,
	self types.Address,
	processor CommandProcessor,
	reader CommittedReader,
	sender Sender,
	options ...RunnerOption,
) *Runner {
	r := &Runner{
		config:    config,
		self:      self,
		processor: processor,
		reader:    reader,
		sender:    sender,
		msgQueue:  make(chan msgInfo, msgQueueSize),
		patience:  time.NewTimer(0),
		atoms:     newAtomSet(config.AtomCapacity()),
		counters:  metric.NewSystemCounters(),
	}
	r.BaseService = *service.NewBaseService(nil, "SyncRunner", r)
	r.stopPatience()
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *Runner) OnStart() error {
	go r.syncRoutine()
	return nil
}

// SendLocalSyncRequest 共识发现账本落后时调用
func (r *Runner) SendLocalSyncRequest(req types.LocalSyncRequest) {
	r.send(msgInfo{msg: req})
}

func (r *Runner) ProcessSyncRequest(from types.Address, req *types.SyncRequest) {
	r.send(msgInfo{msg: req, from: from})
}

func (r *Runner) ProcessSyncResponse(from types.Address, resp *types.SyncResponse) {
	r.send(msgInfo{msg: resp, from: from})
}

// 直接写可能会因为syncRoutine阻塞而阻塞调用者
func (r *Runner) send(mi msgInfo) {
	select {
	case r.msgQueue <- mi:
	default:
		r.Logger.Debug("sync msg queue is full; using a go-routine")
		go func() {
			select {
			case r.msgQueue <- mi:
			case <-r.Quit():
			}
		}()
	}
}

// TargetVersion 正在同步的目标版本
func (r *Runner) TargetVersion() int64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.targetVersion
}

// QueueSize 已经收到但还不能提交的命令数
func (r *Runner) QueueSize() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.atoms.size()
}

func (r *Runner) syncRoutine() {
	for {
		select {
		case <-r.Quit():
			return
		case mi := <-r.msgQueue:
			r.handleMsg(mi)
		case <-r.patience.C:
			r.handlePatience()
		}
	}
}

func (r *Runner) handleMsg(mi msgInfo) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	switch msg := mi.msg.(type) {
	case types.LocalSyncRequest:
		r.handleLocalSyncRequest(msg)
	case *types.SyncRequest:
		r.handleSyncRequest(mi.from, msg)
	case *types.SyncResponse:
		r.handleSyncResponse(mi.from, msg)
	default:
		r.Logger.Error("unknown sync msg", "type", msg)
	}
}

func (r *Runner) handleLocalSyncRequest(req types.LocalSyncRequest) {
	current := r.processor.CurrentVersion()
	target := req.Target.StateVersion
	if target <= current {
		r.Logger.Debug("already synced", "target", target, "current", current)
		return
	}

	peers := make([]types.Address, 0, len(req.Peers))
	for _, p := range req.Peers {
		if !bytes.Equal(p, r.self) {
			peers = append(peers, p)
		}
	}
	if len(peers) > 0 {
		r.peers = peers
	}
	if target > r.targetVersion {
		r.targetVersion = target
		r.target = req.Target
		r.counters.Set(metric.SyncTargetVersion, target)
	}
	r.Logger.Info("start sync", "target", r.targetVersion, "current", current, "peers", len(r.peers))

	r.sendRequests(false)
	r.armPatience(current)
}

// sendRequests 在 (current, current + MaxRequests*BatchSize] 范围内发出还没发过的请求
// reset时从当前版本开始全部重新请求
func (r *Runner) sendRequests(reset bool) {
	current := r.processor.CurrentVersion()
	if reset || r.requested < current {
		r.requested = current
	}
	if len(r.peers) == 0 {
		r.Logger.Error("no peers to sync from, waiting for patience timeout", "target", r.targetVersion)
		return
	}

	batch := int64(r.config.BatchSize)
	limit := current + int64(r.config.MaxRequests)*batch
	if limit > r.targetVersion {
		limit = r.targetVersion
	}
	for r.requested < limit {
		start := r.requested
		r.requested += batch
		if r.atoms.has(start + 1) {
			continue
		}
		peer := r.peers[tmrand.Intn(len(r.peers))]
		r.sender.SendSyncRequest(peer, &types.SyncRequest{StateVersion: start, BatchSize: r.config.BatchSize})
		r.counters.Increment(metric.SyncRequestsSent)
	}
}

func (r *Runner) handleSyncRequest(from types.Address, req *types.SyncRequest) {
	count := req.BatchSize
	if count <= 0 || count > r.config.BatchSize {
		count = r.config.BatchSize
	}
	cmds, err := r.reader.GetCommittedAfter(req.StateVersion, count)
	if err != nil {
		r.Logger.Error("failed to read committed commands", "from", req.StateVersion, "err", err)
		return
	}
	if len(cmds) == 0 {
		return
	}
	r.sender.SendSyncResponse(from, &types.SyncResponse{Commands: cmds})
}

func (r *Runner) handleSyncResponse(from types.Address, resp *types.SyncResponse) {
	current := r.processor.CurrentVersion()
	added := 0
	for _, cc := range resp.Commands {
		version := cc.StateVersion()
		if version <= current || version > r.targetVersion {
			continue
		}
		if version == r.targetVersion && !matchesTarget(cc.Metadata, r.target) {
			r.Logger.Info("sync response does not match target", "from", from, "got", cc.Metadata, "target", r.target)
			continue
		}
		if r.atoms.add(cc) {
			added++
		}
	}
	r.Logger.Debug("sync response", "from", from, "commands", len(resp.Commands), "added", added)
	r.drain()
}

// matchesTarget 目标vertex可能没有命令，这时目标版本上的命令来自更早的vertex
func matchesTarget(meta, target types.VertexMetadata) bool {
	if meta.Epoch != target.Epoch {
		return meta.Epoch < target.Epoch
	}
	if meta.View.Equal(target.View) {
		return meta.Equal(target)
	}
	return meta.View.Less(target.View)
}

// drain 按版本顺序提交所有连续的命令
func (r *Runner) drain() {
	current := r.processor.CurrentVersion()
	r.atoms.removeUpTo(current)

	processed := 0
	for {
		cc, ok := r.atoms.first()
		if !ok || cc.StateVersion() != current+1 {
			break
		}
		r.atoms.removeFirst()
		if r.processor.CommitSynced(cc) {
			processed++
		}
		current = r.processor.CurrentVersion()
		r.atoms.removeUpTo(current)
	}
	r.counters.Add(metric.SyncProcessed, int64(processed))
	r.counters.Set(metric.SyncQueueSize, int64(r.atoms.size()))

	if current >= r.targetVersion {
		r.finish(current)
		return
	}
	if processed > 0 {
		r.sendRequests(false)
	}
}

func (r *Runner) handlePatience() {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	current := r.processor.CurrentVersion()
	if current >= r.targetVersion {
		r.finish(current)
		return
	}
	if current == r.armedAt {
		r.Logger.Info("no sync progress, resend requests", "target", r.targetVersion, "current", current)
		r.sendRequests(true)
	}
	r.armPatience(current)
}

func (r *Runner) finish(current int64) {
	if r.targetVersion > 0 {
		r.Logger.Info("sync finished", "target", r.targetVersion, "current", current)
	}
	r.targetVersion = 0
	r.target = types.VertexMetadata{}
	r.requested = 0
	r.atoms.clear()
	r.counters.Set(metric.SyncQueueSize, 0)
	r.stopPatience()
}

// 重新计时之前先取消旧的计时
func (r *Runner) armPatience(current int64) {
	r.stopPatience()
	r.armedAt = current
	r.patience.Reset(r.config.Patience)
}

func (r *Runner) stopPatience() {
	if !r.patience.Stop() {
		select {
		case <-r.patience.C:
		default:
		}
	}
}
