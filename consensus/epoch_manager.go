package consensus

import (
	"fmt"

	"github.com/tendermint/tendermint/libs/log"

	cfg "hotbft/config"
	cstypes "hotbft/consensus/types"
	"hotbft/libs/metric"
	"hotbft/mempool"
	"hotbft/types"
)

// ConsensusNetwork 共识和vertex同步使用的网络
type ConsensusNetwork interface {
	BFTEventSender
	SyncVerticesRPCSender
}

// SafetyStateStore 每个epoch一份安全状态
type SafetyStateStore interface {
	SafetyStatePersister
	LoadSafetyState(epoch int64) (cstypes.SafetyState, error)
}

type queuedEvent struct {
	epoch   int64
	desc    string
	process func(BFTEventProcessor)
}

// EpochManager 按epoch分发共识事件
// epoch结束时丢弃旧的共识状态，用新的验证者集合重新开始
// NOTE 所有方法都在同一个goroutine中调用
type EpochManager struct {
	config *cfg.ConsensusConfig
	signer types.PrivValidator
	self   types.Address

	ledger      Ledger
	mempool     mempool.Mempool
	network     ConsensusNetwork
	scheduler   TimeoutScheduler
	syncSender  SyncRequestSender
	safetyStore SafetyStateStore
	persister   VertexStoreStatePersister

	currentEpoch int64
	vals         *types.ValidatorSet
	processor    BFTEventProcessor

	// 下一个epoch的事件，epoch切换后重放
	queued []queuedEvent

	metric   *consensusMetric
	counters metric.SystemCounters
	logger   log.Logger
}

type EpochManagerOption func(*EpochManager)

func WithSafetyStore(store SafetyStateStore) EpochManagerOption {
	return func(em *EpochManager) {
		em.safetyStore = store
	}
}

func WithVertexStorePersister(persister VertexStoreStatePersister) EpochManagerOption {
	return func(em *EpochManager) {
		em.persister = persister
	}
}

func WithCounters(counters metric.SystemCounters) EpochManagerOption {
	return func(em *EpochManager) {
		em.counters = counters
	}
}

func NewEpochManager(
	config *cfg.ConsensusConfig,
	signer types.PrivValidator,
	ledger Ledger,
	mempool mempool.Mempool,
	network ConsensusNetwork,
	scheduler TimeoutScheduler,
	syncSender SyncRequestSender,
	options ...EpochManagerOption,
) *EpochManager {
	em := &EpochManager{
		config:     config,
		signer:     signer,
		self:       signer.GetAddress(),
		ledger:     ledger,
		mempool:    mempool,
		network:    network,
		scheduler:  scheduler,
		syncSender: syncSender,
		processor:  EmptyBFTEventProcessor{},
		metric:     newConsensusMetric(),
		counters:   metric.NewSystemCounters(),
		logger:     log.NewNopLogger(),
	}
	for _, opt := range options {
		opt(em)
	}
	return em
}

func (em *EpochManager) SetLogger(logger log.Logger) {
	em.logger = logger
}

// Metric 共识状态快照
func (em *EpochManager) Metric() metric.MetricItem {
	return em.metric
}

func (em *EpochManager) CurrentEpoch() int64 {
	return em.currentEpoch
}

func (em *EpochManager) Validators() *types.ValidatorSet {
	return em.vals
}

// Start 用vals和store快照开始state所在的epoch
func (em *EpochManager) Start(vals *types.ValidatorSet, state *types.VerifiedVertexStoreState) {
	em.currentEpoch = state.Epoch()
	em.vals = vals
	em.startProcessor(state)
}

func (em *EpochManager) startProcessor(state *types.VerifiedVertexStoreState) {
	epoch := state.Epoch()
	em.counters.Set(metric.EpochManagerEpoch, epoch)
	logger := em.logger.With("epoch", epoch)

	if !em.vals.HasAddress(em.self) {
		logger.Info("not a validator in this epoch", "vals", em.vals.Size())
		em.processor = EmptyBFTEventProcessor{}
		em.metric.MarkEpoch(epoch, false)
		return
	}

	safetyState := cstypes.NewSafetyState()
	if em.safetyStore != nil {
		loaded, err := em.safetyStore.LoadSafetyState(epoch)
		if err != nil {
			panic(fmt.Sprintf("failed to load safety state of epoch %d: %v", epoch, err))
		}
		safetyState = loaded
	}

	var safetyPersister SafetyStatePersister
	if em.safetyStore != nil {
		safetyPersister = em.safetyStore
	}
	safetyRules := NewSafetyRules(epoch, em.signer, safetyState, safetyPersister)
	safetyRules.SetLogger(logger.With("module", "safety"))

	pacemaker := NewPacemaker(epoch, em.config.ViewTimeout, em.scheduler, em.counters)
	pacemaker.SetLogger(logger.With("module", "pacemaker"))

	store, err := NewVertexStore(state, em.ledger, em.persister, em.counters)
	if err != nil {
		panic(fmt.Sprintf("failed to build vertex store of epoch %d: %v", epoch, err))
	}
	store.SetLogger(logger.With("module", "store"))

	sync := NewVertexStoreSync(epoch, em.self, em.vals, store, em.ledger, em.network, em.syncSender, em.counters)
	sync.SetLogger(logger.With("module", "sync"))

	reducer := NewBFTEventReducer(
		em.vals,
		safetyRules,
		pacemaker,
		store,
		sync,
		NewProposalGenerator(epoch, store, em.mempool),
		em.network,
		em.counters,
	)
	reducer.SetLogger(logger.With("module", "reducer"))
	reducer.setMetric(em.metric)

	em.metric.MarkEpoch(epoch, true)
	em.processor = reducer
	reducer.Start()
}

// ProcessEpochChange 账本提交了结束epoch的vertex
func (em *EpochManager) ProcessEpochChange(ec types.EpochChange) {
	next := ec.NextEpoch()
	if next <= em.currentEpoch {
		em.logger.Debug("ignore stale epoch change", "epoch", next, "current", em.currentEpoch)
		return
	}
	em.logger.Info("epoch change", "from", em.currentEpoch, "to", next, "ancestor", ec.Ancestor)

	em.currentEpoch = next
	em.vals = ec.Validators
	em.startProcessor(types.NewGenesisVertexStoreState(ec.Ancestor, next))

	queued := em.queued
	em.queued = nil
	em.counters.Set(metric.EpochManagerQueued, 0)
	for _, e := range queued {
		if e.epoch == next {
			e.process(em.processor)
		}
	}
}

func (em *EpochManager) route(epoch int64, desc string, process func(BFTEventProcessor)) {
	switch {
	case epoch == em.currentEpoch:
		process(em.processor)
	case epoch == em.currentEpoch+1:
		if len(em.queued) >= em.config.MaxFutureEpochEvents {
			em.logger.Info("future epoch queue is full", "epoch", epoch, "event", desc)
			return
		}
		em.queued = append(em.queued, queuedEvent{epoch: epoch, desc: desc, process: process})
		em.counters.Set(metric.EpochManagerQueued, int64(len(em.queued)))
	case epoch < em.currentEpoch:
		em.logger.Debug("drop stale epoch event", "epoch", epoch, "current", em.currentEpoch, "event", desc)
	default:
		em.logger.Info("drop far future epoch event", "epoch", epoch, "current", em.currentEpoch, "event", desc)
	}
}

func (em *EpochManager) ProcessProposal(proposal *types.Proposal) {
	if proposal.Vertex == nil {
		em.logger.Info("drop proposal without vertex", "author", proposal.Author)
		return
	}
	em.route(proposal.GetEpoch(), "proposal", func(p BFTEventProcessor) { p.ProcessProposal(proposal) })
}

func (em *EpochManager) ProcessVote(vote *types.Vote) {
	em.route(vote.GetEpoch(), "vote", func(p BFTEventProcessor) { p.ProcessVote(vote) })
}

func (em *EpochManager) ProcessNewView(nv *types.NewView) {
	em.route(nv.GetEpoch(), "new-view", func(p BFTEventProcessor) { p.ProcessNewView(nv) })
}

func (em *EpochManager) ProcessLocalTimeout(timeout types.LocalTimeout) {
	em.route(timeout.Epoch, "timeout", func(p BFTEventProcessor) { p.ProcessLocalTimeout(timeout.View) })
}

func (em *EpochManager) ProcessGetVerticesRequest(from types.Address, req *types.GetVerticesRequest) {
	em.route(req.GetEpoch(), "get-vertices", func(p BFTEventProcessor) { p.ProcessGetVerticesRequest(from, req) })
}

func (em *EpochManager) ProcessGetVerticesResponse(resp *types.GetVerticesResponse) {
	em.route(resp.GetEpoch(), "vertices", func(p BFTEventProcessor) { p.ProcessGetVerticesResponse(resp) })
}

func (em *EpochManager) ProcessGetVerticesErrorResponse(resp *types.GetVerticesErrorResponse) {
	em.route(resp.GetEpoch(), "vertices-error", func(p BFTEventProcessor) { p.ProcessGetVerticesErrorResponse(resp) })
}

// ProcessCommittedStateSync 同步等待只属于当前epoch
func (em *EpochManager) ProcessCommittedStateSync(synced types.CommittedStateSync) {
	em.processor.ProcessCommittedStateSync(synced)
}
