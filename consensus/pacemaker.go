package consensus

import (
	"time"

	"github.com/tendermint/tendermint/libs/log"

	cstypes "hotbft/consensus/types"
	"hotbft/libs/metric"
	"hotbft/types"
)

// Pacemaker 固定超时的view时钟
// 每进入一个新的view就重新安排一次超时
type Pacemaker struct {
	epoch   int64
	timeout time.Duration

	currentView  types.View
	lastSyncView types.View

	pendingNewViews *cstypes.PendingNewViews
	scheduler       TimeoutScheduler

	counters metric.SystemCounters
	logger   log.Logger
}

func NewPacemaker(epoch int64, timeout time.Duration, scheduler TimeoutScheduler, counters metric.SystemCounters) *Pacemaker {
	return &Pacemaker{
		epoch:           epoch,
		timeout:         timeout,
		currentView:     types.GenesisView,
		lastSyncView:    types.GenesisView,
		pendingNewViews: cstypes.NewPendingNewViews(),
		scheduler:       scheduler,
		counters:        counters,
		logger:          log.NewNopLogger(),
	}
}

func (p *Pacemaker) SetLogger(logger log.Logger) {
	p.logger = logger
}

func (p *Pacemaker) CurrentView() types.View {
	return p.currentView
}

// ProcessLocalTimeout 当前view超时，进入下一个view
// 返回新的view，过期的超时返回false
func (p *Pacemaker) ProcessLocalTimeout(view types.View) (types.View, bool) {
	if !view.Equal(p.currentView) {
		return p.currentView, false
	}
	p.updateView(p.currentView.Next())
	return p.currentView, true
}

// ProcessQC 收到view的QC之后进入view+1
func (p *Pacemaker) ProcessQC(view types.View) (types.View, bool) {
	next := view.Next()
	if !next.Greater(p.currentView) {
		return p.currentView, false
	}
	p.lastSyncView = view
	p.updateView(next)
	return p.currentView, true
}

// ProcessNewView 收集new-view，达到quorum且不落后于当前view时进入那个view
func (p *Pacemaker) ProcessNewView(nv *types.NewView, vals *types.ValidatorSet) (types.View, bool) {
	if !nv.View.Greater(p.lastSyncView) {
		p.logger.Debug("ignore stale new-view", "view", nv.View, "lastSync", p.lastSyncView)
		return p.currentView, false
	}

	view, complete, err := p.pendingNewViews.InsertNewView(nv, vals)
	if err != nil {
		p.logger.Info("invalid new-view", "nv", nv, "err", err)
		return p.currentView, false
	}
	if !complete {
		return p.currentView, false
	}
	if view.Less(p.currentView) {
		return p.currentView, false
	}

	p.lastSyncView = view
	if view.Greater(p.currentView) {
		p.updateView(view)
	}
	return p.currentView, true
}

func (p *Pacemaker) updateView(view types.View) {
	p.currentView = view
	p.counters.Set(metric.ConsensusView, view.Int64())
	p.logger.Debug("enter new view", "view", view)
	p.scheduler.ScheduleTimeout(types.LocalTimeout{Epoch: p.epoch, View: view}, p.timeout)
}
