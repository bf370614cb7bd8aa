package consensus

import (
	"sync"

	jsoniter "github.com/json-iterator/go"

	"hotbft/types"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{
		Epoch:      0,
		View:       0,
		HighQCView: 0,
		RootView:   0,
	}
}

// consensusMetric 共识模块当前状态的快照
type consensusMetric struct {
	mtx sync.RWMutex

	Epoch       int64 `json:"epoch"`
	View        int64 `json:"current_view"`
	IsValidator bool  `json:"is_validator"`
	IsLeader    bool  `json:"is_leader"`

	HighQCView       int64 `json:"high_qc_view"`
	RootView         int64 `json:"root_view"`
	RootStateVersion int64 `json:"root_state_version"`
	IsSyncing        bool  `json:"is_syncing"`
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *consensusMetric) MarkEpoch(epoch int64, isValidator bool) {
	cm.mtx.Lock()
	cm.Epoch = epoch
	cm.IsValidator = isValidator
	cm.mtx.Unlock()
}

func (cm *consensusMetric) MarkView(view types.View, isLeader bool) {
	cm.mtx.Lock()
	cm.View = view.Int64()
	cm.IsLeader = isLeader
	cm.mtx.Unlock()
}

func (cm *consensusMetric) MarkStore(store *VertexStore, syncing bool) {
	cm.mtx.Lock()
	cm.HighQCView = store.HighestQC().View().Int64()
	cm.RootView = store.Root().View().Int64()
	cm.RootStateVersion = store.Root().Metadata.StateVersion
	cm.IsSyncing = syncing
	cm.mtx.Unlock()
}
