package mempool

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// memMetric mempool的快照和累计计数
type memMetric struct {
	mtx sync.RWMutex

	CommandsNum int   `json:"commands_num"`
	TotalBytes  int64 `json:"total_bytes"`

	// 累计值
	Added    int64 `json:"added"`
	Rejected int64 `json:"rejected"`
	Removed  int64 `json:"removed"`
}

func newMemMetric() *memMetric {
	return &memMetric{}
}

func (mm *memMetric) JSONString() string {
	mm.mtx.RLock()
	defer mm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(mm)
	return s
}

func (mm *memMetric) markSize(num int, total int64) {
	mm.mtx.Lock()
	mm.CommandsNum = num
	mm.TotalBytes = total
	mm.mtx.Unlock()
}

func (mm *memMetric) markAdded(accepted bool) {
	mm.mtx.Lock()
	if accepted {
		mm.Added++
	} else {
		mm.Rejected++
	}
	mm.mtx.Unlock()
}

func (mm *memMetric) markRemoved() {
	mm.mtx.Lock()
	mm.Removed++
	mm.mtx.Unlock()
}
