package metric

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrMetricLabelExist = errors.New("metric label already exist")
)

// MetricSet 节点上按label注册的metric，rpc和run-local从这里读取
type MetricSet struct {
	mtx     sync.RWMutex
	metrics map[string]MetricItem
}

func NewMetricSet() *MetricSet {
	return &MetricSet{
		metrics: make(map[string]MetricItem),
	}
}

// SetMetrics label已经存在时返回ErrMetricLabelExist
func (ms *MetricSet) SetMetrics(label string, item MetricItem) error {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()

	if _, ok := ms.metrics[label]; ok {
		return ErrMetricLabelExist
	}
	ms.metrics[label] = item
	return nil
}

func (ms *MetricSet) HasMetrics(label string) bool {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()
	_, ok := ms.metrics[label]
	return ok
}

// GetMetrics 不存在时返回nil
func (ms *MetricSet) GetMetrics(label string) MetricItem {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()
	return ms.metrics[label]
}

// Labels 排序后的所有label
func (ms *MetricSet) Labels() []string {
	ms.mtx.RLock()
	labels := make([]string, 0, len(ms.metrics))
	for label := range ms.metrics {
		labels = append(labels, label)
	}
	ms.mtx.RUnlock()

	sort.Strings(labels)
	return labels
}

// Snapshot label -> JSONString
func (ms *MetricSet) Snapshot() map[string]string {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()

	res := make(map[string]string, len(ms.metrics))
	for label, item := range ms.metrics {
		res[label] = item.JSONString()
	}
	return res
}
