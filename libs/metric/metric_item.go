package metric

// MetricItem 一个组件的统计，JSONString在任何goroutine中调用都要安全
type MetricItem interface {
	JSONString() string
}
