package metric

// MetricItem 一个独立的metric模块对应一个MetricItem
// JSONString 返回一个json对象，rpc和日志直接输出它
type MetricItem interface {
	JSONString() string
}

// MetricFunc 把一个函数当作MetricItem
type MetricFunc func() string

func (f MetricFunc) JSONString() string {
	return f()
}
