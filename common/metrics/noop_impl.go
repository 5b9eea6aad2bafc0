package metrics

import (
	"time"
)

// NoopMetricsHandler is a Handler that does nothing.
var NoopMetricsHandler Handler = newNoopMetricsHandler()

type noopMetricsHandler struct{}

func newNoopMetricsHandler() *noopMetricsHandler { return &noopMetricsHandler{} }

// WithTags returns the same handler; tags are dropped.
func (n *noopMetricsHandler) WithTags(...Tag) Handler {
	return n
}

func (*noopMetricsHandler) Counter(string) CounterIface {
	return CounterFunc(func(int64, ...Tag) {})
}

func (*noopMetricsHandler) Gauge(string) GaugeIface {
	return GaugeFunc(func(float64, ...Tag) {})
}

func (*noopMetricsHandler) Timer(string) TimerIface {
	return TimerFunc(func(time.Duration, ...Tag) {})
}

func (*noopMetricsHandler) Histogram(string, MetricUnit) HistogramIface {
	return HistogramFunc(func(int64, ...Tag) {})
}
