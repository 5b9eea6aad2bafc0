package metrics

import (
	"time"

	"github.com/uber-go/tally/v4"
)

var defaultPerUnitBuckets = map[MetricUnit]tally.Buckets{
	Dimensionless: tally.ValueBuckets{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
	Bytes:         tally.ValueBuckets{1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216},
}

type tallyMetricsHandler struct {
	scope          tally.Scope
	perUnitBuckets map[MetricUnit]tally.Buckets
}

var _ Handler = (*tallyMetricsHandler)(nil)

// NewTallyMetricsHandler returns a Handler backed by a tally scope.
func NewTallyMetricsHandler(scope tally.Scope) *tallyMetricsHandler {
	return &tallyMetricsHandler{
		scope:          scope,
		perUnitBuckets: defaultPerUnitBuckets,
	}
}

// WithTags creates a new Handler with the provided tags merged with the
// registered tags of the source Handler.
func (tmh *tallyMetricsHandler) WithTags(tags ...Tag) Handler {
	return &tallyMetricsHandler{
		scope:          tmh.scope.Tagged(tagsToMap(tags)),
		perUnitBuckets: tmh.perUnitBuckets,
	}
}

func (tmh *tallyMetricsHandler) Counter(counter string) CounterIface {
	return CounterFunc(func(i int64, t ...Tag) {
		scope := tmh.scope
		if len(t) > 0 {
			scope = tmh.scope.Tagged(tagsToMap(t))
		}
		scope.Counter(counter).Inc(i)
	})
}

func (tmh *tallyMetricsHandler) Gauge(gauge string) GaugeIface {
	return GaugeFunc(func(f float64, t ...Tag) {
		scope := tmh.scope
		if len(t) > 0 {
			scope = tmh.scope.Tagged(tagsToMap(t))
		}
		scope.Gauge(gauge).Update(f)
	})
}

func (tmh *tallyMetricsHandler) Timer(timer string) TimerIface {
	return TimerFunc(func(d time.Duration, t ...Tag) {
		scope := tmh.scope
		if len(t) > 0 {
			scope = tmh.scope.Tagged(tagsToMap(t))
		}
		scope.Timer(timer).Record(d)
	})
}

func (tmh *tallyMetricsHandler) Histogram(histogram string, unit MetricUnit) HistogramIface {
	return HistogramFunc(func(i int64, t ...Tag) {
		scope := tmh.scope
		if len(t) > 0 {
			scope = tmh.scope.Tagged(tagsToMap(t))
		}
		scope.Histogram(histogram, tmh.perUnitBuckets[unit]).RecordValue(float64(i))
	})
}

func tagsToMap(t []Tag) map[string]string {
	if len(t) == 0 {
		return nil
	}

	m := make(map[string]string, len(t))
	for i := range t {
		m[t[i].Key()] = t[i].Value()
	}
	return m
}
