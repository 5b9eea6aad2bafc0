package metrics

import (
	"time"
)

type (
	// Handler is a wrapper around a metrics client. Tags are merged into every
	// metric recorded through the handler.
	Handler interface {
		// WithTags creates a new Handler with provided Tags merged with the
		// registered tags of the source Handler.
		WithTags(...Tag) Handler

		// Counter obtains a counter for the given name.
		Counter(string) CounterIface

		// Gauge obtains a gauge for the given name.
		Gauge(string) GaugeIface

		// Timer obtains a timer for the given name.
		Timer(string) TimerIface

		// Histogram obtains a histogram for the given name.
		Histogram(string, MetricUnit) HistogramIface
	}

	// CounterIface is an ever-increasing counter.
	CounterIface interface {
		// Record increments the counter value.
		Record(int64, ...Tag)
	}

	// GaugeIface can be set to any float.
	GaugeIface interface {
		// Record updates the gauge value.
		Record(float64, ...Tag)
	}

	// TimerIface records time durations.
	TimerIface interface {
		// Record sets the timer value.
		Record(time.Duration, ...Tag)
	}

	// HistogramIface records a distribution of values.
	HistogramIface interface {
		// Record adds a value to the distribution.
		Record(int64, ...Tag)
	}

	// CounterFunc implements CounterIface with a function.
	CounterFunc func(int64, ...Tag)

	// GaugeFunc implements GaugeIface with a function.
	GaugeFunc func(float64, ...Tag)

	// TimerFunc implements TimerIface with a function.
	TimerFunc func(time.Duration, ...Tag)

	// HistogramFunc implements HistogramIface with a function.
	HistogramFunc func(int64, ...Tag)
)

func (c CounterFunc) Record(v int64, tags ...Tag) { c(v, tags...) }

func (c GaugeFunc) Record(v float64, tags ...Tag) { c(v, tags...) }

func (c TimerFunc) Record(v time.Duration, tags ...Tag) { c(v, tags...) }

func (c HistogramFunc) Record(v int64, tags ...Tag) { c(v, tags...) }
