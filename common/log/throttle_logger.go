package log

import (
	"golang.org/x/time/rate"

	"github.com/strandhq/strand/common/log/tag"
)

type (
	// ThrottledLogger is a logger that allows at most rpsFn() log lines per second.
	// Lines beyond the limit are dropped. Use for messages that can be emitted on
	// every task or request when something is persistently wrong.
	ThrottledLogger struct {
		limiter *rate.Limiter
		logger  Logger
	}
)

var _ Logger = (*ThrottledLogger)(nil)

const extraSkipForThrottleLogger = 3

// NewThrottledLogger returns a throttled logger.
func NewThrottledLogger(logger Logger, rpsFn func() float64) *ThrottledLogger {
	if sl, ok := logger.(SkipLogger); ok {
		logger = sl.Skip(extraSkipForThrottleLogger)
	}

	rps := rpsFn()
	limiter := rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	return &ThrottledLogger{
		limiter: limiter,
		logger:  logger,
	}
}

func (tl *ThrottledLogger) Debug(msg string, tags ...tag.Tag) {
	tl.rateLimit(func(lg Logger) {
		lg.Debug(msg, tags...)
	})
}

func (tl *ThrottledLogger) Info(msg string, tags ...tag.Tag) {
	tl.rateLimit(func(lg Logger) {
		lg.Info(msg, tags...)
	})
}

func (tl *ThrottledLogger) Warn(msg string, tags ...tag.Tag) {
	tl.rateLimit(func(lg Logger) {
		lg.Warn(msg, tags...)
	})
}

func (tl *ThrottledLogger) Error(msg string, tags ...tag.Tag) {
	tl.rateLimit(func(lg Logger) {
		lg.Error(msg, tags...)
	})
}

func (tl *ThrottledLogger) Fatal(msg string, tags ...tag.Tag) {
	tl.rateLimit(func(lg Logger) {
		lg.Fatal(msg, tags...)
	})
}

// With returns a new ThrottledLogger with the given tags prepended. The derived
// logger shares the rate limiter with its parent.
func (tl *ThrottledLogger) With(tags ...tag.Tag) Logger {
	return &ThrottledLogger{
		limiter: tl.limiter,
		logger:  With(tl.logger, tags...),
	}
}

func (tl *ThrottledLogger) rateLimit(f func(lg Logger)) {
	if tl.limiter.Allow() {
		f(tl.logger)
	}
}
