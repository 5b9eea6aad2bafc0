package log

import (
	"github.com/strandhq/strand/common/log/tag"
)

type (
	withLogger struct {
		logger Logger
		tags   []tag.Tag
	}
)

var _ Logger = (*withLogger)(nil)

// With returns Logger instance that prepends the given tags to every log entry.
func With(logger Logger, tags ...tag.Tag) Logger {
	if wl, ok := logger.(WithLogger); ok {
		return wl.With(tags...)
	}
	return newWithLogger(logger, tags...)
}

func newWithLogger(logger Logger, tags ...tag.Tag) *withLogger {
	if sl, ok := logger.(SkipLogger); ok {
		logger = sl.Skip(1)
	}
	return &withLogger{logger: logger, tags: tags}
}

func (l *withLogger) prependTags(tags []tag.Tag) []tag.Tag {
	allTags := make([]tag.Tag, 0, len(l.tags)+len(tags))
	allTags = append(allTags, l.tags...)
	allTags = append(allTags, tags...)
	return allTags
}

func (l *withLogger) Debug(msg string, tags ...tag.Tag) {
	l.logger.Debug(msg, l.prependTags(tags)...)
}

func (l *withLogger) Info(msg string, tags ...tag.Tag) {
	l.logger.Info(msg, l.prependTags(tags)...)
}

func (l *withLogger) Warn(msg string, tags ...tag.Tag) {
	l.logger.Warn(msg, l.prependTags(tags)...)
}

func (l *withLogger) Error(msg string, tags ...tag.Tag) {
	l.logger.Error(msg, l.prependTags(tags)...)
}

func (l *withLogger) Fatal(msg string, tags ...tag.Tag) {
	l.logger.Fatal(msg, l.prependTags(tags)...)
}
