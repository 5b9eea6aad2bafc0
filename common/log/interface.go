package log

import (
	"github.com/strandhq/strand/common/log/tag"
)

type (
	// Logger is the logging interface.
	// Usage example:
	//  logger.Info("hello world",
	//          tag.WorkflowNextEventID(123),
	//          tag.WorkflowNamespaceID("test-namespace-id"),
	//	 )
	//  Note: msg should be static, do not use fmt.Sprintf() for msg. Anything dynamic should be tagged.
	Logger interface {
		Debug(msg string, tags ...tag.Tag)
		Info(msg string, tags ...tag.Tag)
		Warn(msg string, tags ...tag.Tag)
		Error(msg string, tags ...tag.Tag)
		Fatal(msg string, tags ...tag.Tag)
	}

	// WithLogger is an optional interface. With should return a new instance of the
	// logger with the given tags prepended. Loggers that don't implement it get the
	// (less efficient) generic prepender in With.
	WithLogger interface {
		With(tags ...tag.Tag) Logger
	}

	// SkipLogger is an optional interface. If a logger implements it then Skip is
	// called with the number of extra stack trace frames to skip when reporting the
	// logging call site.
	SkipLogger interface {
		Skip(extraSkip int) Logger
	}
)
