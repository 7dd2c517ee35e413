package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the stack trace.
// Call in a defer statement. The panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, and then runs
// the callback regardless of whether a panic occurred. Useful for closing
// channels or releasing locks from goroutines that may panic.
func RecoverPanicWithCallback(logger *Logger, context string, callback func()) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
	if callback != nil {
		callback()
	}
}
