// Package goroutine provides utilities for safely launching goroutines with
// panic recovery, used by the poller pool and WebSocket client pumps.
package goroutine

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// SafeGo launches fn in a new goroutine with panic recovery. If fn panics,
// the panic is caught and logged with a stack trace instead of crashing the
// process. done, if non-nil, is called after fn returns or panics so
// callers can coordinate shutdown (e.g. via a sync.WaitGroup).
func SafeGo(log *zap.Logger, name string, fn func(), done func()) {
	go func() {
		if done != nil {
			defer done()
		}
		defer func() {
			if r := recover(); r != nil {
				log.Error("goroutine panicked",
					zap.String("goroutine", name),
					zap.String("panic", fmt.Sprintf("%v", r)),
					zap.String("stack", string(debug.Stack())),
				)
			}
		}()
		fn()
	}()
}
