package orchestration

import (
	"context"
	"fmt"
)

func withContextCancelHook(ctx context.Context, onContextDone func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
	return done
}

// panicSafe runs a user callback and turns a panic into an error so a
// misbehaving callback cannot take down a capture or reader goroutine.
func panicSafe(name string, run func()) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s callback panicked: %v", name, recovered)
		}
	}()

	run()
	return nil
}
