// Package safego launches background goroutines that survive panics.
package safego

import "log/slog"

// Go runs fn on its own goroutine and turns a panic in fn into an error log
// instead of a process crash. Long-lived background work (the transition
// relay, the expiry notifier, the side HTTP listeners) goes through here so
// a bug in one loop cannot take the server down or die unnoticed.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
