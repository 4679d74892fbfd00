//go:build !excludemain

package main

import (
	"os"
	"os/signal"

	"keyrelay/internal/signals"
)

var waitForShutdownSignalStub = false

func init() {
	daemonWaitForShutdown = waitForShutdownSignal
	daemonNotifyReload = notifyReloadSignals
}

func waitForShutdownSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals.ShutdownSignals()...)
	<-ch
	signal.Stop(ch)
}

// notifyReloadSignals forwards reload signals until stop is called. With no
// reload signals on the platform the returned channel never fires.
func notifyReloadSignals() (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)
	sigs := signals.ReloadSignals()
	if len(sigs) == 0 {
		return out, func() {}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				select {
				case out <- struct{}{}:
				default:
				}
			case <-done:
				return
			}
		}
	}()
	return out, func() {
		signal.Stop(ch)
		close(done)
	}
}
