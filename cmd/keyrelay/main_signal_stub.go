//go:build excludemain

package main

// waitForShutdownSignalStub is true when building with -tags=excludemain (coverage build).
var waitForShutdownSignalStub = true

func init() {
	daemonWaitForShutdown = waitForShutdownSignal
	daemonNotifyReload = func() (<-chan struct{}, func()) { return nil, func() {} }
}

// waitForShutdownSignal is a no-op when building with -tags=excludemain for coverage.
func waitForShutdownSignal() {}
