// Package shutdown centralizes signal handling and fatal-exit behavior.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
)

// SetupSignalHandler returns a context canceled on SIGINT or SIGTERM. A
// second signal exits immediately.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		logger.Info("shutdown_signal", "signal", sig.String())
		cancel()
		<-ch
		logger.Error("forced_exit")
		os.Exit(1)
	}()
	return ctx
}

// Abort logs a fatal startup error and exits after a short delay so log
// sinks have time to flush.
func Abort(contextMsg string, err error) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", contextMsg, err)
	time.Sleep(2 * time.Second)
	os.Exit(2)
}
