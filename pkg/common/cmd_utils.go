package common

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// ListenSysExit cancels the relay root context on SIGTERM or SIGINT.
func ListenSysExit(logger *zap.Logger, ctxCancel context.CancelFunc) {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigC
		logger.Info("received signal, stopping relay", zap.Stringer("signal", sig))
		ctxCancel()
	}()
}
