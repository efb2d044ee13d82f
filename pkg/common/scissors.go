package common

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScissorsErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qprelay_scissor_errors_caught",
			Help: "Total number of unhandled errors caught",
		})
)

// Runnable is a long running unit of work that stops when ctx is canceled.
type Runnable func(ctx context.Context) error

func panicToError(name string, r interface{}) error {
	switch x := r.(type) {
	case error:
		if name == "" {
			return x
		}
		return fmt.Errorf("%s: %w", name, x)
	default:
		if name == "" {
			return fmt.Errorf("%v", x)
		}
		return fmt.Errorf("%s: %v", name, x)
	}
}

// RunWithScissors starts runnable in a goroutine. A returned error or a recovered panic is sent to errC.
func RunWithScissors(ctx context.Context, errC chan error, name string, runnable Runnable) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ScissorsErrors.Inc()
				errC <- panicToError(name, r)
			}
		}()
		if err := runnable(ctx); err != nil {
			errC <- err
		}
	}()
}

// WrapWithScissors turns a panic in runnable into its returned error.
func WrapWithScissors(runnable Runnable) Runnable {
	return func(ctx context.Context) (result error) {
		defer func() {
			if r := recover(); r != nil {
				ScissorsErrors.Inc()
				result = panicToError("", r)
			}
		}()
		return runnable(ctx)
	}
}
