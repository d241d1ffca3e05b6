package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

type operation func(ctx context.Context) error

// shutdownStep is one named cleanup. Steps run in order so components stop
// before the connections they write to are closed.
type shutdownStep struct {
	name string
	op   operation
}

// gracefulShutdown waits for a termination signal, or for ctx to end when a
// component fails, then runs the cleanup steps in order.
func gracefulShutdown(ctx context.Context, timeout time.Duration, steps []shutdownStep) <-chan struct{} {
	wait := make(chan struct{})
	go func() {
		s := make(chan os.Signal, 1)
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(s)

		select {
		case sig := <-s:
			logrus.WithField("signal", sig.String()).Info("shutting down")
		case <-ctx.Done():
			logrus.Info("shutting down after component exit")
		}

		// prevent the process from hanging on a stuck cleanup
		timeoutFunc := time.AfterFunc(timeout, func() {
			logrus.Errorf("timeout %d ms has been elapsed, force exit", timeout.Milliseconds())
			os.Exit(0)
		})
		defer timeoutFunc.Stop()

		cleanupCtx := context.WithoutCancel(ctx)
		for _, step := range steps {
			logger := logrus.WithField("step", step.name)
			logger.Info("cleaning up")
			if err := step.op(cleanupCtx); err != nil {
				logger.WithError(err).Error("clean up failed")
				continue
			}
			logger.Info("shutdown gracefully")
		}

		close(wait)
	}()

	return wait
}

func closeStep(name string, closer func() error) shutdownStep {
	return shutdownStep{
		name: name,
		op: func(_ context.Context) error {
			return closer()
		},
	}
}
