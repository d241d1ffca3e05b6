package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// TaskGroup owns the goroutines of one bot run. A failing task never
// cancels its siblings; only Cancel stops the group.
type TaskGroup struct {
	botID     string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        *conc.WaitGroup
	done      chan struct{}
	started   sync.Once
	cancelled atomic.Bool
	running   atomic.Int32
}

func newTaskGroup(parent context.Context, botID string) *TaskGroup {
	ctx, cancel := context.WithCancel(parent)
	return &TaskGroup{
		botID:  botID,
		ctx:    ctx,
		cancel: cancel,
		wg:     conc.NewWaitGroup(),
		done:   make(chan struct{}),
	}
}

func (g *TaskGroup) Go(name string, task func(ctx context.Context) error) {
	g.running.Add(1)
	g.wg.Go(func() {
		defer g.running.Add(-1)

		logger := logrus.WithFields(logrus.Fields{
			"bot_id": g.botID,
			"task":   name,
		})

		var err error
		var catcher panics.Catcher
		catcher.Try(func() {
			err = task(g.ctx)
		})

		if recovered := catcher.Recovered(); recovered != nil {
			logger.WithError(recovered.AsError()).Error("task panicked")
			return
		}

		switch {
		case err == nil, errors.Is(err, context.Canceled):
			logger.Debug("task finished")
		default:
			logger.WithError(err).Error("task exited with error")
		}
	})
}

// start waits for every task in the background and runs onExit once they
// are all gone, before Done is closed.
func (g *TaskGroup) start(onExit func()) {
	g.started.Do(func() {
		go func() {
			g.wg.Wait()
			g.cancel()
			if onExit != nil {
				onExit()
			}
			close(g.done)
		}()
	})
}

func (g *TaskGroup) Cancel() {
	g.cancelled.Store(true)
	g.cancel()
}

func (g *TaskGroup) Cancelled() bool {
	return g.cancelled.Load()
}

func (g *TaskGroup) Done() <-chan struct{} {
	return g.done
}

func (g *TaskGroup) Finished() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Running is the number of tasks that have not returned yet.
func (g *TaskGroup) Running() int {
	return int(g.running.Load())
}
