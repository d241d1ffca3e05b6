package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/eventbus"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

const (
	defaultLivenessTimeout = 15 * time.Second
	defaultPollInterval    = 500 * time.Millisecond
	defaultStopTimeout     = 10 * time.Second
	storeWriteTimeout      = 5 * time.Second
)

type ControlSource interface {
	Receive(ctx context.Context) (entity.BotControlEvent, error)
}

type CommandHandlerConfig struct {
	LivenessTimeout time.Duration
	PollInterval    time.Duration
	StopTimeout     time.Duration
}

// CommandHandler applies control commands to the bots of one process and
// records every lifecycle transition in the bot store.
type CommandHandler struct {
	registry *Registry
	store    entity.BotStore
	source   ControlSource
	cfg      CommandHandlerConfig

	mu       sync.Mutex
	tasks    map[string]*botRun
	watchers *conc.WaitGroup
}

type botRun struct {
	group  *TaskGroup
	exited chan struct{}
}

func NewCommandHandler(registry *Registry, store entity.BotStore, source ControlSource, cfg CommandHandlerConfig) *CommandHandler {
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = defaultLivenessTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}

	return &CommandHandler{
		registry: registry,
		store:    store,
		source:   source,
		cfg:      cfg,
		tasks:    make(map[string]*botRun),
		watchers: conc.NewWaitGroup(),
	}
}

// Run consumes control events until ctx ends or the source closes, then
// stops every running bot.
func (h *CommandHandler) Run(ctx context.Context) error {
	defer h.shutdown()

	logrus.WithField("bots", h.registry.Len()).Info("bot command handler started")
	for {
		event, err := h.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, eventbus.ErrQueueClosed) {
				return nil
			}
			return fmt.Errorf("receive bot control event: %w", err)
		}

		h.Handle(ctx, event)
	}
}

func (h *CommandHandler) Handle(ctx context.Context, event entity.BotControlEvent) {
	logger := logrus.WithFields(logrus.Fields{
		"command": event.Command.String(),
		"bot_id":  event.TargetBotID(),
	})

	if err := event.Validate(); err != nil {
		logger.WithError(err).Warn("ignoring bot control command")
		return
	}

	logger.Info("handling bot control command")

	switch event.Command {
	case entity.CommandStartBot:
		if err := h.StartBot(ctx, event.TargetBotID()); err != nil {
			logger.WithError(err).Error("failed to start bot")
		}
	case entity.CommandStopBot:
		h.StopBot(event.TargetBotID())
	case entity.CommandStartAll:
		h.StartAll(ctx)
	case entity.CommandStopAll:
		h.StopAll()
	}
}

func (h *CommandHandler) StartBot(ctx context.Context, botID string) error {
	b, ok := h.registry.Get(botID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}

	h.mu.Lock()
	prev := h.tasks[botID]
	h.mu.Unlock()

	if prev != nil {
		if !prev.group.Cancelled() && !prev.group.Finished() {
			logrus.WithField("bot_id", botID).Info("bot already running")
			return nil
		}

		// a stop is still in flight, let it record Stopped first
		select {
		case <-prev.exited:
		case <-time.After(h.cfg.StopTimeout):
			return fmt.Errorf("%w: %s", ErrBotStopping, botID)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h.record(b, entity.BotStatusCreated)

	group, err := b.Spawn(ctx)
	if err != nil {
		return err
	}

	run := &botRun{group: group, exited: make(chan struct{})}
	h.mu.Lock()
	h.tasks[botID] = run
	h.mu.Unlock()

	h.watchers.Go(func() {
		h.watchLiveness(ctx, b, group)
	})
	h.watchers.Go(func() {
		h.awaitExit(b, run)
	})

	return nil
}

func (h *CommandHandler) StartAll(ctx context.Context) {
	for _, b := range h.registry.All() {
		if err := h.StartBot(ctx, b.ID()); err != nil {
			logrus.WithField("bot_id", b.ID()).WithError(err).Error("failed to start bot")
		}
	}
}

// StopBot cancels the bot's task group. Stopping a bot that is not running
// is a no-op.
func (h *CommandHandler) StopBot(botID string) {
	h.mu.Lock()
	run, ok := h.tasks[botID]
	h.mu.Unlock()

	if !ok {
		logrus.WithField("bot_id", botID).Debug("bot is not running")
		return
	}

	run.group.Cancel()
}

func (h *CommandHandler) StopAll() {
	for _, run := range h.runs() {
		run.group.Cancel()
	}
}

func (h *CommandHandler) runs() []*botRun {
	h.mu.Lock()
	defer h.mu.Unlock()

	runs := make([]*botRun, 0, len(h.tasks))
	for _, run := range h.tasks {
		runs = append(runs, run)
	}

	return runs
}

// Running reports whether the bot has a live task group.
func (h *CommandHandler) Running(botID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	run, ok := h.tasks[botID]
	return ok && !run.group.Finished()
}

// Bots snapshots every registered bot with its current status.
func (h *CommandHandler) Bots() []entity.BotRecord {
	bots := h.registry.All()
	records := make([]entity.BotRecord, 0, len(bots))
	for _, b := range bots {
		records = append(records, entity.BotRecord{
			BotID:        b.ID(),
			StrategyName: b.StrategyName(),
			Status:       b.Status(),
		})
	}

	return records
}

// watchLiveness marks the bot Running once its task group is observed alive,
// giving up after the liveness timeout. Spawn registers every task before it
// returns, so a spawned group normally counts as alive on the first poll;
// the timeout covers a group that has no live task yet.
func (h *CommandHandler) watchLiveness(ctx context.Context, b *Bot, group *TaskGroup) {
	deadline := time.NewTimer(h.cfg.LivenessTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if h.markRunning(b, group) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-group.Done():
			return
		case <-deadline.C:
			logrus.WithFields(logrus.Fields{
				"bot_id":  b.ID(),
				"timeout": h.cfg.LivenessTimeout.String(),
			}).Warn("bot did not become alive in time")
			return
		case <-ticker.C:
		}
	}
}

func (h *CommandHandler) markRunning(b *Bot, group *TaskGroup) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	run, ok := h.tasks[b.ID()]
	if !ok || run.group != group || group.Finished() || group.Running() == 0 {
		return false
	}

	h.record(b, entity.BotStatusRunning)
	return true
}

func (h *CommandHandler) awaitExit(b *Bot, run *botRun) {
	defer close(run.exited)
	<-run.group.Done()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.tasks[b.ID()] == run {
		delete(h.tasks, b.ID())
	}
	h.record(b, entity.BotStatusStopped)
}

func (h *CommandHandler) record(b *Bot, status entity.BotStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	err := h.store.UpsertStatus(ctx, b.ID(), b.StrategyName(), status)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"bot_id": b.ID(),
			"status": status.String(),
		}).WithError(err).Error("failed to record bot status")
	}
}

func (h *CommandHandler) shutdown() {
	runs := h.runs()
	for _, run := range runs {
		run.group.Cancel()
	}

	timeout := time.After(h.cfg.StopTimeout)
	for _, run := range runs {
		select {
		case <-run.exited:
		case <-timeout:
			logrus.Warn("timed out waiting for bots to stop")
			return
		}
	}

	h.watchers.Wait()
	logrus.Info("bot command handler stopped")
}
