package entity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCommand = errors.New("invalid bot control command")
	ErrMissingBotID   = errors.New("bot id is required")
)

type BotStatus int

const (
	BotStatusCreated BotStatus = 0
	BotStatusRunning BotStatus = 1
	BotStatusStopped BotStatus = 2
)

func (s BotStatus) String() string {
	switch s {
	case BotStatusCreated:
		return "created"
	case BotStatusRunning:
		return "running"
	case BotStatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Command int

const (
	CommandStartBot Command = 1
	CommandStopBot  Command = 2
	CommandStartAll Command = 3
	CommandStopAll  Command = 4
)

func (c Command) Valid() bool {
	return c >= CommandStartBot && c <= CommandStopAll
}

func (c Command) RequiresBotID() bool {
	return c == CommandStartBot || c == CommandStopBot
}

func (c Command) String() string {
	switch c {
	case CommandStartBot:
		return "start_bot"
	case CommandStopBot:
		return "stop_bot"
	case CommandStartAll:
		return "start_all"
	case CommandStopAll:
		return "stop_all"
	default:
		return "unknown"
	}
}

// ParseCommand accepts the names printed by Command.String.
func ParseCommand(name string) (Command, error) {
	for c := CommandStartBot; c <= CommandStopAll; c++ {
		if c.String() == name {
			return c, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrInvalidCommand, name)
}

type BotControlEvent struct {
	Command Command `json:"command"`
	BotID   *string `json:"bot_id"`
}

func (e BotControlEvent) TargetBotID() string {
	if e.BotID == nil {
		return ""
	}

	return *e.BotID
}

func (e BotControlEvent) Validate() error {
	if !e.Command.Valid() {
		return ErrInvalidCommand
	}
	if e.Command.RequiresBotID() && e.TargetBotID() == "" {
		return ErrMissingBotID
	}

	return nil
}

type BotRecord struct {
	BotID        string    `json:"bot_id"`
	StrategyName string    `json:"strategy_name"`
	Status       BotStatus `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type BotStore interface {
	UpsertStatus(ctx context.Context, botID, strategyName string, status BotStatus) error
	List(ctx context.Context) ([]BotRecord, error)
}
