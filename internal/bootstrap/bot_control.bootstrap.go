package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/eventbus"
	controltcp "github.com/krobus00/bot-service/internal/handler/botcontrol/tcp"
	"github.com/krobus00/bot-service/internal/infrastructure"
	"github.com/krobus00/bot-service/internal/util"
	"github.com/sirupsen/logrus"
)

const botControlTimeout = 10 * time.Second

// SendBotControl delivers one command to a running runtime, either over the
// tcp listener at addr or through the jetstream control stream.
func SendBotControl(cfg *config.EnvConfig, command, botID, addr, transport string) {
	parsed, err := entity.ParseCommand(command)
	util.ContinueOrFatal(err)

	event := entity.BotControlEvent{Command: parsed}
	if botID != "" {
		event.BotID = &botID
	}
	util.ContinueOrFatal(event.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), botControlTimeout)
	defer cancel()

	logger := logrus.WithFields(logrus.Fields{
		"command":   parsed.String(),
		"bot_id":    botID,
		"transport": transport,
	})

	switch transport {
	case config.TransportJetstream:
		nc, js, err := infrastructure.NewJetstream(cfg.NatsJetstream)
		util.ContinueOrFatal(err)
		defer func() {
			_ = infrastructure.CloseJetstream(nc)
		}()

		queue := eventbus.NewJetstreamControlQueue(js, 1, 0, cfg.NatsJetstream.MaxRetries)
		util.ContinueOrFatal(startStream(ctx, queue, false))
		util.ContinueOrFatal(queue.Publish(ctx, event))
		logger.Info("bot control command published")
	default:
		if addr == "" {
			addr = cfg.PortOf("bot_control", controltcp.DefaultAddr)
		}

		reply, err := controltcp.SendCommand(ctx, addr, event)
		util.ContinueOrFatal(err)
		if reply.Status != controltcp.StatusAccepted {
			util.ContinueOrFatal(fmt.Errorf("command rejected: %s", reply.Error))
		}
		logger.WithField("addr", addr).Info("bot control command accepted")
	}
}
