package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/datasource"
	"github.com/krobus00/bot-service/internal/datasource/okx"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type connectorRun struct {
	exchange  entity.ExchangeName
	connector *datasource.Connector
	subs      []entity.Subscription
}

func (c connectorRun) run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"exchange":      c.exchange,
		"subscriptions": len(c.subs),
	}).Info("starting datasource connector")

	return c.connector.Run(ctx, c.subs)
}

func datasourceConfig(cfg *config.EnvConfig, url string) datasource.Config {
	return datasource.Config{
		URL:               url,
		PingInterval:      cfg.Datasource.PingInterval,
		PongTimeout:       cfg.Datasource.PongTimeout,
		HandshakeTimeout:  cfg.Datasource.HandshakeTimeout,
		ReconnectFactor:   cfg.Datasource.ReconnectFactor,
		ReconnectMinDelay: cfg.Datasource.ReconnectMinDelay,
		ReconnectMaxDelay: cfg.Datasource.ReconnectMaxDelay,
	}
}

// newConnectors opens one connector per exchange that has subscriptions.
func newConnectors(cfg *config.EnvConfig, publisher datasource.Publisher, subs map[entity.ExchangeName][]entity.Subscription) ([]connectorRun, error) {
	runs := make([]connectorRun, 0, len(subs))
	for exchange, list := range subs {
		if len(list) == 0 {
			continue
		}

		switch exchange {
		case entity.ExchangeOKX:
			exchangeCfg := cfg.Exchanges[string(exchange)]
			url := exchangeCfg.WSPublicURL
			if url == "" {
				url = okx.PublicURL
			}

			var credential *entity.Credential
			if exchangeCfg.WSCredential != "" {
				resolved, err := resolveCredential(cfg, exchangeCfg.WSCredential)
				if err != nil {
					return nil, err
				}
				credential = &resolved
			}

			connector := datasource.NewConnector(datasourceConfig(cfg, url), okx.NewProtocol(), okx.NewParserFactory(), publisher, credential)
			runs = append(runs, connectorRun{exchange: exchange, connector: connector, subs: list})
		default:
			return nil, fmt.Errorf("no datasource connector for exchange %s", exchange)
		}
	}

	return runs, nil
}

// logPublisher prints every response instead of fanning it out.
type logPublisher struct{}

func (logPublisher) Publish(resp entity.ResponseOfSub) int {
	logger := logrus.WithField("exchange", resp.Exchange())
	switch r := resp.(type) {
	case okx.TradesResponse:
		logger.WithFields(logrus.Fields{
			"inst_id":  r.InstID,
			"trade_id": r.TradeID,
			"price":    r.Price.String(),
			"size":     r.Size.String(),
			"side":     r.Side,
		}).Info("trade")
	case okx.CandleResponse:
		logger.WithFields(logrus.Fields{
			"inst_id":   r.InstID,
			"channel":   r.Channel,
			"close":     r.Close.String(),
			"confirmed": r.Confirmed,
		}).Info("candle")
	default:
		logger.Infof("%+v", resp)
	}

	return 0
}

// StartDatasource streams the given instruments and logs what arrives.
func StartDatasource(cfg *config.EnvConfig, instIDs, bars []string) {
	subs := make([]entity.Subscription, 0, len(instIDs)*(len(bars)+1))
	for _, instID := range instIDs {
		subs = append(subs, okx.Trades{InstID: instID})
		for _, bar := range bars {
			subs = append(subs, okx.Candle{InstID: instID, Bar: bar})
		}
	}
	if len(subs) == 0 {
		util.ContinueOrFatal(errors.New("at least one instrument is required"))
	}

	runs, err := newConnectors(cfg, logPublisher{}, map[entity.ExchangeName][]entity.Subscription{
		entity.ExchangeOKX: subs,
	})
	util.ContinueOrFatal(err)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		g.Go(func() error {
			return run.run(gctx)
		})
	}

	wait := gracefulShutdown(gctx, cfg.GracefulShutdownTimeout, []shutdownStep{
		{name: "datasource", op: func(_ context.Context) error {
			cancel()
			return g.Wait()
		}},
	})
	<-wait
}
