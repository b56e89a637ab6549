package app

import (
	"context"
	"errors"
	"net"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/notify"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

// RunNotifier читает события заказов из Kafka и рассылает письма через SendGrid.
// Сообщения, которые не удалось обработать, уходят в DLQ.
func RunNotifier(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "notifier")

	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("kafka brokers are required for notifier")
	}
	mailer, err := notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.NotifyFrom)
	if err != nil {
		return err
	}

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		return err
	}
	defer closeKafka(producer, logger)

	handler := notify.NewNotifier(mailer, logger.WithField("layer", "mailer"))
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, []string{cfg.KafkaTopic}, handler.HandleMessage,
		kafka.WithDeadLetterQueue(producer, cfg.KafkaDLQTopic),
		kafka.WithConsumerLogger(logger.WithField("layer", "consumer")),
	)
	if err != nil {
		return err
	}

	healthHandler := healthcheck.NewHandler(version.Current().Version)
	metricsSrv := newMetricsServer(cfg.MetricsAddr, healthHandler)
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = consumer.Stop()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gctx)
	})
	g.Go(func() error {
		return serveHTTP(metricsSrv, metricsLis)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownHTTP(metricsSrv, logger)
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop consumer")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
