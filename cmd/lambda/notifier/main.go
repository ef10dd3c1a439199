package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/stock-ledger/internal/config"
	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/email"
	"github.com/example/stock-ledger/internal/infrastructure/streams"
	"github.com/example/stock-ledger/internal/logger"
	"github.com/example/stock-ledger/internal/notification"
	"go.uber.org/zap"
)

// Triggered by the products table stream (delivered through Kinesis), so
// quantity changes made by any writer raise low-stock alerts.

var (
	notificationHandler *notification.Handler
	monitor             stock.Monitor
	appLogger           *zap.Logger
)

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger, err = logger.New(logger.Config{Level: cfg.Logger.Level, Encoding: "json"})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	monitor = stock.NewMonitor(cfg.Stock.LowStockThreshold)
	emailSvc := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From)
	notificationHandler = notification.NewHandler(emailSvc, cfg.Notifier.Recipients, appLogger)

	appLogger.Info("lambda notifier initialized",
		zap.String("smtp_host", cfg.SMTP.Host),
		zap.Int("threshold", monitor.Threshold()),
	)
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	var batchItemFailures []events.KinesisBatchItemFailure

	for _, record := range kinesisEvent.Records {
		change, err := streams.ConvertFromKinesisRecord(record)
		if err != nil {
			appLogger.Error("failed to convert record", zap.String("event_id", record.EventID), zap.Error(err))
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			continue
		}

		// Not a quantity change
		if change == nil {
			continue
		}

		if err := notificationHandler.Handle(ctx, change.StockAdjusted(monitor)); err != nil {
			appLogger.Error("failed to process change",
				zap.String("event_id", record.EventID),
				zap.String("product_id", change.ProductID),
				zap.Error(err),
			)
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
		}
	}

	appLogger.Info("processed batch",
		zap.Int("records", len(kinesisEvent.Records)),
		zap.Int("failures", len(batchItemFailures)),
	)
	return events.KinesisEventResponse{BatchItemFailures: batchItemFailures}, nil
}

func main() {
	defer appLogger.Sync()
	lambda.Start(handler)
}
