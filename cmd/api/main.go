package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/stock-ledger/internal/api"
	"github.com/example/stock-ledger/internal/auth"
	"github.com/example/stock-ledger/internal/config"
	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/domain/user"
	"github.com/example/stock-ledger/internal/infrastructure/cache"
	"github.com/example/stock-ledger/internal/infrastructure/kafka"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/inventory"
	"github.com/example/stock-ledger/internal/logger"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// 2. Logger
	appLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Development: cfg.Server.AppEnv == "dev",
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer appLogger.Sync()

	// 3. Stores
	products, users, closeStores := openStores(ctx, cfg, appLogger)
	defer closeStores()

	// 4. Stock ledger
	ledgerOpts := []stock.Option{
		stock.WithMaxAttempts(cfg.Stock.MaxAttempts),
		stock.WithBackoff(cfg.Stock.RetryBackoff),
		stock.WithLogger(appLogger),
	}
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		ledgerOpts = append(ledgerOpts, stock.WithIdempotency(cache.NewRedisIdempotency(rdb, cfg.Stock.RequestIDTTL)))
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		ledgerOpts = append(ledgerOpts, stock.WithIdempotency(stock.NewMemoryIdempotency(cfg.Stock.RequestIDTTL)))
	}
	ledger := stock.NewLedger(products, ledgerOpts...)
	monitor := stock.NewMonitor(cfg.Stock.LowStockThreshold)

	// 5. Stock event log
	var publisher inventory.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
		appLogger.Info("Kafka producer ready", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		appLogger.Warn("KAFKA_BROKERS not set, stock events are not published")
	}

	// 6. Services and HTTP
	inventorySvc := inventory.NewService(products, ledger, monitor, publisher, appLogger)
	userSvc := user.NewService(users)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenExpiry)

	router := api.NewRouter(
		api.NewHandlers(inventorySvc, appLogger),
		api.NewAuthHandlers(userSvc, jwtService, appLogger),
		jwtService,
		appLogger,
	)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Starting HTTP server",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.String("store", cfg.Store.Driver),
			zap.Int("low_stock_threshold", monitor.Threshold()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	appLogger.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// openStores selects the product and user stores for STORE_DRIVER. With the
// dynamodb driver, products live in DynamoDB and users stay in SQL.
func openStores(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (store.ProductStore, user.Store, func()) {
	if cfg.Store.Driver == "memory" {
		appLogger.Warn("Using in-memory stores, data is lost on restart")
		return store.NewMemoryProductStore(), store.NewMemoryUserStore(), func() {}
	}

	db := connectSQL(ctx, cfg, appLogger)
	users := store.NewSQLUserStore(db)
	closeDB := func() { db.Close() }

	if cfg.Store.Driver == "dynamodb" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Dynamo.Region))
		if err != nil {
			appLogger.Fatal("Could not load AWS config", zap.Error(err))
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.Dynamo.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Dynamo.Endpoint)
			}
		})
		appLogger.Info("Using DynamoDB product store", zap.String("table", cfg.Dynamo.Table))
		return store.NewDynamoProductStore(client, cfg.Dynamo.Table), users, closeDB
	}

	return store.NewSQLProductStore(db), users, closeDB
}

func connectSQL(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) *sqlx.DB {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := store.Connect(connectCtx, store.SQLConfig{
		Driver:          cfg.SQL.Driver,
		DSN:             cfg.SQL.DSN,
		MaxOpenConns:    cfg.SQL.MaxOpenConns,
		MaxIdleConns:    cfg.SQL.MaxIdleConns,
		ConnMaxLifetime: cfg.SQL.ConnMaxLifetime,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.String("driver", cfg.SQL.Driver), zap.Error(err))
	}
	if err := store.Migrate(connectCtx, db); err != nil {
		appLogger.Fatal("Could not migrate database", zap.Error(err))
	}
	appLogger.Info("Connected to database", zap.String("driver", cfg.SQL.Driver))
	return db
}
