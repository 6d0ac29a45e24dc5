package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/books_ledger/config"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/mmdatafocus/books_ledger/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(ctx)

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			config.LogError(logger, "ledger-worker", "main", "AutoMigrate", nil, err)
			os.Exit(1)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	policy, err := config.LoadLedgerPolicy()
	if err != nil {
		config.LogError(logger, "ledger-worker", "main", "LoadLedgerPolicy", nil, err)
		os.Exit(1)
	}
	gen, err := workflow.NewLedgerGenerator(workflow.NewGormDependencies(db), policy, logger)
	if err != nil {
		config.LogError(logger, "ledger-worker", "main", "NewLedgerGenerator", nil, err)
		os.Exit(1)
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		config.LogError(logger, "ledger-worker", "main", "pubsub client", nil, err)
		os.Exit(1)
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		config.LogError(logger, "ledger-worker", "main", "CreateTopicIfNotExists", nil, err)
		os.Exit(1)
	}
	sub, err := config.CreateSubscriptionIfNotExists(ctx, client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		config.LogError(logger, "ledger-worker", "main", "CreateSubscriptionIfNotExists", nil, err)
		os.Exit(1)
	}
	sub.ReceiveSettings.MaxOutstandingMessages = intFromEnv("LEDGER_WORKER_CONCURRENCY", 10)

	callback := func(ctx context.Context, msg *pubsub.Message) {
		var m config.LedgerRequestMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			// poisoned payload: ack so it is not redelivered forever
			config.LogError(logger, "ledger-worker", "callback", "Unmarshal pubsub message", msg.Data, err)
			msg.Ack()
			return
		}
		if strings.TrimSpace(m.ChargeId) == "" {
			config.LogError(logger, "ledger-worker", "callback", "Invalid pubsub message (missing charge_id)", m, errors.New("charge_id required"))
			msg.Ack()
			return
		}
		if m.CorrelationId == "" {
			m.CorrelationId = msg.ID
		}
		fields := logrus.Fields{
			"field":          "LedgerWorker",
			"charge_id":      m.ChargeId,
			"message_id":     msg.ID,
			"correlation_id": m.CorrelationId,
		}

		if _, err := workflow.ProcessLedgerGenerationMessage(ctx, db, logger, gen, m); err != nil {
			if errors.Is(err, workflow.ErrIdempotencyInProgress) {
				logger.WithFields(fields).Info("ledger generation already in progress; redelivering later")
			} else {
				logger.WithFields(fields).Error("ledger generation failed: " + err.Error())
			}
			msg.Nack()
			return
		}
		msg.Ack()
	}

	logger.WithFields(logrus.Fields{"field": "LedgerWorker", "subscription": sub.ID()}).Info("ledger worker started")
	if err := sub.Receive(ctx, callback); err != nil && !errors.Is(err, context.Canceled) {
		config.LogError(logger, "ledger-worker", "main", "Failed to receive messages", nil, err)
		os.Exit(1)
	}
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
