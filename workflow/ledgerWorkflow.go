package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/books_ledger/config"
	"github.com/mmdatafocus/books_ledger/middlewares"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/mmdatafocus/books_ledger/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	ledgerHandlerName = "GenerateLedgerRecords"
	ledgerLockTTL     = 2 * time.Minute
)

// ProcessLedgerGenerationMessage handles one generation request from the queue. A nil
// error means the message can be acked: it either succeeded, was a duplicate, or can
// never succeed (unknown charge). Errors ask for redelivery.
func ProcessLedgerGenerationMessage(ctx context.Context, db *gorm.DB, logger *logrus.Logger, gen *LedgerGenerator, msg config.LedgerRequestMessage) (*GeneratedLedgerResult, error) {
	if msg.ChargeId == "" {
		return nil, errors.New("ledger request without charge id")
	}
	if msg.CorrelationId == "" {
		msg.CorrelationId = fmt.Sprintf("%s@%d", msg.ChargeId, msg.RequestedAt.UnixNano())
	}
	ctx = utils.SetChargeIdInContext(ctx, msg.ChargeId)
	ctx = utils.SetOwnerIdInContext(ctx, msg.OwnerId)
	ctx = utils.SetCorrelationIdInContext(ctx, msg.CorrelationId)
	ctx = utils.SetUserNameInContext(ctx, "System")
	ctx = middlewares.WithLoaders(ctx, db)
	fields := logrus.Fields{
		"field":          "LedgerWorkflow",
		"charge_id":      msg.ChargeId,
		"correlation_id": msg.CorrelationId,
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "ledger:"+msg.ChargeId, ledgerLockTTL, nil)
		switch {
		case errors.Is(err, redislock.ErrNotObtained):
			return nil, ErrIdempotencyInProgress
		case err != nil:
			logger.WithFields(fields).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		default:
			defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
		}
	}

	tx := db.WithContext(ctx)
	skip, err := BeginIdempotency(tx, msg.ChargeId, ledgerHandlerName, msg.CorrelationId)
	if err != nil {
		return nil, err
	}
	if skip {
		logger.WithFields(fields).Info("duplicate ledger request skipped")
		return nil, nil
	}

	charge, err := models.NewChargeProvider(db).GetCharge(ctx, msg.ChargeId)
	if err != nil {
		_ = MarkIdempotencyFailed(tx, msg.ChargeId, ledgerHandlerName, msg.CorrelationId, err)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			publishLedgerResult(ctx, logger, fields, config.LedgerResultMessage{ChargeId: msg.ChargeId, CorrelationId: msg.CorrelationId, Failure: err.Error()})
			return nil, nil
		}
		return nil, err
	}

	result, err := gen.GenerateLedgerRecords(ctx, charge, Options{InsertIfNotExists: msg.Insert})
	if err != nil {
		_ = MarkIdempotencyFailed(tx, msg.ChargeId, ledgerHandlerName, msg.CorrelationId, err)
		publishLedgerResult(ctx, logger, fields, config.LedgerResultMessage{ChargeId: msg.ChargeId, CorrelationId: msg.CorrelationId, Failure: err.Error()})
		return nil, err
	}
	if err := MarkIdempotencySucceeded(tx, msg.ChargeId, ledgerHandlerName, msg.CorrelationId); err != nil {
		return nil, err
	}
	publishLedgerResult(ctx, logger, fields, config.LedgerResultMessage{
		ChargeId:      msg.ChargeId,
		CorrelationId: msg.CorrelationId,
		Records:       len(result.Records),
		IsBalanced:    result.Balance.IsBalanced,
		Errors:        result.Errors,
	})
	return result, nil
}

func publishLedgerResult(ctx context.Context, logger *logrus.Logger, fields logrus.Fields, msg config.LedgerResultMessage) {
	if err := config.PublishLedgerResult(ctx, msg); err != nil {
		logger.WithFields(fields).Warn("publishing ledger result failed: " + err.Error())
	}
}
