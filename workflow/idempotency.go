package workflow

import (
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/books_ledger/models"
	"gorm.io/gorm"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// a STARTED key older than this is taken over by the next delivery
const staleIdempotencyAfter = 5 * time.Minute

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// BeginIdempotency marks (charge, handler, message) STARTED. skip is true when the same
// message already succeeded.
func BeginIdempotency(tx *gorm.DB, chargeId, handlerName, messageId string) (skip bool, err error) {
	existing, err := findIdempotencyKey(tx, chargeId, handlerName, messageId)
	if err != nil {
		return false, err
	}
	if existing == nil {
		key := models.IdempotencyKey{
			ChargeId:    chargeId,
			HandlerName: handlerName,
			MessageId:   messageId,
			Status:      models.IdempotencyStatusStarted,
		}
		if err := tx.Create(&key).Error; err == nil {
			return false, nil
		} else if !isDuplicateKeyErr(err) {
			return false, err
		}
		// lost the insert race to another worker
		if existing, err = findIdempotencyKey(tx, chargeId, handlerName, messageId); err != nil {
			return false, err
		}
		if existing == nil {
			return false, ErrIdempotencyInProgress
		}
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		if time.Since(existing.UpdatedAt) < staleIdempotencyAfter {
			return false, ErrIdempotencyInProgress
		}
	}
	return false, tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
}

func findIdempotencyKey(tx *gorm.DB, chargeId, handlerName, messageId string) (*models.IdempotencyKey, error) {
	var existing models.IdempotencyKey
	err := tx.Where("charge_id = ? AND handler_name = ? AND message_id = ?", chargeId, handlerName, messageId).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func MarkIdempotencySucceeded(tx *gorm.DB, chargeId, handlerName, messageId string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("charge_id = ? AND handler_name = ? AND message_id = ?", chargeId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

func MarkIdempotencyFailed(tx *gorm.DB, chargeId, handlerName, messageId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("charge_id = ? AND handler_name = ? AND message_id = ?", chargeId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
