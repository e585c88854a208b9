package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"bitbucket.org/mmdatafocus/resto_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a MySQL unique-constraint violation
// (error 1062). The unique indexes on pos_sales and idempotency_keys turn
// concurrent duplicate delivery into this error instead of a second row.
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// RunIdempotent executes fn at most once per (businessId, handlerName, messageId).
// A prior SUCCEEDED run skips fn and returns executed=false; STARTED or FAILED
// rows are treated as retryable (crashed or failed worker) and fn runs again.
// Used by the Pub/Sub push path, where at-least-once delivery is the norm.
func RunIdempotent(ctx context.Context, businessId string, handlerName string, messageId string, fn func() error) (executed bool, err error) {
	db := config.GetDB()

	key := models.IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	createErr := db.WithContext(ctx).Create(&key).Error
	if createErr != nil {
		if !IsDuplicateKeyErr(createErr) {
			return false, createErr
		}
		err = db.WithContext(ctx).
			Where("business_id = ? AND handler_name = ? AND message_id = ?", businessId, handlerName, messageId).
			Take(&key).Error
		if err != nil {
			return false, err
		}
		if key.Status == models.IdempotencyStatusSucceeded {
			return false, nil
		}
		// Crashed or failed earlier run: reclaim it.
		err = db.WithContext(ctx).Model(&key).Updates(map[string]interface{}{
			"Status":    models.IdempotencyStatusStarted,
			"LastError": nil,
		}).Error
		if err != nil {
			return false, err
		}
	}

	if runErr := fn(); runErr != nil {
		msg := runErr.Error()
		_ = db.WithContext(ctx).Model(&key).Updates(map[string]interface{}{
			"Status":    models.IdempotencyStatusFailed,
			"LastError": &msg,
		}).Error
		return true, runErr
	}

	err = db.WithContext(ctx).Model(&key).Updates(map[string]interface{}{
		"Status":    models.IdempotencyStatusSucceeded,
		"LastError": nil,
	}).Error
	return true, err
}
