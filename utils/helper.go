package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/resto_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func UniqueSlice[T comparable](slice []T) []T {
	keys := make(map[T]bool)
	list := []T{}
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			list = append(list, entry)
		}
	}
	return list
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var def T
	if len(defaults) > 0 {
		def = defaults[0]
	}
	return def
}

func NilIfEmpty[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	return dec, nil
}

func ProcessValidationErrors(err error) map[string]string {
	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)
	for _, fieldError := range validationErrors {
		errorResponse[fieldError.Field()] = fieldError.Tag()
	}
	return errorResponse
}

// WithResourceLock obtains a redis advisory lock for the given resource key, runs fn,
// and releases the lock. Used to serialize ledger applies on one ingredient across
// instances; MySQL row ordering inside the transaction is the backstop.
func WithResourceLock(ctx context.Context, lockType string, resourceKey string, ttl time.Duration, fn func() error) error {
	locker := config.GetRedisLock()
	if locker == nil {
		// Redis not initialized (tests, tooling). Fall through to DB-level guarantees.
		return fn()
	}

	lockKey := fmt.Sprintf("%s:%s", lockType, resourceKey)
	backoff := redislock.LinearBackoff(100 * time.Millisecond)
	lock, err := locker.Obtain(ctx, lockKey, ttl, &redislock.Options{RetryStrategy: backoff})
	if err == redislock.ErrNotObtained {
		return fmt.Errorf("could not obtain lock %s", lockKey)
	} else if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	return fn()
}
