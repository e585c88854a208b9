package utils

import (
	"context"
	"errors"
	"reflect"

	"bitbucket.org/mmdatafocus/resto_backend/config"
)

// check if id exists, using ctx's business_id in WHERE, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, businessId string, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, businessId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// check if ALL ids exist, using ctx's business_id in WHERE, return RecordNotFound error
func ValidateResourcesId[M any, ID comparable](ctx context.Context, businessId string, ids []ID) error {
	unqIds := UniqueSlice(ids)

	count, err := ResourceCountWhere[M](ctx, businessId, "id IN ?", unqIds)
	if err != nil {
		return err
	}
	if count != int64(len(unqIds)) {
		return ErrorRecordNotFound
	}
	return nil
}

func ValidateUnique[T any](ctx context.Context, businessId string, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, businessId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, businessId, column+" = ? AND NOT id = ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

func ResourceCountWhere[T any](ctx context.Context, businessId string, cond string, values ...interface{}) (int64, error) {
	db := config.GetDB()
	var model T
	var count int64
	err := db.WithContext(ctx).Model(&model).
		Where("business_id = ?", businessId).
		Where(cond, values...).
		Count(&count).Error
	return count, err
}
