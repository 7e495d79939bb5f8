package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

// GetMeta returns the value stored under key. ok is false when the key is unset.
func GetMeta(ctx context.Context, db *gorm.DB, key string) (string, bool, error) {
	var m domain.BotMeta
	err := db.WithContext(ctx).Where("key = ?", key).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return m.Value, true, nil
}

// SetMeta stores value under key, replacing any previous value.
func SetMeta(ctx context.Context, db *gorm.DB, key, value string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&domain.BotMeta{Key: key, Value: value}).Error
}
