// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for UpdateReceipt,
// which gives at-most-once handling of redelivered Telegram updates.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/forum-relay-bot/internal/domain"
)

// CreateUpdateReceipt inserts a receipt for updateID and returns ErrDuplicate
// if the update has been seen before.
func CreateUpdateReceipt(ctx context.Context, db *gorm.DB, updateID int64, ttl time.Duration) (*domain.UpdateReceipt, error) {
	now := time.Now().UTC()
	rec := &domain.UpdateReceipt{
		UpdateID:   updateID,
		ReceivedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeUpdateReceipts deletes receipts that expired at or before now and
// returns how many were removed.
func PurgeUpdateReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.UpdateReceipt{})
	return res.RowsAffected, res.Error
}
