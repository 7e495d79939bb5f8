package domain

import "time"

// UpdateReceipt records that a Telegram update has already been claimed for
// processing. Telegram redelivers webhook updates that were not acknowledged
// in time; the unique UpdateID lets the dispatcher drop those repeats.
type UpdateReceipt struct {
	UpdateID   int64     `gorm:"primaryKey;autoIncrement:false"`
	ReceivedAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (UpdateReceipt) TableName() string { return "update_receipts" }
