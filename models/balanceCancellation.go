package models

import (
	"context"

	"gorm.io/gorm"
)

// BalanceCancellation is a manual instruction to zero a business balance within a charge.
type BalanceCancellation struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	ChargeId    string `gorm:"size:36;index;not null" json:"charge_id"`
	BusinessId  string `gorm:"size:36;not null" json:"business_id"`
	Description string `gorm:"size:255" json:"description"`
}

type BalanceCancellationProvider struct {
	db *gorm.DB
}

func NewBalanceCancellationProvider(db *gorm.DB) *BalanceCancellationProvider {
	return &BalanceCancellationProvider{db: db}
}

func (p *BalanceCancellationProvider) GetBalanceCancellations(ctx context.Context, chargeId string) ([]BalanceCancellation, error) {
	var rows []BalanceCancellation
	err := p.db.WithContext(ctx).Where("charge_id = ?", chargeId).Order("id").Find(&rows).Error
	return rows, err
}
