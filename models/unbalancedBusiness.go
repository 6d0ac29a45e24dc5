package models

import (
	"context"

	"gorm.io/gorm"
)

// ChargeUnbalancedBusiness marks a business that may stay unbalanced within a charge.
type ChargeUnbalancedBusiness struct {
	ChargeId   string `gorm:"primaryKey;size:36" json:"charge_id"`
	BusinessId string `gorm:"primaryKey;size:36" json:"business_id"`
	Remark     string `gorm:"size:255" json:"remark"`
}

type UnbalancedBusinessProvider struct {
	db *gorm.DB
}

func NewUnbalancedBusinessProvider(db *gorm.DB) *UnbalancedBusinessProvider {
	return &UnbalancedBusinessProvider{db: db}
}

func (p *UnbalancedBusinessProvider) GetUnbalancedBusinessAllowList(ctx context.Context, chargeId string) (map[string]struct{}, error) {
	var ids []string
	if err := p.db.WithContext(ctx).Model(&ChargeUnbalancedBusiness{}).
		Where("charge_id = ?", chargeId).
		Pluck("business_id", &ids).Error; err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return allowed, nil
}
