package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/books_ledger/utils"
	"gorm.io/gorm"
)

type Business struct {
	ID                   string `gorm:"primaryKey;size:36" json:"id"`
	Name                 string `gorm:"size:255;not null" json:"name"`
	Country              string `gorm:"size:2" json:"country"`
	NoInvoicesRequired   bool   `gorm:"not null;default:false" json:"no_invoices_required"`
	CanSettleWithReceipt bool   `gorm:"not null;default:false" json:"can_settle_with_receipt"`
}

type BusinessProvider struct {
	db *gorm.DB
}

func NewBusinessProvider(db *gorm.DB) *BusinessProvider {
	return &BusinessProvider{db: db}
}

func (p *BusinessProvider) GetBusiness(ctx context.Context, id string) (*Business, error) {
	var b Business
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("business %s: %w", id, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	return &b, nil
}

// GetBusinesses returns the businesses found among ids, keyed by id.
func (p *BusinessProvider) GetBusinesses(ctx context.Context, ids []string) (map[string]*Business, error) {
	var rows []Business
	if err := p.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*Business, len(rows))
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}
