package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/books_ledger/utils"
	"gorm.io/gorm"
)

type ChargeKind string

const (
	ChargeKindCommon       ChargeKind = "COMMON"
	ChargeKindSalary       ChargeKind = "SALARY"
	ChargeKindBusinessTrip ChargeKind = "BUSINESS_TRIP"
)

func (k ChargeKind) IsValid() bool {
	switch k {
	case ChargeKindCommon, ChargeKindSalary, ChargeKindBusinessTrip:
		return true
	}
	return false
}

// Charge groups the transactions and documents of one bookkeeping event.
type Charge struct {
	ID                         string     `gorm:"primaryKey;size:36" json:"id" validate:"required"`
	OwnerId                    string     `gorm:"size:36;index;not null" json:"owner_id" validate:"required"`
	BusinessId                 *string    `gorm:"size:36;index" json:"business_id"`
	TaxCategoryId              *string    `gorm:"size:36" json:"tax_category_id"`
	Kind                       ChargeKind `gorm:"size:20;not null;default:COMMON" json:"kind" validate:"required,oneof=COMMON SALARY BUSINESS_TRIP"`
	IsProperty                 bool       `gorm:"not null;default:false" json:"is_property"`
	CanSettleWithReceipt       bool       `gorm:"not null;default:false" json:"can_settle_with_receipt"`
	NoInvoicesRequired         bool       `gorm:"not null;default:false" json:"no_invoices_required"`
	InvoicePaymentCurrencyDiff bool       `gorm:"not null;default:false" json:"invoice_payment_currency_diff"`
	Description                string     `gorm:"size:255" json:"description"`

	TransactionsCount int `gorm:"-" json:"transactions_count"`
	InvoicesCount     int `gorm:"-" json:"invoices_count"`
	ReceiptsCount     int `gorm:"-" json:"receipts_count"`
}

type ChargeProvider struct {
	db *gorm.DB
}

func NewChargeProvider(db *gorm.DB) *ChargeProvider {
	return &ChargeProvider{db: db}
}

// GetCharge loads a charge with its aggregate counts filled in.
func (p *ChargeProvider) GetCharge(ctx context.Context, id string) (*Charge, error) {
	var charge Charge
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&charge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("charge %s: %w", id, utils.ErrorRecordNotFound)
		}
		return nil, err
	}

	var txCount int64
	if err := p.db.WithContext(ctx).Model(&Transaction{}).Where("charge_id = ?", id).Count(&txCount).Error; err != nil {
		return nil, err
	}
	charge.TransactionsCount = int(txCount)

	type kindCount struct {
		Kind  DocumentKind
		Total int
	}
	var counts []kindCount
	if err := p.db.WithContext(ctx).Model(&Document{}).
		Select("kind, COUNT(*) AS total").
		Where("charge_id = ?", id).
		Group("kind").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		switch c.Kind {
		case DocumentKindReceipt:
			charge.ReceiptsCount += c.Total
		case DocumentKindInvoice, DocumentKindInvoiceReceipt, DocumentKindCreditInvoice:
			charge.InvoicesCount += c.Total
		}
	}
	return &charge, nil
}
