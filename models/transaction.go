package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is a single bank or card movement. Positive amounts are money in.
type Transaction struct {
	ID                   string          `gorm:"primaryKey;size:36" json:"id"`
	ChargeId             string          `gorm:"size:36;index;not null" json:"charge_id"`
	FinancialAccountId   string          `gorm:"size:36;not null" json:"financial_account_id"`
	BusinessId           *string         `gorm:"size:36" json:"business_id"`
	Amount               decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency             string          `gorm:"size:8" json:"currency"`
	EventDate            time.Time       `gorm:"not null" json:"event_date"`
	DebitDate            *time.Time      `json:"debit_date"`
	DebitTimestamp       *time.Time      `json:"debit_timestamp"`
	IsFee                bool            `gorm:"not null;default:false" json:"is_fee"`
	SourceReference      string          `gorm:"size:255" json:"source_reference"`
	SourceDescription    string          `gorm:"size:255" json:"source_description"`
	RelatedTransactionId *string         `gorm:"size:36" json:"related_transaction_id"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ConversionDate prefers the exact debit timestamp, then the debit date.
func (t Transaction) ConversionDate() time.Time {
	if t.DebitTimestamp != nil {
		return *t.DebitTimestamp
	}
	if t.DebitDate != nil {
		return *t.DebitDate
	}
	return t.EventDate
}

type TransactionProvider struct {
	db *gorm.DB
}

func NewTransactionProvider(db *gorm.DB) *TransactionProvider {
	return &TransactionProvider{db: db}
}

func (p *TransactionProvider) GetTransactionsForCharge(ctx context.Context, chargeId string) ([]Transaction, error) {
	var txs []Transaction
	err := p.db.WithContext(ctx).
		Where("charge_id = ?", chargeId).
		Order("event_date, id").
		Find(&txs).Error
	return txs, err
}
