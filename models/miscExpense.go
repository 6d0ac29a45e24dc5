package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MiscExpense is an itemized amount moved between two parties on top of a transaction.
type MiscExpense struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	ChargeId      string          `gorm:"size:36;index;not null" json:"charge_id"`
	TransactionId string          `gorm:"size:36;not null" json:"transaction_id"`
	CreditorId    string          `gorm:"size:36;not null" json:"creditor_id"`
	DebtorId      string          `gorm:"size:36;not null" json:"debtor_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency      string          `gorm:"size:8;not null" json:"currency"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	ValueDate     time.Time       `json:"value_date"`
	Description   string          `gorm:"size:255" json:"description"`
}

type MiscExpenseProvider struct {
	db *gorm.DB
}

func NewMiscExpenseProvider(db *gorm.DB) *MiscExpenseProvider {
	return &MiscExpenseProvider{db: db}
}

func (p *MiscExpenseProvider) GetMiscExpensesForCharge(ctx context.Context, chargeId string) ([]MiscExpense, error) {
	var rows []MiscExpense
	err := p.db.WithContext(ctx).Where("charge_id = ?", chargeId).Order("value_date, id").Find(&rows).Error
	return rows, err
}
