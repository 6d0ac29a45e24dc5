package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DocumentKind string

const (
	DocumentKindInvoice        DocumentKind = "INVOICE"
	DocumentKindReceipt        DocumentKind = "RECEIPT"
	DocumentKindInvoiceReceipt DocumentKind = "INVOICE_RECEIPT"
	DocumentKindCreditInvoice  DocumentKind = "CREDIT_INVOICE"
	DocumentKindProforma       DocumentKind = "PROFORMA"
	DocumentKindUnprocessed    DocumentKind = "UNPROCESSED"
)

// IsInvoiceClass reports kinds that always produce ledger entries.
func (k DocumentKind) IsInvoiceClass() bool {
	switch k {
	case DocumentKindInvoice, DocumentKindInvoiceReceipt, DocumentKindCreditInvoice:
		return true
	case DocumentKindReceipt, DocumentKindProforma, DocumentKindUnprocessed:
		return false
	}
	return false
}

type Document struct {
	ID           string           `gorm:"primaryKey;size:36" json:"id"`
	ChargeId     string           `gorm:"size:36;index;not null" json:"charge_id"`
	Kind         DocumentKind     `gorm:"size:20;not null" json:"kind"`
	SerialNumber string           `gorm:"size:100" json:"serial_number"`
	Description  string           `gorm:"size:255" json:"description"`
	Date         *time.Time       `json:"date"`
	Amount       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	VatAmount    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"vat_amount"`
	Currency     string           `gorm:"size:8" json:"currency"`
	CreditorId   *string          `gorm:"size:36" json:"creditor_id"`
	DebtorId     *string          `gorm:"size:36" json:"debtor_id"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// Label is the human reference used in ledger descriptions and error messages.
func (d Document) Label() string {
	if d.SerialNumber != "" {
		return d.SerialNumber
	}
	return d.ID
}

type DocumentProvider struct {
	db *gorm.DB
}

func NewDocumentProvider(db *gorm.DB) *DocumentProvider {
	return &DocumentProvider{db: db}
}

func (p *DocumentProvider) GetDocumentsForCharge(ctx context.Context, chargeId string) ([]Document, error) {
	var docs []Document
	err := p.db.WithContext(ctx).
		Where("charge_id = ?", chargeId).
		Order("date, id").
		Find(&docs).Error
	return docs, err
}
