package models

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ledgerRecordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("books_ledger/ledger_records"))

// LedgerRecord is the stored form of a LedgerEntryProto.
type LedgerRecord struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	ChargeId string `gorm:"size:36;index;not null" json:"charge_id"`
	OwnerId  string `gorm:"size:36;not null" json:"owner_id"`
	Position int    `gorm:"not null" json:"position"`

	CreditEntity1              *string          `gorm:"size:36" json:"credit_entity1"`
	CreditEntity1IsTaxCategory bool             `json:"credit_entity1_is_tax_category"`
	CreditForeignAmount1       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"credit_foreign_amount1"`
	CreditLocalAmount1         decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"credit_local_amount1"`
	DebitEntity1               *string          `gorm:"size:36" json:"debit_entity1"`
	DebitEntity1IsTaxCategory  bool             `json:"debit_entity1_is_tax_category"`
	DebitForeignAmount1        *decimal.Decimal `gorm:"type:decimal(20,4)" json:"debit_foreign_amount1"`
	DebitLocalAmount1          decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"debit_local_amount1"`
	CreditEntity2              *string          `gorm:"size:36" json:"credit_entity2"`
	CreditEntity2IsTaxCategory bool             `json:"credit_entity2_is_tax_category"`
	CreditForeignAmount2       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"credit_foreign_amount2"`
	CreditLocalAmount2         decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"credit_local_amount2"`
	DebitEntity2               *string          `gorm:"size:36" json:"debit_entity2"`
	DebitEntity2IsTaxCategory  bool             `json:"debit_entity2_is_tax_category"`
	DebitForeignAmount2        *decimal.Decimal `gorm:"type:decimal(20,4)" json:"debit_foreign_amount2"`
	DebitLocalAmount2          decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"debit_local_amount2"`

	Currency               string           `gorm:"size:8;not null" json:"currency"`
	InvoiceDate            time.Time        `json:"invoice_date"`
	ValueDate              time.Time        `json:"value_date"`
	Description            string           `gorm:"type:text" json:"description"`
	Reference              string           `gorm:"size:255" json:"reference"`
	IsCreditorCounterparty bool             `json:"is_creditor_counterparty"`
	CurrencyRate           *decimal.Decimal `gorm:"type:decimal(20,8)" json:"currency_rate"`
	CreatedAt              time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// LedgerRecordId is derived from the charge, the entry content and how many identical
// entries precede it, so regenerating the same ledger yields the same ids.
func LedgerRecordId(chargeId string, entry LedgerEntryProto, occurrence int) string {
	name := chargeId + "\x00" + entry.CanonicalKey() + "\x00" + strconv.Itoa(occurrence)
	return uuid.NewSHA1(ledgerRecordNamespace, []byte(name)).String()
}

func splitAccount(acc *CounterAccount) (*string, bool) {
	if acc == nil {
		return nil, false
	}
	id := acc.Id
	return &id, acc.IsTaxCategory
}

func joinAccount(id *string, isTaxCategory bool) *CounterAccount {
	if id == nil {
		return nil
	}
	return &CounterAccount{Id: *id, IsTaxCategory: isTaxCategory}
}

func NewLedgerRecord(chargeId string, position, occurrence int, e LedgerEntryProto) LedgerRecord {
	r := LedgerRecord{
		ID:                     LedgerRecordId(chargeId, e, occurrence),
		ChargeId:               chargeId,
		OwnerId:                e.OwnerId,
		Position:               position,
		CreditForeignAmount1:   e.CreditAmount1,
		CreditLocalAmount1:     e.LocalCurrencyCreditAmount1,
		DebitForeignAmount1:    e.DebitAmount1,
		DebitLocalAmount1:      e.LocalCurrencyDebitAmount1,
		CreditForeignAmount2:   e.CreditAmount2,
		CreditLocalAmount2:     e.LocalCurrencyCreditAmount2,
		DebitForeignAmount2:    e.DebitAmount2,
		DebitLocalAmount2:      e.LocalCurrencyDebitAmount2,
		Currency:               e.Currency,
		InvoiceDate:            e.InvoiceDate,
		ValueDate:              e.ValueDate,
		Description:            e.Description,
		Reference:              e.Reference,
		IsCreditorCounterparty: e.IsCreditorCounterparty,
		CurrencyRate:           e.CurrencyRate,
	}
	r.CreditEntity1, r.CreditEntity1IsTaxCategory = splitAccount(e.CreditAccountID1)
	r.DebitEntity1, r.DebitEntity1IsTaxCategory = splitAccount(e.DebitAccountID1)
	r.CreditEntity2, r.CreditEntity2IsTaxCategory = splitAccount(e.CreditAccountID2)
	r.DebitEntity2, r.DebitEntity2IsTaxCategory = splitAccount(e.DebitAccountID2)
	return r
}

func (r LedgerRecord) ToProto() LedgerEntryProto {
	return LedgerEntryProto{
		ChargeId:                   r.ChargeId,
		OwnerId:                    r.OwnerId,
		CreditAccountID1:           joinAccount(r.CreditEntity1, r.CreditEntity1IsTaxCategory),
		CreditAmount1:              r.CreditForeignAmount1,
		LocalCurrencyCreditAmount1: r.CreditLocalAmount1,
		DebitAccountID1:            joinAccount(r.DebitEntity1, r.DebitEntity1IsTaxCategory),
		DebitAmount1:               r.DebitForeignAmount1,
		LocalCurrencyDebitAmount1:  r.DebitLocalAmount1,
		CreditAccountID2:           joinAccount(r.CreditEntity2, r.CreditEntity2IsTaxCategory),
		CreditAmount2:              r.CreditForeignAmount2,
		LocalCurrencyCreditAmount2: r.CreditLocalAmount2,
		DebitAccountID2:            joinAccount(r.DebitEntity2, r.DebitEntity2IsTaxCategory),
		DebitAmount2:               r.DebitForeignAmount2,
		LocalCurrencyDebitAmount2:  r.DebitLocalAmount2,
		Currency:                   r.Currency,
		InvoiceDate:                r.InvoiceDate,
		ValueDate:                  r.ValueDate,
		Description:                r.Description,
		Reference:                  r.Reference,
		IsCreditorCounterparty:     r.IsCreditorCounterparty,
		CurrencyRate:               r.CurrencyRate,
	}
}

type LedgerRecordStore struct {
	db *gorm.DB
}

func NewLedgerRecordStore(db *gorm.DB) *LedgerRecordStore {
	return &LedgerRecordStore{db: db}
}

// PersistLedgerRecords inserts records that are not stored yet and reports how many were new.
func (s *LedgerRecordStore) PersistLedgerRecords(ctx context.Context, chargeId string, records []LedgerEntryProto) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	seen := make(map[string]int, len(records))
	rows := make([]LedgerRecord, 0, len(records))
	for i, e := range records {
		key := e.CanonicalKey()
		rows = append(rows, NewLedgerRecord(chargeId, i, seen[key], e))
		seen[key]++
	}

	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected
		return nil
	})
	return inserted, err
}

func (s *LedgerRecordStore) GetLedgerRecordsByCharge(ctx context.Context, chargeId string) ([]LedgerRecord, error) {
	var rows []LedgerRecord
	err := s.db.WithContext(ctx).
		Where("charge_id = ?", chargeId).
		Order("position, id").
		Find(&rows).Error
	return rows, err
}
