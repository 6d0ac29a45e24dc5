package models

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrTaxCategoryNotFound = errors.New("tax category not found")

type TaxCategory struct {
	ID   string `gorm:"primaryKey;size:36" json:"id"`
	Name string `gorm:"size:255;uniqueIndex;not null" json:"name"`
}

// FinancialAccountTaxCategory maps a bank/card account and currency to the tax category
// its movements are booked against.
type FinancialAccountTaxCategory struct {
	FinancialAccountId string `gorm:"primaryKey;size:36" json:"financial_account_id"`
	Currency           string `gorm:"primaryKey;size:8" json:"currency"`
	TaxCategoryId      string `gorm:"size:36;not null" json:"tax_category_id"`
}

type TaxCategoryProvider struct {
	db *gorm.DB
}

func NewTaxCategoryProvider(db *gorm.DB) *TaxCategoryProvider {
	return &TaxCategoryProvider{db: db}
}

// ResolveTaxCategory accepts either a tax category id or its name.
func (p *TaxCategoryProvider) ResolveTaxCategory(ctx context.Context, nameOrId string) (string, error) {
	var tc TaxCategory
	err := p.db.WithContext(ctx).
		Where("id = ? OR name = ?", nameOrId, nameOrId).
		Order("id").
		First(&tc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", ErrTaxCategoryNotFound, nameOrId)
		}
		return "", err
	}
	return tc.ID, nil
}

func (p *TaxCategoryProvider) ResolveFinancialAccountTaxCategory(ctx context.Context, tx Transaction) (string, error) {
	var row FinancialAccountTaxCategory
	err := p.db.WithContext(ctx).
		Where("financial_account_id = ? AND currency = ?", tx.FinancialAccountId, tx.Currency).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: financial account %s (%s)", ErrTaxCategoryNotFound, tx.FinancialAccountId, tx.Currency)
		}
		return "", err
	}
	return row.TaxCategoryId, nil
}
