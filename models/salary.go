package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Salary is one employee's payroll record for a month. Amounts are in local currency.
type Salary struct {
	ID                   string          `gorm:"primaryKey;size:36" json:"id"`
	ChargeId             string          `gorm:"size:36;index;not null" json:"charge_id"`
	Month                string          `gorm:"size:7;not null" json:"month"`
	EmployeeId           string          `gorm:"size:36;not null" json:"employee_id"`
	PensionFundId        *string         `gorm:"size:36" json:"pension_fund_id"`
	TrainingFundId       *string         `gorm:"size:36" json:"training_fund_id"`
	NetAmount            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"net_amount"`
	PensionAmount        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"pension_amount"`
	TrainingFundAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"training_fund_amount"`
	SocialSecurityAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"social_security_amount"`
	IncomeTaxAmount      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"income_tax_amount"`
}

// MonthEnd is the last day of the payroll month, the date salary entries are booked on.
func (s Salary) MonthEnd() (time.Time, error) {
	start, err := time.Parse("2006-01", s.Month)
	if err != nil {
		return time.Time{}, fmt.Errorf("salary %s: invalid month %q", s.ID, s.Month)
	}
	return start.AddDate(0, 1, -1), nil
}

type SalaryProvider struct {
	db *gorm.DB
}

func NewSalaryProvider(db *gorm.DB) *SalaryProvider {
	return &SalaryProvider{db: db}
}

func (p *SalaryProvider) GetSalariesForCharge(ctx context.Context, chargeId string) ([]Salary, error) {
	var rows []Salary
	err := p.db.WithContext(ctx).Where("charge_id = ?", chargeId).Order("employee_id, id").Find(&rows).Error
	return rows, err
}
