package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Business{}, &Charge{}, &Transaction{}, &Document{},
		&TaxCategory{}, &FinancialAccountTaxCategory{}, &CurrencyExchange{},
		&ChargeUnbalancedBusiness{}, &BalanceCancellation{}, &MiscExpense{},
		&Salary{},
		&BusinessTrip{}, &BusinessTripAttendee{}, &BusinessTripExpense{},
		&LedgerRecord{},
		&IdempotencyKey{},
	)
}
