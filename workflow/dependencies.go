package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/books_ledger/middlewares"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/mmdatafocus/books_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionSource interface {
	GetTransactionsForCharge(ctx context.Context, chargeId string) ([]models.Transaction, error)
}

type DocumentSource interface {
	GetDocumentsForCharge(ctx context.Context, chargeId string) ([]models.Document, error)
}

// ExchangeRateSource returns how many target units one unit of currency bought on date.
// A missing rate must wrap models.ErrExchangeRateNotFound.
type ExchangeRateSource interface {
	GetExchangeRate(ctx context.Context, currency, target string, date time.Time) (decimal.Decimal, error)
}

// TaxCategoryResolver lookups that find nothing must wrap models.ErrTaxCategoryNotFound.
type TaxCategoryResolver interface {
	ResolveTaxCategory(ctx context.Context, nameOrId string) (string, error)
	ResolveFinancialAccountTaxCategory(ctx context.Context, tx models.Transaction) (string, error)
}

type BusinessSource interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
}

type UnbalancedBusinessSource interface {
	GetUnbalancedBusinessAllowList(ctx context.Context, chargeId string) (map[string]struct{}, error)
}

type BalanceCancellationSource interface {
	GetBalanceCancellations(ctx context.Context, chargeId string) ([]models.BalanceCancellation, error)
}

type MiscExpenseSource interface {
	GetMiscExpensesForCharge(ctx context.Context, chargeId string) ([]models.MiscExpense, error)
}

type SalarySource interface {
	GetSalariesForCharge(ctx context.Context, chargeId string) ([]models.Salary, error)
}

type BusinessTripSource interface {
	GetBusinessTripByCharge(ctx context.Context, chargeId string) (*models.BusinessTrip, error)
}

type LedgerRecordPersister interface {
	PersistLedgerRecords(ctx context.Context, chargeId string, records []models.LedgerEntryProto) (int64, error)
}

// Dependencies are the capabilities the engine consumes. Transactions, Documents,
// ExchangeRates and TaxCategories are mandatory; a nil optional source behaves as empty.
type Dependencies struct {
	Transactions         TransactionSource
	Documents            DocumentSource
	ExchangeRates        ExchangeRateSource
	TaxCategories        TaxCategoryResolver
	Businesses           BusinessSource
	UnbalancedBusinesses UnbalancedBusinessSource
	BalanceCancellations BalanceCancellationSource
	MiscExpenses         MiscExpenseSource
	Salaries             SalarySource
	BusinessTrips        BusinessTripSource
	Store                LedgerRecordPersister
}

func (d Dependencies) validate() error {
	if d.Transactions == nil || d.Documents == nil || d.ExchangeRates == nil || d.TaxCategories == nil {
		return errors.New("ledger generator requires transaction, document, exchange rate and tax category sources")
	}
	return nil
}

// NewGormDependencies wires the gorm providers. Exchange rates and businesses go through
// the dataloaders when the generation context carries them.
func NewGormDependencies(db *gorm.DB) Dependencies {
	return Dependencies{
		Transactions:         models.NewTransactionProvider(db),
		Documents:            models.NewDocumentProvider(db),
		ExchangeRates:        middlewares.ExchangeRates{Fallback: models.NewExchangeRateProvider(db)},
		TaxCategories:        models.NewTaxCategoryProvider(db),
		Businesses:           middlewares.Businesses{Fallback: models.NewBusinessProvider(db)},
		UnbalancedBusinesses: models.NewUnbalancedBusinessProvider(db),
		BalanceCancellations: models.NewBalanceCancellationProvider(db),
		MiscExpenses:         models.NewMiscExpenseProvider(db),
		Salaries:             models.NewSalaryProvider(db),
		BusinessTrips:        models.NewBusinessTripProvider(db),
		Store:                models.NewLedgerRecordStore(db),
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, utils.ErrorRecordNotFound) ||
		errors.Is(err, models.ErrTaxCategoryNotFound) ||
		errors.Is(err, models.ErrExchangeRateNotFound)
}
