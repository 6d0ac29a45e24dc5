package workflow

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/books_ledger/config"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/mmdatafocus/books_ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testOwner    = "owner"
	testAccount  = "bank"
	tcBank       = "tc-bank"
	tcExpense    = "tc-expense"
	tcFee        = "tc-fee"
	tcFx         = "tc-fx"
	tcIncomeFx   = "tc-income-fx"
	tcInputVat   = "tc-input-vat"
	tcPropVat    = "tc-property-vat"
	tcOutputVat  = "tc-output-vat"
	tcCancel     = "tc-cancel"
	tcSalary     = "tc-salary"
	tcPension    = "tc-pension"
	tcTrip       = "tc-trip"
	tcTripTaxed  = "tc-trip-taxable"
	bizBatchEmp  = "batched-employees"
	bizBatchFund = "batched-funds"
)

func testPolicy() config.LedgerPolicy {
	p := config.DefaultLedgerPolicy()
	p.TaxCategories = config.SystemTaxCategories{
		Fee:                   tcFee,
		ExchangeRate:          tcFx,
		IncomeExchangeRate:    tcIncomeFx,
		InputVat:              tcInputVat,
		PropertyInputVat:      tcPropVat,
		OutputVat:             tcOutputVat,
		BalanceCancellation:   tcCancel,
		SalaryExpense:         tcSalary,
		PensionExpense:        tcPension,
		TrainingFundExpense:   "tc-training",
		SocialSecurityExpense: "tc-social",
		IncomeTaxExpense:      "tc-income-tax",
		BusinessTrip:          tcTrip,
		BusinessTripTaxable:   tcTripTaxed,
	}
	p.Businesses = config.SystemBusinesses{
		BatchedEmployees: bizBatchEmp,
		BatchedFunds:     bizBatchFund,
		SocialSecurity:   "social-security",
		TaxAuthority:     "tax-authority",
	}
	return p
}

// fakeLedger serves every source the engine reads from memory.
type fakeLedger struct {
	mu sync.Mutex

	transactions  []models.Transaction
	documents     []models.Document
	rates         map[string]decimal.Decimal
	taxCategories map[string]string
	accounts      map[string]string
	businesses    map[string]*models.Business
	allowList     map[string]struct{}
	cancellations []models.BalanceCancellation
	misc          []models.MiscExpense
	salaries      []models.Salary
	trip          *models.BusinessTrip
	stored        map[string]models.LedgerEntryProto

	transactionsErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		rates:         map[string]decimal.Decimal{},
		taxCategories: map[string]string{tcExpense: tcExpense},
		accounts:      map[string]string{testAccount: tcBank},
		businesses:    map[string]*models.Business{},
		stored:        map[string]models.LedgerEntryProto{},
	}
}

func rateKey(currency, target, date string) string {
	return currency + "/" + target + "/" + date
}

func (f *fakeLedger) setRate(currency, target, date, rate string) {
	f.rates[rateKey(currency, target, date)] = dec(rate)
}

func (f *fakeLedger) GetTransactionsForCharge(ctx context.Context, chargeId string) ([]models.Transaction, error) {
	return f.transactions, f.transactionsErr
}

func (f *fakeLedger) GetDocumentsForCharge(ctx context.Context, chargeId string) ([]models.Document, error) {
	return f.documents, nil
}

func (f *fakeLedger) GetExchangeRate(ctx context.Context, currency, target string, date time.Time) (decimal.Decimal, error) {
	r, ok := f.rates[rateKey(strings.ToUpper(currency), strings.ToUpper(target), date.Format("2006-01-02"))]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s/%s: %w", currency, target, models.ErrExchangeRateNotFound)
	}
	return r, nil
}

func (f *fakeLedger) ResolveTaxCategory(ctx context.Context, nameOrId string) (string, error) {
	if id, ok := f.taxCategories[nameOrId]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%s: %w", nameOrId, models.ErrTaxCategoryNotFound)
}

func (f *fakeLedger) ResolveFinancialAccountTaxCategory(ctx context.Context, tx models.Transaction) (string, error) {
	if id, ok := f.accounts[tx.FinancialAccountId]; ok {
		return id, nil
	}
	return "", fmt.Errorf("account %s: %w", tx.FinancialAccountId, models.ErrTaxCategoryNotFound)
}

func (f *fakeLedger) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	if b, ok := f.businesses[id]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("business %s: %w", id, utils.ErrorRecordNotFound)
}

func (f *fakeLedger) GetUnbalancedBusinessAllowList(ctx context.Context, chargeId string) (map[string]struct{}, error) {
	return f.allowList, nil
}

func (f *fakeLedger) GetBalanceCancellations(ctx context.Context, chargeId string) ([]models.BalanceCancellation, error) {
	return f.cancellations, nil
}

func (f *fakeLedger) GetMiscExpensesForCharge(ctx context.Context, chargeId string) ([]models.MiscExpense, error) {
	return f.misc, nil
}

func (f *fakeLedger) GetSalariesForCharge(ctx context.Context, chargeId string) ([]models.Salary, error) {
	return f.salaries, nil
}

func (f *fakeLedger) GetBusinessTripByCharge(ctx context.Context, chargeId string) (*models.BusinessTrip, error) {
	if f.trip == nil {
		return nil, fmt.Errorf("business trip of charge %s: %w", chargeId, utils.ErrorRecordNotFound)
	}
	return f.trip, nil
}

// PersistLedgerRecords keys records the way the gorm store does.
func (f *fakeLedger) PersistLedgerRecords(ctx context.Context, chargeId string, records []models.LedgerEntryProto) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]int{}
	var inserted int64
	for _, r := range records {
		key := r.CanonicalKey()
		id := models.LedgerRecordId(chargeId, r, seen[key])
		seen[key]++
		if _, ok := f.stored[id]; ok {
			continue
		}
		f.stored[id] = r
		inserted++
	}
	return inserted, nil
}

func (f *fakeLedger) dependencies() Dependencies {
	return Dependencies{
		Transactions:         f,
		Documents:            f,
		ExchangeRates:        f,
		TaxCategories:        f,
		Businesses:           f,
		UnbalancedBusinesses: f,
		BalanceCancellations: f,
		MiscExpenses:         f,
		Salaries:             f,
		BusinessTrips:        f,
		Store:                f,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestGenerator(t *testing.T, f *fakeLedger) *LedgerGenerator {
	t.Helper()
	gen, err := NewLedgerGenerator(f.dependencies(), testPolicy(), quietLogger())
	require.NoError(t, err)
	return gen
}

// newTestGeneration is the per-call state for exercising a single generator.
func newTestGeneration(t *testing.T, f *fakeLedger, charge *models.Charge) *generation {
	t.Helper()
	return &generation{LedgerGenerator: newTestGenerator(t, f), charge: *charge, chargeTaxCategory: tcExpense}
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}

func testCharge(id string) *models.Charge {
	return &models.Charge{
		ID:            id,
		OwnerId:       testOwner,
		TaxCategoryId: ptr(tcExpense),
		Kind:          models.ChargeKindCommon,
	}
}

func testTransaction(id, amount, currency, date, business string) models.Transaction {
	d := day(date)
	tx := models.Transaction{
		ID:                 id,
		FinancialAccountId: testAccount,
		Amount:             dec(amount),
		Currency:           currency,
		EventDate:          d,
		DebitDate:          &d,
	}
	if business != "" {
		tx.BusinessId = ptr(business)
	}
	return tx
}

func testDocument(id string, kind models.DocumentKind, amount, vat, currency, date, creditor, debtor string) models.Document {
	doc := models.Document{
		ID:           id,
		Kind:         kind,
		SerialNumber: strings.ToUpper(id),
		Date:         ptr(day(date)),
		Amount:       ptr(dec(amount)),
		Currency:     currency,
		CreditorId:   ptr(creditor),
		DebtorId:     ptr(debtor),
	}
	if vat != "" {
		doc.VatAmount = ptr(dec(vat))
	}
	return doc
}

// entityTotals replays records the way the tracker does, local amounts only.
func entityTotals(records []models.LedgerEntryProto) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, r := range records {
		for _, s := range r.Sides() {
			amount := s.Local
			if !s.IsCredit {
				amount = amount.Neg()
			}
			out[s.Account.Id] = out[s.Account.Id].Add(amount)
		}
	}
	return out
}

func requireEntriesBalanced(t *testing.T, records []models.LedgerEntryProto) {
	t.Helper()
	tolerance := testPolicy().BalanceTolerance
	for i, r := range records {
		diff := r.LocalCreditTotal().Sub(r.LocalDebitTotal()).Abs()
		require.Truef(t, diff.LessThanOrEqual(tolerance), "entry %d (%s) credits %s debits %s", i, r.Description, r.LocalCreditTotal(), r.LocalDebitTotal())
	}
}
