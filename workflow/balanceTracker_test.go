package workflow

import (
	"testing"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
)

func entry(credit, debit *models.CounterAccount, amount string) models.LedgerEntryProto {
	e := models.LedgerEntryProto{Currency: "ILS"}
	setPair1(&e, credit, debit, convertedAmount{Local: dec(amount)}, convertedAmount{Local: dec(amount)})
	return e
}

func TestBalanceTracker_ApplySignsAndSubLedgers(t *testing.T) {
	tracker := NewBalanceTracker("ils")
	foreign := dec("100")
	usd := models.LedgerEntryProto{
		Currency:                   "USD",
		CreditAccountID1:           models.BusinessAccount("biz-a"),
		CreditAmount1:              &foreign,
		LocalCurrencyCreditAmount1: dec("350"),
		DebitAccountID1:            models.TaxCategoryAccount(tcExpense),
		DebitAmount1:               &foreign,
		LocalCurrencyDebitAmount1:  dec("350"),
	}
	tracker.Apply(usd, entry(models.TaxCategoryAccount(tcBank), models.BusinessAccount("biz-a"), "340"))

	a, ok := tracker.Get("biz-a")
	if !ok {
		t.Fatalf("biz-a not tracked")
	}
	if !a.Amount.Equal(dec("10")) {
		t.Fatalf("biz-a amount = %s, want 10", a.Amount)
	}
	if sub := a.Currencies["USD"]; !sub.Local.Equal(dec("350")) || !sub.Foreign.Equal(dec("100")) {
		t.Fatalf("USD sub-ledger = %+v", sub)
	}
	if sub := a.Currencies["ILS"]; !sub.Local.Equal(dec("-340")) || !sub.Foreign.Equal(dec("-340")) {
		t.Fatalf("ILS sub-ledger = %+v", sub)
	}
	if got := a.ForeignExposure("ILS", dec("0.005")); len(got) != 1 || got[0] != "USD" {
		t.Fatalf("exposure = %v", got)
	}

	// Get hands out copies
	a.Currencies["USD"] = CurrencyBalance{}
	again, _ := tracker.Get("biz-a")
	if again.Currencies["USD"].Foreign.IsZero() {
		t.Fatalf("tracker state leaked through Get")
	}
}

func TestBalanceTracker_Report(t *testing.T) {
	tolerance := dec("0.005")
	cases := []struct {
		name       string
		entries    []models.LedgerEntryProto
		allowList  map[string]struct{}
		sum        string
		balanced   bool
		unbalanced []string
	}{
		{
			name:     "offsetting business",
			entries:  []models.LedgerEntryProto{entry(models.BusinessAccount("biz-a"), models.TaxCategoryAccount(tcExpense), "100"), entry(models.TaxCategoryAccount(tcBank), models.BusinessAccount("biz-a"), "100")},
			sum:      "0",
			balanced: true,
		},
		{
			name:     "tax categories are never unbalanced",
			entries:  []models.LedgerEntryProto{entry(models.TaxCategoryAccount(tcBank), models.TaxCategoryAccount(tcExpense), "100")},
			sum:      "0",
			balanced: true,
		},
		{
			name:       "open business",
			entries:    []models.LedgerEntryProto{entry(models.TaxCategoryAccount(tcBank), models.BusinessAccount("biz-a"), "100")},
			sum:        "0",
			unbalanced: []string{"biz-a"},
		},
		{
			name:      "allow-listed business leaves the sum",
			entries:   []models.LedgerEntryProto{entry(models.TaxCategoryAccount(tcBank), models.BusinessAccount("biz-a"), "100")},
			allowList: map[string]struct{}{"biz-a": {}},
			sum:       "100",
		},
		{
			name:     "within tolerance",
			entries:  []models.LedgerEntryProto{entry(models.TaxCategoryAccount(tcBank), models.BusinessAccount("biz-a"), "0.005")},
			sum:      "0",
			balanced: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := NewBalanceTracker("ILS")
			tracker.Apply(tc.entries...)
			report := tracker.Report(tc.allowList, tolerance)
			if !report.BalanceSum.Equal(decimal.RequireFromString(tc.sum)) {
				t.Fatalf("sum = %s, want %s", report.BalanceSum, tc.sum)
			}
			if report.IsBalanced != tc.balanced {
				t.Fatalf("balanced = %v, want %v", report.IsBalanced, tc.balanced)
			}
			if len(report.UnbalancedEntities) != len(tc.unbalanced) {
				t.Fatalf("unbalanced = %+v, want %v", report.UnbalancedEntities, tc.unbalanced)
			}
			for i, id := range tc.unbalanced {
				if report.UnbalancedEntities[i].EntityId != id {
					t.Fatalf("unbalanced[%d] = %s, want %s", i, report.UnbalancedEntities[i].EntityId, id)
				}
			}
		})
	}
}

func TestBalanceTracker_SharedIdKeepsKindsApart(t *testing.T) {
	tracker := NewBalanceTracker("ILS")
	tracker.Apply(entry(models.BusinessAccount("shared"), models.TaxCategoryAccount("shared"), "100"))

	business, ok := tracker.Get("shared")
	if !ok {
		t.Fatalf("business not tracked")
	}
	if !business.Amount.Equal(dec("100")) || business.Account.IsTaxCategory {
		t.Fatalf("business = %+v, want credit of 100", business)
	}
	category, ok := tracker.GetTaxCategory("shared")
	if !ok {
		t.Fatalf("tax category not tracked")
	}
	if !category.Amount.Equal(dec("-100")) || !category.Account.IsTaxCategory {
		t.Fatalf("tax category = %+v, want debit of 100", category)
	}
	if got := len(tracker.Entities()); got != 2 {
		t.Fatalf("entities = %d, want 2", got)
	}

	report := tracker.Report(map[string]struct{}{"shared": {}}, dec("0.005"))
	if !report.BalanceSum.Equal(dec("-100")) {
		t.Fatalf("sum = %s, want -100: allow list covers the business only", report.BalanceSum)
	}
	if len(report.UnbalancedEntities) != 0 {
		t.Fatalf("unbalanced = %+v", report.UnbalancedEntities)
	}
}
