package workflow

import (
	"context"
	"testing"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unevenEntry credits more than it debits, leaving diff in the aggregate.
func unevenEntry(credit, debit string) models.LedgerEntryProto {
	e := models.LedgerEntryProto{Currency: "ILS", ValueDate: day("2024-01-01")}
	e.CreditAccountID1 = models.TaxCategoryAccount("tc-a")
	e.LocalCurrencyCreditAmount1 = dec(credit)
	e.DebitAccountID1 = models.TaxCategoryAccount("tc-b")
	e.LocalCurrencyDebitAmount1 = dec(debit)
	return e
}

func TestReconcileBalance_ToleranceBoundary(t *testing.T) {
	cases := []struct {
		name   string
		credit string
		errors []string
	}{
		{name: "exactly at tolerance", credit: "100.005"},
		{name: "above tolerance", credit: "100.006", errors: []string{"Failed to balance: 0.006 diff; tc-a, tc-b are not balanced"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGeneration(t, newFakeLedger(), testCharge("c1"))
			entries := []models.LedgerEntryProto{unevenEntry(tc.credit, "100")}
			tracker := NewBalanceTracker("ILS")
			tracker.Apply(entries...)

			r, err := g.reconcileBalance(context.Background(), tracker, entries, 0, nil)
			require.NoError(t, err)
			assert.Empty(t, r.Entries)
			assert.Equal(t, tc.errors, r.Errors)
			assert.Equal(t, tc.errors == nil, tracker.Report(nil, g.policy.BalanceTolerance).IsBalanced)
		})
	}
}

// usdEntry books foreign USD at local ILS between a business and a tax category.
func usdEntry(business string, credit bool, foreign, local, date string) models.LedgerEntryProto {
	e := models.LedgerEntryProto{Currency: "USD", ValueDate: day(date)}
	amount := convertedAmount{Local: dec(local), Foreign: ptr(dec(foreign))}
	if credit {
		setPair1(&e, models.BusinessAccount(business), models.TaxCategoryAccount(tcExpense), amount, amount)
	} else {
		setPair1(&e, models.TaxCategoryAccount(tcBank), models.BusinessAccount(business), amount, amount)
	}
	return e
}

func usdConversion(business, foreign, local, date string) models.LedgerEntryProto {
	e := models.LedgerEntryProto{Currency: "USD", ValueDate: day(date), Description: "Currency conversion of USD balance"}
	setPair1(&e, models.BusinessAccount(business), models.BusinessAccount(business), convertedAmount{Local: dec(local)}, convertedAmount{Local: dec(local), Foreign: ptr(dec(foreign))})
	return e
}

func TestValidateExchangeRate(t *testing.T) {
	f := newFakeLedger()
	f.setRate("USD", "ILS", "2024-01-01", "3.3")
	f.setRate("USD", "ILS", "2024-01-05", "3.5")

	localDebit := func(amount, date string) models.LedgerEntryProto {
		e := entry(models.TaxCategoryAccount(tcBank), models.BusinessAccount("biz-a"), amount)
		e.ValueDate = day(date)
		return e
	}
	localCredit := func(amount, date string) models.LedgerEntryProto {
		e := entry(models.BusinessAccount("biz-a"), models.TaxCategoryAccount(tcExpense), amount)
		e.ValueDate = day(date)
		return e
	}

	cases := []struct {
		name    string
		entries []models.LedgerEntryProto
		entity  string
		want    bool
		err     string
	}{
		{
			name:    "open foreign amount",
			entries: []models.LedgerEntryProto{usdEntry("biz-a", true, "10", "35", "2024-01-01")},
			entity:  "biz-a",
		},
		{
			name:    "unknown entity",
			entries: []models.LedgerEntryProto{usdEntry("biz-a", true, "10", "35", "2024-01-01")},
			entity:  "missing",
		},
		{
			name: "rate spread covers the residue",
			entries: []models.LedgerEntryProto{
				usdEntry("biz-a", false, "100", "350", "2024-01-01"),
				usdEntry("biz-a", true, "100", "360", "2024-01-02"),
			},
			entity: "biz-a",
			want:   true,
		},
		{
			name: "unsettled local amount",
			entries: []models.LedgerEntryProto{
				usdEntry("biz-a", false, "100", "350", "2024-01-01"),
				usdEntry("biz-a", true, "100", "360", "2024-01-02"),
				localCredit("500", "2024-01-02"),
			},
			entity: "biz-a",
		},
		{
			name:    "local residue without foreign amounts",
			entries: []models.LedgerEntryProto{localDebit("5", "2024-01-01")},
			entity:  "biz-a",
		},
		{
			name: "converted balance settled at a different market rate",
			entries: []models.LedgerEntryProto{
				localDebit("100", "2024-01-01"),
				usdEntry("biz-a", true, "30", "105", "2024-01-02"),
				usdConversion("biz-a", "30", "105", "2024-01-02"),
			},
			entity: "biz-a",
			want:   true,
		},
		{
			name: "converted balance settled at the same market rate",
			entries: []models.LedgerEntryProto{
				localDebit("100", "2024-01-05"),
				usdEntry("biz-a", true, "30", "105", "2024-01-05"),
				usdConversion("biz-a", "30", "105", "2024-01-05"),
			},
			entity: "biz-a",
		},
		{
			name: "local leg on the same side as the converted balance",
			entries: []models.LedgerEntryProto{
				localCredit("100", "2024-01-01"),
				usdEntry("biz-a", true, "30", "105", "2024-01-02"),
				usdConversion("biz-a", "30", "105", "2024-01-02"),
			},
			entity: "biz-a",
		},
		{
			name: "missing market rate for the settlement date",
			entries: []models.LedgerEntryProto{
				localDebit("100", "2024-01-03"),
				usdEntry("biz-a", true, "30", "105", "2024-01-02"),
				usdConversion("biz-a", "30", "105", "2024-01-02"),
			},
			entity: "biz-a",
			err:    "Exchange rate for USD to ILS on 2024-01-03 is missing",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGeneration(t, f, testCharge("c1"))
			tracker := NewBalanceTracker("ILS")
			tracker.Apply(tc.entries...)
			balance, _ := tracker.Get(tc.entity)

			ok, err := g.validateExchangeRate(context.Background(), tracker, tc.entries, UnbalancedEntity{EntityId: tc.entity, Balance: balance.Amount})
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
				assert.True(t, IsLedgerError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestAccommodationCap(t *testing.T) {
	cases := []struct {
		nights int
		want   string
	}{
		{0, "0"},
		{4, "1340"},
		{7, "2345"},
		{10, "3098.75"},
	}
	for _, tc := range cases {
		got := accommodationCap(tc.nights, 7, dec("335"), dec("0.75"))
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("accommodationCap(%d) = %s, want %s", tc.nights, got, tc.want)
		}
	}
}
