package workflow

import (
	"context"
	"testing"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func berlinTrip(expenses ...models.BusinessTripExpense) *models.BusinessTrip {
	return &models.BusinessTrip{
		ID:          "trip-1",
		Name:        "Berlin",
		Destination: "DE",
		FromDate:    day("2024-03-01"),
		ToDate:      day("2024-03-05"),
		Attendees: []models.BusinessTripAttendee{
			{ID: "a1", TripId: "trip-1", BusinessId: "emp-1", ArrivalDate: day("2024-03-01"), DepartureDate: day("2024-03-05")},
		},
		Expenses: expenses,
	}
}

func tripExpense(id string, category models.BusinessTripExpenseCategory, amount, attendee string, nights int) models.BusinessTripExpense {
	e := models.BusinessTripExpense{
		ID:       id,
		TripId:   "trip-1",
		Category: category,
		Amount:   dec(amount),
		Currency: "ILS",
		Date:     day("2024-03-02"),
		Nights:   nights,
	}
	if attendee != "" {
		e.AttendeeBusinessId = ptr(attendee)
	}
	return e
}

func tripCharge() *models.Charge {
	charge := testCharge("c1")
	charge.Kind = models.ChargeKindBusinessTrip
	charge.BusinessId = ptr("agency")
	return charge
}

func TestGenerateLedgerRecords_BusinessTripCaps(t *testing.T) {
	f := newFakeLedger()
	f.setRate("USD", "ILS", "2024-03-05", "4")
	f.transactions = []models.Transaction{testTransaction("t1", "-11000", "ILS", "2024-03-06", "agency")}
	f.trip = berlinTrip(
		tripExpense("x1", models.TripExpenseAccommodation, "6000", "emp-1", 4),
		tripExpense("x2", models.TripExpenseFlights, "2000", "", 0),
		tripExpense("x3", models.TripExpenseTravelSubsistence, "3000", "emp-1", 0),
	)

	result, err := newTestGenerator(t, f).GenerateLedgerRecords(context.Background(), tripCharge(), Options{})
	require.NoError(t, err)

	assert.Empty(t, result.Errors)
	assert.True(t, result.Balance.IsBalanced)
	require.Len(t, result.Records, 4)
	requireEntriesBalanced(t, result.Records)

	flights, accommodation, subsistence := result.Records[1], result.Records[2], result.Records[3]
	assert.Equal(t, "Business trip Berlin: flights", flights.Description)
	assert.Equal(t, tcTrip, flights.DebitAccountID1.Id)
	assert.Nil(t, flights.DebitAccountID2)

	assert.Equal(t, "Business trip Berlin: accommodation", accommodation.Description)
	assert.Equal(t, "agency", accommodation.CreditAccountID1.Id)
	requireDec(t, "6000", accommodation.LocalCurrencyCreditAmount1)
	requireDec(t, "5360", accommodation.LocalCurrencyDebitAmount1)
	require.NotNil(t, accommodation.DebitAccountID2)
	assert.Equal(t, tcTripTaxed, accommodation.DebitAccountID2.Id)
	requireDec(t, "640", accommodation.LocalCurrencyDebitAmount2)

	assert.Equal(t, "Business trip Berlin: travel and subsistence", subsistence.Description)
	requireDec(t, "2600", subsistence.LocalCurrencyDebitAmount1)
	requireDec(t, "400", subsistence.LocalCurrencyDebitAmount2)
	assert.True(t, subsistence.IsCreditorCounterparty)
	assert.Equal(t, day("2024-03-05"), subsistence.InvoiceDate)
}

func TestBusinessTripEntries_Problems(t *testing.T) {
	f := newFakeLedger()
	g := newTestGeneration(t, f, tripCharge())
	trip := berlinTrip(
		tripExpense("x1", models.TripExpenseAccommodation, "600", "", 1),
		tripExpense("x2", models.TripExpenseTravelSubsistence, "300", "stranger", 0),
		tripExpense("x3", models.TripExpenseOther, "50", "", 0),
	)

	r, err := g.businessTripEntries(context.Background(), *trip)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Business trip expense x1 (ACCOMMODATION) has no attendee",
		"Business trip expense x2: stranger is not an attendee of trip trip-1",
	}, r.Errors)
	require.Len(t, r.Entries, 1)
	assert.Equal(t, "Business trip Berlin: other", r.Entries[0].Description)

	g.charge.BusinessId = nil
	r, err = g.businessTripEntries(context.Background(), *trip)
	require.NoError(t, err)
	assert.Empty(t, r.Entries)
	assert.Equal(t, []string{"Business trip charge c1 has no business to settle against"}, r.Errors)
}

func TestBusinessTripEntries_MissingCapRateSkipsOnlyCappedCategory(t *testing.T) {
	g := newTestGeneration(t, newFakeLedger(), tripCharge())
	trip := berlinTrip(
		tripExpense("x1", models.TripExpenseAccommodation, "600", "emp-1", 1),
		tripExpense("x2", models.TripExpenseFlights, "2000", "", 0),
	)

	r, err := g.businessTripEntries(context.Background(), *trip)
	require.NoError(t, err)
	assert.Equal(t, []string{"Business trip trip-1 caps: Exchange rate for USD to ILS on 2024-03-05 is missing"}, r.Errors)
	require.Len(t, r.Entries, 1)
	assert.Equal(t, "Business trip Berlin: flights", r.Entries[0].Description)
	requireDec(t, "2000", r.Entries[0].LocalCurrencyDebitAmount1)
}

func TestGenerateLedgerRecords_BusinessTripNotFound(t *testing.T) {
	f := newFakeLedger()
	result, err := newTestGenerator(t, f).GenerateLedgerRecords(context.Background(), tripCharge(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Business trip of charge c1 not found"}, result.Errors)
}
