package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
)

// tripCategoryTotals are the converted totals of one expense category.
type tripCategoryTotals struct {
	local      decimal.Decimal
	nonTaxable decimal.Decimal
	foreign    decimal.Decimal
	currency   string // set while every expense shares one foreign currency
	mixed      bool
	valueDate  time.Time
	perPerson  map[string]decimal.Decimal
}

func (t *tripCategoryTotals) add(expense models.BusinessTripExpense, conv convertedAmount) {
	t.local = t.local.Add(conv.Local)
	if expense.Date.After(t.valueDate) {
		t.valueDate = expense.Date
	}
	if expense.AttendeeBusinessId != nil {
		t.perPerson[*expense.AttendeeBusinessId] = t.perPerson[*expense.AttendeeBusinessId].Add(conv.Local)
	}
	currency := strings.ToUpper(expense.Currency)
	switch {
	case t.mixed:
	case !conv.isForeign():
		t.mixed = true
	case t.currency == "":
		t.currency = currency
		t.foreign = *conv.Foreign
	case t.currency == currency:
		t.foreign = t.foreign.Add(*conv.Foreign)
	default:
		t.mixed = true
	}
}

// businessTripEntries emits one summary entry per expense category, splitting each
// category into its non-taxable part (within statutory caps) and the taxable excess.
func (g *generation) businessTripEntries(ctx context.Context, trip models.BusinessTrip) (EntriesResult, error) {
	var result EntriesResult
	if g.charge.BusinessId == nil {
		result.addError(ledgerErrorf("Business trip charge %s has no business to settle against", g.charge.ID))
		return result, nil
	}

	attendees := make(map[string]models.BusinessTripAttendee, len(trip.Attendees))
	for _, a := range trip.Attendees {
		attendees[a.BusinessId] = a
	}

	// accommodation nights per attendee also drive the travel & subsistence cap
	nights := make(map[string]int)
	for _, e := range trip.Expenses {
		if e.Category == models.TripExpenseAccommodation && e.AttendeeBusinessId != nil {
			nights[*e.AttendeeBusinessId] += e.Nights
		}
	}

	totals := make(map[models.BusinessTripExpenseCategory]*tripCategoryTotals)
	for _, e := range trip.Expenses {
		capped := e.Category == models.TripExpenseAccommodation || e.Category == models.TripExpenseTravelSubsistence
		if capped && e.AttendeeBusinessId == nil {
			result.addError(ledgerErrorf("Business trip expense %s (%s) has no attendee", e.ID, e.Category))
			continue
		}
		if capped {
			if _, ok := attendees[*e.AttendeeBusinessId]; !ok {
				result.addError(ledgerErrorf("Business trip expense %s: %s is not an attendee of trip %s", e.ID, *e.AttendeeBusinessId, trip.ID))
				continue
			}
		}
		if strings.TrimSpace(e.Currency) == "" {
			result.addError(ledgerErrorf("Business trip expense %s is missing currency", e.ID))
			continue
		}
		conv, err := g.converter.toLocal(ctx, e.Amount.Abs(), e.Currency, e.Date)
		if err != nil {
			if !IsLedgerError(err) {
				return EntriesResult{}, err
			}
			res, _ := absorb(err)
			result.merge(res)
			continue
		}
		t, ok := totals[e.Category]
		if !ok {
			t = &tripCategoryTotals{perPerson: make(map[string]decimal.Decimal)}
			totals[e.Category] = t
		}
		t.add(e, conv)
	}

	caps := g.policy.BusinessTrip
	multiplier := g.policy.DestinationMultiplier(trip.Destination)
	// a category whose cap cannot be priced is skipped; the others are still booked
categories:
	for _, category := range models.TripExpenseCategories {
		t, ok := totals[category]
		if !ok {
			continue
		}
		switch category {
		case models.TripExpenseAccommodation:
			for person, spent := range t.perPerson {
				capAmount := accommodationCap(nights[person], caps.ReducedRateNightThreshold, caps.AccommodationNightlyCap, caps.ReducedRateRatio).Mul(multiplier)
				capLocal, err := g.tripCapToLocal(ctx, capAmount, trip)
				if err != nil {
					res, err := absorb(err)
					if err != nil {
						return EntriesResult{}, err
					}
					result.merge(res)
					continue categories
				}
				t.nonTaxable = t.nonTaxable.Add(decimal.Min(spent, capLocal))
			}
		case models.TripExpenseTravelSubsistence:
			for person, spent := range t.perPerson {
				days := attendees[person].Days()
				unaccommodated := days - 1 - nights[person]
				if unaccommodated < 0 {
					unaccommodated = 0
				}
				capAmount := caps.TravelSubsistenceDailyCap.Mul(decimal.NewFromInt(int64(days))).
					Add(caps.UnaccommodatedDayExtra.Mul(decimal.NewFromInt(int64(unaccommodated)))).
					Mul(multiplier)
				capLocal, err := g.tripCapToLocal(ctx, capAmount, trip)
				if err != nil {
					res, err := absorb(err)
					if err != nil {
						return EntriesResult{}, err
					}
					result.merge(res)
					continue categories
				}
				t.nonTaxable = t.nonTaxable.Add(decimal.Min(spent, capLocal))
			}
		default:
			t.nonTaxable = t.local
		}
		result.Entries = append(result.Entries, g.tripCategoryEntry(trip, category, t))
	}
	return result, nil
}

// accommodationCap: the first threshold nights at the full nightly cap, the rest at ratio.
func accommodationCap(nights, threshold int, nightly, ratio decimal.Decimal) decimal.Decimal {
	full := nights
	if full > threshold {
		full = threshold
	}
	reduced := nights - full
	return nightly.Mul(decimal.NewFromInt(int64(full))).
		Add(nightly.Mul(ratio).Mul(decimal.NewFromInt(int64(reduced))))
}

// tripCapToLocal converts a cap quoted in the reference currency at the trip end date.
func (g *generation) tripCapToLocal(ctx context.Context, amount decimal.Decimal, trip models.BusinessTrip) (decimal.Decimal, error) {
	conv, err := g.converter.toLocal(ctx, amount, g.policy.CryptoReferenceCurrency, trip.ToDate)
	if err != nil {
		if IsLedgerError(err) {
			return decimal.Zero, &LedgerError{Message: fmt.Sprintf("Business trip %s caps: %s", trip.ID, err.Error())}
		}
		return decimal.Zero, err
	}
	return conv.Local, nil
}

func (g *generation) tripCategoryEntry(trip models.BusinessTrip, category models.BusinessTripExpenseCategory, t *tripCategoryTotals) models.LedgerEntryProto {
	taxable := t.local.Sub(t.nonTaxable)
	entry := models.LedgerEntryProto{
		ChargeId:               g.charge.ID,
		OwnerId:                g.charge.OwnerId,
		Currency:               g.policy.LocalCurrency,
		InvoiceDate:            trip.ToDate,
		ValueDate:              t.valueDate,
		Description:            fmt.Sprintf("Business trip %s: %s", trip.Name, strings.ToLower(strings.ReplaceAll(string(category), "_", " "))),
		Reference:              trip.ID,
		IsCreditorCounterparty: true,
	}

	total := convertedAmount{Local: t.local}
	nonTaxable := convertedAmount{Local: t.nonTaxable}
	taxablePart := convertedAmount{Local: taxable}
	if !t.mixed && t.currency != "" && t.local.IsPositive() {
		entry.Currency = t.currency
		foreignTotal := t.foreign
		foreignNonTaxable := t.foreign.Mul(t.nonTaxable).DivRound(t.local, 2)
		foreignTaxable := t.foreign.Sub(foreignNonTaxable)
		total.Foreign = &foreignTotal
		nonTaxable.Foreign = &foreignNonTaxable
		taxablePart.Foreign = &foreignTaxable
	}

	business := models.BusinessAccount(*g.charge.BusinessId)
	tripCategory := models.TaxCategoryAccount(g.policy.TaxCategories.BusinessTrip)
	taxableCategory := models.TaxCategoryAccount(g.policy.TaxCategories.BusinessTripTaxable)
	switch {
	case !taxable.IsPositive():
		setPair1(&entry, business, tripCategory, total, total)
	case !t.nonTaxable.IsPositive():
		setPair1(&entry, business, taxableCategory, total, total)
	default:
		setPair1(&entry, business, tripCategory, total, nonTaxable)
		entry.DebitAccountID2 = taxableCategory
		entry.DebitAmount2 = taxablePart.Foreign
		entry.LocalCurrencyDebitAmount2 = taxable
	}
	return entry
}
