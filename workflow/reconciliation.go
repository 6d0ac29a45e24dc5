package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
)

// balanceMultiCurrency converts the primary business's foreign sub-ledgers to local
// currency with same-entity conversion entries, so the remaining imbalance is a plain
// local amount.
func (g *generation) balanceMultiCurrency(tracker *BalanceTracker, entries []models.LedgerEntryProto) EntriesResult {
	var result EntriesResult
	if g.charge.BusinessId == nil {
		return result
	}
	balance, ok := tracker.Get(*g.charge.BusinessId)
	if !ok {
		return result
	}
	tolerance := g.policy.BalanceTolerance
	exposed := balance.ForeignExposure(g.policy.LocalCurrency, tolerance)
	localLeg := balance.Currencies[strings.ToUpper(g.policy.LocalCurrency)].Local.Abs().GreaterThan(tolerance)
	if len(exposed) < 2 && !(len(exposed) == 1 && !g.charge.InvoicePaymentCurrencyDiff && localLeg) {
		return result
	}

	date := latestValueDate(entries)
	business := models.BusinessAccount(balance.Account.Id)
	for _, currency := range exposed {
		sub := balance.Currencies[currency]
		if sub.Local.IsZero() {
			result.addError(ledgerErrorf("Currency conversion of %s balance for business %s has no local amount", currency, balance.Account.Id))
			continue
		}
		foreign := sub.Foreign.Abs()
		local := sub.Local.Abs()
		rate := local.DivRound(foreign, 6)
		entry := models.LedgerEntryProto{
			ChargeId:     g.charge.ID,
			OwnerId:      g.charge.OwnerId,
			Currency:     currency,
			InvoiceDate:  date,
			ValueDate:    date,
			Description:  fmt.Sprintf("Currency conversion of %s balance", currency),
			CurrencyRate: &rate,
		}
		withForeign := convertedAmount{Local: local, Foreign: &foreign}
		localOnly := convertedAmount{Local: local}
		if sub.Foreign.IsPositive() {
			setPair1(&entry, business, business, localOnly, withForeign)
		} else {
			setPair1(&entry, business, business, withForeign, localOnly)
		}
		result.Entries = append(result.Entries, entry)
	}
	return result
}

// reconcileBalance evaluates the tracker and, when the only imbalance is a single entity
// whose residue exchange rates can account for, books the exchange-rate difference.
func (g *generation) reconcileBalance(ctx context.Context, tracker *BalanceTracker, entries []models.LedgerEntryProto, documentEntries int, allowList map[string]struct{}) (EntriesResult, error) {
	var result EntriesResult
	tolerance := g.policy.BalanceTolerance
	report := tracker.Report(allowList, tolerance)

	if report.BalanceSum.Abs().GreaterThan(tolerance) {
		result.addError(ledgerErrorf("Failed to balance: %s diff; %s are not balanced", report.BalanceSum.String(), strings.Join(imbalancedIds(tracker, report, allowList), ", ")))
		return result, nil
	}
	if len(report.UnbalancedEntities) == 0 {
		return result, nil
	}
	if documentEntries == 0 && g.noInvoicesRequired() {
		g.logger.WithField("charge_id", g.charge.ID).Info("unbalanced charge accepted: no invoices required")
		return result, nil
	}

	datesDiffer := distinctValueDates(entries) > 1
	foreignCurrencies := g.foreignCurrencies(entries)
	if len(report.UnbalancedEntities) == 1 &&
		((datesDiffer && len(foreignCurrencies) > 0) || len(foreignCurrencies) > 1) {
		unbalanced := report.UnbalancedEntities[0]
		ok, err := g.validateExchangeRate(ctx, tracker, entries, unbalanced)
		if err != nil {
			absorbed, err := absorb(err)
			if err != nil {
				return result, err
			}
			result.merge(absorbed)
		}
		if ok {
			result.Entries = append(result.Entries, g.exchangeRateCorrection(unbalanced, latestValueDate(entries)))
			return result, nil
		}
	}

	dates := "Dates are consistent"
	if datesDiffer {
		dates = "Dates are different"
	}
	currencies := "currencies are local"
	if len(foreignCurrencies) > 0 {
		currencies = "currencies are foreign"
	}
	result.addError(ledgerErrorf("Failed to balance: %s and %s", dates, currencies))
	return result, nil
}

// rateExposure is what one business's entries say about its exchange rates.
type rateExposure struct {
	volume     map[string]decimal.Decimal   // sum of |foreign| per currency
	rates      map[string][]decimal.Decimal // booked local/foreign rates per currency
	signed     map[string]decimal.Decimal   // signed local total per currency
	converted  map[string]decimal.Decimal   // |foreign| moved to local by conversion entries
	localLeg   decimal.Decimal
	localDates []time.Time
}

func (g *generation) exposureOf(entries []models.LedgerEntryProto, entityId string) rateExposure {
	exp := rateExposure{
		volume:    make(map[string]decimal.Decimal),
		rates:     make(map[string][]decimal.Decimal),
		signed:    make(map[string]decimal.Decimal),
		converted: make(map[string]decimal.Decimal),
	}
	for _, e := range entries {
		currency := strings.ToUpper(e.Currency)
		foreignCurrency := currency != "" && !strings.EqualFold(currency, g.policy.LocalCurrency)
		if isConversionOf(e, entityId) {
			for _, side := range e.Sides() {
				if side.Foreign != nil {
					exp.converted[currency] = exp.converted[currency].Add(side.Foreign.Abs())
				}
			}
			continue
		}
		for _, side := range e.Sides() {
			if side.Account.IsTaxCategory || side.Account.Id != entityId {
				continue
			}
			local := side.Local
			if !side.IsCredit {
				local = local.Neg()
			}
			if side.Foreign == nil || !foreignCurrency {
				exp.localLeg = exp.localLeg.Add(local)
				exp.localDates = append(exp.localDates, e.ValueDate)
				continue
			}
			foreign := side.Foreign.Abs()
			exp.volume[currency] = exp.volume[currency].Add(foreign)
			exp.signed[currency] = exp.signed[currency].Add(local)
			if foreign.IsPositive() {
				exp.rates[currency] = append(exp.rates[currency], side.Local.DivRound(foreign, 6))
			}
		}
	}
	return exp
}

// isConversionOf reports a same-entity currency conversion entry for the business.
func isConversionOf(e models.LedgerEntryProto, entityId string) bool {
	c, d := e.CreditAccountID1, e.DebitAccountID1
	return c != nil && d != nil && e.CreditAccountID2 == nil && e.DebitAccountID2 == nil &&
		!c.IsTaxCategory && !d.IsTaxCategory && c.Id == entityId && d.Id == entityId
}

// validateExchangeRate holds when the entity's foreign sub-ledgers net out and its local
// residue is no larger than the foreign volume times the spread of rates it was booked at.
// A local leg is only accepted as the settlement of a converted foreign balance; the
// market rates on its dates then join the spread.
func (g *generation) validateExchangeRate(ctx context.Context, tracker *BalanceTracker, entries []models.LedgerEntryProto, unbalanced UnbalancedEntity) (bool, error) {
	balance, ok := tracker.Get(unbalanced.EntityId)
	if !ok {
		return false, nil
	}
	for currency, sub := range balance.Currencies {
		if strings.EqualFold(currency, g.policy.LocalCurrency) {
			continue
		}
		if !g.policy.WithinTolerance(sub.Foreign) {
			return false, nil
		}
	}

	exp := g.exposureOf(entries, unbalanced.EntityId)
	if len(exp.converted) == 0 {
		if !g.policy.WithinTolerance(exp.localLeg) {
			return false, nil
		}
	} else {
		settled := decimal.Zero
		for currency := range exp.converted {
			settled = settled.Add(exp.signed[currency])
		}
		if exp.localLeg.Sign()*settled.Sign() >= 0 {
			return false, nil
		}
		for currency, amount := range exp.converted {
			for _, date := range exp.localDates {
				r, err := g.converter.rate(ctx, currency, date)
				if err != nil {
					return false, err
				}
				exp.rates[currency] = append(exp.rates[currency], r)
			}
			exp.volume[currency] = exp.volume[currency].Add(amount)
		}
	}

	bound := g.policy.BalanceTolerance
	for currency, rates := range exp.rates {
		bound = bound.Add(exp.volume[currency].Mul(spread(rates)))
	}
	return unbalanced.Balance.Abs().LessThanOrEqual(bound), nil
}

func spread(rates []decimal.Decimal) decimal.Decimal {
	if len(rates) == 0 {
		return decimal.Zero
	}
	return decimal.Max(rates[0], rates[1:]...).Sub(decimal.Min(rates[0], rates[1:]...))
}

func (g *generation) exchangeRateCorrection(unbalanced UnbalancedEntity, date time.Time) models.LedgerEntryProto {
	category := g.policy.TaxCategories.ExchangeRate
	if g.isIncomeCharge() {
		category = g.policy.TaxCategories.IncomeExchangeRate
	}
	entry := models.LedgerEntryProto{
		ChargeId:    g.charge.ID,
		OwnerId:     g.charge.OwnerId,
		Currency:    g.policy.LocalCurrency,
		InvoiceDate: date,
		ValueDate:   date,
		Description: "Exchange rate difference",
	}
	amount := convertedAmount{Local: unbalanced.Balance.Abs()}
	entity := models.BusinessAccount(unbalanced.EntityId)
	if unbalanced.Balance.IsPositive() {
		setPair1(&entry, models.TaxCategoryAccount(category), entity, amount, amount)
	} else {
		setPair1(&entry, entity, models.TaxCategoryAccount(category), amount, amount)
		entry.IsCreditorCounterparty = true
	}
	return entry
}

// isIncomeCharge: money came in overall and nothing was refunded by credit invoice.
func (g *generation) isIncomeCharge() bool {
	total := decimal.Zero
	for _, tx := range g.split.Main {
		total = total.Add(tx.Amount)
	}
	if !total.IsPositive() {
		return false
	}
	for _, doc := range g.documents {
		if doc.Kind == models.DocumentKindCreditInvoice {
			return false
		}
	}
	return true
}

func (g *generation) noInvoicesRequired() bool {
	return g.charge.NoInvoicesRequired || (g.business != nil && g.business.NoInvoicesRequired)
}

func (g *generation) foreignCurrencies(entries []models.LedgerEntryProto) []string {
	seen := make(map[string]struct{})
	for _, e := range entries {
		c := strings.ToUpper(e.Currency)
		if c == "" || strings.EqualFold(c, g.policy.LocalCurrency) {
			continue
		}
		seen[c] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func distinctValueDates(entries []models.LedgerEntryProto) int {
	seen := make(map[string]struct{})
	for _, e := range entries {
		seen[e.ValueDate.UTC().Format("2006-01-02")] = struct{}{}
	}
	return len(seen)
}

func latestValueDate(entries []models.LedgerEntryProto) time.Time {
	var latest time.Time
	for _, e := range entries {
		if e.ValueDate.After(latest) {
			latest = e.ValueDate
		}
	}
	return latest
}

// imbalancedIds names the unbalanced businesses, or every non-zero entity when the
// aggregate is off without any single business standing out.
func imbalancedIds(tracker *BalanceTracker, report BalanceReport, allowList map[string]struct{}) []string {
	ids := make([]string, 0, len(report.UnbalancedEntities))
	for _, u := range report.UnbalancedEntities {
		ids = append(ids, u.EntityId)
	}
	if len(ids) > 0 {
		return ids
	}
	for _, ent := range tracker.Entities() {
		if _, allowed := allowList[ent.Account.Id]; allowed && !ent.Account.IsTaxCategory {
			continue
		}
		if !ent.Amount.IsZero() {
			ids = append(ids, ent.Account.Id)
		}
	}
	return ids
}
