package workflow

import (
	"time"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
)

// personShare is what one employee or fund is owed out of a batched line item.
type personShare struct {
	PersonId string
	Amount   decimal.Decimal
}

// salaryPlan holds the payroll line items of a salary charge and, per batched business,
// what each real recipient is owed.
type salaryPlan struct {
	LineItems EntriesResult
	Owed      map[string][]personShare
}

type salaryTotals struct {
	net, pension, training, socialSecurity, incomeTax decimal.Decimal
}

// buildSalaryPlan emits one entry per line item for the payroll month, booked against the
// batched employees/funds businesses.
func (g *generation) buildSalaryPlan(salaries []models.Salary) salaryPlan {
	plan := salaryPlan{Owed: make(map[string][]personShare)}
	biz := g.policy.Businesses
	var totals salaryTotals
	var date time.Time

	for _, s := range salaries {
		end, err := s.MonthEnd()
		if err != nil {
			plan.LineItems.addError(ledgerErrorf("%s", err.Error()))
			continue
		}
		if s.PensionAmount.IsPositive() && s.PensionFundId == nil {
			plan.LineItems.addError(ledgerErrorf("Salary %s of employee %s has pension contributions without a pension fund", s.ID, s.EmployeeId))
			continue
		}
		if s.TrainingFundAmount.IsPositive() && s.TrainingFundId == nil {
			plan.LineItems.addError(ledgerErrorf("Salary %s of employee %s has training fund contributions without a training fund", s.ID, s.EmployeeId))
			continue
		}
		if end.After(date) {
			date = end
		}

		totals.net = totals.net.Add(s.NetAmount)
		totals.pension = totals.pension.Add(s.PensionAmount)
		totals.training = totals.training.Add(s.TrainingFundAmount)
		totals.socialSecurity = totals.socialSecurity.Add(s.SocialSecurityAmount)
		totals.incomeTax = totals.incomeTax.Add(s.IncomeTaxAmount)

		plan.Owed[biz.BatchedEmployees] = addShare(plan.Owed[biz.BatchedEmployees], s.EmployeeId, s.NetAmount)
		if s.PensionFundId != nil {
			plan.Owed[biz.BatchedFunds] = addShare(plan.Owed[biz.BatchedFunds], *s.PensionFundId, s.PensionAmount)
		}
		if s.TrainingFundId != nil {
			plan.Owed[biz.BatchedFunds] = addShare(plan.Owed[biz.BatchedFunds], *s.TrainingFundId, s.TrainingFundAmount)
		}
	}

	tc := g.policy.TaxCategories
	items := []struct {
		description string
		expense     string
		recipient   string
		amount      decimal.Decimal
	}{
		{"Salary", tc.SalaryExpense, biz.BatchedEmployees, totals.net},
		{"Pension", tc.PensionExpense, biz.BatchedFunds, totals.pension},
		{"Training fund", tc.TrainingFundExpense, biz.BatchedFunds, totals.training},
		{"Social security", tc.SocialSecurityExpense, biz.SocialSecurity, totals.socialSecurity},
		{"Income tax", tc.IncomeTaxExpense, biz.TaxAuthority, totals.incomeTax},
	}
	for _, item := range items {
		if !item.amount.IsPositive() {
			continue
		}
		entry := models.LedgerEntryProto{
			ChargeId:               g.charge.ID,
			OwnerId:                g.charge.OwnerId,
			Currency:               g.policy.LocalCurrency,
			InvoiceDate:            date,
			ValueDate:              date,
			Description:            item.description + " " + date.Format("2006-01"),
			IsCreditorCounterparty: true,
		}
		amount := convertedAmount{Local: item.amount}
		setPair1(&entry, models.BusinessAccount(item.recipient), models.TaxCategoryAccount(item.expense), amount, amount)
		plan.LineItems.Entries = append(plan.LineItems.Entries, entry)
	}
	return plan
}

func addShare(shares []personShare, personId string, amount decimal.Decimal) []personShare {
	if !amount.IsPositive() {
		return shares
	}
	for i := range shares {
		if shares[i].PersonId == personId {
			shares[i].Amount = shares[i].Amount.Add(amount)
			return shares
		}
	}
	return append(shares, personShare{PersonId: personId, Amount: amount})
}

// salaryUnbatcher replaces entries booked against a batched business with one entry per
// real recipient.
type salaryUnbatcher struct {
	owed      map[string][]personShare
	paid      map[string]decimal.Decimal
	tolerance decimal.Decimal
}

// newSalaryUnbatcher records what each recipient already received through its own
// transactions, so bulk transfers are split over what is still unpaid.
func newSalaryUnbatcher(plan salaryPlan, main []models.Transaction, tolerance decimal.Decimal) salaryUnbatcher {
	paid := make(map[string]decimal.Decimal)
	for _, tx := range main {
		if tx.BusinessId == nil || !tx.Amount.IsNegative() {
			continue
		}
		paid[*tx.BusinessId] = paid[*tx.BusinessId].Add(tx.Amount.Neg())
	}
	return salaryUnbatcher{owed: plan.Owed, paid: paid, tolerance: tolerance}
}

func (u salaryUnbatcher) unpaid(batchedId string) []personShare {
	var out []personShare
	for _, s := range u.owed[batchedId] {
		rest := s.Amount.Sub(u.paid[s.PersonId])
		if rest.IsPositive() {
			out = append(out, personShare{PersonId: s.PersonId, Amount: rest})
		}
	}
	return out
}

// lineItems splits payroll line items by what each recipient is owed.
func (u salaryUnbatcher) lineItems(r EntriesResult) EntriesResult {
	return u.apply(r, func(batchedId string) []personShare { return u.owed[batchedId] })
}

// transactions splits bulk payments by what each recipient has not been paid directly.
func (u salaryUnbatcher) transactions(r EntriesResult) EntriesResult {
	return u.apply(r, u.unpaid)
}

func (u salaryUnbatcher) apply(r EntriesResult, weights func(batchedId string) []personShare) EntriesResult {
	out := EntriesResult{Errors: r.Errors}
	for _, e := range r.Entries {
		batchedId, ok := u.batchedSide(e)
		if !ok {
			out.Entries = append(out.Entries, e)
			continue
		}
		split, err := splitBatchedEntry(e, batchedId, weights(batchedId), u.tolerance)
		if err != nil {
			out.addError(err)
			continue
		}
		out.Entries = append(out.Entries, split...)
	}
	return out
}

func (u salaryUnbatcher) batchedSide(e models.LedgerEntryProto) (string, bool) {
	if e.CreditAccountID2 != nil || e.DebitAccountID2 != nil {
		return "", false
	}
	for _, acc := range []*models.CounterAccount{e.CreditAccountID1, e.DebitAccountID1} {
		if acc == nil || acc.IsTaxCategory {
			continue
		}
		if _, ok := u.owed[acc.Id]; ok {
			return acc.Id, true
		}
	}
	return "", false
}

// splitBatchedEntry divides e proportionally to shares, rounding to cents and leaving the
// remainder on the last recipient. The shares must add up to the entry amount.
func splitBatchedEntry(e models.LedgerEntryProto, batchedId string, shares []personShare, tolerance decimal.Decimal) ([]models.LedgerEntryProto, *LedgerError) {
	total := e.LocalCurrencyCreditAmount1
	owed := decimal.Zero
	for _, s := range shares {
		owed = owed.Add(s.Amount)
	}
	if len(shares) == 0 || owed.Sub(total).Abs().GreaterThan(tolerance) {
		return nil, ledgerErrorf("Unbatched total %s of %s does not match batched amount %s (%s)", owed.StringFixed(2), batchedId, total.StringFixed(2), e.Description)
	}

	var foreignTotal *decimal.Decimal
	if e.CreditAmount1 != nil {
		foreignTotal = e.CreditAmount1
	}

	out := make([]models.LedgerEntryProto, 0, len(shares))
	allocated, allocatedForeign := decimal.Zero, decimal.Zero
	for i, s := range shares {
		local := total.Mul(s.Amount).DivRound(owed, 2)
		var foreign decimal.Decimal
		if foreignTotal != nil {
			foreign = foreignTotal.Mul(s.Amount).DivRound(owed, 2)
		}
		if i == len(shares)-1 {
			local = total.Sub(allocated)
			if foreignTotal != nil {
				foreign = foreignTotal.Sub(allocatedForeign)
			}
		}
		allocated = allocated.Add(local)
		allocatedForeign = allocatedForeign.Add(foreign)

		part := e
		part.LocalCurrencyCreditAmount1 = local
		part.LocalCurrencyDebitAmount1 = local
		if foreignTotal != nil {
			f := foreign
			part.CreditAmount1 = &f
			part.DebitAmount1 = &f
		}
		person := models.BusinessAccount(s.PersonId)
		if e.CreditAccountID1 != nil && e.CreditAccountID1.Id == batchedId && !e.CreditAccountID1.IsTaxCategory {
			part.CreditAccountID1 = person
		} else {
			part.DebitAccountID1 = person
		}
		out = append(out, part)
	}
	return out, nil
}
