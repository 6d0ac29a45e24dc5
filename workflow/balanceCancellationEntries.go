package workflow

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/books_ledger/models"
)

// balanceCancellationEntry zeroes the current balance of a business against the balance
// cancellation tax category. The anchor is the first financial account entry of the charge
// and supplies dates and currency.
func (g *generation) balanceCancellationEntry(cancellation models.BalanceCancellation, tracker *BalanceTracker, anchor *models.LedgerEntryProto) (EntriesResult, error) {
	balance, ok := tracker.Get(cancellation.BusinessId)
	if !ok || g.policy.WithinTolerance(balance.Amount) {
		return absorb(ledgerErrorf("Balance cancellation for business %s is redundant: business is already balanced", cancellation.BusinessId))
	}
	if anchor == nil {
		return absorb(ledgerErrorf("Balance cancellation for business %s has no financial account entry to anchor on", cancellation.BusinessId))
	}

	description := "Balance cancellation"
	if cancellation.Description != "" {
		description = fmt.Sprintf("Balance cancellation: %s", cancellation.Description)
	}
	entry := models.LedgerEntryProto{
		ChargeId:    g.charge.ID,
		OwnerId:     g.charge.OwnerId,
		Currency:    g.policy.LocalCurrency,
		InvoiceDate: anchor.InvoiceDate,
		ValueDate:   anchor.ValueDate,
		Description: description,
		Reference:   cancellation.ID,
	}

	amount := convertedAmount{Local: balance.Amount.Abs()}
	anchorCurrency := strings.ToUpper(anchor.Currency)
	exposure := balance.ForeignExposure(g.policy.LocalCurrency, g.policy.BalanceTolerance)
	if len(exposure) == 1 && exposure[0] == anchorCurrency {
		foreign := balance.Currencies[anchorCurrency].Foreign.Abs()
		amount.Foreign = &foreign
		entry.Currency = anchorCurrency
	}

	business := models.BusinessAccount(cancellation.BusinessId)
	category := models.TaxCategoryAccount(g.policy.TaxCategories.BalanceCancellation)
	if balance.Amount.IsPositive() {
		setPair1(&entry, category, business, amount, amount)
	} else {
		setPair1(&entry, business, category, amount, amount)
		entry.IsCreditorCounterparty = true
	}
	return entriesOf(entry), nil
}
