package workflow

import (
	"context"
	"strings"

	"github.com/mmdatafocus/books_ledger/models"
)

// miscExpenseEntries moves an itemized amount from the debtor to the creditor.
func (g *generation) miscExpenseEntries(ctx context.Context, expense models.MiscExpense) (EntriesResult, error) {
	switch {
	case strings.TrimSpace(expense.Currency) == "":
		return absorb(ledgerErrorf("Misc expense %s is missing currency", expense.ID))
	case expense.ValueDate.IsZero():
		return absorb(ledgerErrorf("Misc expense %s is missing value date", expense.ID))
	case expense.CreditorId == "" || expense.DebtorId == "":
		return absorb(ledgerErrorf("Misc expense %s is missing creditor or debtor", expense.ID))
	}

	conv, err := g.converter.toLocal(ctx, expense.Amount.Abs(), expense.Currency, expense.ValueDate)
	if err != nil {
		return absorb(err)
	}

	invoiceDate := expense.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = expense.ValueDate
	}
	description := expense.Description
	if description == "" {
		description = "Misc expense"
	}
	entry := models.LedgerEntryProto{
		ChargeId:               g.charge.ID,
		OwnerId:                g.charge.OwnerId,
		Currency:               strings.ToUpper(expense.Currency),
		InvoiceDate:            invoiceDate,
		ValueDate:              expense.ValueDate,
		Description:            description,
		Reference:              expense.TransactionId,
		IsCreditorCounterparty: expense.CreditorId != g.charge.OwnerId,
		CurrencyRate:           conv.Rate,
	}
	setPair1(&entry, models.BusinessAccount(expense.CreditorId), models.BusinessAccount(expense.DebtorId), conv, conv)
	return entriesOf(entry), nil
}
