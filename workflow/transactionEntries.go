package workflow

import (
	"context"
	"strings"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
)

// isSelfClosing reports a single small main transaction without a counterparty, which is
// booked entirely against the charge's own tax category.
func isSelfClosing(split feeSplit, threshold decimal.Decimal) bool {
	if len(split.Main) != 1 {
		return false
	}
	tx := split.Main[0]
	return tx.BusinessId == nil && tx.Amount.Abs().LessThan(threshold)
}

// mainTransactionEntries books a main transaction against its counterparty business, or
// against the charge tax category when the charge is self-closing.
func (g *generation) mainTransactionEntries(ctx context.Context, tx models.Transaction) (EntriesResult, error) {
	if err := validateTransaction(tx); err != nil {
		return absorb(err)
	}

	var counterparty *models.CounterAccount
	switch {
	case tx.BusinessId != nil:
		counterparty = models.BusinessAccount(*tx.BusinessId)
	case g.selfClosing && g.chargeTaxCategory != "":
		counterparty = models.TaxCategoryAccount(g.chargeTaxCategory)
	default:
		return absorb(ledgerErrorf("Transaction %s is missing business", tx.ID))
	}

	accountTaxCategory, err := g.financialAccountTaxCategory(ctx, tx)
	if err != nil {
		return absorb(err)
	}
	entry, err := g.movementEntry(ctx, tx, counterparty, accountTaxCategory, tx.SourceDescription)
	if err != nil {
		return absorb(err)
	}
	return entriesOf(entry), nil
}

// feeTransactionEntries books a supplemental fee against the business of its sibling and
// the sibling's account tax category; a standalone fee goes to the fee tax category.
func (g *generation) feeTransactionEntries(ctx context.Context, fee classifiedFee) (EntriesResult, error) {
	tx := fee.Tx
	if err := validateTransaction(tx); err != nil {
		return absorb(err)
	}

	counterparty := models.TaxCategoryAccount(g.policy.TaxCategories.Fee)
	accountSource := tx
	if fee.isSupplemental() {
		counterparty = models.BusinessAccount(*fee.Sibling.BusinessId)
		accountSource = *fee.Sibling
	}

	accountTaxCategory, err := g.financialAccountTaxCategory(ctx, accountSource)
	if err != nil {
		return absorb(err)
	}
	description := "Fee"
	if tx.SourceDescription != "" {
		description = "Fee: " + tx.SourceDescription
	}
	entry, err := g.movementEntry(ctx, tx, counterparty, accountTaxCategory, description)
	if err != nil {
		return absorb(err)
	}
	return entriesOf(entry), nil
}

func validateTransaction(tx models.Transaction) error {
	if strings.TrimSpace(tx.Currency) == "" {
		return ledgerErrorf("Transaction %s is missing currency", tx.ID)
	}
	if tx.DebitDate == nil {
		return ledgerErrorf("Transaction %s is missing debit date", tx.ID)
	}
	return nil
}

func (g *generation) financialAccountTaxCategory(ctx context.Context, tx models.Transaction) (string, error) {
	id, err := g.deps.TaxCategories.ResolveFinancialAccountTaxCategory(ctx, tx)
	if err != nil {
		if isNotFound(err) {
			return "", ledgerErrorf("Financial account %s has no tax category for %s (transaction %s)", tx.FinancialAccountId, strings.ToUpper(tx.Currency), tx.ID)
		}
		return "", err
	}
	return id, nil
}

// movementEntry: money in credits the counterparty and debits the account's tax category,
// money out the reverse.
func (g *generation) movementEntry(ctx context.Context, tx models.Transaction, counterparty *models.CounterAccount, accountTaxCategory, description string) (models.LedgerEntryProto, error) {
	conv, err := g.converter.toLocal(ctx, tx.Amount.Abs(), tx.Currency, tx.ConversionDate())
	if err != nil {
		return models.LedgerEntryProto{}, err
	}
	account := models.TaxCategoryAccount(accountTaxCategory)
	moneyIn := tx.Amount.IsPositive()

	entry := models.LedgerEntryProto{
		ChargeId:               g.charge.ID,
		OwnerId:                g.charge.OwnerId,
		Currency:               strings.ToUpper(tx.Currency),
		InvoiceDate:            tx.EventDate,
		ValueDate:              *tx.DebitDate,
		Description:            description,
		Reference:              tx.SourceReference,
		IsCreditorCounterparty: moneyIn,
		CurrencyRate:           conv.Rate,
	}
	if moneyIn {
		setPair1(&entry, counterparty, account, conv, conv)
	} else {
		setPair1(&entry, account, counterparty, conv, conv)
	}
	return entry, nil
}

func setPair1(e *models.LedgerEntryProto, credit, debit *models.CounterAccount, creditAmount, debitAmount convertedAmount) {
	e.CreditAccountID1 = credit
	e.CreditAmount1 = creditAmount.Foreign
	e.LocalCurrencyCreditAmount1 = creditAmount.Local
	e.DebitAccountID1 = debit
	e.DebitAmount1 = debitAmount.Foreign
	e.LocalCurrencyDebitAmount1 = debitAmount.Local
}
