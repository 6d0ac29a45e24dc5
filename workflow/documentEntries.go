package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
)

// relevantDocuments keeps invoice-class documents. Receipts count only when the charge or
// its business settles with receipts and no invoice-class document exists.
func relevantDocuments(docs []models.Document, canSettleWithReceipt bool) []models.Document {
	var invoices, receipts []models.Document
	for _, d := range docs {
		switch d.Kind {
		case models.DocumentKindInvoice, models.DocumentKindInvoiceReceipt, models.DocumentKindCreditInvoice:
			invoices = append(invoices, d)
		case models.DocumentKindReceipt:
			receipts = append(receipts, d)
		case models.DocumentKindProforma, models.DocumentKindUnprocessed:
		}
	}
	if len(invoices) > 0 {
		return invoices
	}
	if canSettleWithReceipt {
		return receipts
	}
	return nil
}

// documentEntries books a document against the charge tax category. When the owner is
// the debtor the counterparty is credited with the total and the net plus input VAT are
// debited; otherwise the counterparty is debited and net plus output VAT credited.
// Credit invoices swap the sides.
func (g *generation) documentEntries(ctx context.Context, doc models.Document) (EntriesResult, error) {
	label := doc.Label()
	switch {
	case doc.Date == nil:
		return absorb(ledgerErrorf("Document %s is missing date", label))
	case doc.Amount == nil:
		return absorb(ledgerErrorf("Document %s is missing amount", label))
	case strings.TrimSpace(doc.Currency) == "":
		return absorb(ledgerErrorf("Document %s is missing currency", label))
	case doc.DebtorId == nil || doc.CreditorId == nil:
		return absorb(ledgerErrorf("Document %s is missing debtor or creditor", label))
	}

	var counterparty string
	var ownerIsDebtor bool
	switch g.charge.OwnerId {
	case *doc.DebtorId:
		counterparty, ownerIsDebtor = *doc.CreditorId, true
	case *doc.CreditorId:
		counterparty, ownerIsDebtor = *doc.DebtorId, false
	default:
		return absorb(ledgerErrorf("Document %s does not involve owner %s", label, g.charge.OwnerId))
	}

	if g.chargeTaxCategory == "" {
		return absorb(ledgerErrorf("Document %s: tax category of charge %s is unresolved", label, g.charge.ID))
	}

	total := doc.Amount.Abs()
	vat := decimal.Zero
	if doc.VatAmount != nil {
		vat = doc.VatAmount.Abs()
	}
	if vat.GreaterThan(total) {
		return absorb(ledgerErrorf("Document %s: VAT %s exceeds total %s", label, vat, total))
	}

	totalConv, err := g.converter.toLocal(ctx, total, doc.Currency, *doc.Date)
	if err != nil {
		return absorb(err)
	}
	vatConv := scaleConverted(totalConv, vat)
	netConv := subtractConverted(totalConv, vatConv)

	vatCategory := g.policy.TaxCategories.OutputVat
	if ownerIsDebtor {
		vatCategory = g.policy.TaxCategories.InputVat
		if g.charge.IsProperty {
			vatCategory = g.policy.TaxCategories.PropertyInputVat
		}
	}

	counterpartyIsCredit := ownerIsDebtor
	if doc.Kind == models.DocumentKindCreditInvoice {
		counterpartyIsCredit = !counterpartyIsCredit
	}

	entry := models.LedgerEntryProto{
		ChargeId:               g.charge.ID,
		OwnerId:                g.charge.OwnerId,
		Currency:               strings.ToUpper(doc.Currency),
		InvoiceDate:            *doc.Date,
		ValueDate:              *doc.Date,
		Description:            documentDescription(doc),
		Reference:              doc.SerialNumber,
		IsCreditorCounterparty: counterpartyIsCredit,
		CurrencyRate:           totalConv.Rate,
	}
	business := models.BusinessAccount(counterparty)
	chargeCategory := models.TaxCategoryAccount(g.chargeTaxCategory)
	hasVat := vat.IsPositive()

	if counterpartyIsCredit {
		setPair1(&entry, business, chargeCategory, totalConv, netConv)
		if hasVat {
			entry.DebitAccountID2 = models.TaxCategoryAccount(vatCategory)
			entry.DebitAmount2 = vatConv.Foreign
			entry.LocalCurrencyDebitAmount2 = vatConv.Local
		}
	} else {
		setPair1(&entry, chargeCategory, business, netConv, totalConv)
		if hasVat {
			entry.CreditAccountID2 = models.TaxCategoryAccount(vatCategory)
			entry.CreditAmount2 = vatConv.Foreign
			entry.LocalCurrencyCreditAmount2 = vatConv.Local
		}
	}
	return entriesOf(entry), nil
}

func documentDescription(doc models.Document) string {
	if doc.Description != "" {
		return doc.Description
	}
	kind := strings.ToLower(strings.ReplaceAll(string(doc.Kind), "_", " "))
	if doc.SerialNumber == "" {
		return kind
	}
	return fmt.Sprintf("%s %s", kind, doc.SerialNumber)
}

// scaleConverted converts part of an already converted amount at the same rate.
func scaleConverted(base convertedAmount, part decimal.Decimal) convertedAmount {
	if !base.isForeign() {
		return convertedAmount{Local: part}
	}
	foreign := part
	return convertedAmount{Local: part.Mul(*base.Rate).Round(2), Foreign: &foreign, Rate: base.Rate}
}

// subtractConverted keeps local amounts additive: base.Local == result.Local + part.Local.
func subtractConverted(base, part convertedAmount) convertedAmount {
	out := convertedAmount{Local: base.Local.Sub(part.Local), Rate: base.Rate}
	if base.isForeign() {
		foreign := base.Foreign.Sub(*part.Foreign)
		out.Foreign = &foreign
	}
	return out
}
