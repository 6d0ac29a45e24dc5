package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CounterAccount is one side of a ledger entry: a business or a tax category.
type CounterAccount struct {
	Id            string `json:"id"`
	IsTaxCategory bool   `json:"is_tax_category"`
}

func BusinessAccount(id string) *CounterAccount {
	return &CounterAccount{Id: id}
}

func TaxCategoryAccount(id string) *CounterAccount {
	return &CounterAccount{Id: id, IsTaxCategory: true}
}

// LedgerEntryProto is a double-entry line before persistence. Each account slot carries
// a local-currency amount and, for foreign-currency entries, the amount in Currency.
type LedgerEntryProto struct {
	ChargeId string `json:"charge_id"`
	OwnerId  string `json:"owner_id"`

	CreditAccountID1           *CounterAccount  `json:"credit_account_id_1,omitempty"`
	CreditAmount1              *decimal.Decimal `json:"credit_amount_1,omitempty"`
	LocalCurrencyCreditAmount1 decimal.Decimal  `json:"local_currency_credit_amount_1"`
	DebitAccountID1            *CounterAccount  `json:"debit_account_id_1,omitempty"`
	DebitAmount1               *decimal.Decimal `json:"debit_amount_1,omitempty"`
	LocalCurrencyDebitAmount1  decimal.Decimal  `json:"local_currency_debit_amount_1"`

	CreditAccountID2           *CounterAccount  `json:"credit_account_id_2,omitempty"`
	CreditAmount2              *decimal.Decimal `json:"credit_amount_2,omitempty"`
	LocalCurrencyCreditAmount2 decimal.Decimal  `json:"local_currency_credit_amount_2"`
	DebitAccountID2            *CounterAccount  `json:"debit_account_id_2,omitempty"`
	DebitAmount2               *decimal.Decimal `json:"debit_amount_2,omitempty"`
	LocalCurrencyDebitAmount2  decimal.Decimal  `json:"local_currency_debit_amount_2"`

	Currency               string           `json:"currency"`
	InvoiceDate            time.Time        `json:"invoice_date"`
	ValueDate              time.Time        `json:"value_date"`
	Description            string           `json:"description"`
	Reference              string           `json:"reference"`
	IsCreditorCounterparty bool             `json:"is_creditor_counterparty"`
	CurrencyRate           *decimal.Decimal `json:"currency_rate,omitempty"`
}

// EntrySide is one populated account slot of an entry.
type EntrySide struct {
	Account  CounterAccount
	Local    decimal.Decimal
	Foreign  *decimal.Decimal
	IsCredit bool
}

// Sides lists the populated slots in credit1, debit1, credit2, debit2 order.
func (e LedgerEntryProto) Sides() []EntrySide {
	sides := make([]EntrySide, 0, 4)
	add := func(acc *CounterAccount, local decimal.Decimal, foreign *decimal.Decimal, credit bool) {
		if acc == nil {
			return
		}
		sides = append(sides, EntrySide{Account: *acc, Local: local, Foreign: foreign, IsCredit: credit})
	}
	add(e.CreditAccountID1, e.LocalCurrencyCreditAmount1, e.CreditAmount1, true)
	add(e.DebitAccountID1, e.LocalCurrencyDebitAmount1, e.DebitAmount1, false)
	add(e.CreditAccountID2, e.LocalCurrencyCreditAmount2, e.CreditAmount2, true)
	add(e.DebitAccountID2, e.LocalCurrencyDebitAmount2, e.DebitAmount2, false)
	return sides
}

func (e LedgerEntryProto) LocalCreditTotal() decimal.Decimal {
	total := decimal.Zero
	for _, s := range e.Sides() {
		if s.IsCredit {
			total = total.Add(s.Local)
		}
	}
	return total
}

func (e LedgerEntryProto) LocalDebitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, s := range e.Sides() {
		if !s.IsCredit {
			total = total.Add(s.Local)
		}
	}
	return total
}

// CanonicalKey is a stable textual form of the entry content, independent of decimal
// exponent and time zone.
func (e LedgerEntryProto) CanonicalKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|", e.ChargeId, e.OwnerId, strings.ToUpper(e.Currency))
	for _, s := range e.Sides() {
		foreign := "-"
		if s.Foreign != nil {
			foreign = s.Foreign.String()
		}
		fmt.Fprintf(&b, "%t:%s:%t:%s:%s|", s.IsCredit, s.Account.Id, s.Account.IsTaxCategory, s.Local.String(), foreign)
	}
	rate := "-"
	if e.CurrencyRate != nil {
		rate = e.CurrencyRate.String()
	}
	fmt.Fprintf(&b, "%s|%s|%s|%s|%t|%s",
		e.InvoiceDate.UTC().Format(time.RFC3339),
		e.ValueDate.UTC().Format(time.RFC3339),
		e.Description,
		e.Reference,
		e.IsCreditorCounterparty,
		rate,
	)
	return b.String()
}
