package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/books_ledger/config"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
)

// convertedAmount holds the local equivalent of an amount. Foreign and Rate are nil when
// the amount already was in local currency.
type convertedAmount struct {
	Local   decimal.Decimal
	Foreign *decimal.Decimal
	Rate    *decimal.Decimal
}

func (c convertedAmount) isForeign() bool { return c.Foreign != nil }

type currencyConverter struct {
	rates  ExchangeRateSource
	policy config.LedgerPolicy
}

func (c currencyConverter) isLocal(currency string) bool {
	return strings.EqualFold(currency, c.policy.LocalCurrency)
}

// rate returns local units per unit of currency. Crypto is quoted through the reference
// currency: crypto->reference times reference->local.
func (c currencyConverter) rate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)
	if c.isLocal(currency) {
		return decimal.NewFromInt(1), nil
	}
	if c.policy.IsCrypto(currency) {
		toReference, err := c.lookup(ctx, currency, c.policy.CryptoReferenceCurrency, date)
		if err != nil {
			return decimal.Zero, err
		}
		referenceToLocal, err := c.lookup(ctx, c.policy.CryptoReferenceCurrency, c.policy.LocalCurrency, date)
		if err != nil {
			return decimal.Zero, err
		}
		return toReference.Mul(referenceToLocal), nil
	}
	return c.lookup(ctx, currency, c.policy.LocalCurrency, date)
}

func (c currencyConverter) lookup(ctx context.Context, currency, target string, date time.Time) (decimal.Decimal, error) {
	if strings.EqualFold(currency, target) {
		return decimal.NewFromInt(1), nil
	}
	r, err := c.rates.GetExchangeRate(ctx, currency, target, date)
	if err != nil {
		if errors.Is(err, models.ErrExchangeRateNotFound) {
			return decimal.Zero, ledgerErrorf("Exchange rate for %s to %s on %s is missing", currency, target, date.Format("2006-01-02"))
		}
		return decimal.Zero, err
	}
	if !r.IsPositive() {
		return decimal.Zero, ledgerErrorf("Exchange rate for %s to %s on %s is not positive", currency, target, date.Format("2006-01-02"))
	}
	return r, nil
}

// toLocal converts amount, rounding the local result to cents.
func (c currencyConverter) toLocal(ctx context.Context, amount decimal.Decimal, currency string, date time.Time) (convertedAmount, error) {
	if c.isLocal(currency) {
		return convertedAmount{Local: amount}, nil
	}
	r, err := c.rate(ctx, currency, date)
	if err != nil {
		return convertedAmount{}, err
	}
	foreign := amount
	return convertedAmount{
		Local:   amount.Mul(r).Round(2),
		Foreign: &foreign,
		Rate:    &r,
	}, nil
}
