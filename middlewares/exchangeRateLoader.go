package middlewares

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
)

type exchangeRateReader struct {
	provider *models.ExchangeRateProvider
}

func (r *exchangeRateReader) getExchangeRates(ctx context.Context, keys []models.ExchangeRateKey) []*dataloader.Result[decimal.Decimal] {
	rates, errs := r.provider.GetExchangeRates(ctx, keys)
	results := make([]*dataloader.Result[decimal.Decimal], len(keys))
	for i := range keys {
		results[i] = &dataloader.Result[decimal.Decimal]{Data: rates[i], Error: errs[i]}
	}
	return results
}

// ExchangeRates serves exchange rates through the loaders on the context, falling back
// to Fallback (typically the redis-cached provider) when none are attached.
type ExchangeRates struct {
	Fallback *models.ExchangeRateProvider
}

func (s ExchangeRates) GetExchangeRate(ctx context.Context, currency, target string, date time.Time) (decimal.Decimal, error) {
	key := models.NewExchangeRateKey(currency, target, date)
	if key.Currency == key.Target {
		return decimal.NewFromInt(1), nil
	}
	loaders := For(ctx)
	if loaders == nil {
		return s.Fallback.GetExchangeRate(ctx, currency, target, date)
	}
	return loaders.ExchangeRateLoader.Load(ctx, key)()
}
