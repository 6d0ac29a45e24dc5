package middlewares

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/books_ledger/appctx"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Loaders batch the lookups that many concurrent generators issue for one charge.
// A fresh set is attached per generation call so cached results never outlive it.
type Loaders struct {
	ExchangeRateLoader *dataloader.Loader[models.ExchangeRateKey, decimal.Decimal]
	BusinessLoader     *dataloader.Loader[string, *models.Business]
}

func NewLoaders(conn *gorm.DB) *Loaders {
	exchangeRateReader := &exchangeRateReader{provider: models.NewExchangeRateProvider(conn)}
	businessReader := &businessReader{provider: models.NewBusinessProvider(conn)}

	return &Loaders{
		ExchangeRateLoader: dataloader.NewBatchedLoader(exchangeRateReader.getExchangeRates, dataloader.WithWait[models.ExchangeRateKey, decimal.Decimal](time.Millisecond)),
		BusinessLoader:     dataloader.NewBatchedLoader(businessReader.getBusinesses, dataloader.WithWait[string, *models.Business](time.Millisecond)),
	}
}

// WithLoaders returns ctx carrying a new set of loaders backed by conn.
func WithLoaders(ctx context.Context, conn *gorm.DB) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyLoaders, NewLoaders(conn))
}

// For returns the loaders attached to ctx, or nil.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(appctx.ContextKeyLoaders).(*Loaders)
	return loaders
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}
