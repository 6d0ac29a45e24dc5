package middlewares

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/books_ledger/config"
	"github.com/mmdatafocus/books_ledger/models"
	"github.com/mmdatafocus/books_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenSqlite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestExchangeRates_ConcurrentLoads(t *testing.T) {
	db := newTestDB(t)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Create(&models.CurrencyExchange{Currency: "USD", TargetCurrency: "ILS", ExchangeDate: date, ExchangeRate: decimal.RequireFromString("3.7")}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx := WithLoaders(context.Background(), db)
	src := ExchangeRates{Fallback: models.NewExchangeRateProvider(db)}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	rates := make([]decimal.Decimal, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rates[i], errs[i] = src.GetExchangeRate(ctx, "USD", "ILS", date.Add(time.Duration(i)*time.Hour))
		}(i)
	}
	wg.Wait()

	for i := range rates {
		if errs[i] != nil {
			t.Fatalf("load %d: %v", i, errs[i])
		}
		if !rates[i].Equal(decimal.RequireFromString("3.7")) {
			t.Fatalf("load %d: expected 3.7, got %s", i, rates[i])
		}
	}

	if _, err := src.GetExchangeRate(ctx, "CHF", "ILS", date); !errors.Is(err, models.ErrExchangeRateNotFound) {
		t.Fatalf("expected ErrExchangeRateNotFound, got %v", err)
	}
}

func TestExchangeRates_WithoutLoaders(t *testing.T) {
	db := newTestDB(t)
	src := ExchangeRates{Fallback: models.NewExchangeRateProvider(db)}
	rate, err := src.GetExchangeRate(context.Background(), "ILS", "ils", time.Now())
	if err != nil || !rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("identity: %s %v", rate, err)
	}
}

func TestBusinesses_NotFound(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&models.Business{ID: "b-1", Name: "Acme", NoInvoicesRequired: true}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	ctx := WithLoaders(context.Background(), db)
	src := Businesses{Fallback: models.NewBusinessProvider(db)}

	b, err := src.GetBusiness(ctx, "b-1")
	if err != nil || !b.NoInvoicesRequired {
		t.Fatalf("b-1: %+v %v", b, err)
	}
	if _, err := src.GetBusiness(ctx, "b-2"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound, got %v", err)
	}
}
