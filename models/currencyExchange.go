package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/books_ledger/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrExchangeRateNotFound = errors.New("exchange rate not found")

// rates older than this are not used for a conversion date
const exchangeRateLookback = 7 * 24 * time.Hour

// CurrencyExchange is one quoted rate: 1 Currency = ExchangeRate TargetCurrency.
type CurrencyExchange struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Currency       string          `gorm:"size:8;not null;index:idx_exchange_pair" json:"currency"`
	TargetCurrency string          `gorm:"size:8;not null;index:idx_exchange_pair" json:"target_currency"`
	ExchangeDate   time.Time       `gorm:"not null;index:idx_exchange_pair" json:"exchange_date"`
	ExchangeRate   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"exchange_rate"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ExchangeRateKey identifies a lookup; Date is normalized to midnight UTC.
type ExchangeRateKey struct {
	Currency string
	Target   string
	Date     time.Time
}

func NewExchangeRateKey(currency, target string, date time.Time) ExchangeRateKey {
	d := date.UTC()
	return ExchangeRateKey{
		Currency: strings.ToUpper(currency),
		Target:   strings.ToUpper(target),
		Date:     time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
	}
}

func (k ExchangeRateKey) cacheKey() string {
	return fmt.Sprintf("ExchangeRate:%s:%s:%s", k.Currency, k.Target, k.Date.Format("2006-01-02"))
}

func (k ExchangeRateKey) notFound() error {
	return fmt.Errorf("%w: %s to %s on %s", ErrExchangeRateNotFound, k.Currency, k.Target, k.Date.Format("2006-01-02"))
}

type ExchangeRateProvider struct {
	db *gorm.DB
}

func NewExchangeRateProvider(db *gorm.DB) *ExchangeRateProvider {
	return &ExchangeRateProvider{db: db}
}

// GetExchangeRate is read-through cached in redis when a client is connected.
func (p *ExchangeRateProvider) GetExchangeRate(ctx context.Context, currency, target string, date time.Time) (decimal.Decimal, error) {
	key := NewExchangeRateKey(currency, target, date)
	if key.Currency == key.Target {
		return decimal.NewFromInt(1), nil
	}

	var cached decimal.Decimal
	if ok, err := config.GetRedisObject(ctx, key.cacheKey(), &cached); err == nil && ok {
		return cached, nil
	}

	rates, errs := p.GetExchangeRates(ctx, []ExchangeRateKey{key})
	if errs[0] != nil {
		return decimal.Zero, errs[0]
	}
	if err := config.SetRedisObject(ctx, key.cacheKey(), rates[0], config.GetCacheLifespan()); err != nil {
		config.GetLogger().WithError(err).Warn("exchange rate cache write failed")
	}
	return rates[0], nil
}

// GetExchangeRates resolves keys in one query per currency pair. Each key takes the most
// recent rate on or before its date within the lookback window; an inverse quote is used
// when the direct pair is missing.
func (p *ExchangeRateProvider) GetExchangeRates(ctx context.Context, keys []ExchangeRateKey) ([]decimal.Decimal, []error) {
	rates := make([]decimal.Decimal, len(keys))
	errs := make([]error, len(keys))

	type pair struct{ a, b string }
	byPair := make(map[pair][]int)
	for i, k := range keys {
		if k.Currency == k.Target {
			rates[i] = decimal.NewFromInt(1)
			continue
		}
		pr := pair{k.Currency, k.Target}
		if pr.b < pr.a {
			pr = pair{pr.b, pr.a}
		}
		byPair[pr] = append(byPair[pr], i)
	}

	for pr, idxs := range byPair {
		from, to := keys[idxs[0]].Date, keys[idxs[0]].Date
		for _, i := range idxs {
			if keys[i].Date.Before(from) {
				from = keys[i].Date
			}
			if keys[i].Date.After(to) {
				to = keys[i].Date
			}
		}

		var rows []CurrencyExchange
		err := p.db.WithContext(ctx).
			Where("((currency = ? AND target_currency = ?) OR (currency = ? AND target_currency = ?))", pr.a, pr.b, pr.b, pr.a).
			Where("exchange_date >= ? AND exchange_date < ?", from.Add(-exchangeRateLookback), to.Add(24*time.Hour)).
			Find(&rows).Error
		if err != nil {
			for _, i := range idxs {
				errs[i] = err
			}
			continue
		}
		sort.Slice(rows, func(x, y int) bool { return rows[x].ExchangeDate.After(rows[y].ExchangeDate) })

		for _, i := range idxs {
			rate, ok := pickRate(rows, keys[i])
			if !ok {
				errs[i] = keys[i].notFound()
				continue
			}
			rates[i] = rate
		}
	}
	return rates, errs
}

// rows must be sorted newest first
func pickRate(rows []CurrencyExchange, key ExchangeRateKey) (decimal.Decimal, bool) {
	end := key.Date.Add(24 * time.Hour)
	start := key.Date.Add(-exchangeRateLookback)
	var inverse *CurrencyExchange
	for i := range rows {
		r := rows[i]
		if !r.ExchangeDate.Before(end) || r.ExchangeDate.Before(start) || r.ExchangeRate.IsZero() {
			continue
		}
		if strings.EqualFold(r.Currency, key.Currency) {
			return r.ExchangeRate, true
		}
		if inverse == nil {
			inverse = &rows[i]
		}
	}
	if inverse != nil {
		return decimal.NewFromInt(1).DivRound(inverse.ExchangeRate, 8), true
	}
	return decimal.Zero, false
}
