package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func setPolicyEnv(t *testing.T) {
	t.Helper()
	for key, value := range map[string]string{
		"TAX_CATEGORY_FEE":                     "tc-fee",
		"TAX_CATEGORY_EXCHANGE_RATE":           "tc-xr",
		"TAX_CATEGORY_INCOME_EXCHANGE_RATE":    "tc-income-xr",
		"TAX_CATEGORY_INPUT_VAT":               "tc-input-vat",
		"TAX_CATEGORY_PROPERTY_INPUT_VAT":      "tc-property-vat",
		"TAX_CATEGORY_OUTPUT_VAT":              "tc-output-vat",
		"TAX_CATEGORY_BALANCE_CANCELLATION":    "tc-cancel",
		"TAX_CATEGORY_SALARY_EXPENSE":          "tc-salary",
		"TAX_CATEGORY_PENSION_EXPENSE":         "tc-pension",
		"TAX_CATEGORY_TRAINING_FUND_EXPENSE":   "tc-training",
		"TAX_CATEGORY_SOCIAL_SECURITY_EXPENSE": "tc-ss",
		"TAX_CATEGORY_INCOME_TAX_EXPENSE":      "tc-income-tax",
		"TAX_CATEGORY_BUSINESS_TRIP":           "tc-trip",
		"TAX_CATEGORY_BUSINESS_TRIP_TAXABLE":   "tc-trip-taxable",
		"BUSINESS_BATCHED_EMPLOYEES":           "b-employees",
		"BUSINESS_BATCHED_FUNDS":               "b-funds",
		"BUSINESS_SOCIAL_SECURITY":             "b-ss",
		"BUSINESS_TAX_AUTHORITY":               "b-tax",
	} {
		t.Setenv(key, value)
	}
}

func TestLoadLedgerPolicy_Defaults(t *testing.T) {
	setPolicyEnv(t)

	p, err := LoadLedgerPolicy()
	if err != nil {
		t.Fatalf("LoadLedgerPolicy: %v", err)
	}
	if p.LocalCurrency != "ILS" {
		t.Fatalf("local currency: expected ILS, got %s", p.LocalCurrency)
	}
	if !p.BalanceTolerance.Equal(decimal.RequireFromString("0.005")) {
		t.Fatalf("tolerance: got %s", p.BalanceTolerance)
	}
	if !p.SelfClosingThreshold.Equal(decimal.NewFromInt(60)) || !p.DocumentRequiredThreshold.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("thresholds: got %s / %s", p.SelfClosingThreshold, p.DocumentRequiredThreshold)
	}
	if p.TaxCategories.ExchangeRate != "tc-xr" || p.Businesses.BatchedFunds != "b-funds" {
		t.Fatalf("system ids not loaded: %+v %+v", p.TaxCategories, p.Businesses)
	}
}

func TestLoadLedgerPolicy_Overrides(t *testing.T) {
	setPolicyEnv(t)
	t.Setenv("LOCAL_CURRENCY", "eur")
	t.Setenv("BALANCE_TOLERANCE", "0.01")
	t.Setenv("CRYPTO_CURRENCIES", "btc, eth")
	t.Setenv("TRIP_DESTINATION_MULTIPLIERS", "us:1.2,CH:1.5")

	p, err := LoadLedgerPolicy()
	if err != nil {
		t.Fatalf("LoadLedgerPolicy: %v", err)
	}
	if p.LocalCurrency != "EUR" {
		t.Fatalf("expected EUR, got %s", p.LocalCurrency)
	}
	if !p.IsCrypto("btc") || p.IsCrypto("USD") {
		t.Fatalf("crypto list: %v", p.CryptoCurrencies)
	}
	if !p.DestinationMultiplier("US").Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("US multiplier: %s", p.DestinationMultiplier("US"))
	}
	if !p.DestinationMultiplier("FR").Equal(decimal.NewFromInt(1)) {
		t.Fatalf("default multiplier: %s", p.DestinationMultiplier("FR"))
	}
}

func TestLoadLedgerPolicy_MissingSystemIds(t *testing.T) {
	setPolicyEnv(t)
	t.Setenv("TAX_CATEGORY_EXCHANGE_RATE", "")

	if _, err := LoadLedgerPolicy(); err == nil {
		t.Fatalf("expected validation error for missing exchange-rate tax category")
	}
}

func TestLoadLedgerPolicy_BadDecimal(t *testing.T) {
	setPolicyEnv(t)
	t.Setenv("BALANCE_TOLERANCE", "half a cent")

	if _, err := LoadLedgerPolicy(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWithinTolerance(t *testing.T) {
	p := DefaultLedgerPolicy()
	cases := []struct {
		amount string
		want   bool
	}{
		{"0", true},
		{"0.005", true},
		{"-0.005", true},
		{"0.006", false},
		{"-0.006", false},
	}
	for _, tc := range cases {
		if got := p.WithinTolerance(decimal.RequireFromString(tc.amount)); got != tc.want {
			t.Fatalf("WithinTolerance(%s): expected %v, got %v", tc.amount, tc.want, got)
		}
	}
}
