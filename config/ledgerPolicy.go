package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SystemTaxCategories are the tax categories the engine books against when no real
// counterparty applies.
type SystemTaxCategories struct {
	Fee                   string `validate:"required"`
	ExchangeRate          string `validate:"required"`
	IncomeExchangeRate    string `validate:"required"`
	InputVat              string `validate:"required"`
	PropertyInputVat      string `validate:"required"`
	OutputVat             string `validate:"required"`
	BalanceCancellation   string `validate:"required"`
	SalaryExpense         string `validate:"required"`
	PensionExpense        string `validate:"required"`
	TrainingFundExpense   string `validate:"required"`
	SocialSecurityExpense string `validate:"required"`
	IncomeTaxExpense      string `validate:"required"`
	BusinessTrip          string `validate:"required"`
	BusinessTripTaxable   string `validate:"required"`
}

// SystemBusinesses are well-known counterparties used by payroll charges.
type SystemBusinesses struct {
	BatchedEmployees string `validate:"required"`
	BatchedFunds     string `validate:"required"`
	SocialSecurity   string `validate:"required"`
	TaxAuthority     string `validate:"required"`
}

// BusinessTripCaps are statutory daily/nightly allowances, quoted in the crypto reference
// currency (USD) and converted to local currency at the trip's end date.
type BusinessTripCaps struct {
	AccommodationNightlyCap   decimal.Decimal
	ReducedRateNightThreshold int `validate:"gte=0"`
	ReducedRateRatio          decimal.Decimal
	TravelSubsistenceDailyCap decimal.Decimal
	UnaccommodatedDayExtra    decimal.Decimal
	DestinationMultipliers    map[string]decimal.Decimal
}

// LedgerPolicy holds every jurisdiction-specific constant the ledger engine depends on.
type LedgerPolicy struct {
	LocalCurrency             string `validate:"required,len=3,uppercase"`
	CryptoReferenceCurrency   string `validate:"required,len=3,uppercase"`
	CryptoCurrencies          []string
	BalanceTolerance          decimal.Decimal
	SelfClosingThreshold      decimal.Decimal
	DocumentRequiredThreshold decimal.Decimal
	TaxCategories             SystemTaxCategories
	Businesses                SystemBusinesses
	BusinessTrip              BusinessTripCaps
}

var policyValidate = validator.New()

// DefaultLedgerPolicy carries the numeric defaults; system ids must still be supplied.
func DefaultLedgerPolicy() LedgerPolicy {
	return LedgerPolicy{
		LocalCurrency:             "ILS",
		CryptoReferenceCurrency:   "USD",
		CryptoCurrencies:          []string{"ETH", "GRT", "USDC"},
		BalanceTolerance:          decimal.RequireFromString("0.005"),
		SelfClosingThreshold:      decimal.NewFromInt(60),
		DocumentRequiredThreshold: decimal.NewFromInt(1000),
		BusinessTrip: BusinessTripCaps{
			AccommodationNightlyCap:   decimal.NewFromInt(335),
			ReducedRateNightThreshold: 7,
			ReducedRateRatio:          decimal.RequireFromString("0.75"),
			TravelSubsistenceDailyCap: decimal.NewFromInt(130),
			UnaccommodatedDayExtra:    decimal.NewFromInt(35),
			DestinationMultipliers:    map[string]decimal.Decimal{},
		},
	}
}

// LoadLedgerPolicy reads the policy from the environment on top of DefaultLedgerPolicy.
func LoadLedgerPolicy() (LedgerPolicy, error) {
	p := DefaultLedgerPolicy()

	p.LocalCurrency = stringFromEnv("LOCAL_CURRENCY", p.LocalCurrency)
	p.CryptoReferenceCurrency = stringFromEnv("CRYPTO_REFERENCE_CURRENCY", p.CryptoReferenceCurrency)
	if raw := strings.TrimSpace(os.Getenv("CRYPTO_CURRENCIES")); raw != "" {
		p.CryptoCurrencies = splitList(raw)
	}

	var err error
	if p.BalanceTolerance, err = decimalFromEnv("BALANCE_TOLERANCE", p.BalanceTolerance); err != nil {
		return p, err
	}
	if p.SelfClosingThreshold, err = decimalFromEnv("SELF_CLOSING_THRESHOLD", p.SelfClosingThreshold); err != nil {
		return p, err
	}
	if p.DocumentRequiredThreshold, err = decimalFromEnv("DOCUMENT_REQUIRED_THRESHOLD", p.DocumentRequiredThreshold); err != nil {
		return p, err
	}

	p.TaxCategories = SystemTaxCategories{
		Fee:                   os.Getenv("TAX_CATEGORY_FEE"),
		ExchangeRate:          os.Getenv("TAX_CATEGORY_EXCHANGE_RATE"),
		IncomeExchangeRate:    os.Getenv("TAX_CATEGORY_INCOME_EXCHANGE_RATE"),
		InputVat:              os.Getenv("TAX_CATEGORY_INPUT_VAT"),
		PropertyInputVat:      os.Getenv("TAX_CATEGORY_PROPERTY_INPUT_VAT"),
		OutputVat:             os.Getenv("TAX_CATEGORY_OUTPUT_VAT"),
		BalanceCancellation:   os.Getenv("TAX_CATEGORY_BALANCE_CANCELLATION"),
		SalaryExpense:         os.Getenv("TAX_CATEGORY_SALARY_EXPENSE"),
		PensionExpense:        os.Getenv("TAX_CATEGORY_PENSION_EXPENSE"),
		TrainingFundExpense:   os.Getenv("TAX_CATEGORY_TRAINING_FUND_EXPENSE"),
		SocialSecurityExpense: os.Getenv("TAX_CATEGORY_SOCIAL_SECURITY_EXPENSE"),
		IncomeTaxExpense:      os.Getenv("TAX_CATEGORY_INCOME_TAX_EXPENSE"),
		BusinessTrip:          os.Getenv("TAX_CATEGORY_BUSINESS_TRIP"),
		BusinessTripTaxable:   os.Getenv("TAX_CATEGORY_BUSINESS_TRIP_TAXABLE"),
	}
	p.Businesses = SystemBusinesses{
		BatchedEmployees: os.Getenv("BUSINESS_BATCHED_EMPLOYEES"),
		BatchedFunds:     os.Getenv("BUSINESS_BATCHED_FUNDS"),
		SocialSecurity:   os.Getenv("BUSINESS_SOCIAL_SECURITY"),
		TaxAuthority:     os.Getenv("BUSINESS_TAX_AUTHORITY"),
	}

	trip := &p.BusinessTrip
	if trip.AccommodationNightlyCap, err = decimalFromEnv("TRIP_ACCOMMODATION_NIGHTLY_CAP", trip.AccommodationNightlyCap); err != nil {
		return p, err
	}
	trip.ReducedRateNightThreshold = intFromEnv("TRIP_REDUCED_RATE_NIGHT_THRESHOLD", trip.ReducedRateNightThreshold)
	if trip.ReducedRateRatio, err = decimalFromEnv("TRIP_REDUCED_RATE_RATIO", trip.ReducedRateRatio); err != nil {
		return p, err
	}
	if trip.TravelSubsistenceDailyCap, err = decimalFromEnv("TRIP_TRAVEL_SUBSISTENCE_DAILY_CAP", trip.TravelSubsistenceDailyCap); err != nil {
		return p, err
	}
	if trip.UnaccommodatedDayExtra, err = decimalFromEnv("TRIP_UNACCOMMODATED_DAY_EXTRA", trip.UnaccommodatedDayExtra); err != nil {
		return p, err
	}
	// TRIP_DESTINATION_MULTIPLIERS="US:1.2,CH:1.3"
	if raw := strings.TrimSpace(os.Getenv("TRIP_DESTINATION_MULTIPLIERS")); raw != "" {
		for _, part := range splitList(raw) {
			country, value, ok := strings.Cut(part, ":")
			if !ok {
				return p, fmt.Errorf("TRIP_DESTINATION_MULTIPLIERS: malformed entry %q", part)
			}
			m, err := decimal.NewFromString(strings.TrimSpace(value))
			if err != nil {
				return p, fmt.Errorf("TRIP_DESTINATION_MULTIPLIERS: %s: %w", country, err)
			}
			trip.DestinationMultipliers[strings.ToUpper(strings.TrimSpace(country))] = m
		}
	}

	return p, p.Validate()
}

func (p LedgerPolicy) Validate() error {
	if err := policyValidate.Struct(p); err != nil {
		return fmt.Errorf("ledger policy: %w", err)
	}
	if p.BalanceTolerance.IsNegative() {
		return errors.New("ledger policy: BALANCE_TOLERANCE must not be negative")
	}
	if !p.SelfClosingThreshold.IsPositive() || !p.DocumentRequiredThreshold.IsPositive() {
		return errors.New("ledger policy: thresholds must be positive")
	}
	if p.BusinessTrip.ReducedRateRatio.IsNegative() || p.BusinessTrip.ReducedRateRatio.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("ledger policy: TRIP_REDUCED_RATE_RATIO must be within [0, 1]")
	}
	return nil
}

// IsCrypto reports whether currency is quoted through CryptoReferenceCurrency.
func (p LedgerPolicy) IsCrypto(currency string) bool {
	for _, c := range p.CryptoCurrencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

// WithinTolerance is inclusive: an amount of exactly BalanceTolerance is balanced.
func (p LedgerPolicy) WithinTolerance(amount decimal.Decimal) bool {
	return amount.Abs().LessThanOrEqual(p.BalanceTolerance)
}

// DestinationMultiplier defaults to 1 for unlisted countries.
func (p LedgerPolicy) DestinationMultiplier(country string) decimal.Decimal {
	if m, ok := p.BusinessTrip.DestinationMultipliers[strings.ToUpper(country)]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

func stringFromEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.ToUpper(v)
	}
	return def
}

func decimalFromEnv(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}
