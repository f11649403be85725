package taxfolio

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// Position is the static identity of an instrument held in the portfolio.
type Position struct {
	Isin    string `json:"isin"`
	Country string `json:"country"`
}

// Basics is the immutable configuration of a run: base currency, numeric
// precision, instrument identities and withholding-tax rates. It is passed
// explicitly to every component that needs it; there is no ambient state.
type Basics struct {
	// BaseCurrency is the tax-reporting currency. All gains are ultimately
	// expressed in it.
	BaseCurrency string `json:"baseCurrency"`

	// Precision is the tolerance under which two independently derived
	// amounts are considered equal (e.g. held quantity vs sold quantity).
	Precision decimal.Decimal `json:"precision"`

	// Rounding is the number of digits amounts are rounded to for display.
	Rounding int32 `json:"rounding"`

	// Positions maps every ticker of the portfolio to its identity. A ticker
	// missing here is a configuration error, not a data error.
	Positions map[string]Position `json:"positions"`

	// WithholdingTaxRates maps a two-letter country code to the dividend
	// withholding rate applied at source in that country.
	WithholdingTaxRates map[string]decimal.Decimal `json:"withholdingTaxRates"`

	// Input file locations, used by the process command.
	ReportsDir                    string   `json:"reportsDir"`
	StockFilePatterns             []string `json:"stockFilePatterns"`
	CryptoFilePatterns            []string `json:"cryptoFilePatterns"`
	FxRatesFile                   string   `json:"fxRatesFile"`
	CryptoPortfolioValuesFile     string   `json:"cryptoPortfolioValuesFile"`
	CryptoPortfolioValuesCurrency string   `json:"cryptoPortfolioValuesCurrency"`
}

// LoadBasics reads and validates a Basics configuration from a JSON file.
func LoadBasics(path string) (*Basics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open configuration: %w", err)
	}
	defer f.Close()

	var b Basics
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("cannot decode configuration %q: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %q: %w", path, err)
	}
	return &b, nil
}

// Validate checks the configuration for internal consistency.
func (b *Basics) Validate() error {
	if err := ValidateCurrency(b.BaseCurrency); err != nil {
		return fmt.Errorf("invalid base currency: %w", err)
	}
	if !b.Precision.IsPositive() {
		return fmt.Errorf("precision must be positive, got %s", b.Precision)
	}
	if b.Rounding < 0 {
		return fmt.Errorf("rounding must be non-negative, got %d", b.Rounding)
	}
	for ticker, pos := range b.Positions {
		if pos.Isin == "" {
			return fmt.Errorf("position %q has no ISIN", ticker)
		}
	}
	return nil
}

// Round rounds a value for display. Values that round below half the last
// kept digit are snapped to zero so the narrative log never shows -0.0000.
func (b *Basics) Round(v decimal.Decimal) decimal.Decimal {
	rounded := v.Round(b.Rounding)
	half := decimal.New(5, -b.Rounding-1)
	if rounded.Abs().LessThan(half) {
		return decimal.Zero
	}
	return rounded
}

// Isin returns the ISIN declared for a ticker. The empty pseudo ticker used
// for account-level events has no identity and resolves to "".
func (b *Basics) Isin(ticker string) (string, error) {
	if ticker == "" {
		return "", nil
	}
	pos, ok := b.Positions[ticker]
	if !ok {
		return "", fmt.Errorf("ticker %q not declared in configuration", ticker)
	}
	return pos.Isin, nil
}

// CountryOf derives the issuing country from an ISIN prefix.
func (b *Basics) CountryOf(isin string) (string, error) {
	if len(isin) < 2 {
		return "", fmt.Errorf("invalid ISIN %q", isin)
	}
	return isin[:2], nil
}

// WithholdingRate resolves the dividend withholding rate for an instrument
// from its ISIN-derived country.
func (b *Basics) WithholdingRate(isin string) (decimal.Decimal, error) {
	country, err := b.CountryOf(isin)
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := b.WithholdingTaxRates[country]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown withholding tax rate for %q", isin)
	}
	return rate, nil
}
