package taxfolio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// CryptoPortfolioValues holds the daily snapshots of the whole crypto
// portfolio value, as exported from the exchange in its local currency. The
// crypto gain method needs the snapshot of each sell day; days without one
// are simply unknown, exports barely cover the sell days.
type CryptoPortfolioValues struct {
	rates    *FxRates
	currency string
	values   map[Date]decimal.Decimal
}

// LoadCryptoPortfolioValues reads the snapshots from a CSV file.
func LoadCryptoPortfolioValues(rates *FxRates, currency, path string) (*CryptoPortfolioValues, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open portfolio values: %w", err)
	}
	defer f.Close()
	values, err := ParseCryptoPortfolioValues(rates, currency, f)
	if err != nil {
		return nil, fmt.Errorf("cannot parse portfolio values %q: %w", path, err)
	}
	return values, nil
}

// ParseCryptoPortfolioValues reads "Date,PortfolioValue" CSV records. Lines
// starting with # are comments.
func ParseCryptoPortfolioValues(rates *FxRates, currency string, rd io.Reader) (*CryptoPortfolioValues, error) {
	if err := ValidateCurrency(currency); err != nil {
		return nil, err
	}
	cr := csv.NewReader(rd)
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read header: %w", err)
	}
	if len(header) != 2 ||
		!strings.EqualFold(strings.TrimSpace(header[0]), "Date") ||
		!strings.EqualFold(strings.TrimSpace(header[1]), "PortfolioValue") {
		return nil, fmt.Errorf("invalid header %q: want Date,PortfolioValue", header)
	}

	values := make(map[Date]decimal.Decimal)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		on, err := ParseDate(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, err
		}
		value, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid portfolio value %q on %s: %w", record[1], on, err)
		}
		values[on] = value
	}
	return &CryptoPortfolioValues{rates: rates, currency: currency, values: values}, nil
}

// ValueOn returns the portfolio value converted to base currency for a day.
// The boolean is false when no snapshot exists for that day; a snapshot whose
// currency cannot be converted is an error, not an unknown.
func (v *CryptoPortfolioValues) ValueOn(on Date) (Money, bool, error) {
	local, ok := v.values[on]
	if !ok {
		return Money{}, false, nil
	}
	rate, err := v.rates.Rate(v.currency, on)
	if err != nil {
		return Money{}, false, fmt.Errorf("cannot convert portfolio value on %s: %w", on, err)
	}
	return M(local, v.currency).Convert(rate, v.rates.BaseCurrency()), true, nil
}
