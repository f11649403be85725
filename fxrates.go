package taxfolio

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// FxRates is the exchange-rate table of a run: for each currency, the amount
// of that currency one unit of the base currency buys, per day. Brokers quote
// their own rate on each event; this table is the fallback for events that
// carry none, and the reference the readers warn against when the broker's
// rate drifts.
type FxRates struct {
	baseCurrency string
	rates        map[string]map[Date]decimal.Decimal
}

// NewFxRates returns an empty table for the given base currency.
func NewFxRates(baseCurrency string) *FxRates {
	return &FxRates{
		baseCurrency: baseCurrency,
		rates:        make(map[string]map[Date]decimal.Decimal),
	}
}

// BaseCurrency returns the currency all rates are quoted against.
func (r *FxRates) BaseCurrency() string { return r.baseCurrency }

// Currencies returns the currencies the table has at least one rate for.
func (r *FxRates) Currencies() []string {
	currencies := make([]string, 0, len(r.rates))
	for currency := range r.rates {
		currencies = append(currencies, currency)
	}
	return currencies
}

// Set records the rate for a currency on a day, overwriting any previous one.
func (r *FxRates) Set(currency string, on Date, rate decimal.Decimal) {
	byDay, ok := r.rates[currency]
	if !ok {
		byDay = make(map[Date]decimal.Decimal)
		r.rates[currency] = byDay
	}
	byDay[on] = rate
}

// Rate returns the amount of currency per unit of base currency on a day.
// The base currency itself always converts at 1. Markets publish no rate on
// weekends, so a Saturday or Sunday falls forward to the first of the next
// two days that has one.
func (r *FxRates) Rate(currency string, on Date) (decimal.Decimal, error) {
	if currency == r.baseCurrency {
		return decimal.NewFromInt(1), nil
	}
	byDay, ok := r.rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("no FX rates for currency %q", currency)
	}
	if rate, ok := byDay[on]; ok {
		return rate, nil
	}
	if on.IsWeekend() {
		for i := 1; i <= 2; i++ {
			if rate, ok := byDay[on.Add(i)]; ok {
				return rate, nil
			}
		}
	}
	return decimal.Zero, fmt.Errorf("no FX rate for currency %q on %s", currency, on)
}

// LoadFxRates reads a rate table from a CSV file. The header decides the
// layout: "Date,USD" style headers declare one column per currency.
func LoadFxRates(baseCurrency, path string) (*FxRates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open FX rates: %w", err)
	}
	defer f.Close()
	rates, err := ParseFxRates(baseCurrency, f)
	if err != nil {
		return nil, fmt.Errorf("cannot parse FX rates %q: %w", path, err)
	}
	return rates, nil
}

// ParseFxRates reads a CSV rate table: a "Date" header column followed by one
// column per currency code, then one row per day. An empty cell or "N/A"
// means no rate was published that day. A cell of "-1" is treated the same
// way, some sources use it as their not-available marker.
func ParseFxRates(baseCurrency string, rd io.Reader) (*FxRates, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read header: %w", err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "Date") {
		return nil, fmt.Errorf("invalid header %q: want Date followed by currency codes", header)
	}
	currencies := make([]string, 0, len(header)-1)
	for _, code := range header[1:] {
		code = strings.TrimSpace(code)
		if err := ValidateCurrency(code); err != nil {
			return nil, fmt.Errorf("invalid header currency: %w", err)
		}
		currencies = append(currencies, code)
	}

	rates := NewFxRates(baseCurrency)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(currencies)+1 {
			return nil, fmt.Errorf("row %q has %d fields, want %d", record, len(record), len(currencies)+1)
		}
		on, err := ParseDate(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, err
		}
		for i, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" || strings.EqualFold(cell, "N/A") || cell == "-1" {
				continue
			}
			rate, err := decimal.NewFromString(cell)
			if err != nil {
				return nil, fmt.Errorf("invalid rate %q for %s on %s: %w", cell, currencies[i], on, err)
			}
			if !rate.IsPositive() {
				return nil, fmt.Errorf("non-positive rate %s for %s on %s", rate, currencies[i], on)
			}
			rates.Set(currencies[i], on, rate)
		}
	}
	return rates, nil
}

// warnf reports a reader anomaly that does not abort the run.
func warnf(format string, args ...any) {
	log.Printf("WARN "+format, args...)
}
