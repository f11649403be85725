package taxfolio

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// metric is one figure summed over the whole portfolio for the tax report.
// Gains are declared globally; dividends and interests are declared per
// source country, so their metrics aggregate by the country of each ticker.
type metric struct {
	description string
	byCountry   bool
	value       func(TickerState) Money
}

var metrics = []metric{
	{"Total Plus Value CUMP", false, func(s TickerState) Money { return s.PlusValueCumpBase }},
	{"Total Plus Value PEPS", false, func(s TickerState) Money { return s.PlusValuePepsBase }},
	{"Total Plus Value CRYPTO", false, func(s TickerState) Money { return s.PlusValueCryptoBase }},
	{"Total Minus Value CUMP", false, func(s TickerState) Money { return s.MinusValueCumpBase }},
	{"Total Minus Value PEPS", false, func(s TickerState) Money { return s.MinusValuePepsBase }},
	{"Total Minus Value CRYPTO", false, func(s TickerState) Money { return s.MinusValueCryptoBase }},
	{"Total Net Dividends", true, func(s TickerState) Money { return s.NetDividendsBase }},
	{"Total WHT Dividends", true, func(s TickerState) Money { return s.WhtDividendsBase }},
	{"Total Gross Dividends", true, func(s TickerState) Money { return s.GrossDividendsBase }},
	{"Total Net Interests", true, func(s TickerState) Money { return s.NetInterestsBase }},
	{"Total WHT Interests", true, func(s TickerState) Money { return s.WhtInterestsBase }},
	{"Total Gross Interests", true, func(s TickerState) Money { return s.GrossInterestsBase }},
}

// AggregatedMetrics sums the metrics over the ticker states and renders them
// as report lines: first the global metrics, then the per-country groups in
// first-seen ticker order.
func AggregatedMetrics(basics *Basics, states []TickerState) ([]string, error) {
	var lines []string

	for _, m := range metrics {
		if m.byCountry {
			continue
		}
		sum := decimal.Zero
		for _, s := range states {
			sum = sum.Add(m.value(s).Decimal())
		}
		lines = append(lines, fmt.Sprintf("%s (%s) = %s", m.description, basics.BaseCurrency, basics.Round(sum)))
	}

	for _, m := range metrics {
		if !m.byCountry {
			continue
		}
		var countries []string
		sums := make(map[string]decimal.Decimal)
		for _, s := range states {
			// the country is derived from the instrument identity, so the
			// account-level pseudo ticker cannot contribute
			if s.Ticker == "" {
				continue
			}
			country, err := basics.CountryOf(s.Isin)
			if err != nil {
				return nil, err
			}
			if _, ok := sums[country]; !ok {
				countries = append(countries, country)
			}
			sums[country] = sums[country].Add(m.value(s).Decimal())
		}
		for _, country := range countries {
			lines = append(lines, fmt.Sprintf("%s - Country = %s (%s) = %s",
				m.description, country, basics.BaseCurrency, basics.Round(sums[country])))
		}
	}
	return lines, nil
}
