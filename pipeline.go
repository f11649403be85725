package taxfolio

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// ProcessReport is everything one run computes: the final state of every
// ticker, the per-sell records the form renderers consume, and the aggregated
// metric lines.
type ProcessReport struct {
	States  []TickerState
	Sells   []SellDetail
	Metrics []string

	// Crypto reports whether this was a crypto run, declared on form 2086,
	// as opposed to a stock run declared on form 2074.
	Crypto bool
}

// ErrMixedEvents reports a run mixing crypto and non-crypto events. They are
// declared on different forms, with different gain methods, so a run must be
// one or the other.
var ErrMixedEvents = errors.New("cannot process crypto and non-crypto events in the same run")

// ProcessEvents runs the whole pipeline over an event list: it joins the
// crypto portfolio snapshots to the crypto sells, groups the events by
// ticker, folds each group and aggregates the resulting states. Account-level
// events (empty ticker) belong to every group, so every ticker narrative
// shows the full account context.
func ProcessEvents(basics *Basics, events []Event, values *CryptoPortfolioValues, w io.Writer) (*ProcessReport, error) {
	if w == nil {
		w = io.Discard
	}
	events, err := joinPortfolioValues(events, values)
	if err != nil {
		return nil, err
	}

	anyCrypto, anyStock := false, false
	var accountEvents []Event
	byTicker := make(map[string][]Event)
	var tickers []string
	for _, e := range events {
		if e.Ticker == "" {
			accountEvents = append(accountEvents, e)
			continue
		}
		if e.Ticker == CryptoTicker {
			anyCrypto = true
		} else {
			anyStock = true
		}
		if _, ok := byTicker[e.Ticker]; !ok {
			tickers = append(tickers, e.Ticker)
		}
		byTicker[e.Ticker] = append(byTicker[e.Ticker], e)
	}
	if anyCrypto && anyStock {
		return nil, ErrMixedEvents
	}
	if !anyCrypto && !anyStock {
		return nil, fmt.Errorf("no ticker events found, check the input files")
	}
	slices.Sort(tickers)

	fmt.Fprintf(w, "\n## Process events\n\n")

	report := &ProcessReport{Crypto: anyCrypto}
	processing := NewProcessing(basics)
	processing.OnSell = func(d SellDetail) { report.Sells = append(report.Sells, d) }
	for _, ticker := range tickers {
		tickerEvents := slices.Concat(byTicker[ticker], accountEvents)
		slices.SortStableFunc(tickerEvents, func(a, b Event) int {
			return a.Date.Compare(b.Date)
		})
		state, err := processing.ProcessTicker(ticker, tickerEvents, w)
		if err != nil {
			return nil, err
		}
		report.States = append(report.States, state)
	}

	report.Metrics, err = AggregatedMetrics(basics, report.States)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "\n## Aggregated Metrics\n\n")
	fmt.Fprintln(w, strings.Join(report.Metrics, "\n"))

	return report, nil
}

// joinPortfolioValues returns a copy of the event list where every crypto
// sell carries the portfolio value snapshot of its day, when one exists.
// Events already carrying a value keep it.
func joinPortfolioValues(events []Event, values *CryptoPortfolioValues) ([]Event, error) {
	if values == nil {
		return events, nil
	}
	joined := slices.Clone(events)
	for i, e := range joined {
		if e.Ticker != CryptoTicker || !e.Type.IsSell() || e.PortfolioValueBase != nil {
			continue
		}
		value, ok, err := values.ValueOn(DateOf(e.Date))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		joined[i].PortfolioValueBase = &value
	}
	return joined, nil
}
