package taxfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// testBasics is the configuration shared by the package tests.
func testBasics() *Basics {
	return &Basics{
		BaseCurrency: "EUR",
		Precision:    decimal.RequireFromString("0.01"),
		Rounding:     4,
		Positions: map[string]Position{
			"AAPL":       {Isin: "US0378331005", Country: "US"},
			"VOW":        {Isin: "DE0007664039", Country: "DE"},
			CryptoTicker: {Isin: "FR7616958002", Country: "FR"},
		},
		WithholdingTaxRates: map[string]decimal.Decimal{
			"US": decimal.RequireFromString("0.15"),
			"FR": decimal.RequireFromString("0.25"),
		},
	}
}

// EUR is a helper for tests to create euro money from a const.
func EUR(v float64) Money { return M(v, "EUR") }

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 10, 0, 0, 0, time.UTC)
}

// orderFees builds a buy or sell event in EUR with FX rate 1 and explicit
// fees.
func orderFees(typ EventType, ticker string, d int, quantity, price, total, fees float64) Event {
	q := Q(quantity)
	p := EUR(price)
	f := EUR(fees)
	return Event{
		Date:               day(d),
		Type:               typ,
		Ticker:             ticker,
		Quantity:           &q,
		PricePerShareLocal: &p,
		TotalAmountLocal:   EUR(total),
		FeesLocal:          &f,
		Currency:           "EUR",
		FXRate:             decimal.NewFromInt(1),
	}
}

// order builds a buy or sell event deriving the fees from the gap between
// the total amount and the shares price, the way the readers do.
func order(typ EventType, ticker string, d int, quantity, price, total float64) Event {
	e := orderFees(typ, ticker, d, quantity, price, total, 0)
	fees := e.TotalAmountLocal.Sub(e.PricePerShareLocal.Mul(*e.Quantity)).Abs()
	e.FeesLocal = &fees
	return e
}

// usdOrder builds a buy or sell event in USD with the given rate, expressed
// as dollars per euro the way the FX table serves it.
func usdOrder(typ EventType, ticker string, d int, quantity, price, total, fees float64, fx string) Event {
	e := orderFees(typ, ticker, d, quantity, price, total, fees)
	p := M(price, "USD")
	f := M(fees, "USD")
	e.PricePerShareLocal = &p
	e.FeesLocal = &f
	e.TotalAmountLocal = M(total, "USD")
	e.Currency = "USD"
	e.FXRate = decimal.RequireFromString(fx)
	return e
}

// usdPayment builds a dividend or interest event in USD.
func usdPayment(typ EventType, ticker string, d int, amount float64, fx string) Event {
	e := payment(typ, ticker, d, amount)
	e.TotalAmountLocal = M(amount, "USD")
	e.Currency = "USD"
	e.FXRate = decimal.RequireFromString(fx)
	return e
}

// withPortfolioValue attaches a crypto portfolio value snapshot to a sell.
func withPortfolioValue(e Event, v float64) Event {
	pv := EUR(v)
	e.PortfolioValueBase = &pv
	return e
}

// payment builds a dividend or interest event in EUR with FX rate 1.
func payment(typ EventType, ticker string, d int, amount float64) Event {
	return Event{
		Date:             day(d),
		Type:             typ,
		Ticker:           ticker,
		TotalAmountLocal: EUR(amount),
		Currency:         "EUR",
		FXRate:           decimal.NewFromInt(1),
	}
}

// split builds a stock split event with the given share delta.
func split(ticker string, d int, delta float64) Event {
	q := Q(delta)
	return Event{
		Date:     day(d),
		Type:     StockSplit,
		Ticker:   ticker,
		Quantity: &q,
		Currency: "EUR",
		FXRate:   decimal.NewFromInt(1),
	}
}

// resetEvent builds the synthetic new-period event.
func resetEvent(d int) Event {
	return Event{
		Date:     day(d),
		Type:     Reset,
		Currency: "EUR",
		FXRate:   decimal.NewFromInt(1),
	}
}

// checkMoney fails the test when got does not hold exactly want.
func checkMoney(t *testing.T, name string, got Money, want float64) {
	t.Helper()
	if !got.Decimal().Equal(decimal.NewFromFloat(want)) {
		t.Errorf("%s = %s, want %v", name, got.Decimal(), want)
	}
}

// checkQuantity fails the test when got does not hold exactly want.
func checkQuantity(t *testing.T, name string, got Quantity, want float64) {
	t.Helper()
	if !got.Equal(Q(want)) {
		t.Errorf("%s = %s, want %v", name, got, want)
	}
}
