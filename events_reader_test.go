package taxfolio

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const stockHeader = "Date,Ticker,Type,Quantity,Price per share,Total Amount,Currency,FX Rate\n"

func TestParseStockEvents(t *testing.T) {
	csv := stockHeader +
		"2022-06-23T13:48:26.123456Z,AAPL,BUY - MARKET,3,100,($303.00),USD,1.1\n" +
		"2022-06-29T06:00:00.000000,AAPL,SELL - LIMIT,2,110,218,USD,1.1\n" +
		"2022-07-01T10:00:00.000Z,,CASH TOP-UP,,,1000,USD,1.1\n" +
		"2022-07-05T10:00:00.000Z,AAPL,DIVIDEND,,,\"($8.50)\",USD,1.1\n"

	events, err := ParseStockEvents(strings.NewReader(csv), "broker1", nil)
	if err != nil {
		t.Fatalf("ParseStockEvents() error = %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}

	buy := events[0]
	if buy.Type != BuyMarket || buy.Ticker != "AAPL" {
		t.Errorf("buy = %s %q, want BuyMarket AAPL", buy.Type, buy.Ticker)
	}
	if want := time.Date(2022, time.June, 23, 13, 48, 26, 123456000, time.UTC); !buy.Date.Equal(want) {
		t.Errorf("buy date = %s, want %s", buy.Date, want)
	}
	checkQuantity(t, "buy quantity", *buy.Quantity, 3)
	checkMoney(t, "buy price per share", *buy.PricePerShareLocal, 100)
	checkMoney(t, "buy total amount", buy.TotalAmountLocal, 303)
	checkMoney(t, "buy fees", *buy.FeesLocal, 3)
	if buy.Currency != "USD" || !buy.FXRate.Equal(decimal.RequireFromString("1.1")) {
		t.Errorf("buy currency/rate = %s/%s, want USD/1.1", buy.Currency, buy.FXRate)
	}
	if buy.Broker != "broker1" || buy.OriginalTicker != "AAPL" {
		t.Errorf("buy provenance = %q/%q, want broker1/AAPL", buy.Broker, buy.OriginalTicker)
	}

	sell := events[1]
	if sell.Type != SellLimit {
		t.Errorf("sell type = %s, want SellLimit", sell.Type)
	}
	// fees are the gap between shares price and total, 220 - 218
	checkMoney(t, "sell fees", *sell.FeesLocal, 2)

	topUp := events[2]
	if topUp.Type != CashTopUp || topUp.Ticker != "" {
		t.Errorf("top-up = %s %q, want CashTopUp with no ticker", topUp.Type, topUp.Ticker)
	}
	if topUp.Quantity != nil || topUp.PricePerShareLocal != nil || topUp.FeesLocal != nil {
		t.Errorf("top-up carries order fields, want none")
	}

	dividend := events[3]
	if dividend.Type != Dividend {
		t.Errorf("dividend type = %s, want Dividend", dividend.Type)
	}
	checkMoney(t, "dividend amount", dividend.TotalAmountLocal, 8.5)
}

// TestParseStockEvents_FxRatePrecedence checks that the rate table overrides
// the broker's per-record rate, and that a missing day falls back to it.
func TestParseStockEvents_FxRatePrecedence(t *testing.T) {
	rates := NewFxRates("EUR")
	rates.Set("USD", NewDate(2022, time.June, 23), decimal.RequireFromString("1.05"))

	csv := stockHeader +
		"2022-06-23T13:48:26.123456Z,AAPL,BUY - MARKET,3,100,303,USD,1.1\n" +
		"2022-06-24T13:48:26.123456Z,AAPL,BUY - MARKET,3,100,303,USD,1.1\n"

	events, err := ParseStockEvents(strings.NewReader(csv), "broker1", rates)
	if err != nil {
		t.Fatalf("ParseStockEvents() error = %v", err)
	}
	if !events[0].FXRate.Equal(decimal.RequireFromString("1.05")) {
		t.Errorf("table day FXRate = %s, want 1.05 from the table", events[0].FXRate)
	}
	if !events[1].FXRate.Equal(decimal.RequireFromString("1.1")) {
		t.Errorf("missing day FXRate = %s, want the broker fallback 1.1", events[1].FXRate)
	}
}

func TestParseStockEvents_Failures(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"missing column", "Date,Ticker,Type\n2022-06-23T13:48:26.123Z,AAPL,DIVIDEND\n"},
		{"unknown type", stockHeader + "2022-06-23T13:48:26.123Z,AAPL,SHORT SELL,1,100,100,USD,1.1\n"},
		{"invalid date", stockHeader + "23/06/2022,AAPL,DIVIDEND,,,8.50,USD,1.1\n"},
		{"invalid quantity", stockHeader + "2022-06-23T13:48:26.123Z,AAPL,BUY - MARKET,three,100,303,USD,1.1\n"},
		{"invalid total amount", stockHeader + "2022-06-23T13:48:26.123Z,AAPL,BUY - MARKET,3,100,a lot,USD,1.1\n"},
		{"invalid FX rate", stockHeader + "2022-06-23T13:48:26.123Z,AAPL,BUY - MARKET,3,100,303,USD,unknown\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseStockEvents(strings.NewReader(tc.csv), "broker1", nil); err == nil {
				t.Errorf("ParseStockEvents() = nil error, want failure")
			}
		})
	}
}
