package taxfolio

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestProcessTicker_Buys(t *testing.T) {
	events := []Event{
		order(BuyMarket, "AAPL", 1, 3, 100, 303),
		order(BuyLimit, "AAPL", 2, 2, 110, 222),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker("AAPL", events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	checkQuantity(t, "TotalQuantity", state.TotalQuantity, 5)
	checkMoney(t, "TotalAmountBase", state.TotalAmountBase, 525)
	checkMoney(t, "PortfolioAcquisitionValueBase", state.PortfolioAcquisitionValueBase, 525)
	checkMoney(t, "PlusValueCumpBase", state.PlusValueCumpBase, 0)
	if state.PepsCurrentIndex != -1 {
		t.Errorf("PepsCurrentIndex = %d, want -1 before the first sale", state.PepsCurrentIndex)
	}
}

// TestProcessTicker_RoundTrip sells back exactly what was bought. The total
// amounts include the fees on both legs, so the weighted-average and the FIFO
// method realize the same gain, fees deducted on both sides.
func TestProcessTicker_RoundTrip(t *testing.T) {
	events := []Event{
		orderFees(BuyMarket, "AAPL", 1, 3, 100, 303, 3),
		orderFees(SellMarket, "AAPL", 2, 3, 110, 330, 3),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker("AAPL", events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	checkMoney(t, "PlusValueCumpBase", state.PlusValueCumpBase, 27)
	checkMoney(t, "PlusValuePepsBase", state.PlusValuePepsBase, 27)
	checkMoney(t, "PlusValueCryptoBase", state.PlusValueCryptoBase, 0)
	checkMoney(t, "MinusValueCumpBase", state.MinusValueCumpBase, 0)
	checkMoney(t, "MinusValuePepsBase", state.MinusValuePepsBase, 0)
	checkQuantity(t, "TotalQuantity", state.TotalQuantity, 0)
	checkMoney(t, "TotalAmountBase", state.TotalAmountBase, 0)
	if state.PepsCurrentIndex != len(events) {
		t.Errorf("PepsCurrentIndex = %d, want %d after consuming every lot", state.PepsCurrentIndex, len(events))
	}
	checkQuantity(t, "PepsCurrentIndexSoldQuantity", state.PepsCurrentIndexSoldQuantity, 0)
}

func TestProcessTicker_PepsMultipleLots(t *testing.T) {
	events := []Event{
		order(BuyMarket, "AAPL", 1, 10, 100, 1000),
		order(BuyMarket, "AAPL", 2, 5, 110, 550),
		order(BuyMarket, "AAPL", 3, 2, 105, 210),
		order(SellMarket, "AAPL", 4, 16, 120, 1920),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker("AAPL", events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	// FIFO cost: 10*100 + 5*110 + 1*105 = 1655.
	checkMoney(t, "PlusValuePepsBase", state.PlusValuePepsBase, 265)
	if state.PepsCurrentIndex != 2 {
		t.Errorf("PepsCurrentIndex = %d, want 2 (the partially consumed lot)", state.PepsCurrentIndex)
	}
	checkQuantity(t, "PepsCurrentIndexSoldQuantity", state.PepsCurrentIndexSoldQuantity, 1)

	// CUMP cost: 16 * 1760/17.
	wantCump := decimal.RequireFromString("263.5294")
	if got := state.PlusValueCumpBase.Decimal().Round(4); !got.Equal(wantCump) {
		t.Errorf("PlusValueCumpBase = %s, want %s", got, wantCump)
	}
	checkQuantity(t, "TotalQuantity", state.TotalQuantity, 1)
}

// TestProcessTicker_PepsFeeProration checks that a partially consumed lot
// contributes its fees pro rata of the matched quantity.
func TestProcessTicker_PepsFeeProration(t *testing.T) {
	events := []Event{
		orderFees(BuyMarket, "AAPL", 1, 4, 100, 404, 4),
		order(SellMarket, "AAPL", 2, 2, 110, 220),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker("AAPL", events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	// FIFO cost: 2*100 + 2/4*4 = 202.
	checkMoney(t, "PlusValuePepsBase", state.PlusValuePepsBase, 18)
	// CUMP cost: 2 * 404/4 = 202 as well.
	checkMoney(t, "PlusValueCumpBase", state.PlusValueCumpBase, 18)
	if state.PepsCurrentIndex != 0 {
		t.Errorf("PepsCurrentIndex = %d, want 0", state.PepsCurrentIndex)
	}
	checkQuantity(t, "PepsCurrentIndexSoldQuantity", state.PepsCurrentIndexSoldQuantity, 2)
}

func TestProcessTicker_PepsCursorAcrossSells(t *testing.T) {
	events := []Event{
		order(BuyMarket, "AAPL", 1, 2, 100, 200),
		order(BuyMarket, "AAPL", 2, 2, 200, 400),
		order(SellMarket, "AAPL", 3, 1, 150, 150),
		order(SellMarket, "AAPL", 4, 2, 180, 360),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker("AAPL", events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	// First sell: 150 - 100 = 50. Second: 360 - (100 + 200) = 60.
	checkMoney(t, "PlusValuePepsBase", state.PlusValuePepsBase, 110)
	if state.PepsCurrentIndex != 1 {
		t.Errorf("PepsCurrentIndex = %d, want 1", state.PepsCurrentIndex)
	}
	checkQuantity(t, "PepsCurrentIndexSoldQuantity", state.PepsCurrentIndexSoldQuantity, 1)
	// CUMP: first sell breaks even at the 150 average, second realizes 60.
	checkMoney(t, "PlusValueCumpBase", state.PlusValueCumpBase, 60)
}

func TestProcessTicker_Failures(t *testing.T) {
	nilQuantity := order(BuyMarket, "AAPL", 1, 1, 100, 100)
	nilQuantity.Quantity = nil
	nilPrice := order(BuyMarket, "AAPL", 1, 1, 100, 100)
	nilPrice.PricePerShareLocal = nil
	nilFees := order(BuyMarket, "AAPL", 1, 1, 100, 100)
	nilFees.FeesLocal = nil
	foreign := orderFees(BuyMarket, "AAPL", 2, 1, 100, 100, 0)
	foreign.Currency = "USD"
	foreign.FXRate = decimal.RequireFromString("1.1")
	resetWithQuantity := resetEvent(1)
	q := Q(1)
	resetWithQuantity.Quantity = &q

	tests := []struct {
		name    string
		events  []Event
		wantErr error
	}{
		{"overselling", []Event{
			order(BuyMarket, "AAPL", 1, 1, 100, 100),
			order(SellMarket, "AAPL", 2, 2, 100, 200),
		}, ErrInconsistentEvents},
		{"residual sell with nothing held", []Event{
			order(BuyMarket, "AAPL", 1, 1, 100, 100),
			order(SellMarket, "AAPL", 2, 1, 100, 100),
			// Within the precision tolerance of the empty position.
			order(SellMarket, "AAPL", 3, 0.001, 100, 0.1),
		}, ErrInconsistentEvents},
		{"sell without buy", []Event{
			order(SellMarket, "AAPL", 1, 2, 100, 200),
		}, ErrInconsistentEvents},
		{"zero quantity", []Event{
			order(BuyMarket, "AAPL", 1, 0, 100, 0),
		}, ErrMalformedEvent},
		{"negative quantity", []Event{
			order(SellMarket, "AAPL", 1, -1, 100, 100),
		}, ErrMalformedEvent},
		{"nil quantity", []Event{nilQuantity}, ErrMalformedEvent},
		{"nil price per share", []Event{nilPrice}, ErrMalformedEvent},
		{"nil fees", []Event{nilFees}, ErrMalformedEvent},
		{"non-positive total amount", []Event{
			orderFees(BuyMarket, "AAPL", 1, 1, 100, 0, 0),
		}, ErrMalformedEvent},
		{"ticker mismatch", []Event{
			order(BuyMarket, "VOW", 1, 1, 100, 100),
		}, ErrInconsistentEvents},
		{"heterogeneous currencies", []Event{
			order(BuyMarket, "AAPL", 1, 1, 100, 100),
			foreign,
		}, ErrInconsistentEvents},
		{"reset with quantity", []Event{resetWithQuantity}, ErrMalformedEvent},
		{"split with no held shares", []Event{
			split("AAPL", 1, 2),
		}, ErrInconsistentEvents},
		{"split wiping out the held shares", []Event{
			order(BuyMarket, "AAPL", 1, 2, 100, 200),
			split("AAPL", 2, -2),
		}, ErrInconsistentEvents},
		{"split past the held shares", []Event{
			order(BuyMarket, "AAPL", 1, 2, 100, 200),
			split("AAPL", 2, -3),
		}, ErrInconsistentEvents},
		{"unsupported event type", []Event{
			payment(Reward, "AAPL", 1, 10),
		}, ErrUnsupportedEvent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewProcessing(testBasics()).ProcessTicker("AAPL", tc.events, io.Discard)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ProcessTicker() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// TestProcessTicker_ForeignCurrency folds a USD event list: every local
// amount enters the state divided by the dollars-per-euro rate of its own
// event, so cost basis, proceeds and dividends land in euros.
func TestProcessTicker_ForeignCurrency(t *testing.T) {
	events := []Event{
		usdOrder(BuyMarket, "AAPL", 1, 3, 100, 303, 3, "1.25"),
		usdOrder(SellMarket, "AAPL", 2, 3, 110, 330, 0, "1.1"),
		usdPayment(Dividend, "AAPL", 3, 85, "1.25"),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker("AAPL", events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	// Cost basis: 303 USD at 1.25 is 242.40 EUR. Proceeds: 330 USD at 1.1 is
	// 300 EUR. Both methods realize 57.60 EUR.
	checkMoney(t, "PortfolioAcquisitionValueBase", state.PortfolioAcquisitionValueBase, 242.4)
	checkMoney(t, "PlusValueCumpBase", state.PlusValueCumpBase, 57.6)
	checkMoney(t, "PlusValuePepsBase", state.PlusValuePepsBase, 57.6)
	checkMoney(t, "MinusValueCumpBase", state.MinusValueCumpBase, 0)
	checkQuantity(t, "TotalQuantity", state.TotalQuantity, 0)
	checkMoney(t, "TotalAmountBase", state.TotalAmountBase, 0)

	// Dividend: net 85 USD at 1.25 is 68 EUR, grossed up at the US 15% rate.
	checkMoney(t, "NetDividendsBase", state.NetDividendsBase, 68)
	checkMoney(t, "WhtDividendsBase", state.WhtDividendsBase, 12)
	checkMoney(t, "GrossDividendsBase", state.GrossDividendsBase, 80)
}

func TestProcessTicker_UnknownTicker(t *testing.T) {
	_, err := NewProcessing(testBasics()).ProcessTicker("MSFT", nil, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "MSFT") {
		t.Errorf("ProcessTicker() error = %v, want undeclared ticker error", err)
	}
}

// TestProcessTicker_Reset checks that a reset starts the gain and dividend
// aggregates from zero while carrying the cost basis and the FIFO cursor.
func TestProcessTicker_Reset(t *testing.T) {
	events := []Event{
		order(BuyMarket, "AAPL", 1, 2, 100, 200),
		payment(Dividend, "AAPL", 2, 85),
		resetEvent(3),
		order(SellMarket, "AAPL", 4, 1, 150, 150),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker("AAPL", events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	checkMoney(t, "NetDividendsBase", state.NetDividendsBase, 0)
	checkMoney(t, "GrossDividendsBase", state.GrossDividendsBase, 0)
	// The pre-reset cost basis of 100 EUR/share survives the reset.
	checkMoney(t, "PlusValueCumpBase", state.PlusValueCumpBase, 50)
	checkMoney(t, "PlusValuePepsBase", state.PlusValuePepsBase, 50)
	checkQuantity(t, "TotalQuantity", state.TotalQuantity, 1)
	checkMoney(t, "TotalAmountBase", state.TotalAmountBase, 100)
	if state.PepsCurrentIndex != 0 {
		t.Errorf("PepsCurrentIndex = %d, want 0", state.PepsCurrentIndex)
	}
	checkQuantity(t, "PepsCurrentIndexSoldQuantity", state.PepsCurrentIndexSoldQuantity, 1)
}

func TestProcessTicker_DividendsAndInterests(t *testing.T) {
	events := []Event{
		order(BuyMarket, "AAPL", 1, 1, 100, 100),
		payment(Dividend, "AAPL", 2, 85),
		payment(Interest, "AAPL", 3, 170),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker("AAPL", events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	// US withholding is 15%: net 85 grosses up to 100.
	checkMoney(t, "NetDividendsBase", state.NetDividendsBase, 85)
	checkMoney(t, "WhtDividendsBase", state.WhtDividendsBase, 15)
	checkMoney(t, "GrossDividendsBase", state.GrossDividendsBase, 100)
	checkMoney(t, "NetInterestsBase", state.NetInterestsBase, 170)
	checkMoney(t, "WhtInterestsBase", state.WhtInterestsBase, 30)
	checkMoney(t, "GrossInterestsBase", state.GrossInterestsBase, 200)
}

func TestProcessTicker_DividendUnknownWithholdingRate(t *testing.T) {
	events := []Event{payment(Dividend, "VOW", 1, 85)}
	_, err := NewProcessing(testBasics()).ProcessTicker("VOW", events, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "withholding") {
		t.Errorf("ProcessTicker() error = %v, want unknown withholding rate error", err)
	}
}

// TestProcessTicker_StockSplit checks that a split renormalizes the already
// processed orders, so a later FIFO match sees split-adjusted lots.
func TestProcessTicker_StockSplit(t *testing.T) {
	events := []Event{
		order(BuyMarket, "AAPL", 1, 2, 100, 200),
		split("AAPL", 2, 2),
		order(SellMarket, "AAPL", 3, 4, 60, 240),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker("AAPL", events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	// The buy becomes 4 shares at 50: both methods realize 240 - 200 = 40.
	checkMoney(t, "PlusValueCumpBase", state.PlusValueCumpBase, 40)
	checkMoney(t, "PlusValuePepsBase", state.PlusValuePepsBase, 40)
	checkQuantity(t, "TotalQuantity", state.TotalQuantity, 0)

	// The input list is never modified: the renormalization works on a copy.
	checkQuantity(t, "input buy quantity", *events[0].Quantity, 2)
	checkMoney(t, "input buy price", *events[0].PricePerShareLocal, 100)
}

// TestProcessTicker_Pure replays the same list twice and expects identical
// states and identical narratives.
func TestProcessTicker_Pure(t *testing.T) {
	events := []Event{
		order(BuyMarket, "AAPL", 1, 10, 100, 1000),
		order(BuyMarket, "AAPL", 2, 5, 110, 550),
		split("AAPL", 3, 15),
		order(SellMarket, "AAPL", 4, 16, 60, 960),
		payment(Dividend, "AAPL", 5, 85),
	}

	p := NewProcessing(testBasics())
	var w1, w2 bytes.Buffer
	s1, err := p.ProcessTicker("AAPL", events, &w1)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}
	s2, err := p.ProcessTicker("AAPL", events, &w2)
	if err != nil {
		t.Fatalf("ProcessTicker() replay error = %v", err)
	}

	if !reflect.DeepEqual(s1, s2) {
		t.Errorf("replay diverged:\nfirst  %+v\nsecond %+v", s1, s2)
	}
	if w1.String() != w2.String() {
		t.Errorf("replay narrative diverged")
	}
}

func TestProcessTicker_CryptoGains(t *testing.T) {
	events := []Event{
		order(BuyMarket, CryptoTicker, 1, 1, 1000, 1000),
		withPortfolioValue(orderFees(SellMarket, CryptoTicker, 2, 0.5, 1480, 740, 10), 1480),
		order(SellMarket, CryptoTicker, 3, 0.1, 1000, 100),
		withPortfolioValue(order(SellMarket, CryptoTicker, 4, 0.25, 2000, 500), 1000),
	}

	var buf bytes.Buffer
	state, err := NewProcessing(testBasics()).ProcessTicker(CryptoTicker, events, &buf)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	// First sell: recovers 1000*740/1480 = 500 of principal, nets 740-10,
	// gain 230. Second sell has no portfolio snapshot and is skipped. Third:
	// recovers (1000-500)*500/1000 = 250, gain 250.
	checkMoney(t, "PlusValueCryptoBase", state.PlusValueCryptoBase, 480)
	checkMoney(t, "MinusValueCryptoBase", state.MinusValueCryptoBase, 0)
	checkMoney(t, "CryptoFractionOfInitialCapital", state.CryptoFractionOfInitialCapital, 750)
	checkMoney(t, "PortfolioAcquisitionValueBase", state.PortfolioAcquisitionValueBase, 1000)

	if !strings.Contains(buf.String(), "Portfolio Current Value not known => Skipping Crypto +/- value calculation...") {
		t.Errorf("narrative does not mention the skipped crypto calculation")
	}
}

func TestProcessTicker_CryptoLoss(t *testing.T) {
	events := []Event{
		order(BuyMarket, CryptoTicker, 1, 1, 1000, 1000),
		withPortfolioValue(order(SellMarket, CryptoTicker, 2, 0.5, 400, 200), 400),
	}

	state, err := NewProcessing(testBasics()).ProcessTicker(CryptoTicker, events, io.Discard)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	// Recovers 1000*200/400 = 500 of principal against 200 of proceeds.
	checkMoney(t, "PlusValueCryptoBase", state.PlusValueCryptoBase, 0)
	checkMoney(t, "MinusValueCryptoBase", state.MinusValueCryptoBase, 300)
	checkMoney(t, "CryptoFractionOfInitialCapital", state.CryptoFractionOfInitialCapital, 500)
}

func TestProcessTicker_OnSell(t *testing.T) {
	events := []Event{
		orderFees(BuyMarket, "AAPL", 1, 3, 100, 303, 3),
		orderFees(SellMarket, "AAPL", 2, 3, 110, 330, 3),
	}

	p := NewProcessing(testBasics())
	var details []SellDetail
	p.OnSell = func(d SellDetail) { details = append(details, d) }

	if _, err := p.ProcessTicker("AAPL", events, io.Discard); err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("got %d sell details, want 1", len(details))
	}

	d := details[0]
	checkMoney(t, "PerShareSellPriceBase", d.PerShareSellPriceBase, 110)
	checkMoney(t, "PerShareAvgBuyPriceBase", d.PerShareAvgBuyPriceBase, 101)
	checkMoney(t, "TotalAvgBuyPriceBase", d.TotalAvgBuyPriceBase, 303)
	checkMoney(t, "SellFeesBase", d.SellFeesBase, 3)
	checkMoney(t, "PlusValueCumpBase", d.PlusValueCumpBase, 27)
	if d.PortfolioValueBase != nil {
		t.Errorf("PortfolioValueBase = %v, want nil", d.PortfolioValueBase)
	}
}

func TestProcessTicker_Narrative(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewProcessing(testBasics()).ProcessTicker("AAPL", []Event{
		order(BuyMarket, "AAPL", 1, 3, 100, 303),
	}, &buf)
	if err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"PROCESS AAPL [US0378331005]\n",
		"\tTotal Buy Price (EUR) = 303\n",
		"\tPerShare Buy Price (EUR) = 100\n",
		"\tTicker State: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("narrative missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	if _, err := NewProcessing(testBasics()).ProcessTicker("", nil, &buf); err != nil {
		t.Fatalf("ProcessTicker() error = %v", err)
	}
	if !strings.Contains(buf.String(), "PROCESS NON-TICKER-RELATED EVENTS\n") {
		t.Errorf("account-level narrative missing its header:\n%s", buf.String())
	}
}
