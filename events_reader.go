package taxfolio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// csvRecord gives by-name access to the fields of one CSV row.
type csvRecord struct {
	index  map[string]int
	fields []string
}

// newCSVHeader builds the name index of a CSV header, case-insensitively.
func newCSVHeader(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return index
}

// get returns a named field, trimmed. Missing columns are an error: broker
// export formats are versioned, a missing column means the wrong format.
func (r csvRecord) get(name string) (string, error) {
	i, ok := r.index[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("missing column %q", name)
	}
	return strings.TrimSpace(r.fields[i]), nil
}

// stockEventTypes maps the type strings of the broker's stock export.
var stockEventTypes = map[string]EventType{
	"CASH TOP-UP":     CashTopUp,
	"CASH WITHDRAWAL": CashWithdrawal,
	"BUY - MARKET":    BuyMarket,
	"BUY - LIMIT":     BuyLimit,
	"SELL - MARKET":   SellMarket,
	"SELL - LIMIT":    SellLimit,
	"CUSTODY FEE":     CustodyFee,
	"CUSTODY CHANGE":  CustodyChange,
	"STOCK SPLIT":     StockSplit,
	"DIVIDEND":        Dividend,
	"INTEREST":        Interest,
}

// The broker emits timestamps with either three or six fractional digits.
var stockDateLayouts = []string{
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05.999999",
}

// ReadStockEvents reads a broker stock export file into events.
func ReadStockEvents(path, broker string, rates *FxRates) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open stock events: %w", err)
	}
	defer f.Close()
	events, err := ParseStockEvents(f, broker, rates)
	if err != nil {
		return nil, fmt.Errorf("cannot parse stock events %q: %w", path, err)
	}
	return events, nil
}

// ParseStockEvents reads a broker stock export into events. Expected columns:
// Date, Ticker, Type, Quantity, Price per share, Total Amount, Currency,
// FX Rate.
//
// The FX rate table, when provided, takes precedence over the broker's own
// per-record rate: the broker rounds aggressively and sometimes quotes a
// different fixing hour. A day missing from the table falls back to the
// broker's rate with a warning.
func ParseStockEvents(rd io.Reader, broker string, rates *FxRates) ([]Event, error) {
	cr := csv.NewReader(rd)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read header: %w", err)
	}
	index := newCSVHeader(header)

	var events []Event
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		e, err := parseStockEvent(csvRecord{index, fields}, broker, rates)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", fields, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func parseStockEvent(record csvRecord, broker string, rates *FxRates) (Event, error) {
	var e Event

	dateStr, err := record.get("Date")
	if err != nil {
		return e, err
	}
	date, err := parseStockDate(dateStr)
	if err != nil {
		return e, err
	}

	typeStr, err := record.get("Type")
	if err != nil {
		return e, err
	}
	eventType, ok := stockEventTypes[strings.ToUpper(typeStr)]
	if !ok {
		return e, fmt.Errorf("unknown stock event type %q", typeStr)
	}

	ticker, err := record.get("Ticker")
	if err != nil {
		return e, err
	}
	currency, err := record.get("Currency")
	if err != nil {
		return e, err
	}

	fxStr, err := record.get("FX Rate")
	if err != nil {
		return e, err
	}
	fxRate, err := resolveFxRate(rates, currency, date, fxStr)
	if err != nil {
		return e, err
	}

	quantity, err := optionalQuantity(record, "Quantity")
	if err != nil {
		return e, err
	}
	pricePerShareLocal, err := optionalMoney(record, "Price per share", currency)
	if err != nil {
		return e, err
	}

	totalStr, err := record.get("Total Amount")
	if err != nil {
		return e, err
	}
	total, err := decimal.NewFromString(sanitizeAmount(totalStr))
	if err != nil {
		return e, fmt.Errorf("invalid total amount %q: %w", totalStr, err)
	}

	// Fees are not exported: derive them as the gap between the total amount
	// and the bare shares price. The gap is positive for buys and negative
	// for sells, hence the absolute value.
	var feesLocal *Money
	if pricePerShareLocal != nil && quantity != nil {
		fees := M(total, currency).Sub(pricePerShareLocal.Mul(*quantity)).Abs()
		feesLocal = &fees
	}

	return Event{
		Date:               date,
		Type:               eventType,
		Ticker:             ticker,
		Quantity:           quantity,
		PricePerShareLocal: pricePerShareLocal,
		TotalAmountLocal:   M(total, currency),
		FeesLocal:          feesLocal,
		Currency:           currency,
		FXRate:             fxRate,
		Broker:             broker,
		OriginalTicker:     ticker,
	}, nil
}

func parseStockDate(s string) (time.Time, error) {
	for _, layout := range stockDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// resolveFxRate prefers the rate table and falls back to the broker's rate.
func resolveFxRate(rates *FxRates, currency string, date time.Time, brokerRate string) (decimal.Decimal, error) {
	if rates != nil {
		if rate, err := rates.Rate(currency, DateOf(date)); err == nil {
			return rate, nil
		}
		warnf("no FX rate found for day %s -> using %s", DateOf(date), brokerRate)
	}
	rate, err := decimal.NewFromString(brokerRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid FX rate %q: %w", brokerRate, err)
	}
	return rate, nil
}

func optionalQuantity(record csvRecord, name string) (*Quantity, error) {
	s, err := record.get(name)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	q := Q(v)
	return &q, nil
}

func optionalMoney(record csvRecord, name, currency string) (*Money, error) {
	s, err := record.get(name)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(sanitizeAmount(s))
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	m := M(v, currency)
	return &m, nil
}

// sanitizeAmount strips the decorations some exports put around amounts,
// like "($12.30)".
func sanitizeAmount(s string) string {
	return strings.Trim(s, "($)")
}
