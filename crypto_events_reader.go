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

// CryptoTicker is the synthetic ticker all crypto events are grouped under.
// Tax-wise the crypto portfolio is one undivided asset, so the individual
// coin does not matter.
const CryptoTicker = "CRYPTO"

const cryptoDateLayout = "2006-01-02 15:04:05"

// ReadCryptoEvents reads an exchange crypto export file into events.
func ReadCryptoEvents(path, broker, baseCurrency string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open crypto events: %w", err)
	}
	defer f.Close()
	events, err := ParseCryptoEvents(f, broker, baseCurrency)
	if err != nil {
		return nil, fmt.Errorf("cannot parse crypto events %q: %w", path, err)
	}
	return events, nil
}

// ParseCryptoEvents reads an exchange crypto export into events. Expected
// columns: Type, Product, Started Date, Completed Date, Description, Amount,
// Currency, Fiat amount, Fiat amount (inc. fees), Fee, Base currency, State,
// Balance.
//
// EXCHANGE rows become buy or sell orders on the synthetic CRYPTO ticker
// depending on the sign of the amount. RESET rows become reset events.
// TRANSFER and REWARD rows are skipped with a warning: transfers move coins
// without a taxable disposal, and staking rewards are not supported yet.
//
// Unlike stocks, which are exchanged against local fiat, crypto is exchanged
// against base fiat directly, so the FX rate is always 1.
func ParseCryptoEvents(rd io.Reader, broker, baseCurrency string) ([]Event, error) {
	cr := csv.NewReader(rd)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read header: %w", err)
	}
	index := newCSVHeader(header)

	one := decimal.NewFromInt(1)
	var events []Event
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		record := csvRecord{index, fields}

		get := func(name string) string {
			s, gerr := record.get(name)
			if gerr != nil && err == nil {
				err = gerr
			}
			return s
		}
		typeStr := get("Type")
		product := get("Product")
		started := get("Started Date")
		completed := get("Completed Date")
		coin := get("Currency")
		recordBase := get("Base currency")
		state := get("State")
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", fields, err)
		}

		date, err := time.Parse(cryptoDateLayout, started)
		if err != nil {
			return nil, fmt.Errorf("record %q: invalid date: %w", fields, err)
		}
		if started != completed {
			return nil, fmt.Errorf("record %q: started date differs from completed date", fields)
		}
		if recordBase != baseCurrency {
			return nil, fmt.Errorf("record %q: base currency %q, want %q", fields, recordBase, baseCurrency)
		}

		switch strings.ToUpper(typeStr) {
		case "RESET":
			events = append(events, Event{
				Date:             date,
				Type:             Reset,
				Ticker:           CryptoTicker,
				TotalAmountLocal: M(0, baseCurrency),
				Currency:         baseCurrency,
				FXRate:           one,
				Broker:           broker,
			})
			continue
		case "TRANSFER", "REWARD":
			warnf("ignore record type %s: %q", typeStr, fields)
			continue
		case "EXCHANGE":
			// handled below
		default:
			return nil, fmt.Errorf("record %q: unsupported type %q", fields, typeStr)
		}

		if product != "Current" {
			return nil, fmt.Errorf("record %q: unsupported product %q", fields, product)
		}
		if state != "COMPLETED" {
			return nil, fmt.Errorf("record %q: unsupported state %q", fields, state)
		}

		amountStr := get("Amount")
		fiatStr := get("Fiat amount")
		fiatIncFeesStr := get("Fiat amount (inc. fees)")
		feeStr := get("Fee")
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", fields, err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("record %q: invalid amount: %w", fields, err)
		}
		if amount.IsZero() {
			return nil, fmt.Errorf("record %q: amount is 0", fields)
		}
		quantity := Q(amount.Abs())
		eventType := BuyMarket
		if amount.IsNegative() {
			eventType = SellMarket
		}

		fiat, err := decimal.NewFromString(fiatStr)
		if err != nil {
			return nil, fmt.Errorf("record %q: invalid fiat amount: %w", fields, err)
		}
		if fiat.Sign() != amount.Sign() {
			return nil, fmt.Errorf("record %q: amount and fiat amount have different signs", fields)
		}
		pricePerShare := M(fiat.Abs(), baseCurrency).Div(quantity)

		fiatIncFees, err := decimal.NewFromString(fiatIncFeesStr)
		if err != nil {
			return nil, fmt.Errorf("record %q: invalid fiat amount inc. fees: %w", fields, err)
		}
		if fiatIncFees.Sign() != fiat.Sign() {
			return nil, fmt.Errorf("record %q: fiat amount and fiat amount inc. fees have different signs", fields)
		}

		// Unlike stocks, the record carries a dedicated fee field.
		fee, err := decimal.NewFromString(feeStr)
		if err != nil {
			return nil, fmt.Errorf("record %q: invalid fee: %w", fields, err)
		}
		if fee.IsNegative() {
			return nil, fmt.Errorf("record %q: fees are negative", fields)
		}
		fees := M(fee, baseCurrency)

		events = append(events, Event{
			Date:               date,
			Type:               eventType,
			Ticker:             CryptoTicker,
			Quantity:           &quantity,
			PricePerShareLocal: &pricePerShare,
			TotalAmountLocal:   M(fiatIncFees.Abs(), baseCurrency),
			FeesLocal:          &fees,
			Currency:           baseCurrency,
			FXRate:             one,
			Broker:             broker,
			OriginalTicker:     coin,
		})
	}
	return events, nil
}
