package taxfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the closed set of broker event kinds the engine understands.
type EventType int

const (
	// Reset is a synthetic event added at the beginning of a fiscal year to
	// reset gain and dividend aggregates while keeping cost-basis continuity.
	Reset EventType = iota
	// CashTopUp and CashWithdrawal are transfers between the expenditure
	// account and the investing account. Cash is not tracked per ticker, so
	// they do not change any ticker state.
	CashTopUp
	CashWithdrawal
	// CustodyFee is the periodic fee for custody of cash and positions.
	CustodyFee
	// CustodyChange records a change of custody entity.
	CustodyChange
	// Buy and Sell orders. Market vs limit is informational only: the price
	// recorded is always the execution price.
	BuyMarket
	BuyLimit
	SellMarket
	SellLimit
	// StockSplit changes the share size of a position. Its quantity is the
	// delta of shares, negative for a reverse split.
	StockSplit
	// Dividend is a net cash payment for a held security.
	Dividend
	// Interest is a net cash payment on the cash balance or security lending.
	Interest
	// Reward is a staking reward, relevant for crypto only.
	Reward
)

func (t EventType) String() string {
	switch t {
	case Reset:
		return "Reset"
	case CashTopUp:
		return "CashTopUp"
	case CashWithdrawal:
		return "CashWithdrawal"
	case CustodyFee:
		return "CustodyFee"
	case CustodyChange:
		return "CustodyChange"
	case BuyMarket:
		return "BuyMarket"
	case BuyLimit:
		return "BuyLimit"
	case SellMarket:
		return "SellMarket"
	case SellLimit:
		return "SellLimit"
	case StockSplit:
		return "StockSplit"
	case Dividend:
		return "Dividend"
	case Interest:
		return "Interest"
	case Reward:
		return "Reward"
	default:
		return "unknown"
	}
}

// ParseEventType parses a string into an EventType.
func ParseEventType(s string) (EventType, error) {
	for t := Reset; t <= Reward; t++ {
		if strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type: %q", s)
}

// IsBuy reports whether the type is a buy order, market or limit.
func (t EventType) IsBuy() bool { return t == BuyMarket || t == BuyLimit }

// IsSell reports whether the type is a sell order, market or limit.
func (t EventType) IsSell() bool { return t == SellMarket || t == SellLimit }

// Event is a single immutable fact about the portfolio at an instant:
// an order, a dividend, a split, a cash movement or a synthetic reset.
//
// Nomenclature for amounts:
//   - PerShare: a single share in this event
//   - Shares: all shares in this event (quantity times per-share price)
//   - Total: all shares in this event plus the fees of this event
//
// For buy orders TotalAmountLocal is higher than the shares price, as it
// includes the fees paid. For sell orders it is lower, as fees are deducted
// from the proceeds.
type Event struct {
	// Date is when the event occurred. Mandatory for every event, including
	// synthetic ones, since events are processed in chronological order.
	Date time.Time

	Type EventType

	// Ticker groups events on the same financial instrument. Empty for
	// account-level events (top-up, withdrawal, custody fee, reset). It does
	// not need to be the real exchange symbol, but all events on the same
	// instrument must share it.
	Ticker string

	// Quantity is the signed count of units. Mandatory and strictly positive
	// for buys and sells; for StockSplit it is the share delta, negative on a
	// reverse split. Nil otherwise.
	Quantity *Quantity

	// PricePerShareLocal is the execution price per unit in the event's local
	// currency. Mandatory for buys and sells, nil otherwise.
	PricePerShareLocal *Money

	// TotalAmountLocal is the total local-currency amount of the event,
	// fees included. Exactly zero for StockSplit and CustodyChange.
	TotalAmountLocal Money

	// FeesLocal is derived by the readers as |TotalAmountLocal − shares price|.
	// Mandatory (non-nil, non-negative) for buys and sells, nil otherwise.
	FeesLocal *Money

	// Currency is the local currency code of the event.
	Currency string

	// FXRate converts local amounts to the base currency by division: it is
	// the amount of local currency per unit of base currency, as supplied by
	// the broker. Exactly 1 when Currency is the base currency.
	FXRate decimal.Decimal

	// PortfolioValueBase is the snapshot of the whole crypto portfolio value
	// in base currency at the time of a crypto sell. Nil when unknown or not
	// applicable; the crypto gain method is skipped in that case.
	PortfolioValueBase *Money

	// Broker and OriginalTicker are provenance metadata, used for display only.
	Broker         string
	OriginalTicker string
}

// String renders the event the way the processing narrative displays it.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s ", e.Date.Format("2006-01-02 15:04:05"), e.Type)
	if e.Quantity != nil && e.PricePerShareLocal != nil {
		fmt.Fprintf(&b, "%s shares at %s %s/share ",
			e.Quantity, e.PricePerShareLocal.Decimal(), e.Currency)
	}
	fmt.Fprintf(&b, "=> %s %s (FXRate = %s)", e.TotalAmountLocal.Decimal(), e.Currency, e.FXRate)
	return b.String()
}
