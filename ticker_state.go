package taxfolio

import "fmt"

// TickerState is the running summary for one ticker, derived purely from its
// chronological event list. Transitions never mutate a state in place: they
// return a modified copy, so a state value can be kept or discarded freely.
//
// The three gain methods coexist in one state and advance in parallel from
// the same events, each with its own accumulator pair:
//
//   - CUMP (Coût Unitaire Moyen Pondéré, weighted average cost) treats all
//     shares of the ticker as a single pool bought at the quantity-weighted
//     average of the buy prices. TotalAmountBase is the pool's cost basis:
//     buys add their total amount, sells subtract the average buy price of
//     the shares sold (never the sell proceeds, which would corrupt the
//     average for the remaining shares).
//
//   - PEPS (Premier Entré Premier Sorti, FIFO) matches each sale against the
//     oldest buy events not yet fully consumed. PepsCurrentIndex points into
//     the ticker's event list at the oldest such buy, and
//     PepsCurrentIndexSoldQuantity is how much of it is already matched.
//
//   - The crypto method treats the whole crypto portfolio as one undivided
//     asset: a sale realizes the proportion of the at-risk invested capital
//     that it cashes out, measured against the portfolio value at the time
//     of the sale. PortfolioAcquisitionValueBase accumulates every buy and
//     is never decremented; CryptoFractionOfInitialCapital is the principal
//     already recovered by prior sales.
type TickerState struct {
	// Ticker groups events on the same financial instrument, and is unique
	// within the portfolio. Empty for the account-level pseudo ticker.
	Ticker string
	// Isin identifies the instrument independently from the exchange. Used
	// for display and for the withholding-tax country lookup.
	Isin string

	PlusValueCumpBase    Money
	PlusValuePepsBase    Money
	PlusValueCryptoBase  Money
	MinusValueCumpBase   Money
	MinusValuePepsBase   Money
	MinusValueCryptoBase Money

	// TotalQuantity is the number of shares currently held. It can reach
	// zero but never goes negative beyond the configured precision.
	TotalQuantity Quantity
	// TotalAmountBase is the CUMP cost-basis pool in base currency.
	TotalAmountBase Money

	NetDividendsBase   Money
	WhtDividendsBase   Money
	GrossDividendsBase Money

	NetInterestsBase   Money
	WhtInterestsBase   Money
	GrossInterestsBase Money

	// PepsCurrentIndex is the index, in the ticker's full event list, of the
	// oldest buy event not fully consumed by sales. -1 until the first sale:
	// index 0 may well not be a buy event (e.g. a cash top-up).
	PepsCurrentIndex int
	// PepsCurrentIndexSoldQuantity is the quantity of the buy event at
	// PepsCurrentIndex already matched against sales. Always at most that
	// event's quantity; when equal, the cursor moves to the next buy event.
	PepsCurrentIndexSoldQuantity Quantity

	// PortfolioAcquisitionValueBase is the cumulative fiat cost of the whole
	// crypto portfolio. Only ever increased, including across resets.
	PortfolioAcquisitionValueBase Money
	// CryptoFractionOfInitialCapital is the part of the acquisition value
	// already returned as principal by prior sales.
	CryptoFractionOfInitialCapital Money
}

// NewTickerState returns the initial state for a ticker's event list.
func NewTickerState(ticker, isin string) TickerState {
	return TickerState{Ticker: ticker, Isin: isin, PepsCurrentIndex: -1}
}

// reset carries cost-basis continuity into a new accounting period: held
// quantity, CUMP pool, PEPS cursor and crypto cursor survive, while gain,
// dividend and interest accumulators start from zero.
func (s TickerState) reset() TickerState {
	next := NewTickerState(s.Ticker, s.Isin)
	next.TotalQuantity = s.TotalQuantity
	next.TotalAmountBase = s.TotalAmountBase
	next.PepsCurrentIndex = s.PepsCurrentIndex
	next.PepsCurrentIndexSoldQuantity = s.PepsCurrentIndexSoldQuantity
	next.PortfolioAcquisitionValueBase = s.PortfolioAcquisitionValueBase
	next.CryptoFractionOfInitialCapital = s.CryptoFractionOfInitialCapital
	return next
}

// String renders the state the way the processing narrative displays it.
func (s TickerState) String() string {
	return fmt.Sprintf("%s shares => %s %s, "+
		"+V = CUMP %s, PEPS %s, CRYP %s, "+
		"-V = CUMP %s, PEPS %s, CRYP %s, "+
		"Dividends = %s + WHT %s = %s, "+
		"Interests = %s + WHT %s = %s",
		s.TotalQuantity, s.TotalAmountBase.Decimal(), s.TotalAmountBase.Currency(),
		s.PlusValueCumpBase.Decimal(), s.PlusValuePepsBase.Decimal(), s.PlusValueCryptoBase.Decimal(),
		s.MinusValueCumpBase.Decimal(), s.MinusValuePepsBase.Decimal(), s.MinusValueCryptoBase.Decimal(),
		s.NetDividendsBase.Decimal(), s.WhtDividendsBase.Decimal(), s.GrossDividendsBase.Decimal(),
		s.NetInterestsBase.Decimal(), s.WhtInterestsBase.Decimal(), s.GrossInterestsBase.Decimal())
}
