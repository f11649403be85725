package taxfolio

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// The error taxonomy of event processing. Any of these aborts the whole
// ticker: tax figures are all-or-nothing per ticker, there is no partial
// tolerance.
var (
	// ErrMalformedEvent reports a field that is nil/non-nil, zero/non-zero
	// or signed incorrectly for its event type.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrInconsistentEvents reports a logical inconsistency across the event
	// list: selling more than held, heterogeneous currencies, a PEPS cursor
	// past the end of the list.
	ErrInconsistentEvents = errors.New("inconsistent events")
	// ErrUnsupportedEvent reports an event type the dispatcher cannot handle.
	ErrUnsupportedEvent = errors.New("unsupported event type")
)

// SellDetail is the snapshot of one processed sell event, emitted for the
// tax-form renderers.
type SellDetail struct {
	Event Event
	// State is the ticker state after the sell was applied.
	State TickerState

	PerShareSellPriceBase   Money
	PerShareAvgBuyPriceBase Money
	TotalAvgBuyPriceBase    Money
	SellFeesBase            Money

	// Signed realized values for the methods the forms report.
	PlusValueCumpBase   Money
	PlusValueCryptoBase Money

	// PortfolioValueBase is the crypto portfolio snapshot used by the crypto
	// method, nil when it was unknown.
	PortfolioValueBase *Money
}

// Processing folds chronological event lists into ticker states. It narrates
// every intermediate computed value to the writer passed to ProcessTicker,
// one line per value, in the form "\t<Label> (<currency>) = <rounded>", so a
// run leaves a complete audit trail of the tax figures.
type Processing struct {
	basics *Basics

	// OnSell, when set, receives one record per processed sell event, in
	// processing order. The form renderers consume these.
	OnSell func(SellDetail)
}

// NewProcessing creates a processing engine for the given configuration.
func NewProcessing(basics *Basics) *Processing {
	return &Processing{basics: basics}
}

// ProcessTicker folds one ticker's chronological event list into its final
// state. The caller guarantees the events are sorted by date and all carry
// the same ticker. A StockSplit event renormalizes the already-processed buy
// and sell events: the transition returns a new event list and the fold
// continues on it, so later FIFO lookups see split-adjusted lots.
//
// Processing a ticker is pure: the input slice is never modified, and
// replaying the same list yields the identical state.
func (p *Processing) ProcessTicker(ticker string, events []Event, w io.Writer) (TickerState, error) {
	if w == nil {
		w = io.Discard
	}

	isin, err := p.basics.Isin(ticker)
	if err != nil {
		return TickerState{}, err
	}
	if ticker == "" {
		fmt.Fprintf(w, "PROCESS NON-TICKER-RELATED EVENTS\n")
	} else {
		fmt.Fprintf(w, "PROCESS %s [%s]\n", ticker, isin)
	}

	state := NewTickerState(ticker, isin)
	for i := 0; i < len(events); i++ {
		e := events[i]
		fmt.Fprintf(w, "%d: %s\n", i, e)

		switch e.Type {
		case Reset:
			state, err = p.processReset(e, state)
		case CashTopUp, CashWithdrawal, CustodyFee, CustodyChange:
			state, err = p.processNoop(e, state)
		case BuyMarket, BuyLimit:
			state, err = p.processBuy(e, events, i, state, w)
		case SellMarket, SellLimit:
			state, err = p.processSell(e, events, i, state, w)
		case StockSplit:
			state, events, err = p.processStockSplit(e, events, i, state, w)
		case Dividend:
			state, err = p.processDividend(e, state, w)
		case Interest:
			state, err = p.processInterest(e, state, w)
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupportedEvent, e)
		}
		if err != nil {
			return TickerState{}, fmt.Errorf("processing %q event %d: %w", ticker, i, err)
		}

		fmt.Fprintf(w, "\tTicker State: %s\n\n", state)
	}

	fmt.Fprintln(w, strings.Repeat("=", 100))
	return state, nil
}

// logValue writes one line of the processing narrative.
func (p *Processing) logValue(w io.Writer, label, currency string, v decimal.Decimal) {
	fmt.Fprintf(w, "\t%s (%s) = %s\n", label, currency, p.basics.Round(v))
}

// processReset starts a new accounting period: it zeroes the gain, dividend
// and interest aggregates while carrying the cost-basis continuity fields.
func (p *Processing) processReset(e Event, state TickerState) (TickerState, error) {
	if e.Quantity != nil {
		return state, fmt.Errorf("%w: reset quantity not nil", ErrMalformedEvent)
	}
	if e.PricePerShareLocal != nil {
		return state, fmt.Errorf("%w: reset price per share not nil", ErrMalformedEvent)
	}
	if !e.TotalAmountLocal.IsZero() {
		return state, fmt.Errorf("%w: reset total amount not zero", ErrMalformedEvent)
	}
	if e.FeesLocal != nil {
		return state, fmt.Errorf("%w: reset fees not nil", ErrMalformedEvent)
	}
	return state.reset(), nil
}

// processNoop handles the cash and custody events that do not change any
// tracked ticker balance. Cash is deliberately not modelled per ticker.
func (p *Processing) processNoop(e Event, state TickerState) (TickerState, error) {
	return state, nil
}

// validateOrder holds the checks shared by buy and sell transitions.
func validateOrder(e Event, events []Event, index int, state TickerState) error {
	if e.Ticker == "" {
		return fmt.Errorf("%w: ticker is empty", ErrMalformedEvent)
	}
	if e.Ticker != state.Ticker {
		return fmt.Errorf("%w: event ticker %q does not match state ticker %q",
			ErrInconsistentEvents, e.Ticker, state.Ticker)
	}
	if e.PricePerShareLocal == nil {
		return fmt.Errorf("%w: price per share is nil", ErrMalformedEvent)
	}
	if e.Quantity == nil || !e.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity is nil or non-positive", ErrMalformedEvent)
	}
	if !e.TotalAmountLocal.IsPositive() {
		return fmt.Errorf("%w: total amount is non-positive", ErrMalformedEvent)
	}
	if e.FeesLocal == nil {
		return fmt.Errorf("%w: fees are nil", ErrMalformedEvent)
	}
	for _, prev := range events[:index] {
		if prev.Currency != e.Currency {
			return fmt.Errorf("%w: heterogeneous currencies: %s vs %s",
				ErrInconsistentEvents, prev, e)
		}
	}
	return nil
}

// processBuy accumulates the CUMP cost-basis pool and the crypto acquisition
// value. No gain is realized on a buy.
func (p *Processing) processBuy(e Event, events []Event, index int, state TickerState, w io.Writer) (TickerState, error) {
	if err := validateOrder(e, events, index, state); err != nil {
		return state, err
	}

	base := p.basics.BaseCurrency

	// Reminder: FXRate is the amount of local currency per base currency:
	// e.g. FXRate = 1.2 means 1.2 USD = 1 EUR, where USD is the local
	// currency and EUR is the base currency.
	totalBuyPriceLocal := e.TotalAmountLocal
	p.logValue(w, "Total Buy Price", e.Currency, totalBuyPriceLocal.Decimal())

	totalBuyPriceBase := totalBuyPriceLocal.Convert(e.FXRate, base)
	p.logValue(w, "Total Buy Price", base, totalBuyPriceBase.Decimal())

	sharesBuyPriceLocal := e.PricePerShareLocal.Mul(*e.Quantity)
	p.logValue(w, "Shares Buy Price", e.Currency, sharesBuyPriceLocal.Decimal())

	sharesBuyPriceBase := sharesBuyPriceLocal.Convert(e.FXRate, base)
	p.logValue(w, "Shares Buy Price", base, sharesBuyPriceBase.Decimal())

	perShareBuyPriceBase := e.PricePerShareLocal.Convert(e.FXRate, base)
	p.logValue(w, "PerShare Buy Price", e.Currency, e.PricePerShareLocal.Decimal())
	p.logValue(w, "PerShare Buy Price", base, perShareBuyPriceBase.Decimal())

	buyFeesBase := e.FeesLocal.Convert(e.FXRate, base)
	p.logValue(w, "Buy Fees", e.Currency, e.FeesLocal.Decimal())
	p.logValue(w, "Buy Fees", base, buyFeesBase.Decimal())

	state.TotalQuantity = state.TotalQuantity.Add(*e.Quantity)
	state.TotalAmountBase = state.TotalAmountBase.Add(totalBuyPriceBase)
	state.PortfolioAcquisitionValueBase = state.PortfolioAcquisitionValueBase.Add(totalBuyPriceBase)
	return state, nil
}

// processSell realizes capital gains with the three methods in parallel:
// CUMP (weighted average cost), PEPS (FIFO) and the crypto fractional
// method. Each keeps its own plus/minus accumulator pair; they never mix.
func (p *Processing) processSell(e Event, events []Event, index int, state TickerState, w io.Writer) (TickerState, error) {
	if err := validateOrder(e, events, index, state); err != nil {
		return state, err
	}
	if state.TotalQuantity.Sub(*e.Quantity).Decimal().LessThan(p.basics.Precision.Neg()) {
		return state, fmt.Errorf("%w: cannot sell more than owned", ErrInconsistentEvents)
	}
	// A tiny sell passes the check above even when nothing is held anymore:
	// a held quantity within the tolerance of zero has no average buy price.
	if state.TotalQuantity.Decimal().LessThanOrEqual(p.basics.Precision) {
		return state, fmt.Errorf("%w: cannot sell with no held shares", ErrInconsistentEvents)
	}

	base := p.basics.BaseCurrency
	quantity := *e.Quantity

	totalSellPriceLocal := e.TotalAmountLocal
	p.logValue(w, "Total Sell Price", e.Currency, totalSellPriceLocal.Decimal())

	sharesSellPriceLocal := e.PricePerShareLocal.Mul(quantity)
	p.logValue(w, "Shares Sell Price", e.Currency, sharesSellPriceLocal.Decimal())

	// The average is computed on the state BEFORE this sell mutates it.
	perShareAvgBuyPriceBase := state.TotalAmountBase.Div(state.TotalQuantity)
	p.logValue(w, "PerShare Average Buy Price", base, perShareAvgBuyPriceBase.Decimal())

	totalAvgBuyPriceBase := perShareAvgBuyPriceBase.Mul(quantity)
	p.logValue(w, "Total Average Buy Price", base, totalAvgBuyPriceBase.Decimal())

	perShareSellPriceBase := e.PricePerShareLocal.Convert(e.FXRate, base)
	p.logValue(w, "PerShare Sell Price", base, perShareSellPriceBase.Decimal())

	sharesSellPriceBase := perShareSellPriceBase.Mul(quantity)
	p.logValue(w, "Shares Sell Price", base, sharesSellPriceBase.Decimal())

	totalSellPriceBase := totalSellPriceLocal.Convert(e.FXRate, base)
	p.logValue(w, "Total Sell Price", base, totalSellPriceBase.Decimal())

	// Two independent fee estimates. They are expected to reconcile but the
	// intended tolerance is unspecified, so both are reported and neither is
	// enforced.
	sellFees1Base := sharesSellPriceBase.Sub(totalSellPriceBase).Abs()
	sellFees2Base := e.FeesLocal.Convert(e.FXRate, base)
	p.logValue(w, "Sell Fees 1", base, sellFees1Base.Decimal())
	p.logValue(w, "Sell Fees 2", base, sellFees2Base.Decimal())
	sellFeesBase := sellFees1Base.Max(sellFees2Base)

	plusValueCump := p.cumpGain(totalAvgBuyPriceBase, totalSellPriceBase, w)
	plusValuePeps, pepsIndex, pepsSold, err := p.pepsGain(e, events, state, totalSellPriceBase, w)
	if err != nil {
		return state, err
	}
	plusValueCrypto, cryptoFraction := p.cryptoGain(e, state, totalSellPriceBase, sellFeesBase, w)

	state.TotalQuantity = state.TotalQuantity.Sub(quantity)
	// Subtract the average buy price of the sold shares, NOT the sell
	// proceeds: this is what keeps the weighted average stable across
	// partial sells.
	state.TotalAmountBase = state.TotalAmountBase.Sub(totalAvgBuyPriceBase)
	state.PlusValueCumpBase, state.MinusValueCumpBase =
		accumulate(state.PlusValueCumpBase, state.MinusValueCumpBase, plusValueCump)
	state.PlusValuePepsBase, state.MinusValuePepsBase =
		accumulate(state.PlusValuePepsBase, state.MinusValuePepsBase, plusValuePeps)
	state.PlusValueCryptoBase, state.MinusValueCryptoBase =
		accumulate(state.PlusValueCryptoBase, state.MinusValueCryptoBase, plusValueCrypto)
	state.PepsCurrentIndex = pepsIndex
	state.PepsCurrentIndexSoldQuantity = pepsSold
	state.CryptoFractionOfInitialCapital = cryptoFraction

	if p.OnSell != nil {
		p.OnSell(SellDetail{
			Event:                   e,
			State:                   state,
			PerShareSellPriceBase:   perShareSellPriceBase,
			PerShareAvgBuyPriceBase: perShareAvgBuyPriceBase,
			TotalAvgBuyPriceBase:    totalAvgBuyPriceBase,
			SellFeesBase:            sellFeesBase,
			PlusValueCumpBase:       plusValueCump,
			PlusValueCryptoBase:     plusValueCrypto,
			PortfolioValueBase:      e.PortfolioValueBase,
		})
	}
	return state, nil
}

// accumulate adds a signed realized value to the plus accumulator when it is
// a gain, or its absolute value to the minus accumulator when it is a loss.
func accumulate(plus, minus, value Money) (Money, Money) {
	if value.IsNegative() {
		return plus, minus.Add(value.Neg())
	}
	return plus.Add(value), minus
}

// cumpGain realizes the weighted-average-cost gain of a sell.
func (p *Processing) cumpGain(totalAvgBuyPriceBase, totalSellPriceBase Money, w io.Writer) Money {
	gain := totalSellPriceBase.Sub(totalAvgBuyPriceBase)
	if gain.IsNegative() {
		p.logValue(w, "Minus Value CUMP", p.basics.BaseCurrency, gain.Neg().Decimal())
	} else {
		p.logValue(w, "Plus Value CUMP", p.basics.BaseCurrency, gain.Decimal())
	}
	return gain
}

// pepsGain realizes the FIFO gain of a sell: it consumes the ticker's buy
// events oldest-first, starting at the cursor persisted in the state, and
// returns the updated cursor along with the gain.
func (p *Processing) pepsGain(e Event, events []Event, state TickerState, totalSellPriceBase Money, w io.Writer) (Money, int, Quantity, error) {
	base := p.basics.BaseCurrency
	remaining := *e.Quantity
	index := state.PepsCurrentIndex
	sold := state.PepsCurrentIndexSoldQuantity
	totalPepsBuyPriceBase := M(0, base)

	for {
		if !remaining.IsPositive() {
			fmt.Fprintf(w, "\tPEPS Remaining Quantity to match: %s => DONE\n", p.basics.Round(remaining.Decimal()))
			break
		}
		fmt.Fprintf(w, "\tPEPS Remaining Quantity to match: %s => FIND Buy Event\n", p.basics.Round(remaining.Decimal()))

		// The cursor starts at -1 and may rest on a non-buy event: advance
		// it to the next buy event before matching.
		if index < 0 {
			index = 0
		}
		for index < len(events) && !events[index].Type.IsBuy() {
			index++
		}
		if index >= len(events) {
			return Money{}, index, sold, fmt.Errorf("%w: PEPS current index out of range, selling more than bought", ErrInconsistentEvents)
		}

		buy := events[index]
		if buy.Quantity == nil || buy.PricePerShareLocal == nil || buy.FeesLocal == nil {
			return Money{}, index, sold, fmt.Errorf("%w: PEPS current index not pointing to a valid buy event", ErrInconsistentEvents)
		}
		buyQuantity := *buy.Quantity
		if sold.GreaterThan(buyQuantity) {
			return Money{}, index, sold, fmt.Errorf("%w: PEPS sold quantity exceeds buy event quantity", ErrInconsistentEvents)
		}

		matched := remaining.Min(buyQuantity.Sub(sold))
		sold = sold.Add(matched)
		remaining = remaining.Sub(matched)

		// The matched shares carry their share of the lot's buy fees, so a
		// fully consumed lot costs exactly its total amount.
		feesShareLocal := buy.FeesLocal.Mul(matched).Div(buyQuantity)
		lotPriceLocal := buy.PricePerShareLocal.Mul(matched).Add(feesShareLocal)
		totalPepsBuyPriceBase = totalPepsBuyPriceBase.Add(lotPriceLocal.Convert(buy.FXRate, base))

		if sold.LessThan(buyQuantity) {
			fmt.Fprintf(w, "\tPEPS Buy Event %s at index %d bought partially\n", buy, index)
		} else {
			fmt.Fprintf(w, "\tPEPS Buy Event %s at index %d bought entirely => move to next\n", buy, index)
			index++
			for index < len(events) && !events[index].Type.IsBuy() {
				index++
			}
			sold = Q(0)
		}
	}

	gain := totalSellPriceBase.Sub(totalPepsBuyPriceBase)
	if gain.IsNegative() {
		p.logValue(w, "Minus Value PEPS", base, gain.Neg().Decimal())
	} else {
		p.logValue(w, "Plus Value PEPS", base, gain.Decimal())
	}
	return gain, index, sold, nil
}

// cryptoGain realizes the crypto fractional-capital gain of a sell. Unlike
// stocks, crypto is tax-treated as one undivided asset: the gain is measured
// against the fraction of the invested capital the sell proportionally
// liquidates, not against a specific lot. The method needs a snapshot of the
// whole portfolio value at sell time; when it is unknown the method is
// skipped and contributes nothing.
func (p *Processing) cryptoGain(e Event, state TickerState, totalSellPriceBase, sellFeesBase Money, w io.Writer) (Money, Money) {
	base := p.basics.BaseCurrency

	if e.PortfolioValueBase == nil {
		fmt.Fprintf(w, "\tPortfolio Current Value not known => Skipping Crypto +/- value calculation...\n")
		return M(0, base), state.CryptoFractionOfInitialCapital
	}
	portfolioValueBase := *e.PortfolioValueBase
	p.logValue(w, "Portfolio Current Value", base, portfolioValueBase.Decimal())

	p.logValue(w, "Portfolio Acquisition Value", base, state.PortfolioAcquisitionValueBase.Decimal())

	currentFraction := state.CryptoFractionOfInitialCapital
	p.logValue(w, "Current Fraction of Initial Capital CRYPTO", base, currentFraction.Decimal())

	// The cost basis still at risk, i.e. not yet recovered as principal by
	// prior sells.
	netAcquisitionValueBase := state.PortfolioAcquisitionValueBase.Sub(currentFraction)
	p.logValue(w, "Portfolio Net Acquisition Value", base, netAcquisitionValueBase.Decimal())

	totalNetSellPriceBase := totalSellPriceBase.Sub(sellFeesBase)

	// The proportion of at-risk capital cashed out by this sell, scaled by
	// the sell's weight in the whole current portfolio value.
	deltaFraction := M(netAcquisitionValueBase.Decimal().
		Mul(totalSellPriceBase.Decimal()).
		Div(portfolioValueBase.Decimal()), base)
	p.logValue(w, "Delta Fraction of Initial Capital CRYPTO", base, deltaFraction.Decimal())

	nextFraction := currentFraction.Add(deltaFraction)
	p.logValue(w, "Next Fraction of Initial Capital CRYPTO", base, nextFraction.Decimal())

	gain := totalNetSellPriceBase.Sub(deltaFraction)
	if gain.IsNegative() {
		p.logValue(w, "Minus Value CRYPTO", base, gain.Neg().Decimal())
	} else {
		p.logValue(w, "Plus Value CRYPTO", base, gain.Decimal())
	}
	return gain, nextFraction
}

// processStockSplit applies a split delta to the held quantity and returns a
// new event list where every already-processed buy and sell event is
// renormalized to post-split shares, so later FIFO lookups match against
// adjusted lots. The input list is left untouched.
func (p *Processing) processStockSplit(e Event, events []Event, index int, state TickerState, w io.Writer) (TickerState, []Event, error) {
	if e.Ticker == "" {
		return state, events, fmt.Errorf("%w: ticker is empty", ErrMalformedEvent)
	}
	if e.Ticker != state.Ticker {
		return state, events, fmt.Errorf("%w: event ticker %q does not match state ticker %q",
			ErrInconsistentEvents, e.Ticker, state.Ticker)
	}
	if e.Quantity == nil {
		return state, events, fmt.Errorf("%w: split quantity is nil", ErrMalformedEvent)
	}
	if e.PricePerShareLocal != nil {
		return state, events, fmt.Errorf("%w: split price per share not nil", ErrMalformedEvent)
	}
	if !e.TotalAmountLocal.IsZero() {
		return state, events, fmt.Errorf("%w: split total amount not zero", ErrMalformedEvent)
	}
	if state.TotalQuantity.IsZero() {
		return state, events, fmt.Errorf("%w: split with no held shares", ErrInconsistentEvents)
	}

	delta := *e.Quantity
	fmt.Fprintf(w, "\tSplit Delta = %s\n", delta)

	ratio := state.TotalQuantity.Add(delta).Div(state.TotalQuantity)
	if !ratio.IsPositive() {
		return state, events, fmt.Errorf("%w: split delta %s wipes out the held shares", ErrInconsistentEvents, delta)
	}
	fmt.Fprintf(w, "\tSplit Ratio = %s\n", ratio)

	fmt.Fprintf(w, "\tRetroactively update previous buy and sell events:\n")
	renormalized := slices.Clone(events)
	for i := 0; i < index; i++ {
		if !events[i].Type.IsBuy() && !events[i].Type.IsSell() {
			continue
		}
		ne := events[i]
		quantity := ne.Quantity.Mul(ratio)
		price := ne.PricePerShareLocal.Div(ratio)
		ne.Quantity, ne.PricePerShareLocal = &quantity, &price
		fmt.Fprintf(w, "\t\t%s\n", events[i])
		fmt.Fprintf(w, "\t\t\tbecomes %s\n", ne)
		renormalized[i] = ne
	}

	state.TotalQuantity = state.TotalQuantity.Add(delta)
	return state, renormalized, nil
}

// processDividend accumulates the net dividend and grosses it up by the
// withholding tax deducted at source in the instrument's country.
func (p *Processing) processDividend(e Event, state TickerState, w io.Writer) (TickerState, error) {
	net, wht, gross, err := p.income(e, state, "Dividend", w)
	if err != nil {
		return state, err
	}
	state.NetDividendsBase = state.NetDividendsBase.Add(net)
	state.WhtDividendsBase = state.WhtDividendsBase.Add(wht)
	state.GrossDividendsBase = state.GrossDividendsBase.Add(gross)
	return state, nil
}

// processInterest mirrors the dividend arithmetic into the interest
// accumulators, for interests on cash credit and security lending.
func (p *Processing) processInterest(e Event, state TickerState, w io.Writer) (TickerState, error) {
	net, wht, gross, err := p.income(e, state, "Interest", w)
	if err != nil {
		return state, err
	}
	state.NetInterestsBase = state.NetInterestsBase.Add(net)
	state.WhtInterestsBase = state.WhtInterestsBase.Add(wht)
	state.GrossInterestsBase = state.GrossInterestsBase.Add(gross)
	return state, nil
}

// income converts a net payment to base currency and grosses it up:
// wht = net × rate / (1 − rate), gross = net + wht.
func (p *Processing) income(e Event, state TickerState, label string, w io.Writer) (net, wht, gross Money, err error) {
	if e.Ticker == "" {
		return net, wht, gross, fmt.Errorf("%w: ticker is empty", ErrMalformedEvent)
	}
	if !e.TotalAmountLocal.IsPositive() {
		return net, wht, gross, fmt.Errorf("%w: total amount is non-positive", ErrMalformedEvent)
	}

	base := p.basics.BaseCurrency
	p.logValue(w, "Net "+label, e.Currency, e.TotalAmountLocal.Decimal())

	net = e.TotalAmountLocal.Convert(e.FXRate, base)
	p.logValue(w, "Net "+label, base, net.Decimal())

	rate, err := p.basics.WithholdingRate(state.Isin)
	if err != nil {
		return net, wht, gross, err
	}
	wht = M(net.Decimal().Mul(rate).Div(decimal.NewFromInt(1).Sub(rate)), base)
	p.logValue(w, "WHT "+label, base, wht.Decimal())

	gross = net.Add(wht)
	p.logValue(w, "Gross "+label, base, gross.Decimal())
	return net, wht, gross, nil
}
