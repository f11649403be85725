// Package renderer turns computed tax reports into printable text: the
// fixed-layout blocks of the French tax forms, one block per sell event,
// ready to be copied field by field into the declaration.
package renderer

import (
	"fmt"
	"strings"

	"github.com/etnz/taxfolio"
)

const separator = "****************************************************************************************************"

// Form2074 renders section 5 of form 2074, one block per stock sell. The
// lines follow the order of the form fields: instrument, intermediary, date
// of disposal, unit price, quantity, fees, unit acquisition price, total
// acquisition price, acquisition fees, and the resulting gain. Gains use the
// CUMP method, the one the form expects.
func Form2074(details []taxfolio.SellDetail) string {
	var b strings.Builder
	for _, d := range details {
		e, s := d.Event, d.State
		fmt.Fprintln(&b, separator)
		fmt.Fprintf(&b, "%s [%s]\n", e.Ticker, s.Isin)
		fmt.Fprintln(&b, e.Broker)
		fmt.Fprintln(&b, e.Date.Format("02/01/2006"))
		fmt.Fprintln(&b, d.PerShareSellPriceBase.Decimal().Round(2))
		fmt.Fprintln(&b, e.Quantity.Decimal().Round(0))
		fmt.Fprintln(&b, e.FeesLocal.Decimal().Round(0))
		fmt.Fprintln(&b, d.PerShareAvgBuyPriceBase.Decimal().Round(2))
		fmt.Fprintln(&b, d.TotalAvgBuyPriceBase.Decimal().Round(0))
		fmt.Fprintln(&b, 0)
		fmt.Fprintln(&b, d.PlusValueCumpBase.Decimal().Round(0))
		fmt.Fprintln(&b, separator)
	}
	return b.String()
}

// Form2086 renders section 3 of form 2086, one block per crypto sell. The
// lines follow the order of the form fields: date of disposal, portfolio
// value at disposal, disposal price, disposal fees, total acquisition price,
// recovered initial capital, and the resulting gain. Sells without a
// portfolio value snapshot realized no crypto gain and are not declared.
func Form2086(details []taxfolio.SellDetail) string {
	var b strings.Builder
	for _, d := range details {
		if d.PortfolioValueBase == nil {
			continue
		}
		e, s := d.Event, d.State
		title := fmt.Sprintf(" 2086 Section 3 for %s(%s) ", e.Ticker, e.OriginalTicker)
		fmt.Fprintln(&b, separator[:5]+title+separator[5:])
		fmt.Fprintln(&b, e.Date.Format("02/01/2006"))
		fmt.Fprintln(&b, d.PortfolioValueBase.Decimal().Round(0))
		fmt.Fprintln(&b, e.PricePerShareLocal.Mul(*e.Quantity).Decimal().Round(0))
		fmt.Fprintln(&b, d.SellFeesBase.Decimal().Round(0))
		fmt.Fprintln(&b, s.PortfolioAcquisitionValueBase.Decimal().Round(0))
		fmt.Fprintln(&b, s.CryptoFractionOfInitialCapital.Decimal().Round(0))
		fmt.Fprintln(&b, d.PlusValueCryptoBase.Decimal().Round(0))
	}
	return b.String()
}
