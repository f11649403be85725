package renderer

import (
	"fmt"
	"strings"

	"github.com/etnz/taxfolio"
)

// Summary renders the outcome of a processing run as markdown: one table row
// per ticker state and the aggregated metric lines underneath.
func Summary(report *taxfolio.ProcessReport) string {
	var b strings.Builder

	fmt.Fprint(&b, "# Tax Report\n\n")
	fmt.Fprint(&b, "## Ticker States\n\n")
	fmt.Fprintln(&b, "| Ticker | ISIN | Quantity | +V CUMP | -V CUMP | +V PEPS | -V PEPS | +V CRYPTO | -V CRYPTO | Gross Dividends | Gross Interests |")
	fmt.Fprintln(&b, "|:---|:---|---:|---:|---:|---:|---:|---:|---:|---:|---:|")
	for _, s := range report.States {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			s.Ticker, s.Isin, s.TotalQuantity,
			s.PlusValueCumpBase.Decimal().Round(2), s.MinusValueCumpBase.Decimal().Round(2),
			s.PlusValuePepsBase.Decimal().Round(2), s.MinusValuePepsBase.Decimal().Round(2),
			s.PlusValueCryptoBase.Decimal().Round(2), s.MinusValueCryptoBase.Decimal().Round(2),
			s.GrossDividendsBase.Decimal().Round(2), s.GrossInterestsBase.Decimal().Round(2),
		)
	}

	fmt.Fprint(&b, "\n## Aggregated Metrics\n\n")
	for _, line := range report.Metrics {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	return b.String()
}
