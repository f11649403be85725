package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/etnz/taxfolio"
	"github.com/google/subcommands"
)

type ratesCmd struct {
	fetch    bool
	currency string
	date     string
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "inspect the FX rate table" }
func (*ratesCmd) Usage() string {
	return `tfx rates [-fetch] [-c <currency>] [-d <date>]

  Shows the FX rate used to convert a currency to the base currency on a
  given day, from the rates file declared in the configuration. With -fetch,
  the daily reference rates are downloaded from the ECB data portal instead.

Usage Examples:
# Rate used for USD on a given day.
$ tfx rates -c USD -d 2025-05-02

# Same, against the live ECB rates.
$ tfx rates -fetch -c USD -d 2025-05-02

`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.fetch, "fetch", false, "Fetch rates from the ECB data portal instead of the rates file.")
	f.StringVar(&c.currency, "c", "USD", "Currency to inspect.")
	f.StringVar(&c.date, "d", "", "Day to inspect (YYYY-MM-DD).")
}

func (c *ratesCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	basics, err := taxfolio.LoadBasics(*basicsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	on := taxfolio.DateOf(time.Now())
	if c.date != "" {
		on, err = taxfolio.ParseDate(c.date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	var rates *taxfolio.FxRates
	if c.fetch {
		rates, err = taxfolio.FetchFxRatesSDMX(basics.BaseCurrency, []string{c.currency})
	} else {
		rates, err = taxfolio.LoadFxRates(basics.BaseCurrency, basics.FxRatesFile)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	rate, err := rates.Rate(c.currency, on)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s %s = %s %s/%s\n", on, c.currency, rate, c.currency, basics.BaseCurrency)
	return subcommands.ExitSuccess
}
