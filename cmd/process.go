package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/etnz/taxfolio"
	"github.com/etnz/taxfolio/renderer"
	"github.com/google/subcommands"
)

type processCmd struct {
	outputFile string
	crypto     bool
}

func (*processCmd) Name() string { return "process" }
func (*processCmd) Synopsis() string {
	return "process broker reports and compute the yearly tax figures"
}
func (*processCmd) Usage() string {
	return `tfx process [-o <output_file>] [-crypto]

  Reads the broker report files declared in the configuration, processes
  every event and prints the full narrative of the computation: every
  intermediate value per event, the aggregated metrics, and the blocks to
  copy into the tax forms (2074 section 5 for stocks, 2086 section 3 for
  crypto).

  Stock and crypto events are declared on different forms and cannot be
  processed in the same run: use -crypto to select the crypto run.

Usage Examples:
# Process the stock reports and save the narrative.
$ tfx process -o report.txt

# Process the crypto reports.
$ tfx process -crypto

`
}

func (p *processCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.outputFile, "o", "", "File to write the full narrative to, in addition to stdout.")
	f.BoolVar(&p.crypto, "crypto", false, "Process the crypto reports instead of the stock reports.")
}

func (p *processCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	basics, err := taxfolio.LoadBasics(*basicsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	report, narrative, err := p.run(basics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if p.outputFile != "" {
		if err := os.WriteFile(p.outputFile, []byte(narrative), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %q: %v\n", p.outputFile, err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(os.Stderr, "Narrative written to %s\n", p.outputFile)
	} else {
		fmt.Print(narrative)
	}

	if report.Crypto {
		fmt.Println("\n## 2086 Form")
		fmt.Println()
		fmt.Print(renderer.Form2086(report.Sells))
	} else {
		fmt.Println("\n## 2074 Form")
		fmt.Println()
		fmt.Print(renderer.Form2074(report.Sells))
	}

	printMarkdown(renderer.Summary(report))
	return subcommands.ExitSuccess
}

// run loads the inputs and executes the pipeline, returning the report and
// the full narrative text.
func (p *processCmd) run(basics *taxfolio.Basics) (*taxfolio.ProcessReport, string, error) {
	rates := taxfolio.NewFxRates(basics.BaseCurrency)
	if basics.FxRatesFile != "" {
		var err error
		rates, err = taxfolio.LoadFxRates(basics.BaseCurrency, basics.FxRatesFile)
		if err != nil {
			return nil, "", err
		}
	}

	var events []taxfolio.Event
	var values *taxfolio.CryptoPortfolioValues
	if p.crypto {
		for _, path := range findReports(basics, basics.CryptoFilePatterns) {
			fmt.Printf("- Parsing File %s...\n", filepath.Base(path))
			parsed, err := taxfolio.ReadCryptoEvents(path, broker(path), basics.BaseCurrency)
			if err != nil {
				return nil, "", err
			}
			events = append(events, parsed...)
		}
		if basics.CryptoPortfolioValuesFile != "" {
			var err error
			values, err = taxfolio.LoadCryptoPortfolioValues(
				rates, basics.CryptoPortfolioValuesCurrency, basics.CryptoPortfolioValuesFile)
			if err != nil {
				return nil, "", err
			}
		}
	} else {
		for _, path := range findReports(basics, basics.StockFilePatterns) {
			fmt.Printf("- Parsing File %s...\n", filepath.Base(path))
			parsed, err := taxfolio.ReadStockEvents(path, broker(path), rates)
			if err != nil {
				return nil, "", err
			}
			events = append(events, parsed...)
		}
	}

	var buf strings.Builder
	var narrative io.Writer = &buf
	if *Verbose {
		narrative = io.MultiWriter(&buf, os.Stderr)
	}

	report, err := taxfolio.ProcessEvents(basics, events, values, narrative)
	if err != nil {
		return nil, "", err
	}
	return report, buf.String(), nil
}

// findReports expands the configured file patterns under the reports
// directory, in a stable order.
func findReports(basics *taxfolio.Basics, patterns []string) []string {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(basics.ReportsDir, pattern))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: invalid pattern %q: %v\n", pattern, err)
			continue
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths
}

// broker derives a display name for the broker from the report file name.
func broker(path string) string {
	name := filepath.Base(path)
	if i := len(name) - len(filepath.Ext(name)); i > 0 {
		name = name[:i]
	}
	return name
}
