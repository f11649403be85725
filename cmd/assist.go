package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/taxfolio"
	"github.com/etnz/taxfolio/agent"
	"github.com/google/subcommands"
	"google.golang.org/genai"
)

type assistCmd struct {
	crypto bool
}

func (*assistCmd) Name() string { return "assist" }
func (*assistCmd) Synopsis() string {
	return "Start an interactive session with the AI assistant."
}
func (*assistCmd) Usage() string {
	return `assist [-crypto] [question...]:
  Start an interactive session with the AI assistant. The assistant has
  access to the computed tax report and can explain every figure in it.
`
}

func (c *assistCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.crypto, "crypto", false, "Assist on the crypto run instead of the stock run.")
}

func (c *assistCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	initialPrompt := ""
	if f.NArg() > 0 {
		initialPrompt = strings.Join(f.Args(), " ")
	}

	basics, err := taxfolio.LoadBasics(*basicsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	report, _, err := (&processCmd{crypto: c.crypto}).run(basics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing the report: %v\n", err)
		return subcommands.ExitFailure
	}

	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing Gemini's client:", err)
		return subcommands.ExitFailure
	}

	advisor := agent.NewTaxAdvisor()
	accountant := agent.NewAccountant(report)
	a := agent.New(os.Stdout, os.Stdin, advisor, accountant)

	if err := a.Run(ctx, client, initialPrompt); err != nil {
		fmt.Fprintln(os.Stderr, "Agent failed:", err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}
