package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/taxfolio/cmd"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

func main() {
	name := path.Base(os.Args[0])
	commander := subcommands.NewCommander(flag.CommandLine, name)

	known := make(map[string]bool)
	sub := map[string]*complete.Command{}
	for _, c := range cmd.Commands {
		commander.Register(c, "")
		known[c.Name()] = true
		sub[c.Name()] = &complete.Command{}
	}
	commander.Register(commander.HelpCommand(), "help")
	commander.Register(commander.FlagsCommand(), "help")
	commander.Register(commander.CommandsCommand(), "help")
	known["help"], known["flags"], known["commands"] = true, true, true

	// Shell completion: exits the process when invoked by the shell.
	completion := &complete.Command{
		Sub: sub,
		Flags: map[string]complete.Predictor{
			"basics-file": predict.Files("*.json"),
			"v":           predict.Nothing,
		},
	}
	completion.Complete(name)

	flag.Parse()

	// Unknown subcommands may be provided as external tfx-<name> binaries.
	if args := flag.Args(); len(args) > 0 && !known[args[0]] {
		if found, code := cmd.RunExtension(args[0], args[1:]); found {
			os.Exit(code)
		}
	}

	os.Exit(int(commander.Execute(context.Background())))
}
