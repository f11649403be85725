// Package cmd implements the CLI application to compute capital-gain and
// dividend taxes from broker reports.
package cmd

import (
	"flag"

	"github.com/google/subcommands"
)

// Commands lists the subcommands of the application. A main package
// registers them on a commander and executes the user-selected one.
var Commands = []subcommands.Command{
	&processCmd{},
	&ratesCmd{},
	&topicCmd{},
	&assistCmd{},
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var basicsFile = flag.String("basics-file", "Basics.json", "Path to the configuration file")
var Verbose = flag.Bool("v", false, "Verbose diagnostics on stderr")
