// Command hangar is the client CLI: init, clone, checkout, branch
// create/list, merge, log, summary, remote add/list, fetch, push (§6 "CLI
// surface").
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// command is one subcommand's entry point, mirroring dolt's cli.Command
// dispatch table (go/cmd/dolt/commands) but without pulling in its whole
// argparser package, since gnuflag already covers per-command flag
// parsing.
type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands []command

func register(c command) {
	commands = append(commands, c)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	name := os.Args[1]
	for _, c := range commands {
		if c.name == name {
			if err := c.run(os.Args[2:]); err != nil {
				printError(err)
				os.Exit(1)
			}
			return
		}
	}
	fmt.Fprintf(os.Stderr, "hangar: unknown command %q\n", name)
	printUsage()
	os.Exit(2)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: hangar <command> [arguments]")
	fmt.Fprintln(os.Stderr, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.usage)
	}
}

func printError(err error) {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %s\n", red("error:"), err)
}
