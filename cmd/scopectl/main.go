// Command scopectl is the scoped runtime's operator CLI: list installed
// scopes, run a canned query against one, or decompose a scope:// URI.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = runList(os.Args[2:])
	case "run":
		err = runRun(os.Args[2:])
	case "explain":
		err = runExplain(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "scopectl: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "scopectl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: scopectl <command> [flags]

Commands:
  list                     List scopes known to the registry
  run <scope-id> <query>   Run a query against a scope and print its results
  explain <scope-uri>      Decompose a scope:// canned-query URI

Run 'scopectl <command> --help' for command-specific flags.
`)
}
