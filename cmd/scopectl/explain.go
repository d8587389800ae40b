package main

import (
	"flag"
	"fmt"

	"github.com/arin-halvorsen/scoped/scopeuri"
)

func runExplain(args []string) error {
	fs := flag.NewFlagSet("explain", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: scopectl explain <scope-uri>")
	}

	q, err := scopeuri.FromURI(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("decompose %q: %w", fs.Arg(0), err)
	}

	fmt.Printf("scope_id:    %s\n", q.ScopeID)
	fmt.Printf("query:       %s\n", q.Query)
	if q.Department != "" {
		fmt.Printf("department:  %s\n", q.Department)
	}
	if q.FilterState != "" {
		fmt.Printf("filters:     %s\n", q.FilterState)
	}
	return nil
}
