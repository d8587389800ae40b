package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var conn registryFlags
	conn.register(fs)
	var quiet bool
	fs.BoolVar(&quiet, "q", false, "print scope ids only, one per line")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	rp, err := conn.dial(ctx)
	if err != nil {
		return err
	}

	scopes, err := rp.List(ctx)
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}

	ids := make([]string, 0, len(scopes))
	for id := range scopes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if quiet {
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}

	renderScopeTable(os.Stdout, ids)
	return nil
}

func renderScopeTable(w io.Writer, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintln(w, "No scopes registered.")
		return
	}

	width := len("SCOPE ID")
	for _, id := range ids {
		if len(id) > width {
			width = len(id)
		}
	}

	fmt.Fprintf(w, "%-*s\n", width, "SCOPE ID")
	for _, id := range ids {
		fmt.Fprintf(w, "%-*s\n", width, id)
	}
}
