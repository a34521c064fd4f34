package main

import (
	"flag"
	"fmt"
	"io"
	"sort"
)

type listCommand struct{}

func (cmd *listCommand) Name() string {
	return "list"
}

func (cmd *listCommand) Help() string {
	return "Show the list of demo graphs"
}

func (cmd *listCommand) Register(*flag.FlagSet) {}

func (cmd *listCommand) Run(stdout io.Writer) error {
	names := make([]string, 0, len(demos))
	for name := range demos {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(stdout, "Available graphs:")
	for _, name := range names {
		fmt.Fprintf(stdout, "\t%s\t%s\n", name, demos[name].help)
	}
	return nil
}
