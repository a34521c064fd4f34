package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

type app struct {
	args   []string
	stdout io.Writer
}

type command interface {
	Name() string
	Help() string
	Run(stdout io.Writer) error
	Register(*flag.FlagSet)
}

func (a *app) run() int {
	cmdName, args := parseArgs(a.args)
	if cmdName == "" {
		printUsage(a.stdout)
		return errorExitCode
	}

	for _, cmd := range commands() {
		if cmd.Name() != cmdName {
			continue
		}
		flags := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		flags.SetOutput(a.stdout)
		cmd.Register(flags)
		if err := flags.Parse(args); err != nil {
			return errorExitCode
		}
		if err := cmd.Run(a.stdout); err != nil {
			fmt.Fprintf(a.stdout, "Command failed: %v\n", err)
			return errorExitCode
		}
		return successExitCode
	}

	printUsage(a.stdout)
	return errorExitCode
}

const (
	successExitCode = 0
	errorExitCode   = 1
)

func commands() []command {
	return []command{&listCommand{}, &runCommand{}}
}

func main() {
	a := app{
		args:   os.Args,
		stdout: os.Stdout,
	}
	os.Exit(a.run())
}

func parseArgs(args []string) (string, []string) {
	if len(args) < 2 {
		return "", nil
	}
	return args[1], args[2:]
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Flowgraph runs demo streaming graphs")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: flowgraph <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands() {
		fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.Help())
	}
}
