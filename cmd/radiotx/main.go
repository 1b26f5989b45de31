// Command radiotx transmits model channels to the multiprotocol module.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

type command interface {
	Name() string
	Help() string
	Run() error
	Register(*flag.FlagSet)
}

const (
	successExitCode = 0
	errorExitCode   = 1
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func commands() []command {
	return []command{
		&encodeCommand{},
		&decodeCommand{},
		&validateCommand{},
		&runCommand{},
	}
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	name, args := parseArgs(args)
	if name == "" {
		printUsage()
		return errorExitCode
	}

	for _, cmd := range commands() {
		if cmd.Name() != name {
			continue
		}
		flags := flag.NewFlagSet(name, flag.ContinueOnError)
		flags.SetOutput(stderr)
		cmd.Register(flags)
		if err := flags.Parse(args); err != nil {
			return errorExitCode
		}
		if a, ok := cmd.(interface{ Args([]string) }); ok {
			a.Args(flags.Args())
		}
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(stderr, "command failed: %v\n", err)
			return errorExitCode
		}
		return successExitCode
	}
	fmt.Fprintf(stderr, "unknown command: %s\n", name)
	printUsage()
	return errorExitCode
}

func parseArgs(args []string) (string, []string) {
	if len(args) < 2 {
		return "", nil
	}
	return args[1], args[2:]
}

func printUsage() {
	fmt.Fprintln(stderr, "radiotx transmits RC model channels over serial")
	fmt.Fprintln(stderr)
	fmt.Fprintln(stderr, "Usage: radiotx <command> [flags]")
	fmt.Fprintln(stderr)
	fmt.Fprintln(stderr, "Commands:")
	for _, cmd := range commands() {
		fmt.Fprintf(stderr, "\t%s\t%s\n", cmd.Name(), cmd.Help())
	}
}

// stringList is a repeatable flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
