package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	exitCodeSuccess = 0
	exitCodeFailure = 1
	exitCodeUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	root := newRootCommand(out, errOut)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(errOut, "srcwatch: %v\n", err)
		var usage *usageError
		if errors.As(err, &usage) {
			return exitCodeUsage
		}
		return exitCodeFailure
	}
	return exitCodeSuccess
}

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }
