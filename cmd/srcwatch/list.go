package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"srcwatch/internal/sources"
	"srcwatch/internal/watcher"
)

func newListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list [flags] <entry>",
		Short: "Print the local source files that run would watch",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &usageError{err: fmt.Errorf("expected one entry, got %d", len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := newSession(cmd, flags, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer current.logger.Sync()

			paths, err := current.list()
			if err != nil {
				return err
			}
			return writeLines(cmd.OutOrStdout(), paths)
		},
	}
}

type nopHandle struct{}

func (nopHandle) Close() error { return nil }

// list runs one refresh against a watch that subscribes to nothing. Unlike
// run, a failed module listing is reported instead of logged.
func (current *session) list() ([]string, error) {
	modules, err := current.lister.Modules()
	if err != nil {
		return nil, err
	}
	registry := sources.New(sources.Script{Path: current.entry}, func(watcher.Event) {}, sources.Options{
		Watch: watcher.WatchFunc(func(string, func(watcher.Event)) (watcher.Handle, error) {
			return nopHandle{}, nil
		}),
		Modules: sources.ModuleListerFunc(func() ([]sources.Module, error) {
			return modules, nil
		}),
		Classifier: current.classifier,
		Logger:     current.logger,
	})
	defer registry.Close()
	registry.Refresh()
	return registry.WatchedPaths(), nil
}

func writeLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
