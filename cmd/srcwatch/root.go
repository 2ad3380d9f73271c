package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"srcwatch/internal/config"
)

type globalFlags struct {
	configPath      string
	sourceRoot      string
	exclude         []string
	excludePatterns []string
	debounce        time.Duration
	maxWatches      int
	logLevel        string
	command         string
	listen          string
	stopTimeout     time.Duration
	ignoreContent   bool
}

func newRootCommand(out io.Writer, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "srcwatch",
		Short:         "Rerun a Go program when its local sources change",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := bindGlobalFlags(root.PersistentFlags())
	root.AddCommand(
		newRunCommand(flags),
		newListCommand(flags),
		newVersionCommand(),
	)
	return root
}

func bindGlobalFlags(set *pflag.FlagSet) *globalFlags {
	flags := &globalFlags{}
	set.StringVar(&flags.configPath, "config", "", "config file (default: .srcwatch.toml/.yaml next to the entry)")
	set.StringVar(&flags.sourceRoot, "source-root", "", "project folder whose files count as local (default: entry directory)")
	set.StringSliceVar(&flags.exclude, "exclude", nil, "folders never treated as local, in addition to GOROOT, GOMODCACHE and vendor")
	set.StringSliceVar(&flags.excludePatterns, "exclude-pattern", nil, "glob of files never treated as local")
	set.DurationVar(&flags.debounce, "debounce", 0, "quiet period before a change is reported")
	set.IntVar(&flags.maxWatches, "max-watches", 0, "maximum number of watched files")
	set.StringVar(&flags.logLevel, "log-level", "", "debug, info, warning or error")
	set.StringVar(&flags.command, "command", "", "command that runs the entry; {entry} and {dir} are substituted")
	set.StringVar(&flags.listen, "listen", "", "address serving the /reload websocket")
	set.DurationVar(&flags.stopTimeout, "stop-timeout", 0, "grace period before the program is killed")
	set.BoolVar(&flags.ignoreContent, "ignore-content", false, "report writes even when file contents did not change")
	return flags
}

// overrides maps the flags set on the command line to config keys.
func (flags *globalFlags) overrides(set *pflag.FlagSet) map[string]any {
	values := make(map[string]any)
	set.Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "source-root":
			values[config.KeySourceRoot] = flags.sourceRoot
		case "exclude":
			values[config.KeyExclude] = flags.exclude
		case "exclude-pattern":
			values[config.KeyExcludePatterns] = flags.excludePatterns
		case "debounce":
			values[config.KeyDebounceMS] = flags.debounce.Milliseconds()
		case "max-watches":
			values[config.KeyMaxWatches] = flags.maxWatches
		case "log-level":
			values[config.KeyLogLevel] = flags.logLevel
		case "command":
			values[config.KeyCommand] = flags.command
		case "listen":
			values[config.KeyListen] = flags.listen
		case "stop-timeout":
			values[config.KeyStopTimeoutMS] = flags.stopTimeout.Milliseconds()
		case "ignore-content":
			values[config.KeyIgnoreContent] = flags.ignoreContent
		}
	})
	return values
}
