package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"srcwatch/internal/metrics"
	"srcwatch/internal/notify"
	"srcwatch/internal/runner"
	"srcwatch/internal/sources"
	"srcwatch/internal/watcher"
)

const serverShutdownTimeout = 2 * time.Second

func newRunCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [flags] <entry> [-- args...]",
		Short: "Run the entry and rerun it when a local source file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, programArgs, err := splitEntryArgs(cmd, args)
			if err != nil {
				return err
			}
			current, err := newSession(cmd, flags, entry, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer current.logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return current.run(ctx, programArgs)
		},
	}
}

func splitEntryArgs(cmd *cobra.Command, args []string) (string, []string, error) {
	positional := args
	var programArgs []string
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		positional = args[:dash]
		programArgs = args[dash:]
	}
	if len(positional) != 1 {
		return "", nil, &usageError{err: errors.New("expected exactly one entry before --")}
	}
	return positional[0], programArgs, nil
}

func (current *session) run(ctx context.Context, programArgs []string) error {
	cfg := current.config
	logger := current.logger

	fileWatcher, err := watcher.NewWithOptions(watcher.Options{
		Logger:        logger,
		Debounce:      cfg.Debounce,
		MaxWatches:    cfg.MaxWatches,
		IgnoreContent: cfg.IgnoreContent,
		ErrorHandler: func(err error) {
			logger.Error("file watcher failed", map[string]string{"error": err.Error()})
		},
	})
	if err != nil {
		return err
	}
	defer fileWatcher.Close()

	hub := notify.NewHub()
	defer hub.Close()

	counters := &metrics.Registry{}
	counters.SetWatcher(fileWatcher.Metrics)

	var sourceWatcher *sources.Watcher
	rerun := runner.New(runner.Options{
		Command:     cfg.ExpandCommand(current.entry, programArgs),
		Dir:         current.dir,
		StopTimeout: cfg.StopTimeout,
		Logger:      logger,
		Hub:         hub,
		Metrics:     counters,
		AfterStart: func() {
			started := time.Now()
			sourceWatcher.Refresh()
			watched := len(sourceWatcher.WatchedPaths())
			counters.RecordRefresh(time.Since(started), watched)
			logger.Debug("watching sources", map[string]string{
				"files": strconv.Itoa(watched),
			})
		},
	})
	sourceWatcher = sources.New(sources.Script{Path: current.entry, Args: programArgs}, rerun.Notify, sources.Options{
		Watch:      fileWatcher,
		Modules:    current.lister,
		Classifier: current.classifier,
		Logger:     logger,
	})
	defer sourceWatcher.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return rerun.Run(groupCtx)
	})

	if cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/reload", &notify.Handler{Hub: hub})
		mux.Handle("/metrics", counters.Handler())
		server := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		group.Go(func() error {
			logger.Info("reload endpoint listening", map[string]string{"addr": cfg.Listen})
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return group.Wait()
}
