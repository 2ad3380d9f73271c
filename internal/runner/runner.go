// Package runner restarts the entry program whenever a watched source changes.
package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"srcwatch/internal/logging"
	"srcwatch/internal/metrics"
	"srcwatch/internal/notify"
	"srcwatch/internal/watcher"
)

const defaultStopTimeout = 5 * time.Second

type Options struct {
	Command     []string
	Dir         string
	Env         []string
	Stdout      io.Writer
	Stderr      io.Writer
	StopTimeout time.Duration
	Logger      *logging.Logger
	Hub         *notify.Hub
	Metrics     *metrics.Registry
	// AfterStart runs on the runner goroutine after every (re)start, before
	// the runner waits for the next change.
	AfterStart func()
}

type Runner struct {
	options Options
	logger  *logging.Logger
	changes chan watcher.Event
}

type child struct {
	cmd    *exec.Cmd
	exited chan error
}

func New(options Options) *Runner {
	if options.StopTimeout <= 0 {
		options.StopTimeout = defaultStopTimeout
	}
	if options.Stdout == nil {
		options.Stdout = os.Stdout
	}
	if options.Stderr == nil {
		options.Stderr = os.Stderr
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	return &Runner{
		options: options,
		logger:  logger.With(map[string]string{"srcwatch.category": "runner"}),
		changes: make(chan watcher.Event, 1),
	}
}

// Notify records a change. It never blocks, so it is safe to pass as a
// watcher callback; changes that arrive while one is pending are merged.
func (runner *Runner) Notify(event watcher.Event) {
	runner.options.Hub.Broadcast(notify.Message{
		Type:      notify.TypeSourceChanged,
		Path:      event.Path,
		Timestamp: event.Timestamp,
	})
	select {
	case runner.changes <- event:
	default:
	}
}

// Run starts the command and restarts it after every change until ctx is
// done. A child that exits on its own is not restarted until the next change.
func (runner *Runner) Run(ctx context.Context) error {
	if len(runner.options.Command) == 0 {
		return errors.New("command is required")
	}

	current, err := runner.start()
	if err != nil {
		runner.reportStartFailure(err)
	}
	runner.afterStart()

	for {
		var exited chan error
		if current != nil {
			exited = current.exited
		}

		select {
		case <-ctx.Done():
			runner.stop(current)
			return nil
		case err := <-exited:
			runner.reportExit(err)
			current = nil
		case event := <-runner.changes:
			runner.logger.Info("source changed, rerunning", map[string]string{"path": event.Path})
			runner.stop(current)
			runner.options.Metrics.IncRerun()
			current, err = runner.start()
			if err != nil {
				runner.reportStartFailure(err)
			}
			runner.options.Hub.Broadcast(notify.Message{Type: notify.TypeRerun, Path: event.Path})
			runner.afterStart()
		}
	}
}

func (runner *Runner) afterStart() {
	if runner.options.AfterStart != nil {
		runner.options.AfterStart()
	}
}

func (runner *Runner) start() (*child, error) {
	command := runner.options.Command
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = runner.options.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = runner.options.Stdout
	cmd.Stderr = runner.options.Stderr
	if len(runner.options.Env) > 0 {
		cmd.Env = append(os.Environ(), runner.options.Env...)
	}
	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	runner.logger.Debug("started", map[string]string{
		"command": strings.Join(command, " "),
		"pid":     strconv.Itoa(cmd.Process.Pid),
	})

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()
	return &child{cmd: cmd, exited: exited}, nil
}

func (runner *Runner) stop(current *child) {
	if current == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), runner.options.StopTimeout)
	defer cancel()
	if err := stopChild(ctx, current); err != nil {
		runner.logger.Warn("stop failed", map[string]string{
			"pid":   strconv.Itoa(current.cmd.Process.Pid),
			"error": err.Error(),
		})
	}
}

func (runner *Runner) reportStartFailure(err error) {
	runner.options.Metrics.IncStartFailure()
	runner.logger.Error("start failed", map[string]string{"error": err.Error()})
}

func (runner *Runner) reportExit(err error) {
	fields := map[string]string{"status": "0"}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		fields["status"] = strconv.Itoa(exitErr.ExitCode())
	default:
		fields["status"] = "error"
		fields["error"] = err.Error()
	}
	runner.options.Metrics.RecordExit(fields["status"])
	runner.logger.Info("program exited, waiting for changes", fields)
	runner.options.Hub.Broadcast(notify.Message{Type: notify.TypeExited, Detail: fields["status"]})
}

// waitExited waits for the child's Wait goroutine, honoring ctx.
func waitExited(ctx context.Context, current *child) error {
	select {
	case err := <-current.exited:
		current.exited <- err
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
