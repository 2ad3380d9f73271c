//go:build !windows

package runner

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// stopChild sends SIGTERM to the child's process group and escalates to
// SIGKILL when it has not exited by the context deadline.
func stopChild(ctx context.Context, current *child) error {
	if current == nil || current.cmd.Process == nil {
		return nil
	}
	pid := current.cmd.Process.Pid

	termErr := signalGroup(pid, syscall.SIGTERM)
	waitErr := waitExited(ctx, current)
	if waitErr == nil {
		return termErr
	}

	killErr := signalGroup(pid, syscall.SIGKILL)
	killCtx, cancel := context.WithTimeout(context.Background(), defaultStopTimeout)
	defer cancel()
	if err := waitExited(killCtx, current); err != nil {
		return errors.Join(termErr, waitErr, killErr, err)
	}
	return errors.Join(termErr, killErr)
}

func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
