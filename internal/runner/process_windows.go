//go:build windows

package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
)

func configureProcessGroup(cmd *exec.Cmd) {}

func stopChild(ctx context.Context, current *child) error {
	if current == nil || current.cmd.Process == nil {
		return nil
	}
	if err := current.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return waitExited(ctx, current)
}
