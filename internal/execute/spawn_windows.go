//go:build windows

package execute

import (
	"errors"
	"io"
	"os/exec"
)

var errConPTYUnavailable = errors.New("conpty support not implemented")

func setSysProcAttr(cmd *exec.Cmd) {
}

func terminate(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func startPty(command string, args ...string) (io.ReadWriteCloser, *exec.Cmd, error) {
	return nil, nil, errConPTYUnavailable
}
