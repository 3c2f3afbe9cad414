package executor

import (
	"os/exec"
	"sync"

	"github.com/howth-dev/howth/internal/buildgraph"
)

// runScript runs a node's script to completion, capturing stdout/stderr
// line-by-line into size-capped buffers. It mirrors the lifecycle of
// internal/process's Child (start, wait, collect exit code) without that
// package's restart/signal/splay machinery, which this single-shot executor
// has no use for.
func runScript(s *buildgraph.ScriptSpec) (exitCode int, stdout, stderr string, truncated bool, err error) {
	var cmd *exec.Cmd
	if s.Shell {
		cmd = exec.Command("/bin/sh", "-c", s.Command)
	} else {
		cmd = exec.Command(s.Command)
	}
	cmd.Dir = s.Cwd

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return 0, "", "", false, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return 0, "", "", false, err
	}

	outBuf := newCaptureWriter()
	errBuf := newCaptureWriter()

	if err := cmd.Start(); err != nil {
		return 0, "", "", false, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = copyLines(outBuf, stdoutPipe) }()
	go func() { defer wg.Done(); _ = copyLines(errBuf, stderrPipe) }()
	wg.Wait()

	waitErr := cmd.Wait()
	code := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			return 0, outBuf.String(), errBuf.String(), outBuf.truncated || errBuf.truncated, waitErr
		}
	}

	return code, outBuf.String(), errBuf.String(), outBuf.truncated || errBuf.truncated, nil
}
