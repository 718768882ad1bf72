// Package media wraps the external ffmpeg/ffprobe binaries behind typed
// adapters. Every invocation uses an argument vector, a hard timeout, and
// process-group kill so a hung tool cannot stall a pipeline job.
package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

const (
	// ProbeTimeout bounds a single ffprobe invocation.
	ProbeTimeout = 30 * time.Second
	// FrameTimeout bounds a frame-sampling or thumbnail run.
	FrameTimeout = 5 * time.Minute
	// minAudioTimeout is the floor for audio extraction regardless of
	// source duration.
	minAudioTimeout = 5 * time.Minute

	stderrTailBytes = 2048
)

// AudioTimeout returns the extraction deadline for a source of the given
// duration: twice realtime, never less than five minutes.
func AudioTimeout(durationSec float64) time.Duration {
	t := time.Duration(2*durationSec) * time.Second
	if t < minAudioTimeout {
		return minAudioTimeout
	}
	return t
}

// toolSem caps concurrent tool invocations process-wide; ffmpeg saturates
// cores quickly and parallel jobs would otherwise thrash.
var toolSem = semaphore.NewWeighted(2)

// SetMaxConcurrent resizes the process-wide tool invocation cap. Call once
// at startup, before any jobs run.
func SetMaxConcurrent(n int) {
	if n <= 0 {
		n = 2
	}
	toolSem = semaphore.NewWeighted(int64(n))
}

// runner executes one external tool with a timeout and captures output.
type runner struct {
	tool string // binary path or name resolved via PATH
	name string // short tool name for errors ("ffprobe", "ffmpeg")
	log  *slog.Logger
}

func newRunner(tool, name string, log *slog.Logger) *runner {
	if tool == "" {
		tool = name
	}
	if log == nil {
		log = slog.Default()
	}
	return &runner{tool: tool, name: name, log: log}
}

type runResult struct {
	stdout  []byte
	stderr  []byte
	elapsed time.Duration
}

// run spawns the tool with args, enforcing the timeout. The child gets its
// own process group so the whole tree dies on timeout.
func (r *runner) run(ctx context.Context, timeout time.Duration, args ...string) (*runResult, error) {
	// Queueing for a slot does not count against the tool timeout.
	if err := toolSem.Acquire(ctx, 1); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeMediaTool,
			fmt.Sprintf("%s cancelled while waiting for a slot", r.name))
	}
	defer toolSem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.tool, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		timedOut := ctx.Err() == context.DeadlineExceeded
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		tail := stderrTail(stderr.Bytes())
		r.log.Warn("media tool failed",
			"tool", r.name,
			"exit_code", exitCode,
			"timed_out", timedOut,
			"elapsed_ms", elapsed.Milliseconds())
		return nil, toolError(r.name, exitCode, tail, timedOut, err)
	}

	return &runResult{stdout: stdout.Bytes(), stderr: stderr.Bytes(), elapsed: elapsed}, nil
}

// toolError builds the typed media failure carrying the stderr tail.
func toolError(tool string, exitCode int, stderrTail string, timedOut bool, cause error) error {
	if timedOut {
		return spiralerr.New(spiralerr.ErrCodeMediaTimeout,
			fmt.Sprintf("%s timed out", tool)).
			WithDetail("tool", tool).
			WithDetail("stderr_tail", stderrTail)
	}
	e := spiralerr.Wrap(cause, spiralerr.ErrCodeMediaTool,
		fmt.Sprintf("%s exited with code %d", tool, exitCode)).
		WithDetail("tool", tool).
		WithDetail("exit_code", fmt.Sprintf("%d", exitCode)).
		WithDetail("stderr_tail", stderrTail)
	return e
}

func stderrTail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}

// LookupTool resolves a binary on PATH, used by the doctor-style checks.
func LookupTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", spiralerr.New(spiralerr.ErrCodeMediaTool,
			fmt.Sprintf("%s not found on PATH", name)).
			WithSuggestion(fmt.Sprintf("install %s and ensure it is on PATH", name))
	}
	return path, nil
}
