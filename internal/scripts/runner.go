package scripts

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/banphlet/trigger.dev-rails/internal/protocol"
	"github.com/banphlet/trigger.dev-rails/internal/runtime"
)

// Options controls one script invocation.
type Options struct {
	// Args are passed to the script verbatim, in order.
	Args []string

	// WorkingDir is the child's working directory. Empty means inherit.
	WorkingDir string

	// Env is merged over the inherited environment. Empty values are
	// filtered out.
	Env map[string]string

	// Payload, when non-nil, is JSON-encoded and exported as the
	// TRIGGER_PAYLOAD environment variable.
	Payload any

	// Rails selects the rails-runner invocation mode.
	Rails bool

	// PythonBin and RailsBin override the default interpreter binaries.
	// The TRIGGER_PYTHON_BIN / TRIGGER_RAILS_BIN environment variables win
	// over both.
	PythonBin string
	RailsBin  string

	// TaskAttributes are appended to the OTEL_RESOURCE_ATTRIBUTES export.
	TaskAttributes map[string]string

	// MirrorStdout echoes plain output lines to the host's stdout as they
	// arrive. Event lines are never mirrored.
	MirrorStdout bool

	// MirrorStderr mirrors stderr bytes to the host's stderr as they arrive.
	MirrorStderr bool
}

// Result is the outcome of a successful invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// signalExitCode is the internal sentinel for a child terminated by a
// signal; it cannot collide with any real exit status.
const signalExitCode = -1

// ExitError is returned when the child exits non-zero or dies to a signal.
// It carries the captured streams so the failure is diagnosable without log
// correlation.
type ExitError struct {
	ScriptPath string
	ExitCode   int
	Stdout     string
	Stderr     string
}

func (e *ExitError) Error() string {
	reason := fmt.Sprintf("exited with a non-zero code %d", e.ExitCode)
	if e.ExitCode == signalExitCode {
		reason = "terminated by a signal"
	}
	return fmt.Sprintf("script %s %s\nstdout:\n%s\nstderr:\n%s", e.ScriptPath, reason, e.Stdout, e.Stderr)
}

// Runner executes scripts and services their control events. A single
// Runner may be used for concurrent invocations; every invocation owns its
// child process, output buffers, event chain and ack channel exclusively.
type Runner struct {
	rt     runtime.Runtime
	logger *slog.Logger

	// mirror targets, overridable in tests
	stdout io.Writer
	stderr io.Writer
}

func NewRunner(rt runtime.Runtime, logger *slog.Logger) *Runner {
	return &Runner{
		rt:     rt,
		logger: logger.With("component", "scripts"),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// Run spawns the script and supervises it to completion: stdout is
// demultiplexed into plain output and control events, events are handled
// strictly in arrival order, acknowledgment-requiring events unblock the
// child over stdin, and the event chain is drained before the result is
// finalized. It returns the captured streams and exit code on a zero exit,
// an *ExitError otherwise.
func (r *Runner) Run(ctx context.Context, scriptPath string, opts Options) (*Result, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("script path is required")
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("script %q does not exist: %w", scriptPath, err)
	}

	bin, args := buildInvocation(scriptPath, opts)
	env, err := buildEnv(ctx, opts)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(bin, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start script %q: %w", scriptPath, err)
	}
	r.logger.Debug("script started", "script", scriptPath, "pid", cmd.Process.Pid, "rails", opts.Rails)

	inv := &invocation{
		runner:    r,
		opts:      opts,
		stdin:     stdin,
		chainTail: settled(),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		inv.readStdout(ctx, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		inv.readStderr(stderrPipe)
	}()

	// Pipes must be fully drained before Wait reaps the child.
	wg.Wait()
	waitErr := cmd.Wait()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("wait for script %q: %w", scriptPath, waitErr)
		}
		// ExitCode is -1 when the child died to a signal.
		exitCode = exitErr.ExitCode()
	}

	// Every already-detected event must finish handling (including pending
	// ack writes) before the invocation resolves.
	<-inv.chainTail
	_ = stdin.Close()

	stdout := strings.Join(inv.lines, "\n")
	stderr := inv.stderrBuf.String()

	if exitCode != 0 {
		return nil, &ExitError{
			ScriptPath: scriptPath,
			ExitCode:   exitCode,
			Stdout:     stdout,
			Stderr:     stderr,
		}
	}
	return &Result{Stdout: stdout, Stderr: stderr, ExitCode: 0}, nil
}

// invocation is the per-run state: one child process, one pending result,
// one event chain. Never shared across invocations.
type invocation struct {
	runner *Runner
	opts   Options

	stdin io.WriteCloser

	// owned by the stdout reader goroutine until it exits
	lines     []string
	chainTail <-chan struct{}

	stderrBuf bytes.Buffer

	ackMu sync.Mutex
}

func settled() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// readStdout splits the child's stdout into lines and demultiplexes them:
// control events are chained for serialized handling, everything else is
// plain output. Lines are unbounded in length; the reader runs until the
// stream closes.
func (inv *invocation) readStdout(ctx context.Context, pipe io.Reader) {
	reader := bufio.NewReader(pipe)
	for {
		raw, err := reader.ReadString('\n')
		if raw != "" {
			line := strings.TrimSuffix(raw, "\n")
			line = strings.TrimSuffix(line, "\r")
			inv.handleLine(ctx, line)
		}
		if err != nil {
			return
		}
	}
}

func (inv *invocation) handleLine(ctx context.Context, line string) {
	ev, ok := protocol.DecodeLine(line)
	if !ok {
		inv.lines = append(inv.lines, line)
		if inv.opts.MirrorStdout {
			fmt.Fprintln(inv.runner.stdout, line)
		}
		return
	}
	inv.chainEvent(ctx, ev)
}

// chainEvent appends the event's handling to the chain: it starts only
// after the previous handler has settled, so handlers never run
// concurrently and always in arrival order. The chain is not awaited here;
// that would stall the stdout reader behind a slow handler.
func (inv *invocation) chainEvent(ctx context.Context, ev *protocol.Event) {
	prev := inv.chainTail
	done := make(chan struct{})
	inv.chainTail = done

	go func() {
		defer close(done)
		<-prev
		if inv.runner.dispatch(ctx, ev) {
			inv.writeAck()
		}
	}()
}

// writeAck unblocks the child's pending stdin read. A write racing the
// child's exit is harmless and must not fail the invocation.
func (inv *invocation) writeAck() {
	inv.ackMu.Lock()
	defer inv.ackMu.Unlock()
	if err := protocol.WriteAck(inv.stdin); err != nil {
		inv.runner.logger.Debug("ack write failed, child likely exited", "error", err)
	}
}

func (inv *invocation) readStderr(pipe io.Reader) {
	var w io.Writer = &inv.stderrBuf
	if inv.opts.MirrorStderr {
		w = io.MultiWriter(&inv.stderrBuf, inv.runner.stderr)
	}
	_, _ = io.Copy(w, pipe)
}
