// Package sandbox executes generated FSM harness programs in isolated,
// time-bounded child processes. Candidate code never runs inside the
// pipeline process: every execution gets its own interpreter process in
// its own process group, a disposable scratch directory, and a hard
// wall-clock deadline that kills the whole group on expiry.
package sandbox

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"dotminer/internal/detect"
)

// Outcome classifies a completed execution.
type Outcome string

const (
	// OutcomeArtifact means the harness exported a delimited artifact.
	OutcomeArtifact Outcome = "artifact"
	// OutcomeTimeout means the wall-clock deadline expired and the
	// process group was killed. Partial output is discarded.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeRuntimeFailure means the harness exited non-zero.
	OutcomeRuntimeFailure Outcome = "runtime_failure"
	// OutcomeMalformedOutput means the harness exited cleanly but the
	// delimiter pair was absent or unterminated.
	OutcomeMalformedOutput Outcome = "malformed_output"
)

// Phase is one step of the execution lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseLaunching  Phase = "launching"
	PhaseRunning    Phase = "running"
	PhaseCompleted  Phase = "completed"
	PhaseTimedOut   Phase = "timed_out"
	PhaseCrashed    Phase = "crashed"
	PhaseTerminated Phase = "terminated"
)

// Execution is the result of running one candidate's harness. Exactly
// one Execution is produced per candidate.
type Execution struct {
	Candidate detect.Candidate
	Outcome   Outcome

	// Artifact is the text between the delimiters, set only for
	// OutcomeArtifact.
	Artifact string

	// Message carries bounded stderr for OutcomeRuntimeFailure and a
	// short description otherwise.
	Message string

	Duration time.Duration
	Phases   []Phase
}

// Options configures a Sandbox.
type Options struct {
	// Interpreter runs the generated harness, normally "python3".
	Interpreter string

	// Timeout is the hard wall-clock bound per execution.
	Timeout time.Duration

	// MaxOutputBytes bounds captured stdout and stderr each.
	MaxOutputBytes int64

	// IsolateNetwork wraps the child in "unshare -rn" when available,
	// cutting network access. Best effort: without user namespaces the
	// child runs with timeout isolation only.
	IsolateNetwork bool
}

// Sandbox runs harness programs. Safe for concurrent use.
type Sandbox struct {
	opts     Options
	unshare  string
	logger   *zap.Logger
	saltFunc func() string
}

// New creates a sandbox. Zero option fields get defaults.
func New(opts Options, logger *zap.Logger) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interpreter == "" {
		opts.Interpreter = "python3"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 64 * 1024
	}

	s := &Sandbox{opts: opts, logger: logger, saltFunc: newSalt}
	if opts.IsolateNetwork {
		if path, err := probeUnshare(); err == nil {
			s.unshare = path
		} else {
			logger.Warn("unshare unusable, running without network isolation",
				zap.Error(err))
		}
	}
	return s
}

// probeUnshare verifies unshare can actually create user+net namespaces
// on this host. The binary existing is not enough: containers and
// hardened kernels regularly ship it with unprivileged user namespaces
// disabled, and a broken wrapper would misclassify every candidate as a
// runtime failure.
func probeUnshare() (string, error) {
	path, err := exec.LookPath("unshare")
	if err != nil {
		return "", err
	}
	if err := exec.Command(path, "-r", "-n", "true").Run(); err != nil {
		return "", fmt.Errorf("unshare -r -n probe failed: %w", err)
	}
	return path, nil
}

// Preflight verifies the interpreter can be spawned at all. A failing
// preflight is fatal to a run: no candidate could ever succeed.
func (s *Sandbox) Preflight() error {
	if _, err := exec.LookPath(s.opts.Interpreter); err != nil {
		return fmt.Errorf("sandbox interpreter %q not found: %w", s.opts.Interpreter, err)
	}
	return nil
}

// Run executes the candidate's harness and classifies the outcome. The
// returned error is non-nil only for infrastructure failures (cannot
// create the scratch dir or spawn a process); everything a candidate
// can cause is folded into the Execution outcome.
func (s *Sandbox) Run(ctx context.Context, c detect.Candidate, adapter detect.Adapter) (*Execution, error) {
	ex := &Execution{Candidate: c, Phases: []Phase{PhaseIdle}}

	// Launching: render the harness into a disposable scratch dir.
	ex.Phases = append(ex.Phases, PhaseLaunching)
	salt := s.saltFunc()
	harness := adapter.BuildHarness(c.Source, salt)

	scratch, err := os.MkdirTemp("", "dotminer-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	harnessPath := filepath.Join(scratch, "harness.py")
	if err := os.WriteFile(harnessPath, []byte(harness), 0600); err != nil {
		return nil, fmt.Errorf("failed to write harness: %w", err)
	}

	// Running: spawn the interpreter in its own process group.
	ex.Phases = append(ex.Phases, PhaseRunning)
	execCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	binary := s.opts.Interpreter
	args := []string{harnessPath}
	if s.unshare != "" {
		binary = s.unshare
		args = []string{"-r", "-n", s.opts.Interpreter, harnessPath}
	}

	cmd := exec.CommandContext(execCtx, binary, args...)
	cmd.Dir = scratch
	cmd.Env = minimalEnvironment()
	setupProcessGroup(cmd)
	// Kill the whole group on deadline, not just the interpreter, so
	// forked children cannot outlive the timeout.
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 2 * time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: s.opts.MaxOutputBytes}
	stderr := &limitedWriter{w: &stderrBuf, max: s.opts.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	runErr := cmd.Run()
	ex.Duration = time.Since(started)

	switch {
	case execCtx.Err() == context.DeadlineExceeded:
		ex.Phases = append(ex.Phases, PhaseTimedOut)
		ex.Outcome = OutcomeTimeout
		ex.Message = fmt.Sprintf("killed after %s", s.opts.Timeout)
		s.logger.Warn("Sandbox execution timed out",
			zap.String("candidate", c.Provenance()),
			zap.Duration("timeout", s.opts.Timeout))

	case runErr == nil:
		ex.Phases = append(ex.Phases, PhaseCompleted)
		if artifact, ok := scanArtifact(stdoutBuf.String(), salt); ok {
			ex.Outcome = OutcomeArtifact
			ex.Artifact = artifact
		} else {
			ex.Outcome = OutcomeMalformedOutput
			ex.Message = "artifact delimiters missing or unterminated"
		}

	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			ex.Phases = append(ex.Phases, PhaseCrashed)
			ex.Outcome = OutcomeRuntimeFailure
			ex.Message = truncateDiagnostic(stderrBuf.String(), 2048)
			s.logger.Debug("Sandbox harness failed",
				zap.String("candidate", c.Provenance()),
				zap.Int("exit_code", exitErr.ExitCode()))
		} else {
			// Could not spawn at all: infrastructure failure.
			return nil, fmt.Errorf("failed to spawn sandbox process: %w", runErr)
		}
	}

	ex.Phases = append(ex.Phases, PhaseTerminated)
	return ex, nil
}

// minimalEnvironment passes only what an interpreter needs to start.
func minimalEnvironment() []string {
	env := make([]string, 0, 2)
	for _, key := range []string{"PATH", "HOME", "LANG"} {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	return env
}

// newSalt returns a random delimiter salt.
func newSalt() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Fall back to a time-derived salt; uniqueness per run still
		// holds well enough for delimiter scanning.
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}

// truncateDiagnostic bounds a stderr diagnostic, cutting at the last
// full line inside the budget when one exists and otherwise at a rune
// boundary.
func truncateDiagnostic(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		return cut[:idx]
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
