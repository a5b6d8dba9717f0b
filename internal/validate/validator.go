// Package validate checks DOT artifacts with the Graphviz compiler.
// Results are cached by content hash so identical artifacts cost one
// subprocess per run, whether they validate or not.
package validate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const maxArtifactBytes = 10 * 1024 * 1024

// Result is the outcome of validating one artifact.
type Result struct {
	// Hash is the full SHA-256 hex digest of the artifact bytes.
	Hash string

	// Valid reports whether the checker accepted the artifact.
	Valid bool

	// Diagnostic carries the checker's stderr when invalid.
	Diagnostic string

	// CheckerVersion identifies the compiler that produced the verdict.
	CheckerVersion string

	Duration time.Duration
}

// Options configures a Validator.
type Options struct {
	// Checker is the syntax checker binary, normally "dot".
	Checker string

	// Format is passed as -T<format>; output goes to the null device.
	Format string

	// Timeout bounds one checker invocation. Independent of, and
	// shorter than, the sandbox timeout.
	Timeout time.Duration

	// Strict treats checker warnings as failures.
	Strict bool

	// CacheSize bounds the LRU result cache.
	CacheSize int
}

// Validator invokes the checker and caches results. Safe for
// concurrent use: the LRU is internally synchronized and duplicate
// concurrent misses only cost redundant idempotent checker calls.
type Validator struct {
	opts    Options
	cache   *lru.Cache[string, Result]
	version string
	logger  *zap.Logger
}

// New creates a validator. Zero option fields get defaults.
func New(opts Options, logger *zap.Logger) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Checker == "" {
		opts.Checker = "dot"
	}
	if opts.Format == "" {
		opts.Format = "png"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}

	cache, err := lru.New[string, Result](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation cache: %w", err)
	}
	return &Validator{opts: opts, cache: cache, logger: logger}, nil
}

// Preflight verifies the checker binary exists and records its version.
// A failing preflight is fatal to a run.
func (v *Validator) Preflight(ctx context.Context) error {
	if _, err := exec.LookPath(v.opts.Checker); err != nil {
		return fmt.Errorf("checker %q not found in PATH: %w", v.opts.Checker, err)
	}
	v.version = v.checkerVersion(ctx)
	v.logger.Debug("Checker preflight passed",
		zap.String("checker", v.opts.Checker),
		zap.String("version", v.version))
	return nil
}

// Validate checks one artifact, consulting the cache first.
func (v *Validator) Validate(ctx context.Context, artifact string) Result {
	hash := ContentHash(artifact)

	if cached, ok := v.cache.Get(hash); ok {
		v.logger.Debug("Validation cache hit", zap.String("hash", hash[:12]))
		return cached
	}

	result := v.run(ctx, hash, artifact)
	v.cache.Add(hash, result)
	return result
}

// CacheLen returns the number of cached results.
func (v *Validator) CacheLen() int {
	return v.cache.Len()
}

func (v *Validator) run(ctx context.Context, hash, artifact string) Result {
	result := Result{Hash: hash, CheckerVersion: v.version}

	if strings.TrimSpace(artifact) == "" {
		result.Diagnostic = "empty artifact"
		return result
	}
	if len(artifact) > maxArtifactBytes {
		result.Diagnostic = fmt.Sprintf("artifact exceeds %d byte limit", maxArtifactBytes)
		return result
	}

	checkCtx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, v.opts.Checker, "-T"+v.opts.Format, "-o", os.DevNull)
	cmd.Stdin = strings.NewReader(artifact)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(started)

	diagnostic := strings.TrimSpace(stderr.String())

	switch {
	case checkCtx.Err() == context.DeadlineExceeded:
		result.Diagnostic = fmt.Sprintf("checker timeout after %s", v.opts.Timeout)

	case err != nil:
		if diagnostic == "" {
			diagnostic = err.Error()
		}
		result.Diagnostic = diagnostic

	case v.opts.Strict && diagnostic != "":
		result.Diagnostic = "warnings treated as errors: " + diagnostic

	default:
		result.Valid = true
	}

	return result
}

// checkerVersion asks the checker for its version; Graphviz prints it
// on stderr.
func (v *Validator) checkerVersion(ctx context.Context) string {
	verCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(verCtx, v.opts.Checker, "-V")
	var out bytes.Buffer
	cmd.Stderr = &out
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(out.String())
}

// ContentHash returns the SHA-256 hex digest of the artifact bytes.
func ContentHash(artifact string) string {
	sum := sha256.Sum256([]byte(artifact))
	return hex.EncodeToString(sum[:])
}
