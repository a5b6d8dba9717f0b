// Package pipeline drives candidates end to end: detect, extract
// context, sandbox-execute, validate, deduplicate, and append to the
// sink. It is the only component with concurrency-control
// responsibility.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"dotminer/internal/config"
	"dotminer/internal/detect"
	"dotminer/internal/extract"
	"dotminer/internal/registry"
	"dotminer/internal/sandbox"
	"dotminer/internal/sink"
	"dotminer/internal/store"
	"dotminer/internal/validate"
)

// Pipeline wires the extraction components together for one run.
type Pipeline struct {
	cfg      *config.Config
	adapters *detect.Registry
	sandbox  *sandbox.Sandbox
	valid    *validate.Validator
	registry *registry.Registry
	runlog   *store.RunLog
	logger   *zap.Logger

	// sandboxSem bounds concurrent child processes independently of
	// the detection pool: each slot is a full interpreter process.
	sandboxSem *semaphore.Weighted
}

// New assembles a pipeline from configuration. The run log is optional;
// pass nil to skip persistence of run statistics.
func New(cfg *config.Config, runlog *store.RunLog, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sandboxTimeout, err := cfg.SandboxTimeout()
	if err != nil {
		return nil, fmt.Errorf("sandbox timeout: %w", err)
	}
	checkerTimeout, err := cfg.CheckerTimeout()
	if err != nil {
		return nil, fmt.Errorf("checker timeout: %w", err)
	}

	sb := sandbox.New(sandbox.Options{
		Interpreter:    cfg.Sandbox.Interpreter,
		Timeout:        sandboxTimeout,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		IsolateNetwork: cfg.Sandbox.IsolateNetwork,
	}, logger.Named("sandbox"))

	validator, err := validate.New(validate.Options{
		Checker:   cfg.Validate.Checker,
		Format:    cfg.Validate.Format,
		Timeout:   checkerTimeout,
		Strict:    cfg.Validate.Strict,
		CacheSize: cfg.Validate.CacheSize,
	}, logger.Named("validate"))
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:        cfg,
		adapters:   detect.DefaultRegistry(),
		sandbox:    sb,
		valid:      validator,
		registry:   registry.New(),
		runlog:     runlog,
		logger:     logger,
		sandboxSem: semaphore.NewWeighted(int64(cfg.Pipeline.SandboxWorkers)),
	}, nil
}

// Run processes the given source files and returns the run report. The
// returned error is non-nil only for fatal conditions: missing checker
// or interpreter, an unreadable sink, or a sink write failure.
func (p *Pipeline) Run(ctx context.Context, files []string) (*Report, error) {
	st := &stats{}
	st.report.RunID = uuid.NewString()
	st.report.StartedAt = time.Now().UTC()

	// Fatal preflights: without these no candidate can ever succeed.
	if err := p.valid.Preflight(ctx); err != nil {
		return nil, err
	}
	if err := p.sandbox.Preflight(); err != nil {
		return nil, err
	}

	primed, err := p.primeRegistry()
	if err != nil {
		return nil, err
	}

	writer, err := sink.OpenWriter(p.cfg.Output.SinkPath)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	p.logger.Info("Starting extraction run",
		zap.String("run_id", st.report.RunID),
		zap.Int("files", len(files)),
		zap.Int("primed_ids", primed),
		zap.Int("sandbox_workers", p.cfg.Pipeline.SandboxWorkers))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.detectWorkers())

	for _, file := range files {
		file := file
		eg.Go(func() error {
			return p.processFile(egCtx, file, writer, st)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	st.add(func(r *Report) { r.FinishedAt = time.Now().UTC() })
	report := st.snapshot()

	p.logger.Info("Extraction run complete",
		zap.String("run_id", report.RunID),
		zap.Int("files_scanned", report.FilesScanned),
		zap.Int("candidates", report.Candidates),
		zap.Int("artifacts", report.Artifacts),
		zap.Int("timeouts", report.Timeouts),
		zap.Int("runtime_failures", report.RuntimeFails),
		zap.Int("malformed_output", report.MalformedOut),
		zap.Int("invalid_dot", report.InvalidDOT),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("records_written", report.RecordsWritten))

	if p.runlog != nil {
		if err := p.runlog.SaveRun(ctx, report.runRecord(p.cfg.Output.SinkPath)); err != nil {
			p.logger.Warn("Failed to persist run summary", zap.Error(err))
		} else if err := p.runlog.SaveFailures(ctx, report.Failures); err != nil {
			p.logger.Warn("Failed to persist failure events", zap.Error(err))
		}
	}

	return &report, nil
}

// processFile detects candidates in one file and drives each through
// the rest of the pipeline.
func (p *Pipeline) processFile(ctx context.Context, path string, writer *sink.Writer, st *stats) error {
	content, err := os.ReadFile(path)
	if err != nil {
		p.logger.Warn("Failed to read file", zap.String("path", path), zap.Error(err))
		st.add(func(r *Report) { r.ParseFailures++ })
		return nil
	}

	st.add(func(r *Report) { r.FilesScanned++ })

	// Cheap pre-scan before paying for a full parse.
	if !detect.HasFSMImports(content) {
		return nil
	}

	detector := detect.NewDetector(p.adapters, p.cfg.Detect.ConfidenceFloor, p.logger.Named("detect"))
	defer detector.Close()

	candidates := detector.Detect(path, content)
	st.add(func(r *Report) {
		if detector.ParseFailed() {
			r.ParseFailures++
		}
		r.BelowFloor += detector.BelowFloor()
		r.Candidates += len(candidates)
	})

	for _, c := range candidates {
		if err := p.processCandidate(ctx, c, content, writer, st); err != nil {
			return err
		}
	}
	return nil
}

// processCandidate runs one candidate end to end. Per-candidate
// failures are folded into the report; only infrastructure failures
// return an error.
func (p *Pipeline) processCandidate(ctx context.Context, c detect.Candidate, content []byte, writer *sink.Writer, st *stats) error {
	adapter, ok := p.adapters.Lookup(c.Kind)
	if !ok {
		// Cannot happen for candidates the registry itself produced.
		return fmt.Errorf("no adapter registered for kind %q", c.Kind)
	}

	input := extract.Input(c, p.cfg.Detect.MaxContextBytes)
	snippet := extract.Snippet(c, content, p.cfg.Detect.MaxContextBytes)

	if err := p.sandboxSem.Acquire(ctx, 1); err != nil {
		return err
	}
	ex, err := p.sandbox.Run(ctx, c, adapter)
	p.sandboxSem.Release(1)
	if err != nil {
		// Spawn infrastructure is down; no candidate can succeed.
		return err
	}

	failure := func(stage, message string) store.Failure {
		return store.Failure{
			RunID:   st.snapshot().RunID,
			Path:    c.Path,
			Line:    c.StartLine,
			Stage:   stage,
			Message: message,
		}
	}

	switch ex.Outcome {
	case sandbox.OutcomeTimeout:
		st.fail(failure("sandbox", ex.Message), func(r *Report) { r.Timeouts++ })
		return nil
	case sandbox.OutcomeRuntimeFailure:
		st.fail(failure("sandbox", ex.Message), func(r *Report) { r.RuntimeFails++ })
		return nil
	case sandbox.OutcomeMalformedOutput:
		st.fail(failure("sandbox", ex.Message), func(r *Report) { r.MalformedOut++ })
		return nil
	}

	st.add(func(r *Report) { r.Artifacts++ })

	result := p.valid.Validate(ctx, ex.Artifact)
	if !result.Valid {
		st.fail(failure("validate", result.Diagnostic), func(r *Report) { r.InvalidDOT++ })
		return nil
	}

	id := sink.NewID(p.cfg.Output.IDPrefix, ex.Artifact)
	if !p.registry.TryAccept(id) {
		// Not a failure: the artifact is already in the sink.
		st.add(func(r *Report) { r.Duplicates++ })
		p.logger.Debug("Duplicate artifact collapsed",
			zap.String("id", id),
			zap.String("candidate", c.Provenance()))
		return nil
	}

	record := sink.Record{
		ID:                 id,
		Source:             fmt.Sprintf("%s:%s", p.cfg.Output.SourceRepo, c.Provenance()),
		SourceURL:          p.cfg.Output.SourceURL,
		License:            p.cfg.Output.License,
		TaskType:           sink.TaskCodeToDOT,
		InputText:          input,
		ContextSnippet:     snippet,
		OutputDOT:          ex.Artifact,
		VerificationStatus: sink.StatusPassed,
		ScrapedAt:          time.Now().UTC().Format(time.RFC3339),
	}
	if err := writer.Append(record); err != nil {
		// Sink failures are fatal: continuing would lose records.
		return err
	}

	st.add(func(r *Report) { r.RecordsWritten++ })
	return nil
}

// primeRegistry loads ids from any pre-existing sink content so re-runs
// are idempotent.
func (p *Pipeline) primeRegistry() (int, error) {
	file, err := os.Open(p.cfg.Output.SinkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open sink for priming: %w", err)
	}
	defer file.Close()

	primed, err := p.registry.PrimeFromSink(file)
	if err != nil {
		return 0, err
	}
	return primed, nil
}

func (p *Pipeline) detectWorkers() int {
	if p.cfg.Pipeline.DetectWorkers > 0 {
		return p.cfg.Pipeline.DetectWorkers
	}
	return 1
}

// Registry exposes the dedup registry, mainly for tests and reporting.
func (p *Pipeline) Registry() *registry.Registry {
	return p.registry
}
