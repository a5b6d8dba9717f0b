package pipeline

import (
	"sync"
	"time"

	"dotminer/internal/store"
)

// Report aggregates per-run statistics. Every per-candidate failure is
// counted here rather than propagated: one broken candidate must never
// abort its siblings.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	FilesScanned   int
	ParseFailures  int
	Candidates     int
	BelowFloor     int
	Artifacts      int
	Timeouts       int
	RuntimeFails   int
	MalformedOut   int
	InvalidDOT     int
	Duplicates     int
	RecordsWritten int

	Failures []store.Failure
}

// stats is the mutex-guarded mutable view the workers share.
type stats struct {
	mu     sync.Mutex
	report Report
}

func (s *stats) add(fn func(r *Report)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.report)
}

func (s *stats) fail(f store.Failure, fn func(r *Report)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.report)
	s.report.Failures = append(s.report.Failures, f)
}

func (s *stats) snapshot() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// runRecord converts the report to its persisted form.
func (r Report) runRecord(sinkPath string) store.RunRecord {
	return store.RunRecord{
		RunID:          r.RunID,
		SinkPath:       sinkPath,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		FilesScanned:   r.FilesScanned,
		ParseFailures:  r.ParseFailures,
		Candidates:     r.Candidates,
		BelowFloor:     r.BelowFloor,
		Artifacts:      r.Artifacts,
		Timeouts:       r.Timeouts,
		RuntimeFails:   r.RuntimeFails,
		MalformedOut:   r.MalformedOut,
		InvalidDOT:     r.InvalidDOT,
		Duplicates:     r.Duplicates,
		RecordsWritten: r.RecordsWritten,
	}
}
