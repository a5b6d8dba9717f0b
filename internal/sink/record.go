// Package sink defines the training pair record schema and the
// append-only JSONL writer every collection run feeds.
package sink

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Task types.
const (
	TaskCodeToDOT = "CODE_TO_DOT"
	TaskNLToDOT   = "NL_TO_DOT"
)

// Verification statuses. Only passing records are ever persisted; the
// failed value exists for reporting.
const (
	StatusPassed = "passed_compiler"
	StatusFailed = "failed_compiler"
)

// Record is one persisted (input, artifact) training pair. Immutable
// once written.
type Record struct {
	// ID is the content-hash id: "<prefix>-<16 hex of sha256(normalized DOT)>".
	ID string `json:"id"`

	// Source is the provenance string, "repo:file:line".
	Source string `json:"source"`

	// SourceURL points at the original material for attribution.
	SourceURL string `json:"source_url"`

	// License is the license tag of the source repository.
	License string `json:"license"`

	// TaskType is CODE_TO_DOT for sandbox-derived pairs.
	TaskType string `json:"task_type"`

	// InputText is the input side of the pair: the recognized source
	// excerpt for code-derived pairs, or the natural language
	// instruction for NL-derived ones. Never empty.
	InputText string `json:"input_text"`

	// ContextSnippet is the bounded auxiliary context, the comment
	// block documenting the definition.
	ContextSnippet string `json:"context_snippet,omitempty"`

	// OutputDOT is the artifact exactly as the harness produced it.
	OutputDOT string `json:"output_dot"`

	// VerificationStatus records the checker verdict.
	VerificationStatus string `json:"verification_status"`

	// ScrapedAt is the RFC 3339 creation timestamp.
	ScrapedAt string `json:"scraped_at"`
}

// Validate enforces the schema before a record reaches the sink.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if r.Source == "" {
		return fmt.Errorf("record source cannot be empty")
	}
	if r.License == "" {
		return fmt.Errorf("record license cannot be empty")
	}
	if r.TaskType != TaskCodeToDOT && r.TaskType != TaskNLToDOT {
		return fmt.Errorf("task_type must be %s or %s, got %q", TaskCodeToDOT, TaskNLToDOT, r.TaskType)
	}
	if r.InputText == "" {
		return fmt.Errorf("input_text cannot be empty")
	}
	if r.OutputDOT == "" {
		return fmt.Errorf("output_dot cannot be empty")
	}
	if r.VerificationStatus != StatusPassed && r.VerificationStatus != StatusFailed {
		return fmt.Errorf("verification_status must be %s or %s, got %q", StatusPassed, StatusFailed, r.VerificationStatus)
	}
	if _, err := time.Parse(time.RFC3339, r.ScrapedAt); err != nil {
		return fmt.Errorf("scraped_at must be RFC 3339: %w", err)
	}
	return nil
}

// NormalizeArtifact canonicalizes DOT bytes for hashing: line endings
// become LF and outer whitespace is dropped, so formatting-only noise
// does not defeat deduplication. The persisted artifact itself is kept
// byte-exact.
func NormalizeArtifact(dot string) string {
	normalized := strings.ReplaceAll(dot, "\r\n", "\n")
	return strings.TrimSpace(normalized)
}

// NewID derives the deterministic content-hash id for an artifact. The
// same DOT text always maps to the same id, across files, runs, and
// collection streams.
func NewID(prefix, dot string) string {
	sum := sha256.Sum256([]byte(NormalizeArtifact(dot)))
	short := hex.EncodeToString(sum[:])[:16]
	if prefix == "" {
		return short
	}
	return prefix + "-" + short
}
