// Package docedit applies batches of tracked-change edits to DOCX documents
// uploaded by remote callers.
//
// The pipeline runs six stages per request:
//
//	format gate → admission → session → orchestrate → repack → release
//
// The gate rejects non-ZIP payloads and suspected decompression bombs before
// any expensive work starts. Admission bounds how many heavyweight editing
// sessions run concurrently. A session owns one editing-engine instance and
// guarantees its teardown on every exit path. The orchestrator resolves block
// references, skips protected content, and applies each edit with per-edit
// fault isolation — one bad edit never aborts the batch. The repacker
// rewrites the engine's output with maximum compression.
package docedit

import "context"

// OpKind identifies the mutation an edit performs.
type OpKind string

const (
	OpReplace OpKind = "replace"
	OpDelete  OpKind = "delete"
	OpInsert  OpKind = "insert"
	OpComment OpKind = "comment"
)

// EditOp is one caller-supplied edit. Block is either a short sequence ID
// ("b12") or the block's durable ID — both resolve to the same block.
// Insert treats Block as the anchor and places Text after it.
// Comment on a non-comment op attaches after the primary mutation succeeds.
type EditOp struct {
	Kind    OpKind `json:"op"`
	Block   string `json:"block_id"`
	Text    string `json:"text,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// BlockType classifies a block in the extracted document.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockList      BlockType = "list"
	BlockTable     BlockType = "table"
	BlockTOC       BlockType = "toc"
)

// Block is one structural unit of the extracted document.
type Block struct {
	ID      string    `json:"id"`       // durable ID, stable across edits
	ShortID string    `json:"short_id"` // sequence-style ID ("b1", "b2", ...)
	Type    BlockType `json:"type"`
	Level   int       `json:"level,omitempty"` // heading level, 0 for body
	Text    string    `json:"text"`
}

// DocumentIR is the block-oriented representation of a document, extracted
// once per session and consumed read-only by the orchestrator.
type DocumentIR struct {
	Blocks []Block `json:"blocks"`
}

// OutcomeStatus is the per-edit result classification.
type OutcomeStatus string

const (
	StatusApplied          OutcomeStatus = "applied"
	StatusSkippedNotFound  OutcomeStatus = "skipped_not_found"
	StatusSkippedProtected OutcomeStatus = "skipped_protected"
	StatusFailed           OutcomeStatus = "failed"
)

// ApplyOutcome records what happened to one edit. Index is the edit's
// position in the submitted batch.
type ApplyOutcome struct {
	Index   int           `json:"index"`
	Kind    OpKind        `json:"op"`
	Block   string        `json:"block_id"`
	Status  OutcomeStatus `json:"status"`
	Reason  string        `json:"reason,omitempty"`
	Warning string        `json:"warning,omitempty"`
}

// Summary aggregates outcomes for caller-visible reporting.
type Summary struct {
	Applied  int `json:"applied"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
}

// Report is the dry-run validation result.
type Report struct {
	Valid    bool          `json:"valid"`
	Summary  ReportSummary `json:"summary"`
	Issues   []string      `json:"issues"`
	Warnings []string      `json:"warnings"`
}

// ReportSummary counts edits that would and would not apply.
type ReportSummary struct {
	ValidEdits   int `json:"valid_edits"`
	InvalidEdits int `json:"invalid_edits"`
}

// MutateOptions carries per-mutation attribution.
type MutateOptions struct {
	Author string
}

// MutateResult is the outcome reported by a block mutation primitive.
// Expected failure modes (unknown block, unsupported block type) come back
// as OK=false with a reason — primitives reserve errors and panics for
// engine-internal faults.
type MutateResult struct {
	OK     bool
	Reason string
}

// ExportOptions controls archive serialization.
type ExportOptions struct {
	Author       string
	TrackChanges bool
}

// Editor is the handle to one editing-engine instance. All mutations address
// blocks by durable ID. Destroy invalidates the handle; destroying twice
// returns an error that callers treat as the expected already-closed state.
type Editor interface {
	Extract() (*DocumentIR, error)
	Replace(blockID, text string, opts MutateOptions) MutateResult
	Delete(blockID string, opts MutateOptions) MutateResult
	InsertAfter(anchorID, text string, opts MutateOptions) MutateResult
	AddComment(blockID, text, author string) MutateResult
	Export(opts ExportOptions) ([]byte, error)
	Destroy() error
}

// DOMHandle is the editing engine's heavyweight internal object graph.
// Its teardown is deferred off the request goroutine by Session.Cleanup.
type DOMHandle interface {
	Close() error
}

// EditorFactory constructs an editing-engine instance from raw archive
// bytes. On error the returned handles may be partially constructed and
// non-nil; the caller tears down whatever was created.
type EditorFactory interface {
	Create(ctx context.Context, buf []byte) (Editor, DOMHandle, error)
}
