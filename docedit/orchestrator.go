package docedit

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// Orchestrator resolves, orders, and applies a batch of edits against an
// editor, isolating per-edit failures.
type Orchestrator struct {
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{logger: logger}
}

// resolvedEdit pairs an edit with its resolution against the IR.
type resolvedEdit struct {
	op    EditOp
	index int // position in the submitted batch
	block *Block
	pos   int // document position of the target block, -1 if unresolved
}

// Apply runs the full batch against the editor and exports the result with
// change-tracking attributed to author. It never fails because of an
// individual edit: expected per-edit outcomes (not found, protected,
// primitive rejection) and even engine panics during a single mutation are
// recorded in the outcome list and the batch continues.
func (o *Orchestrator) Apply(editor Editor, ir *DocumentIR, edits []EditOp, author string) ([]byte, []ApplyOutcome, error) {
	resolved := o.resolve(ir, edits)
	ordered := orderEdits(resolved)

	outcomes := make([]ApplyOutcome, len(edits))
	for _, re := range ordered {
		outcomes[re.index] = o.applyOne(editor, ir, re, author)
	}

	out, err := editor.Export(ExportOptions{Author: author, TrackChanges: true})
	if err != nil {
		return nil, outcomes, fmt.Errorf("export: %w", err)
	}
	return out, outcomes, nil
}

// DryRun performs resolution and protection classification only — no
// mutation, no export.
func (o *Orchestrator) DryRun(ir *DocumentIR, edits []EditOp) *Report {
	report := &Report{Issues: []string{}, Warnings: []string{}}
	for _, re := range o.resolve(ir, edits) {
		switch {
		case re.block == nil:
			report.Summary.InvalidEdits++
			report.Issues = append(report.Issues,
				fmt.Sprintf("edit %d: block %q not found", re.index, re.op.Block))
		case re.op.Kind != OpComment && o.protectedTOC(ir, re.pos):
			report.Summary.InvalidEdits++
			report.Issues = append(report.Issues,
				fmt.Sprintf("edit %d: block %q is protected table-of-contents content", re.index, re.op.Block))
		default:
			report.Summary.ValidEdits++
			if w := editWarning(re.op); w != "" {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("edit %d: %s", re.index, w))
			}
		}
	}
	report.Valid = report.Summary.InvalidEdits == 0
	return report
}

// resolve matches every edit's block reference against the IR, trying the
// short ID first and falling back to the durable ID. Unresolved edits stay
// in the batch with a nil block — classification happens at apply time, and
// a miss never aborts processing.
func (o *Orchestrator) resolve(ir *DocumentIR, edits []EditOp) []resolvedEdit {
	byShort := make(map[string]int, len(ir.Blocks))
	byDurable := make(map[string]int, len(ir.Blocks))
	for i := range ir.Blocks {
		if ir.Blocks[i].ShortID != "" {
			byShort[ir.Blocks[i].ShortID] = i
		}
		byDurable[ir.Blocks[i].ID] = i
	}

	resolved := make([]resolvedEdit, 0, len(edits))
	for i, op := range edits {
		re := resolvedEdit{op: op, index: i, pos: -1}
		if idx, ok := byShort[op.Block]; ok {
			re.block, re.pos = &ir.Blocks[idx], idx
		} else if idx, ok := byDurable[op.Block]; ok {
			re.block, re.pos = &ir.Blocks[idx], idx
		}
		resolved = append(resolved, re)
	}
	return resolved
}

// orderEdits sequences the batch so that earlier mutations cannot invalidate
// block references needed by later ones. Within one block, content edits run
// before inserts, and the delete (which invalidates the block) runs last.
// Each block's edits are permuted only across the batch positions that block
// already occupies, so two edits targeting distinct blocks never swap.
//
// The result is deterministic: ties within a rank preserve submission order.
func orderEdits(resolved []resolvedEdit) []resolvedEdit {
	slots := make(map[string][]int)
	for i, re := range resolved {
		key := re.op.Block
		if re.block != nil {
			key = re.block.ID
		}
		slots[key] = append(slots[key], i)
	}

	out := make([]resolvedEdit, len(resolved))
	for _, idxs := range slots {
		g := make([]resolvedEdit, len(idxs))
		for j, i := range idxs {
			g[j] = resolved[i]
		}
		sort.SliceStable(g, func(a, b int) bool {
			return applyRank(g[a].op.Kind) < applyRank(g[b].op.Kind)
		})
		for j, i := range idxs {
			out[i] = g[j]
		}
	}
	return out
}

func applyRank(k OpKind) int {
	switch k {
	case OpReplace:
		return 0
	case OpComment:
		return 1
	case OpInsert:
		return 2
	case OpDelete:
		return 3
	default:
		return 4
	}
}

// applyOne applies a single edit. A panic from the mutation primitive is an
// engine-internal fault; it is converted into a failed outcome so the rest
// of the batch still runs.
func (o *Orchestrator) applyOne(editor Editor, ir *DocumentIR, re resolvedEdit, author string) (outcome ApplyOutcome) {
	outcome = ApplyOutcome{Index: re.index, Kind: re.op.Kind, Block: re.op.Block}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestrator: mutation panicked",
				"op", re.op.Kind, "block", re.op.Block, "panic", r)
			outcome.Status = StatusFailed
			outcome.Reason = "engine internal error"
		}
	}()

	if re.block == nil {
		outcome.Status = StatusSkippedNotFound
		outcome.Reason = "block not found"
		return outcome
	}
	if re.op.Kind != OpComment && o.protectedTOC(ir, re.pos) {
		outcome.Status = StatusSkippedProtected
		outcome.Reason = "auto-generated table-of-contents content"
		return outcome
	}

	opts := MutateOptions{Author: author}
	var res MutateResult
	switch re.op.Kind {
	case OpReplace:
		res = editor.Replace(re.block.ID, re.op.Text, opts)
	case OpDelete:
		res = editor.Delete(re.block.ID, opts)
	case OpInsert:
		res = editor.InsertAfter(re.block.ID, re.op.Text, opts)
	case OpComment:
		res = editor.AddComment(re.block.ID, re.op.Comment, author)
	default:
		res = MutateResult{Reason: fmt.Sprintf("unknown op %q", re.op.Kind)}
	}

	if !res.OK {
		outcome.Status = StatusFailed
		outcome.Reason = res.Reason
		return outcome
	}
	outcome.Status = StatusApplied

	// Secondary comment attachment. Failure here never reverts the primary
	// mutation; it surfaces as a warning on the outcome.
	if re.op.Comment != "" && re.op.Kind != OpComment {
		if cres := editor.AddComment(re.block.ID, re.op.Comment, author); !cres.OK {
			o.logger.Warn("orchestrator: comment attachment failed",
				"block", re.op.Block, "reason", cres.Reason)
			outcome.Warning = "comment not attached: " + cres.Reason
		}
	}
	return outcome
}

// tocLeaderRe matches dotted-leader TOC lines ("Introduction......... 3").
var tocLeaderRe = regexp.MustCompile(`\.{3,}\s*\d+\s*$|\t\d+\s*$`)

// protectedTOC reports whether the block at pos is part of an auto-generated
// table of contents. The engine marks TOC field results directly; the text
// heuristic additionally catches leader lines sitting under a contents
// heading, so caller edits can never land inside the generated structure.
func (o *Orchestrator) protectedTOC(ir *DocumentIR, pos int) bool {
	b := ir.Blocks[pos]
	if b.Type == BlockTOC {
		return true
	}
	if !tocLeaderRe.MatchString(b.Text) {
		return false
	}
	// Leader-styled text counts only when a contents heading precedes it
	// with no intervening body heading.
	for i := pos - 1; i >= 0; i-- {
		prev := ir.Blocks[i]
		if prev.Type == BlockTOC {
			return true
		}
		if prev.Type == BlockHeading {
			t := strings.ToLower(strings.TrimSpace(prev.Text))
			return t == "contents" || t == "table of contents" || t == "toc"
		}
	}
	return false
}

// editWarning flags suspicious but valid edits for dry-run reporting.
func editWarning(op EditOp) string {
	switch op.Kind {
	case OpReplace:
		if strings.TrimSpace(op.Text) == "" {
			return "replacement text is empty — consider a delete instead"
		}
	case OpInsert:
		if strings.TrimSpace(op.Text) == "" {
			return "insert text is empty"
		}
	case OpComment:
		if strings.TrimSpace(op.Comment) == "" {
			return "comment text is empty"
		}
	}
	return ""
}

// Summarize aggregates per-edit outcomes into caller-visible counters.
func Summarize(outcomes []ApplyOutcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Status {
		case StatusApplied:
			s.Applied++
		case StatusSkippedNotFound, StatusSkippedProtected:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
		if o.Warning != "" {
			s.Warnings++
		}
	}
	return s
}
