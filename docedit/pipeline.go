package docedit

import (
	"context"
)

// Pipeline composes the per-request stages: gate → admit → session →
// orchestrate → repack → release. The admission permit is released exactly
// once after session cleanup completes, on every exit path — success,
// validation failure, engine failure, or caller cancellation.
type Pipeline struct {
	cfg       Config
	admission *Admission
	factory   EditorFactory
	orch      *Orchestrator
	repacker  *Repacker
}

// Result is the outcome of a successful edit request.
type Result struct {
	Doc      []byte
	Outcomes []ApplyOutcome
	Summary  Summary
	Repacked bool
}

// NewPipeline creates a pipeline around the given editing-engine factory.
func NewPipeline(cfg Config, factory EditorFactory) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:       cfg,
		admission: NewAdmission(cfg.MaxSessions, cfg.AdmissionWait, cfg.Logger),
		factory:   factory,
		orch:      NewOrchestrator(cfg.Logger),
		repacker:  &Repacker{MaxBytes: cfg.MaxUncompressedBytes},
	}
}

// Admission exposes the controller, mainly for tests and health reporting.
func (p *Pipeline) Admission() *Admission {
	return p.admission
}

// Edit applies the batch to the uploaded archive and returns the repacked
// document. Gate rejections happen before any shared resource is touched.
func (p *Pipeline) Edit(ctx context.Context, buf []byte, edits []EditOp, author string) (*Result, error) {
	if err := p.gate(buf); err != nil {
		return nil, err
	}
	if err := p.admission.Acquire(ctx); err != nil {
		return nil, err
	}
	// Deferred LIFO order matters: cleanup runs first, release second —
	// the permit is never returned before the session is torn down.
	defer p.admission.Release()

	session, err := NewSession(ctx, p.factory, buf, p.cfg.Logger)
	if err != nil {
		return nil, err
	}
	defer session.Cleanup()

	ir, err := session.Editor().Extract()
	if err != nil {
		return nil, err
	}

	out, outcomes, err := p.orch.Apply(session.Editor(), ir, edits, author)
	if err != nil {
		return nil, err
	}

	result := &Result{Doc: out, Outcomes: outcomes, Summary: Summarize(outcomes)}

	packed, err := p.repacker.Repack(out)
	if err != nil {
		// Non-fatal: the stored-entry export is a valid document.
		p.cfg.Logger.Warn("pipeline: repack failed, returning unpacked output", "error", err)
		return result, nil
	}
	result.Doc = packed
	result.Repacked = true
	return result, nil
}

// Validate runs the dry-run mode: gate, session, resolution and protection
// classification — no mutation and no export.
func (p *Pipeline) Validate(ctx context.Context, buf []byte, edits []EditOp) (*Report, error) {
	if err := p.gate(buf); err != nil {
		return nil, err
	}
	if err := p.admission.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.admission.Release()

	session, err := NewSession(ctx, p.factory, buf, p.cfg.Logger)
	if err != nil {
		return nil, err
	}
	defer session.Cleanup()

	ir, err := session.Editor().Extract()
	if err != nil {
		return nil, err
	}
	return p.orch.DryRun(ir, edits), nil
}

func (p *Pipeline) gate(buf []byte) error {
	if err := ValidateSignature(buf); err != nil {
		return err
	}
	return CheckExpansionRatio(buf, p.cfg.MaxBombRatio, p.cfg.MaxUncompressedBytes)
}
