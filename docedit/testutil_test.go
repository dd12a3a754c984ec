package docedit

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
)

// buildZip assembles an in-memory archive from name → content pairs.
func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// fakeEditor is a scriptable Editor for pipeline and orchestrator tests.
type fakeEditor struct {
	ir        *DocumentIR
	exported  []byte
	exportErr error
	destroyed int
	calls     []string

	failBlocks  map[string]string // blockID → failure reason
	panicBlocks map[string]bool
	commentFail string // reason, "" means comments succeed
}

func (f *fakeEditor) Extract() (*DocumentIR, error) {
	if f.ir == nil {
		return &DocumentIR{}, nil
	}
	return f.ir, nil
}

func (f *fakeEditor) mutate(op, blockID string) MutateResult {
	f.calls = append(f.calls, op+":"+blockID)
	if f.panicBlocks[blockID] {
		panic("fakeEditor: scripted panic")
	}
	if reason, ok := f.failBlocks[blockID]; ok {
		return MutateResult{Reason: reason}
	}
	return MutateResult{OK: true}
}

func (f *fakeEditor) Replace(blockID, text string, opts MutateOptions) MutateResult {
	return f.mutate("replace", blockID)
}

func (f *fakeEditor) Delete(blockID string, opts MutateOptions) MutateResult {
	return f.mutate("delete", blockID)
}

func (f *fakeEditor) InsertAfter(anchorID, text string, opts MutateOptions) MutateResult {
	return f.mutate("insert", anchorID)
}

func (f *fakeEditor) AddComment(blockID, text, author string) MutateResult {
	f.calls = append(f.calls, "comment:"+blockID)
	if f.commentFail != "" {
		return MutateResult{Reason: f.commentFail}
	}
	return MutateResult{OK: true}
}

func (f *fakeEditor) Export(opts ExportOptions) ([]byte, error) {
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return f.exported, nil
}

func (f *fakeEditor) Destroy() error {
	f.destroyed++
	if f.destroyed > 1 {
		return errors.New("already destroyed")
	}
	return nil
}

// fakeDOM records Close calls and signals them on a channel so tests can wait
// for the deferred teardown goroutine.
type fakeDOM struct {
	closed chan struct{}
}

func newFakeDOM() *fakeDOM {
	return &fakeDOM{closed: make(chan struct{}, 4)}
}

func (d *fakeDOM) Close() error {
	d.closed <- struct{}{}
	return nil
}

// fakeFactory hands out a fixed editor/DOM pair, or fails.
type fakeFactory struct {
	editor *fakeEditor
	dom    *fakeDOM
	err    error
}

func (f *fakeFactory) Create(ctx context.Context, buf []byte) (Editor, DOMHandle, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.editor, f.dom, nil
}

// twoParagraphIR is the minimal document most orchestrator tests run against.
func twoParagraphIR() *DocumentIR {
	return &DocumentIR{Blocks: []Block{
		{ID: "id-aaa", ShortID: "b1", Type: BlockParagraph, Text: "First paragraph."},
		{ID: "id-bbb", ShortID: "b2", Type: BlockParagraph, Text: "Second paragraph."},
	}}
}
