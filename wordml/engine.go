// Package wordml is the in-process DOCX editing engine behind the redline
// pipeline. It implements docedit.EditorFactory over archive/zip and
// WordprocessingML: word/document.xml is parsed into a paragraph graph, and
// mutations are expressed as tracked-change runs (w:ins / w:del) attributed
// to the requesting author.
//
// The engine never touches disk. Exported archives use stored (uncompressed)
// entries for speed — the pipeline's repacker recompresses them afterwards.
package wordml

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/redline/docedit"
)

const documentPath = "word/document.xml"

// ErrDestroyed is returned by operations on a destroyed engine, and by a
// second Destroy. Callers treat it as the expected already-closed state.
var ErrDestroyed = errors.New("wordml: engine already destroyed")

// ErrDOMClosed is returned by closing an already-closed DOM graph.
var ErrDOMClosed = errors.New("wordml: dom graph already closed")

// Factory creates engines from raw DOCX bytes.
type Factory struct {
	// MaxBytes caps total bytes inflated while reading archive entries
	// (default: 500 MB). This is the engine-side backstop against forged
	// central-directory sizes.
	MaxBytes int64
}

// Create implements docedit.EditorFactory.
func (f Factory) Create(ctx context.Context, buf []byte) (docedit.Editor, docedit.DOMHandle, error) {
	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 500 * 1024 * 1024
	}

	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}

	entries := make(map[string][]byte, len(zr.File))
	var order []string
	budget := maxBytes
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		data, n, err := readEntry(zf, budget)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", zf.Name, err)
		}
		budget -= n
		entries[zf.Name] = data
		order = append(order, zf.Name)
	}

	docXML, ok := entries[documentPath]
	if !ok {
		return nil, nil, fmt.Errorf("%s not found in archive", documentPath)
	}

	nodes, err := parseDocument(docXML)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", documentPath, err)
	}

	dom := &graph{nodes: nodes}
	eng := &Engine{
		dom:           dom,
		entries:       entries,
		order:         order,
		docXML:        docXML,
		byID:          indexNodes(nodes),
		replacements:  make(map[int]string),
		inserts:       make(map[int][]string),
		nextRev:       maxAttrID(docXML, revIDRe) + 1,
		nextCommentID: maxAttrID(entries["word/comments.xml"], commentIDRe) + 1,
		now:           time.Now,
	}
	return eng, dom, nil
}

func readEntry(zf *zip.File, budget int64) ([]byte, int64, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()

	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(rc, budget+1))
	if err != nil {
		return nil, n, err
	}
	if n > budget {
		return nil, n, fmt.Errorf("inflated size exceeds budget")
	}
	return out.Bytes(), n, nil
}

var (
	revIDRe     = regexp.MustCompile(`w:id="(\d+)"`)
	commentIDRe = regexp.MustCompile(`w:id="(\d+)"`)
)

// maxAttrID scans src for numeric w:id attributes so new revision and
// comment IDs never collide with ones already in the document.
func maxAttrID(src []byte, re *regexp.Regexp) int {
	max := 0
	for _, m := range re.FindAllSubmatch(src, -1) {
		if v, err := strconv.Atoi(string(m[1])); err == nil && v > max {
			max = v
		}
	}
	return max
}

// graph is the parsed paragraph tree — the heavyweight DOM-like object whose
// teardown the session defers.
type graph struct {
	mu     sync.Mutex
	nodes  []*docNode
	closed bool
}

// Close releases the graph. Closing twice returns ErrDOMClosed.
func (g *graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrDOMClosed
	}
	g.closed = true
	g.nodes = nil
	return nil
}

// comment is a pending comment attachment.
type comment struct {
	id     int
	node   int
	text   string
	author string
}

// Engine is one editing session over a single document. It accumulates
// pending mutations keyed by paragraph and materializes them at Export.
type Engine struct {
	mu            sync.Mutex
	dom           *graph
	entries       map[string][]byte
	order         []string
	docXML        []byte
	byID          map[string]int
	replacements  map[int]string   // node index → full replacement XML
	inserts       map[int][]string // node index → paragraphs inserted after it
	comments      []comment
	nextRev       int
	nextCommentID int
	destroyed     bool
	now           func() time.Time
}

// Destroy invalidates the engine; every later call fails. The DOM graph is
// not touched here — the session closes it separately.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return ErrDestroyed
	}
	e.destroyed = true
	e.entries = nil
	e.replacements = nil
	e.inserts = nil
	e.comments = nil
	return nil
}

func (e *Engine) nodes() []*docNode {
	e.dom.mu.Lock()
	defer e.dom.mu.Unlock()
	return e.dom.nodes
}

func (e *Engine) revID() int {
	id := e.nextRev
	e.nextRev++
	return id
}

func (e *Engine) revDate() string {
	return e.now().UTC().Format("2006-01-02T15:04:05Z")
}
