package wordml

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hazyhaar/redline/docedit"
)

// Mutation primitives. Expected failure modes (unknown block, table target,
// double mutation) come back as MutateResult with OK=false — errors are
// reserved for engine faults. All mutations are staged and materialize as
// w:ins / w:del tracked-change runs at Export.

// Replace stages a tracked replacement of a paragraph's text: the old runs
// become a w:del, the new text a w:ins, paragraph properties are preserved.
func (e *Engine) Replace(blockID, text string, opts docedit.MutateOptions) docedit.MutateResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, n, res := e.lookupParagraph(blockID)
	if !res.OK {
		return res
	}
	if _, dup := e.replacements[idx]; dup {
		return reject("block already mutated in this batch")
	}

	openTag, pPr := paragraphParts(e.docXML[n.start:n.end])
	var body strings.Builder
	body.WriteString(openTag)
	body.WriteString(pPr)
	if n.text != "" {
		body.WriteString(e.delRun(n.text, opts.Author))
	}
	if text != "" {
		body.WriteString(e.insRun(text, opts.Author))
	}
	body.WriteString("</w:p>")

	e.replacements[idx] = body.String()
	return docedit.MutateResult{OK: true}
}

// Delete stages a tracked deletion: the paragraph's runs are wrapped in a
// w:del so reviewers see struck-through text rather than silent removal.
func (e *Engine) Delete(blockID string, opts docedit.MutateOptions) docedit.MutateResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, n, res := e.lookupParagraph(blockID)
	if !res.OK {
		return res
	}
	if _, dup := e.replacements[idx]; dup {
		return reject("block already mutated in this batch")
	}

	openTag, pPr := paragraphParts(e.docXML[n.start:n.end])
	var body strings.Builder
	body.WriteString(openTag)
	body.WriteString(pPr)
	if n.text != "" {
		body.WriteString(e.delRun(n.text, opts.Author))
	}
	body.WriteString("</w:p>")

	e.replacements[idx] = body.String()
	return docedit.MutateResult{OK: true}
}

// InsertAfter stages a new paragraph after the anchor block, marked as an
// insertion. Tables are valid anchors — the new paragraph lands after the
// whole table.
func (e *Engine) InsertAfter(anchorID, text string, opts docedit.MutateOptions) docedit.MutateResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, _, res := e.lookup(anchorID)
	if !res.OK {
		return res
	}

	para := fmt.Sprintf("<w:p>%s</w:p>", e.insRun(text, opts.Author))
	e.inserts[idx] = append(e.inserts[idx], para)
	return docedit.MutateResult{OK: true}
}

// AddComment stages a comment anchored on the block's full range. The
// comment body, range markers, relationships, and content-type override are
// materialized at Export.
func (e *Engine) AddComment(blockID, text, author string) docedit.MutateResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, n, res := e.lookup(blockID)
	if !res.OK {
		return res
	}
	if n.kind != "p" {
		return reject("comments on tables are not supported")
	}

	id := e.nextCommentID
	e.nextCommentID++
	e.comments = append(e.comments, comment{id: id, node: idx, text: text, author: author})
	return docedit.MutateResult{OK: true}
}

func (e *Engine) lookup(blockID string) (int, *docNode, docedit.MutateResult) {
	if e.destroyed {
		return 0, nil, reject("engine destroyed")
	}
	idx, ok := e.byID[blockID]
	if !ok {
		return 0, nil, reject(fmt.Sprintf("unknown block %q", blockID))
	}
	nodes := e.nodes()
	if nodes == nil {
		return 0, nil, reject("document graph released")
	}
	return idx, nodes[idx], docedit.MutateResult{OK: true}
}

func (e *Engine) lookupParagraph(blockID string) (int, *docNode, docedit.MutateResult) {
	idx, n, res := e.lookup(blockID)
	if !res.OK {
		return idx, n, res
	}
	if n.kind != "p" {
		return idx, n, reject("unsupported block type: table")
	}
	return idx, n, res
}

func reject(reason string) docedit.MutateResult {
	return docedit.MutateResult{Reason: reason}
}

func (e *Engine) delRun(text, author string) string {
	return fmt.Sprintf(
		`<w:del w:id="%d" w:author="%s" w:date="%s"><w:r><w:delText xml:space="preserve">%s</w:delText></w:r></w:del>`,
		e.revID(), xmlEscape(author), e.revDate(), xmlEscape(text))
}

func (e *Engine) insRun(text, author string) string {
	return fmt.Sprintf(
		`<w:ins w:id="%d" w:author="%s" w:date="%s"><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:ins>`,
		e.revID(), xmlEscape(author), e.revDate(), xmlEscape(text))
}

// paragraphParts splits a serialized <w:p> element into its opening tag and
// its <w:pPr> block (with surrounding whitespace), so a rebuilt paragraph
// keeps its attributes and formatting. Self-closing paragraphs are
// normalized to an open tag.
func paragraphParts(src []byte) (openTag, pPr string) {
	i := bytes.IndexByte(src, '>')
	if i < 0 {
		return "<w:p>", ""
	}
	if i > 0 && src[i-1] == '/' {
		return string(src[:i-1]) + ">", ""
	}
	openTag = string(src[:i+1])

	rest := src[i+1:]
	trimmed := bytes.TrimLeft(rest, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("<w:pPr")) {
		return openTag, ""
	}
	if j := bytes.Index(rest, []byte("</w:pPr>")); j >= 0 {
		return openTag, string(rest[:j+len("</w:pPr>")])
	}
	// Self-closing <w:pPr/>.
	if j := bytes.IndexByte(trimmed, '>'); j > 0 && trimmed[j-1] == '/' {
		k := len(rest) - len(trimmed)
		return openTag, string(rest[:k+j+1])
	}
	return openTag, ""
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}
