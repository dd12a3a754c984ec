package wordml

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/redline/docedit"
)

const (
	contentTypesPath = "[Content_Types].xml"
	commentsPath     = "word/comments.xml"
	documentRelsPath = "word/_rels/document.xml.rels"

	commentsContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.comments+xml"
	commentsRelType     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/comments"
)

// Export serializes the document with all staged mutations materialized as
// tracked changes. Entries are written stored (uncompressed); the caller's
// repacker owns compression. Change-tracking metadata survives: w:ins and
// w:del runs carry the author and revision date stamped at mutation time,
// with opts.Author as the fallback for comment bodies.
func (e *Engine) Export(opts docedit.ExportOptions) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, ErrDestroyed
	}
	nodes := e.nodes()
	if nodes == nil {
		return nil, fmt.Errorf("wordml: document graph released")
	}

	final := make(map[string][]byte, len(e.entries)+2)
	for name, data := range e.entries {
		final[name] = data
	}
	final[documentPath] = e.renderDocument(nodes)

	var appended []string
	if len(e.comments) > 0 {
		author := opts.Author
		final[commentsPath] = e.renderComments(author)
		if _, existed := e.entries[commentsPath]; !existed {
			appended = append(appended, commentsPath)
		}
		final[contentTypesPath] = ensureCommentsContentType(final[contentTypesPath])
		rels, created := ensureCommentsRel(final[documentRelsPath])
		final[documentRelsPath] = rels
		if created {
			appended = append(appended, documentRelsPath)
		}
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	write := func(name string) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			return err
		}
		_, err = w.Write(final[name])
		return err
	}
	for _, name := range e.order {
		if err := write(name); err != nil {
			zw.Close()
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	for _, name := range appended {
		if err := write(name); err != nil {
			zw.Close()
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// renderDocument splices staged replacements, insertions, and comment range
// markers into the original document.xml byte stream.
func (e *Engine) renderDocument(nodes []*docNode) []byte {
	marks := make(map[int][]comment)
	for _, c := range e.comments {
		marks[c.node] = append(marks[c.node], c)
	}

	var sb bytes.Buffer
	pos := 0
	for i, n := range nodes {
		sb.Write(e.docXML[pos:n.start])

		body, hasRepl := e.replacements[i]
		if !hasRepl {
			body = string(e.docXML[n.start:n.end])
		}
		if cs := marks[i]; len(cs) > 0 {
			body = wrapComments(body, cs)
		}
		sb.WriteString(body)

		for _, ins := range e.inserts[i] {
			sb.WriteString(ins)
		}
		pos = n.end
	}
	sb.Write(e.docXML[pos:])
	return sb.Bytes()
}

// wrapComments surrounds a paragraph's content with commentRangeStart/End
// markers and appends the reference runs Word needs to display the anchors.
// The markers go after the w:pPr block: pPr must stay the first child of w:p.
func wrapComments(para string, cs []comment) string {
	head, inner := splitParagraph(para)

	var starts, ends strings.Builder
	for _, c := range cs {
		fmt.Fprintf(&starts, `<w:commentRangeStart w:id="%d"/>`, c.id)
		fmt.Fprintf(&ends,
			`<w:commentRangeEnd w:id="%d"/><w:r><w:commentReference w:id="%d"/></w:r>`,
			c.id, c.id)
	}
	return head + starts.String() + inner + ends.String() + "</w:p>"
}

// splitParagraph separates a serialized paragraph into a head (the opening
// tag plus its w:pPr block, when present) and the remaining inner content,
// normalizing self-closing forms.
func splitParagraph(para string) (head, inner string) {
	openTag, pPr := paragraphParts([]byte(para))
	head = openTag + pPr
	if !strings.HasPrefix(para, head) {
		// Self-closing <w:p/> normalized to an open tag; no content.
		return head, ""
	}
	inner = strings.TrimSuffix(para[len(head):], "</w:p>")
	return head, inner
}

const commentsXMLHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
	`<w:comments xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">`

// renderComments produces word/comments.xml, merging into an existing part
// when the source document already carries comments.
func (e *Engine) renderComments(fallbackAuthor string) []byte {
	var entries strings.Builder
	for _, c := range e.comments {
		author := c.author
		if author == "" {
			author = fallbackAuthor
		}
		fmt.Fprintf(&entries,
			`<w:comment w:id="%d" w:author="%s" w:date="%s" w:initials="%s"><w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p></w:comment>`,
			c.id, xmlEscape(author), e.revDate(), xmlEscape(initials(author)), xmlEscape(c.text))
	}

	if existing, ok := e.entries[commentsPath]; ok {
		if i := bytes.LastIndex(existing, []byte("</w:comments>")); i >= 0 {
			var sb bytes.Buffer
			sb.Write(existing[:i])
			sb.WriteString(entries.String())
			sb.Write(existing[i:])
			return sb.Bytes()
		}
	}
	return []byte(commentsXMLHeader + entries.String() + "</w:comments>")
}

func initials(author string) string {
	var sb strings.Builder
	for _, word := range strings.Fields(author) {
		sb.WriteString(strings.ToUpper(string([]rune(word)[:1])))
		if sb.Len() >= 3 {
			break
		}
	}
	if sb.Len() == 0 {
		return "?"
	}
	return sb.String()
}

// ensureCommentsContentType adds the comments override to
// [Content_Types].xml when it is missing.
func ensureCommentsContentType(src []byte) []byte {
	if bytes.Contains(src, []byte(`PartName="/word/comments.xml"`)) {
		return src
	}
	override := fmt.Sprintf(`<Override PartName="/word/comments.xml" ContentType="%s"/>`, commentsContentType)
	if i := bytes.LastIndex(src, []byte("</Types>")); i >= 0 {
		var sb bytes.Buffer
		sb.Write(src[:i])
		sb.WriteString(override)
		sb.Write(src[i:])
		return sb.Bytes()
	}
	return src
}

var relIDRe = regexp.MustCompile(`Id="rId(\d+)"`)

const relsXMLHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`

// ensureCommentsRel adds the comments relationship to the document rels,
// creating the part if the source archive had none. The second return value
// reports whether a new part was created.
func ensureCommentsRel(src []byte) ([]byte, bool) {
	if len(src) == 0 {
		rel := fmt.Sprintf(`<Relationship Id="rId1" Type="%s" Target="comments.xml"/>`, commentsRelType)
		return []byte(relsXMLHeader + rel + "</Relationships>"), true
	}
	if bytes.Contains(src, []byte(commentsRelType)) {
		return src, false
	}

	next := 1
	for _, m := range relIDRe.FindAllSubmatch(src, -1) {
		if v, err := strconv.Atoi(string(m[1])); err == nil && v >= next {
			next = v + 1
		}
	}
	rel := fmt.Sprintf(`<Relationship Id="rId%d" Type="%s" Target="comments.xml"/>`, next, commentsRelType)
	if i := bytes.LastIndex(src, []byte("</Relationships>")); i >= 0 {
		var sb bytes.Buffer
		sb.Write(src[:i])
		sb.WriteString(rel)
		sb.Write(src[i:])
		return sb.Bytes(), false
	}
	return src, false
}
