package wordml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/hazyhaar/redline/docedit"
	"github.com/hazyhaar/redline/idgen"
)

// docNode is one top-level block of the document body: a paragraph or a
// whole table. start/end are byte offsets of the element in document.xml,
// used for splicing mutations at export time.
type docNode struct {
	kind    string // "p" or "tbl"
	start   int
	end     int
	text    string
	style   string
	paraID  string // w14:paraId attribute, lowercased, "" if absent
	durable string // paraID when present, otherwise a generated UUID
}

// parseDocument walks document.xml once with a streaming decoder, recording
// the byte span, style, and text of every body-level paragraph and table.
// Paragraphs nested inside tables belong to their table node — tables are
// addressed (and protected from mutation) as a unit.
func parseDocument(docXML []byte) ([]*docNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var nodes []*docNode
	var cur *docNode
	var text strings.Builder
	tblDepth := 0
	inText := false

	for {
		off := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				if tblDepth == 0 && cur == nil {
					cur = &docNode{kind: "tbl", start: int(off)}
					text.Reset()
				}
				tblDepth++
			case "p":
				if tblDepth == 0 && cur == nil {
					cur = &docNode{kind: "p", start: int(off)}
					text.Reset()
					for _, a := range t.Attr {
						if a.Name.Local == "paraId" {
							cur.paraID = strings.ToLower(a.Value)
						}
					}
				}
			case "pStyle":
				if cur != nil && cur.kind == "p" && cur.style == "" {
					for _, a := range t.Attr {
						if a.Name.Local == "val" {
							cur.style = a.Value
						}
					}
				}
			case "t":
				if cur != nil {
					inText = true
				}
			}

		case xml.CharData:
			if inText {
				text.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if tblDepth == 0 && cur != nil && cur.kind == "p" {
					cur.end = int(dec.InputOffset())
					cur.text = text.String()
					nodes = append(nodes, cur)
					cur = nil
				}
			case "tbl":
				tblDepth--
				if tblDepth == 0 && cur != nil && cur.kind == "tbl" {
					cur.end = int(dec.InputOffset())
					cur.text = strings.TrimSpace(text.String())
					nodes = append(nodes, cur)
					cur = nil
				}
			}
		}
	}

	for _, n := range nodes {
		if n.paraID != "" {
			n.durable = n.paraID
		} else {
			// No w14:paraId in the source: the durable ID is scoped to
			// this session and a fresh extraction will mint a new one.
			n.durable = idgen.New()
		}
	}
	return nodes, nil
}

func indexNodes(nodes []*docNode) map[string]int {
	byID := make(map[string]int, len(nodes))
	for i, n := range nodes {
		byID[n.durable] = i
	}
	return byID
}

// Extract implements the IR-extraction contract: one block per body node,
// short IDs assigned in document order.
func (e *Engine) Extract() (*docedit.DocumentIR, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, ErrDestroyed
	}

	nodes := e.nodes()
	ir := &docedit.DocumentIR{Blocks: make([]docedit.Block, 0, len(nodes))}
	for i, n := range nodes {
		typ, level := classify(n)
		ir.Blocks = append(ir.Blocks, docedit.Block{
			ID:      n.durable,
			ShortID: "b" + strconv.Itoa(i+1),
			Type:    typ,
			Level:   level,
			Text:    n.text,
		})
	}
	return ir, nil
}

func classify(n *docNode) (docedit.BlockType, int) {
	if n.kind == "tbl" {
		return docedit.BlockTable, 0
	}
	style := strings.ToLower(n.style)
	switch {
	case strings.HasPrefix(style, "toc"):
		return docedit.BlockTOC, 0
	case style == "listparagraph":
		return docedit.BlockList, 0
	}
	if level := headingLevel(n.style); level > 0 {
		return docedit.BlockHeading, level
	}
	return docedit.BlockParagraph, 0
}

// headingLevel extracts the heading level from a paragraph style name:
// "Heading1" → 1, "Title" → 1, "Titre2"/"Überschrift2" → 2, else 0.
func headingLevel(style string) int {
	lower := strings.ToLower(style)

	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '9' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}
