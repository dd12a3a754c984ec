package docedit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// Markdown edit lists are the human-writable alternative to the JSON batch.
// One edit per list item:
//
//	- [b3] replace: The committee approved the proposal.
//	- [b7] delete
//	- [b9] insert: A new closing paragraph.
//	- [4f1c2a88-...] comment: needs a citation
//
// Headings and plain paragraphs around the list are ignored, so callers can
// paste an annotated review document wholesale.

var editItemRe = regexp.MustCompile(`^\[([^\]\s]+)\]\s*(replace|delete|insert|insert-after|comment)\s*:?\s*([\s\S]*)$`)

// IsJSONBatch reports whether raw looks like a JSON payload rather than a
// markdown edit list.
func IsJSONBatch(raw []byte) bool {
	trimmed := strings.TrimLeftFunc(string(raw), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// ParseMarkdownEdits normalizes a markdown edit list into an EditOp batch.
// Malformed list items are collected as issue strings rather than aborting —
// the caller decides whether to reject or report them.
func ParseMarkdownEdits(src []byte) ([]EditOp, []string, error) {
	doc := goldmark.New().Parser().Parse(gtext.NewReader(src))

	var edits []EditOp
	var issues []string
	itemNo := 0

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		item, ok := n.(*ast.ListItem)
		if !ok {
			return ast.WalkContinue, nil
		}
		itemNo++

		line := strings.TrimSpace(itemText(item, src))
		if line == "" {
			return ast.WalkSkipChildren, nil
		}
		op, perr := parseEditLine(line)
		if perr != nil {
			issues = append(issues, fmt.Sprintf("item %d: %v", itemNo, perr))
			return ast.WalkSkipChildren, nil
		}
		edits = append(edits, op)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk markdown: %w", err)
	}
	if len(edits) == 0 && len(issues) == 0 {
		return nil, nil, fmt.Errorf("markdown contains no edit list items")
	}
	return edits, issues, nil
}

// itemText reconstructs the raw source text of a list item's block children.
func itemText(item *ast.ListItem, src []byte) string {
	var sb strings.Builder
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		lines := c.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.Write(seg.Value(src))
		}
	}
	return sb.String()
}

func parseEditLine(line string) (EditOp, error) {
	m := editItemRe.FindStringSubmatch(line)
	if m == nil {
		return EditOp{}, fmt.Errorf("not an edit line: %q", truncate(line, 60))
	}
	block, verb, rest := m[1], m[2], strings.TrimSpace(m[3])

	switch verb {
	case "replace":
		if rest == "" {
			return EditOp{}, fmt.Errorf("replace needs text")
		}
		return EditOp{Kind: OpReplace, Block: block, Text: rest}, nil
	case "delete":
		return EditOp{Kind: OpDelete, Block: block}, nil
	case "insert", "insert-after":
		if rest == "" {
			return EditOp{}, fmt.Errorf("insert needs text")
		}
		return EditOp{Kind: OpInsert, Block: block, Text: rest}, nil
	case "comment":
		if rest == "" {
			return EditOp{}, fmt.Errorf("comment needs text")
		}
		return EditOp{Kind: OpComment, Block: block, Comment: rest}, nil
	}
	return EditOp{}, fmt.Errorf("unknown verb %q", verb)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
