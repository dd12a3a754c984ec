package docedit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/redline/kit"
)

// RegisterMCP registers the document-editing tools on an MCP server. The
// tools operate on local file paths: the MCP transport is for co-located
// agents, not remote uploads.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerEditTool(srv)
	p.registerValidateTool(srv)
	p.registerInspectTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// decodeOps accepts either a JSON edit batch or a markdown edit list.
func decodeOps(raw string) ([]EditOp, string, error) {
	src := []byte(raw)
	if IsJSONBatch(src) {
		batch, err := DecodeEditBatch(src)
		if err != nil {
			return nil, "", err
		}
		return batch.Edits, batch.Author, nil
	}
	edits, issues, err := ParseMarkdownEdits(src)
	if err != nil {
		return nil, "", err
	}
	if len(issues) > 0 {
		return nil, "", fmt.Errorf("malformed edit items: %v", issues)
	}
	return edits, "", nil
}

// --- edit ---

type editToolReq struct {
	Path    string `json:"path"`
	OutPath string `json:"out_path"`
	Edits   string `json:"edits"`
	Author  string `json:"author"`
}

func (p *Pipeline) registerEditTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "redline_edit",
		Description: "Apply a batch of tracked-change edits to a .docx file and write the result.",
		InputSchema: inputSchema(map[string]any{
			"path":     map[string]any{"type": "string", "description": "Path of the document to edit"},
			"out_path": map[string]any{"type": "string", "description": "Path for the edited document (defaults to overwriting path)"},
			"edits":    map[string]any{"type": "string", "description": "Edit batch: JSON object or markdown edit list"},
			"author":   map[string]any{"type": "string", "description": "Author name for tracked changes"},
		}, []string{"path", "edits"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*editToolReq)
		buf, err := os.ReadFile(r.Path)
		if err != nil {
			return nil, err
		}
		edits, batchAuthor, err := decodeOps(r.Edits)
		if err != nil {
			return nil, err
		}
		author := r.Author
		if author == "" {
			author = batchAuthor
		}
		result, err := p.Edit(ctx, buf, edits, author)
		if err != nil {
			return nil, err
		}
		out := r.OutPath
		if out == "" {
			out = r.Path
		}
		if err := os.WriteFile(out, result.Doc, 0o644); err != nil {
			return nil, err
		}
		return map[string]any{
			"out_path": out,
			"summary":  result.Summary,
			"outcomes": result.Outcomes,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r editToolReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- validate ---

type validateToolReq struct {
	Path  string `json:"path"`
	Edits string `json:"edits"`
}

func (p *Pipeline) registerValidateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "redline_validate",
		Description: "Dry-run an edit batch against a .docx file: resolve targets and report issues without mutating the document.",
		InputSchema: inputSchema(map[string]any{
			"path":  map[string]any{"type": "string", "description": "Path of the document"},
			"edits": map[string]any{"type": "string", "description": "Edit batch: JSON object or markdown edit list"},
		}, []string{"path", "edits"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*validateToolReq)
		buf, err := os.ReadFile(r.Path)
		if err != nil {
			return nil, err
		}
		edits, _, err := decodeOps(r.Edits)
		if err != nil {
			return nil, err
		}
		return p.Validate(ctx, buf, edits)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r validateToolReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- inspect ---

type inspectToolReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerInspectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "redline_inspect",
		Description: "List the addressable blocks of a .docx file with their IDs, types and text.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Path of the document"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*inspectToolReq)
		buf, err := os.ReadFile(r.Path)
		if err != nil {
			return nil, err
		}
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
		return ir, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r inspectToolReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
