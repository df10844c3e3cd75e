package docpipe

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docsight/horosafe"
	"github.com/hazyhaar/docsight/kit"
	"github.com/hazyhaar/docsight/preprocess"
)

// RegisterMCP registers the docsight tools on an MCP server.
// File paths are resolved under Config.FileRoot.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerOCRTool(srv)
	p.registerDetectTool(srv)
	p.registerEnginesTool(srv)
	p.registerPresetsTool(srv)
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

func (p *Pipeline) tool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(p.logger, tool.Name)(endpoint), decode)
}

// --- ocr ---

type ocrReq struct {
	Path      string   `json:"path"`
	Engine    string   `json:"engine"`
	Preset    string   `json:"preset"`
	Languages []string `json:"languages"`
}

func (p *Pipeline) registerOCRTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docsight_ocr",
		Description: "Recognize the text of a PDF or image file (png, jpeg, gif, bmp, tiff, webp).",
		InputSchema: inputSchema(map[string]any{
			"path":      map[string]any{"type": "string", "description": "File path, relative to the server file root"},
			"engine":    map[string]any{"type": "string", "description": "Engine name (default engine when empty)"},
			"preset":    map[string]any{"type": "string", "description": "Preprocessing preset: none, minimal, default, aggressive"},
			"languages": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Language codes, e.g. eng, fra"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*ocrReq)
		path, err := p.resolvePath(r.Path)
		if err != nil {
			return nil, err
		}
		return p.ProcessFile(ctx, path, Options{Engine: r.Engine, Preset: r.Preset, Languages: r.Languages})
	}

	p.tool(srv, tool, endpoint, kit.DecodeArgs[ocrReq]())
}

// --- detect ---

type detectReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docsight_detect",
		Description: "Detect the format of a document file from its content.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path, relative to the server file root"},
		}, []string{"path"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*detectReq)
		path, err := p.resolvePath(r.Path)
		if err != nil {
			return nil, err
		}
		head, err := readHead(path, 4096)
		if err != nil {
			return nil, err
		}
		format, err := Detect(head)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": string(format)}, nil
	}

	p.tool(srv, tool, endpoint, kit.DecodeArgs[detectReq]())
}

// --- engines ---

func (p *Pipeline) registerEnginesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docsight_engines",
		Description: "List the registered recognition engines and the default one.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{
			"engines":        p.engines.Info(),
			"default_engine": p.engines.DefaultName(),
		}, nil
	}

	p.tool(srv, tool, endpoint, kit.DecodeArgs[struct{}]())
}

// --- presets ---

type presetInfo struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

func (p *Pipeline) registerPresetsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docsight_presets",
		Description: "List the preprocessing presets and the steps each one runs.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		var out []presetInfo
		for _, ps := range preprocess.Presets() {
			out = append(out, presetInfo{Name: ps.String(), Steps: ps.Steps()})
		}
		return map[string]any{"presets": out, "default": p.preset.String()}, nil
	}

	p.tool(srv, tool, endpoint, kit.DecodeArgs[struct{}]())
}

func (p *Pipeline) resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path is required", ErrInvalidOptions)
	}
	return horosafe.SafePath(p.cfg.FileRoot, path)
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	m, err := f.Read(buf)
	if m == 0 && err != nil {
		return nil, err
	}
	return buf[:m], nil
}
