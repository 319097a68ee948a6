package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk_client "github.com/mark3labs/mcp-go/client"
	sdk_mcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/taskcouncil/engine/internal/tool"
)

// MCPCallTool invokes a single tool on one of the MCP servers named in
// mcp.json. Unlike the long-lived agent session the original runtime built
// this SDK binding for, a pipeline step is one-shot: MCPCallTool connects,
// makes one call, and closes the connection rather than caching a
// per-server client across steps.
type MCPCallTool struct {
	mcpConfigPath string
}

func NewMCPCallTool(mcpConfigPath string) *MCPCallTool {
	return &MCPCallTool{mcpConfigPath: mcpConfigPath}
}

func (t *MCPCallTool) Name() string { return "mcp_call_tool" }

func (t *MCPCallTool) Description() string {
	return "连接 mcp.json 中配置的一个 MCP server，调用其暴露的某个工具并返回文本结果。server 参数对应 mcp.json 中的 server 名称。"
}

func (t *MCPCallTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "server", Type: "string", Description: "mcp.json 中配置的 server 名称", Required: true},
		tool.SchemaParam{Name: "tool", Type: "string", Description: "该 server 暴露的工具名称", Required: true},
		tool.SchemaParam{Name: "arguments", Type: "string", Description: "传给该工具的 JSON 对象参数（字符串形式的 JSON，留空表示无参数）"},
	)
}

func (t *MCPCallTool) Init(_ context.Context) error { return nil }
func (t *MCPCallTool) Close() error                 { return nil }

type mcpCallArgs struct {
	Server    string `json:"server"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	TaskID    string `json:"task_id,omitempty"`
}

func (t *MCPCallTool) Execute(ctx context.Context, raw json.RawMessage) (tool.ToolResult, error) {
	var a mcpCallArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("参数解析失败: %v", err)}, nil
	}
	if a.Server == "" || a.Tool == "" {
		return tool.ToolResult{Error: "server 和 tool 均为必填参数"}, nil
	}

	cfg, err := readMCPConfig(t.mcpConfigPath)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("读取 mcp.json 失败: %v", err)}, nil
	}
	entry, ok := cfg.MCPServers[a.Server]
	if !ok {
		return tool.ToolResult{Error: fmt.Sprintf("mcp.json 中未找到 server %q", a.Server)}, nil
	}

	args := map[string]any{}
	if strings.TrimSpace(a.Arguments) != "" {
		if err := json.Unmarshal([]byte(a.Arguments), &args); err != nil {
			return tool.ToolResult{Error: fmt.Sprintf("arguments 不是合法 JSON: %v", err)}, nil
		}
	}
	if a.TaskID != "" {
		args["_task_id"] = a.TaskID
	}

	client, err := connectMCPEntry(ctx, a.Server, entry)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}
	defer client.Close()

	req := sdk_mcp.CallToolRequest{}
	req.Params.Name = a.Tool
	req.Params.Arguments = args

	result, err := client.CallTool(ctx, req)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("调用 %s.%s 失败: %v", a.Server, a.Tool, err)}, nil
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(sdk_mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return tool.ToolResult{Error: fmt.Sprintf("%s.%s 返回错误: %s", a.Server, a.Tool, text)}, nil
	}
	return tool.ToolResult{Output: text}, nil
}

// connectMCPEntry dials and initializes the MCP transport named by entry,
// mirroring the original runtime's internal/mcp.Client.Connect handshake.
func connectMCPEntry(ctx context.Context, name string, entry mcpServerEntry) (sdk_client.MCPClient, error) {
	var inner sdk_client.MCPClient

	switch entry.Transport {
	case "stdio":
		cli, err := sdk_client.NewStdioMCPClient(entry.Command, entry.Env, entry.Args...)
		if err != nil {
			return nil, fmt.Errorf("启动 stdio server %q 失败: %w", name, err)
		}
		inner = cli
	case "sse":
		cli, err := sdk_client.NewSSEMCPClient(entry.URL)
		if err != nil {
			return nil, fmt.Errorf("创建 SSE client %q 失败: %w", name, err)
		}
		if err := cli.Start(ctx); err != nil {
			return nil, fmt.Errorf("启动 SSE client %q 失败: %w", name, err)
		}
		inner = cli
	default:
		return nil, fmt.Errorf("未知的 transport %q（server %q）", entry.Transport, name)
	}

	_, err := inner.Initialize(ctx, sdk_mcp.InitializeRequest{
		Params: sdk_mcp.InitializeParams{
			ProtocolVersion: sdk_mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: sdk_mcp.Implementation{
				Name:    "taskcouncil-engine",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("初始化 server %q 失败: %w", name, err)
	}
	return inner, nil
}
