package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

// Mark3LabsTransport wraps the mark3labs/mcp-go client to implement our
// Transport interface over Streamable HTTP or a stdio subprocess.
type Mark3LabsTransport struct {
	config      types.ServerConfig
	timeout     time.Duration
	mcpClient   *client.Client
	initialized bool
}

// NewMark3LabsTransport creates a transport for the given server.
func NewMark3LabsTransport(config types.ServerConfig) *Mark3LabsTransport {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = types.DefaultServerTimeout
	}
	return &Mark3LabsTransport{config: config, timeout: timeout}
}

func (t *Mark3LabsTransport) newTransport() (transport.Interface, error) {
	switch t.config.Transport {
	case "stdio":
		if len(t.config.Command) == 0 {
			return nil, fmt.Errorf("command required for stdio transport")
		}
		return transport.NewStdio(t.config.Command[0], t.config.Env, t.config.Command[1:]...), nil
	case "http", "":
		if t.config.URL == "" {
			return nil, fmt.Errorf("url required for http transport")
		}
		return transport.NewStreamableHTTP(
			t.config.URL,
			transport.WithHTTPHeaders(t.config.Headers),
			transport.WithHTTPTimeout(t.timeout),
		)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", t.config.Transport)
	}
}

// Start creates the underlying transport and starts the client. For stdio
// servers this launches the subprocess.
func (t *Mark3LabsTransport) Start(ctx context.Context) error {
	trans, err := t.newTransport()
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	t.mcpClient = client.NewClient(trans)
	if err := t.mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}
	return nil
}

// SendRequest maps our JSON-RPC methods onto the typed mcp-go client.
func (t *Mark3LabsTransport) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if t.mcpClient == nil {
		return nil, fmt.Errorf("transport not started")
	}
	if method != methodInitialize && !t.initialized {
		return nil, fmt.Errorf("client not initialized")
	}

	switch method {
	case methodInitialize:
		return t.initialize(ctx, params)
	case methodToolsList:
		return t.listTools(ctx)
	case methodToolsCall:
		return t.callTool(ctx, params)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

func (t *Mark3LabsTransport) initialize(ctx context.Context, params any) (json.RawMessage, error) {
	initParams, ok := params.(InitializeRequest)
	if !ok {
		return nil, fmt.Errorf("invalid initialize params type")
	}

	initResult, err := t.mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: initParams.ProtocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    initParams.ClientInfo.Name,
				Version: initParams.ClientInfo.Version,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}
	t.initialized = true

	response := InitializeResponse{
		ProtocolVersion: initResult.ProtocolVersion,
		ServerInfo: ServerInfo{
			Name:    initResult.ServerInfo.Name,
			Version: initResult.ServerInfo.Version,
		},
	}
	if initResult.Capabilities.Tools != nil {
		response.Capabilities.Tools = &ToolsCapability{ListChanged: initResult.Capabilities.Tools.ListChanged}
	}
	return json.Marshal(response)
}

func (t *Mark3LabsTransport) listTools(ctx context.Context) (json.RawMessage, error) {
	toolsResult, err := t.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools failed: %w", err)
	}

	tools := make([]types.Tool, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		var schema map[string]any
		// ToolInputSchema is a struct; round-trip it into a generic map.
		if schemaBytes, err := json.Marshal(tool.InputSchema); err == nil {
			_ = json.Unmarshal(schemaBytes, &schema)
		}
		tools = append(tools, types.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return json.Marshal(ToolsListResponse{Tools: tools})
}

func (t *Mark3LabsTransport) callTool(ctx context.Context, params any) (json.RawMessage, error) {
	callParams, ok := params.(CallToolRequest)
	if !ok {
		return nil, fmt.Errorf("invalid tools/call params type")
	}

	result, err := t.mcpClient.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      callParams.Name,
			Arguments: callParams.Arguments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("call tool failed: %w", err)
	}
	return json.Marshal(result)
}

// SendNotification is a no-op: the mcp-go client sends the initialized
// notification itself.
func (t *Mark3LabsTransport) SendNotification(ctx context.Context, method string, params any) error {
	return nil
}

// Close shuts down the transport
func (t *Mark3LabsTransport) Close() error {
	if t.mcpClient != nil {
		return t.mcpClient.Close()
	}
	return nil
}
