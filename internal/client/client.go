package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

const (
	protocolVersion = "2025-03-26"
	clientName      = "manifestc"
	clientVersion   = "1.0.0"
)

// MCP methods the dispatcher uses.
const (
	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodToolsList   = "tools/list"
	methodToolsCall   = "tools/call"
)

// MCPClient is the view of a generation backend the dispatcher needs.
type MCPClient interface {
	Connect(ctx context.Context) error
	// Initialize performs the MCP handshake and records the server identity.
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]types.Tool, error)
	// CallTool invokes a tool. A tool-reported failure returns both the
	// result and a *ToolError.
	CallTool(ctx context.Context, name string, arguments map[string]any) (*types.ToolCallResult, error)
	Close() error
	GetServerInfo() (name, version string)
}

// Transport carries JSON-RPC calls to a server.
type Transport interface {
	Start(ctx context.Context) error
	SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error)
	SendNotification(ctx context.Context, method string, params any) error
	Close() error
}

// JSONRPCError is a protocol-level error returned by a server.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// ToolError is a failure reported by the tool itself (isError results), as
// opposed to a transport or protocol failure.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s execution failed: %s", e.Tool, e.Message)
}

// InitializeRequest is the initialize handshake sent to a server.
type InitializeRequest struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ServerInfo     `json:"clientInfo"`
}

// InitializeResponse is the server half of the handshake.
type InitializeResponse struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// ServerCapabilities lists the server features the dispatcher cares about.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerInfo names an MCP implementation, client or server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolsListResponse is the tools/list result.
type ToolsListResponse struct {
	Tools []types.Tool `json:"tools"`
}

// CallToolRequest is the tools/call parameter block.
type CallToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Client implements MCPClient over a Transport.
type Client struct {
	transport Transport
	server    ServerInfo
}

// NewClient creates a client on top of transport.
func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// request sends one JSON-RPC call and decodes its result into T.
func request[T any](ctx context.Context, t Transport, method string, params any) (T, error) {
	var out T
	raw, err := t.SendRequest(ctx, method, params)
	if err != nil {
		return out, fmt.Errorf("%s request failed: %w", method, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	return out, nil
}

func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Start(ctx)
}

func (c *Client) Initialize(ctx context.Context) error {
	hello, err := request[InitializeResponse](ctx, c.transport, methodInitialize, InitializeRequest{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{"roots": map[string]any{"listChanged": false}},
		ClientInfo:      ServerInfo{Name: clientName, Version: clientVersion},
	})
	if err != nil {
		return err
	}
	c.server = hello.ServerInfo

	if err := c.transport.SendNotification(ctx, methodInitialized, nil); err != nil {
		return fmt.Errorf("initialized notification failed: %w", err)
	}
	return nil
}

func (c *Client) ListTools(ctx context.Context) ([]types.Tool, error) {
	resp, err := request[ToolsListResponse](ctx, c.transport, methodToolsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*types.ToolCallResult, error) {
	result, err := request[types.ToolCallResult](ctx, c.transport, methodToolsCall, CallToolRequest{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, err
	}
	if result.IsError {
		msg := "no details"
		if len(result.Content) > 0 && result.Content[0].Text != "" {
			msg = result.Content[0].Text
		}
		return &result, &ToolError{Tool: name, Message: msg}
	}
	return &result, nil
}

func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) GetServerInfo() (name, version string) {
	return c.server.Name, c.server.Version
}
