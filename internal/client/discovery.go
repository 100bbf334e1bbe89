package client

import (
	"context"
	"fmt"
	"sort"

	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

// ValidateTools checks if required tools are available on the server
func ValidateTools(available []types.Tool, required []string) error {
	toolMap := make(map[string]bool)
	for _, tool := range available {
		toolMap[tool.Name] = true
	}

	var missing []string
	for _, req := range required {
		if !toolMap[req] {
			missing = append(missing, req)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required tools: %v", missing)
	}
	return nil
}

// RequiredTools returns the tools a server must expose: the declared
// capabilities plus every routed tool, sorted and deduplicated.
func RequiredTools(config types.ServerConfig) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, tool := range config.Capabilities.Tools {
		add(tool)
	}
	for _, tool := range config.Routes {
		add(tool)
	}
	sort.Strings(out)
	return out
}

// CreateClient creates an MCP client from server configuration
func CreateClient(config types.ServerConfig) (MCPClient, error) {
	switch config.Transport {
	case "stdio":
		if len(config.Command) == 0 {
			return nil, fmt.Errorf("command required for stdio transport")
		}
	case "http":
		if config.URL == "" {
			return nil, fmt.Errorf("url required for http transport")
		}
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", config.Transport)
	}
	return NewClient(NewMark3LabsTransport(config)), nil
}

// ConnectServer creates, connects and initializes a client, then checks that
// the server exposes every required tool.
func ConnectServer(ctx context.Context, config types.ServerConfig) (MCPClient, error) {
	c, err := CreateClient(config)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", config.Name, err)
	}
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("server %s: failed to connect: %w", config.Name, err)
	}
	if err := c.Initialize(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("server %s: failed to initialize: %w", config.Name, err)
	}

	required := RequiredTools(config)
	if len(required) == 0 {
		return c, nil
	}
	tools, err := c.ListTools(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("server %s: failed to list tools: %w", config.Name, err)
	}
	if err := ValidateTools(tools, required); err != nil {
		c.Close()
		return nil, fmt.Errorf("server %s: %w", config.Name, err)
	}
	return c, nil
}
