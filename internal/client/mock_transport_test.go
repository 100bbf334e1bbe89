package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockTransport is a mock implementation of Transport for testing
type MockTransport struct {
	mu sync.Mutex

	// Behavior configuration
	StartErr         error
	RequestErr       error
	ResponseDelay    time.Duration
	RequestResponses map[string]any // method -> response

	// State tracking
	Started       bool
	Closed        bool
	SentRequests  []MockRequest
	Notifications []string
}

// MockRequest records a request sent through the transport
type MockRequest struct {
	Method string
	Params any
}

func NewMockTransport() *MockTransport {
	return &MockTransport{RequestResponses: make(map[string]any)}
}

func (m *MockTransport) Start(ctx context.Context) error {
	if m.StartErr != nil {
		return m.StartErr
	}
	m.Started = true
	return nil
}

func (m *MockTransport) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	m.mu.Lock()
	m.SentRequests = append(m.SentRequests, MockRequest{Method: method, Params: params})
	resp, ok := m.RequestResponses[method]
	delay, reqErr := m.ResponseDelay, m.RequestErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reqErr != nil {
		return nil, reqErr
	}
	if !ok {
		return json.RawMessage(`{}`), nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mock response: %w", err)
	}
	return data, nil
}

func (m *MockTransport) SendNotification(ctx context.Context, method string, params any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, method)
	return nil
}

func (m *MockTransport) Close() error {
	m.Closed = true
	return nil
}

// SetResponse configures a response for a specific method
func (m *MockTransport) SetResponse(method string, response any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestResponses[method] = response
}

// SetInitialized configures a standard initialize response.
func (m *MockTransport) SetInitialized() {
	m.SetResponse("initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": "test-server", "version": "1.0.0"},
	})
}

// SetToolResult configures the tools/call response.
func (m *MockTransport) SetToolResult(text string, isError bool) {
	m.SetResponse("tools/call", map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": isError,
	})
}

// LastRequest returns the most recent request
func (m *MockTransport) LastRequest() *MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SentRequests) == 0 {
		return nil
	}
	return &m.SentRequests[len(m.SentRequests)-1]
}
