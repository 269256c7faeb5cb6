package test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/setohima/UnityMCP-VRC/internal/world"
)

func mcpCall(t *testing.T, tr transport.Interface, id int64, method string, params, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := tr.SendRequest(ctx, transport.JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(id),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	if resp.Error != nil {
		t.Fatalf("%s: %s", method, resp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			t.Fatalf("decode %s result: %v", method, err)
		}
	}
}

func initMCP(t *testing.T, url string) transport.Interface {
	t.Helper()
	tr, err := transport.NewStreamableHTTP(url)
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start transport: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })

	params := struct {
		ProtocolVersion string                 `json:"protocolVersion"`
		ClientInfo      mcp.Implementation     `json:"clientInfo"`
		Capabilities    mcp.ClientCapabilities `json:"capabilities"`
	}{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		ClientInfo:      mcp.Implementation{Name: "e2e", Version: e2eVersion},
	}
	var res mcp.InitializeResult
	mcpCall(t, tr, 1, string(mcp.MethodInitialize), params, &res)
	_ = tr.SendNotification(context.Background(), mcp.JSONRPCNotification{
		JSONRPC:      mcp.JSONRPC_VERSION,
		Notification: mcp.Notification{Method: "notifications/initialized"},
	})
	return tr
}

type toolCallResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func TestE2EMCPToolCalls(t *testing.T) {
	_, srv := startServer(t)
	startHost(t, srv, world.NewWorld())
	waitConnected(t, srv, true)

	tr := initMCP(t, srv.URL+"/mcp")

	var tools struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	mcpCall(t, tr, 2, string(mcp.MethodToolsList), nil, &tools)
	if len(tools.Tools) != 7 {
		t.Fatalf("tool count %d", len(tools.Tools))
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"execute_command", "get_editor_state", "get_logs", "take_screenshot"} {
		if !names[want] {
			t.Fatalf("tool %s missing from %v", want, tools.Tools)
		}
	}

	var call toolCallResult
	mcpCall(t, tr, 3, string(mcp.MethodToolsCall), mcp.CallToolParams{
		Name:      "execute_command",
		Arguments: map[string]any{"code": "return 6*7"},
	}, &call)
	if call.IsError {
		t.Fatalf("execute_command errored: %+v", call.Content)
	}
	if len(call.Content) == 0 || call.Content[0].Text != "42" {
		t.Fatalf("content %+v", call.Content)
	}

	var state toolCallResult
	mcpCall(t, tr, 4, string(mcp.MethodToolsCall), mcp.CallToolParams{Name: "get_editor_state"}, &state)
	if state.IsError || len(state.Content) == 0 {
		t.Fatalf("get_editor_state %+v", state)
	}
	var st struct {
		ActiveScene string `json:"activeScene"`
	}
	if err := json.Unmarshal([]byte(state.Content[0].Text), &st); err != nil {
		t.Fatalf("state text: %v", err)
	}
	if st.ActiveScene != "SampleScene" {
		t.Fatalf("scene %q", st.ActiveScene)
	}
}

func TestE2EMCPToolErrorWhenDisconnected(t *testing.T) {
	_, srv := startServer(t)

	tr := initMCP(t, srv.URL+"/mcp")

	var call toolCallResult
	mcpCall(t, tr, 2, string(mcp.MethodToolsCall), mcp.CallToolParams{
		Name:      "execute_command",
		Arguments: map[string]any{"code": "return 1"},
	}, &call)
	if !call.IsError {
		t.Fatal("expected a tool error with no editor attached")
	}
	if len(call.Content) == 0 || !strings.Contains(call.Content[0].Text, "not connected") {
		t.Fatalf("content %+v", call.Content)
	}
}
