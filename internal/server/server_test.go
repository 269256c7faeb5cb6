package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/setohima/UnityMCP-VRC/internal/config"
	"github.com/setohima/UnityMCP-VRC/internal/logbuf"
	"github.com/setohima/UnityMCP-VRC/internal/serverstate"
	"github.com/setohima/UnityMCP-VRC/internal/toolserver"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

func newHTTPServer(t *testing.T, cfg config.ServerConfig, logs logbuf.Store) (*toolserver.Server, *httptest.Server) {
	t.Helper()
	ts := toolserver.New(cfg, "0.0.0-test", logs)
	srv := httptest.NewServer(New(cfg, ts, "0.0.0-test"))
	t.Cleanup(srv.Close)
	return ts, srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	serverstate.UseStore(serverstate.NewMemoryStore())
	serverstate.SetState("ok")

	_, srv := newHTTPServer(t, config.ServerConfig{MCPMode: "off"}, nil)

	var st wire.StatusPayload
	resp := getJSON(t, srv.URL+"/status", &st)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}
	if st.Status != "ok" || st.Version != "0.0.0-test" || st.Connected {
		t.Fatalf("unexpected status payload %+v", st)
	}
	if st.UptimeSeconds < 0 || st.Timestamp.IsZero() {
		t.Fatalf("unexpected uptime or timestamp %+v", st)
	}

	serverstate.StartDrain()
	getJSON(t, srv.URL+"/status", &st)
	if st.Status != "draining" {
		t.Fatalf("expected draining, got %q", st.Status)
	}
}

func TestBridgeThroughRouter(t *testing.T) {
	// The middleware chain must keep Hijack working for the upgrade.
	_, srv := newHTTPServer(t, config.ServerConfig{MCPMode: "off"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/bridge", nil)
	if err != nil {
		t.Fatalf("dial through router: %v", err)
	}
	defer c.CloseNow()

	b, _ := wire.Encode(wire.KindHello, wire.HelloPayload{Version: "test", Timestamp: time.Now()})
	if err := c.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	env, err := wire.Decode(data)
	if err != nil || env.Kind != wire.KindWelcome {
		t.Fatalf("expected welcome, got %s err %v", env.Kind, err)
	}
}

func TestLogsEndpoint(t *testing.T) {
	logs := logbuf.NewMemStore()
	logs.Append(logbuf.Record{Message: "all good", Severity: logbuf.SeverityInfo, Timestamp: time.Now()})
	logs.Append(logbuf.Record{Message: "missing shader", Severity: logbuf.SeverityError, StackTrace: "at Foo", Timestamp: time.Now()})

	_, srv := newHTTPServer(t, config.ServerConfig{MCPMode: "off"}, logs)

	var out []map[string]any
	getJSON(t, srv.URL+"/logs", &out)
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}

	out = nil
	getJSON(t, srv.URL+"/logs?severity=error&fields=message,severity", &out)
	if len(out) != 1 {
		t.Fatalf("expected 1 error record, got %d", len(out))
	}
	if out[0]["message"] != "missing shader" {
		t.Fatalf("unexpected record %v", out[0])
	}
	if _, ok := out[0]["timestamp"]; ok {
		t.Fatalf("projection kept timestamp: %v", out[0])
	}

	resp, err := http.Get(srv.URL + "/logs?since=yesterday")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/logs?count=many")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad count, got %d", resp.StatusCode)
	}
}

func TestMetricsOnMainPort(t *testing.T) {
	_, srv := newHTTPServer(t, config.ServerConfig{MCPMode: "off"}, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "unitymcp_editor_connected") {
		t.Fatal("metrics output missing bridge collectors")
	}
}

func TestMetricsOnSeparatePortNotMounted(t *testing.T) {
	cfg := config.ServerConfig{MCPMode: "off", Port: 8080, MetricsAddr: ":9090"}
	_, srv := newHTTPServer(t, cfg, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when metrics live elsewhere, got %d", resp.StatusCode)
	}
}

func TestMCPMount(t *testing.T) {
	_, srv := newHTTPServer(t, config.ServerConfig{MCPMode: "http"}, nil)

	init := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(init))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "unitymcp") {
		t.Fatalf("initialize response missing server info: %s", body)
	}
}

func TestMCPOff(t *testing.T) {
	_, srv := newHTTPServer(t, config.ServerConfig{MCPMode: "off"}, nil)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with MCP off, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := config.ServerConfig{MCPMode: "off", AllowedOrigins: []string{"http://tools.example"}}
	_, srv := newHTTPServer(t, cfg, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/logs", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Origin", "http://tools.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://tools.example" {
		t.Fatalf("allow origin %q", got)
	}
}
