// Package mcptools exposes the bridge command API as MCP tools. Each tool
// maps onto one command kind, plus get_logs over the relayed log buffer.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/setohima/UnityMCP-VRC/internal/logbuf"
	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

// Commander is the slice of the tool server the tools need. Implemented
// by toolserver.Server.
type Commander interface {
	ExecuteCommand(ctx context.Context, code string) (wire.CommandResult, error)
	GetState(ctx context.Context) (wire.EditorState, error)
	GetObjectDetails(ctx context.Context, objectName string) (wire.ObjectDetails, error)
	TakeScreenshot(ctx context.Context, req wire.TakeScreenshotPayload) (wire.Screenshot, error)
	ManipulateScene(ctx context.Context, req wire.ManipulateScenePayload) (wire.SceneManipulationResult, error)
	ManageAssets(ctx context.Context, req wire.ManageAssetsPayload) (wire.AssetManagementResult, error)
	GetLogs(f logbuf.Filter) ([]logbuf.Record, error)
}

// NewServer builds the MCP server with every bridge tool registered.
func NewServer(c Commander, version string) *server.MCPServer {
	s := server.NewMCPServer("unitymcp", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	Register(s, c)
	return s
}

// Register adds the bridge tools to an existing MCP server.
func Register(s *server.MCPServer, c Commander) {
	s.AddTool(executeCommandTool(), handleExecuteCommand(c))
	s.AddTool(getEditorStateTool(), handleGetEditorState(c))
	s.AddTool(getObjectDetailsTool(), handleGetObjectDetails(c))
	s.AddTool(takeScreenshotTool(), handleTakeScreenshot(c))
	s.AddTool(manipulateSceneTool(), handleManipulateScene(c))
	s.AddTool(manageAssetsTool(), handleManageAssets(c))
	s.AddTool(getLogsTool(), handleGetLogs(c))
}

// toolError renders a bridge failure as a tool error with text the caller
// can act on instead of a transport trace.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, wire.ErrNotConnected):
		return mcp.NewToolResultError("editor is not connected to the bridge")
	case errors.Is(err, wire.ErrTimeout):
		return mcp.NewToolResultError("editor did not reply in time; it may be compiling or busy")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func executeCommandTool() mcp.Tool {
	return mcp.NewTool("execute_command",
		mcp.WithDescription("Execute code inside the connected editor and return its captured output."),
		mcp.WithString("code", mcp.Required(),
			mcp.Description("Source code for the editor to run. Printed output and return values are captured.")),
	)
}

func handleExecuteCommand(c Commander) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := c.ExecuteCommand(ctx, code)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(res.Output), nil
	}
}

func getEditorStateTool() mcp.Tool {
	return mcp.NewTool("get_editor_state",
		mcp.WithDescription("Fetch the editor state: active scene, play and compile flags, scene hierarchy and selection."),
	)
}

func handleGetEditorState(c Commander) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := c.GetState(ctx)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(st)
	}
}

func getObjectDetailsTool() mcp.Tool {
	return mcp.NewTool("get_object_details",
		mcp.WithDescription("Inspect one scene object: transform, components with properties, children."),
		mcp.WithString("objectName", mcp.Required(),
			mcp.Description("Object name or full hierarchy path such as /Avatar/Head.")),
	)
}

func handleGetObjectDetails(c Commander) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("objectName")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		det, err := c.GetObjectDetails(ctx, name)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(det)
	}
}

func takeScreenshotTool() mcp.Tool {
	return mcp.NewTool("take_screenshot",
		mcp.WithDescription("Capture a rendered view of the current scene as a PNG image."),
		mcp.WithNumber("width", mcp.Description("Image width in pixels; the editor default applies when omitted.")),
		mcp.WithNumber("height", mcp.Description("Image height in pixels; the editor default applies when omitted.")),
		mcp.WithString("path", mcp.Description("Optional file name for the editor to also save the capture under.")),
	)
}

func handleTakeScreenshot(c Commander) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		shot, err := c.TakeScreenshot(ctx, wire.TakeScreenshotPayload{
			Width:  req.GetInt("width", 0),
			Height: req.GetInt("height", 0),
			Path:   req.GetString("path", ""),
		})
		if err != nil {
			return toolError(err), nil
		}
		text := fmt.Sprintf("screenshot %dx%d", shot.Width, shot.Height)
		if shot.Path != "" {
			text += " saved to " + shot.Path
		}
		return mcp.NewToolResultImage(text, shot.Data, "image/png"), nil
	}
}

func manipulateSceneTool() mcp.Tool {
	return mcp.NewTool("manipulate_scene",
		mcp.WithDescription("Create, modify, delete, reparent or duplicate a scene object."),
		mcp.WithString("action", mcp.Required(),
			mcp.Description("One of create, modify, delete, parent, duplicate."),
			mcp.Enum("create", "modify", "delete", "parent", "duplicate")),
		mcp.WithString("name", mcp.Required(),
			mcp.Description("Target object name or hierarchy path. For create, the name of the new object.")),
		mcp.WithObject("details",
			mcp.Description("Action details: parent, newName, active, transform {position,rotation,scale}, components, properties.")),
	)
}

func handleManipulateScene(c Commander) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args wire.ManipulateScenePayload
		if err := req.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := c.ManipulateScene(ctx, args)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(res)
	}
}

func manageAssetsTool() mcp.Tool {
	return mcp.NewTool("manage_assets",
		mcp.WithDescription("List, inspect, create, delete or refresh project assets."),
		mcp.WithString("action", mcp.Required(),
			mcp.Description("One of list, info, create, delete, refresh."),
			mcp.Enum("list", "info", "create", "delete", "refresh")),
		mcp.WithObject("filter",
			mcp.Description("Asset selector: path, type, query substring; create also reads contents.")),
	)
}

func handleManageAssets(c Commander) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args wire.ManageAssetsPayload
		if err := req.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := c.ManageAssets(ctx, args)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(res)
	}
}

func getLogsTool() mcp.Tool {
	return mcp.NewTool("get_logs",
		mcp.WithDescription("Query log records relayed from the editor. Works whether or not an editor is connected right now."),
		mcp.WithString("severity",
			mcp.Description("Comma separated severities to keep: trace, debug, info, warn, error, fatal.")),
		mcp.WithString("contains",
			mcp.Description("Substring that must appear in the message or stack trace.")),
		mcp.WithString("since", mcp.Description("RFC3339 lower bound on the record timestamp.")),
		mcp.WithString("until", mcp.Description("RFC3339 upper bound on the record timestamp.")),
		mcp.WithNumber("count", mcp.Description("Most recent N matches to return; default 100.")),
		mcp.WithString("fields",
			mcp.Description("Comma separated projection over message, stackTrace, severity, timestamp.")),
	)
}

func handleGetLogs(c Commander) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f := logbuf.Filter{
			Contains: req.GetString("contains", ""),
			Count:    req.GetInt("count", 0),
			Fields:   splitList(req.GetString("fields", "")),
		}
		for _, s := range splitList(req.GetString("severity", "")) {
			f.Severities = append(f.Severities, logbuf.ParseSeverity(s))
		}
		if v := req.GetString("since", ""); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return mcp.NewToolResultError("since: " + err.Error()), nil
			}
			f.Since = ts
		}
		if v := req.GetString("until", ""); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return mcp.NewToolResultError("until: " + err.Error()), nil
			}
			f.Until = ts
		}
		recs, err := c.GetLogs(f)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(logbuf.Project(recs, f.Fields))
	}
}
