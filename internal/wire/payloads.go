package wire

import "time"

type HelloPayload struct {
	Version   string    `json:"version"`
	Platform  string    `json:"platform,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type WelcomePayload struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

type PingPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

type ExecuteCommandPayload struct {
	Code string `json:"code"`
}

type CommandResult struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// EditorState is the snapshot returned for getState.
type EditorState struct {
	ActiveScene      string      `json:"activeScene"`
	IsPlaying        bool        `json:"isPlaying"`
	IsPaused         bool        `json:"isPaused"`
	IsCompiling      bool        `json:"isCompiling"`
	TimeSinceStartup float64     `json:"timeSinceStartup"`
	ObjectCount      int         `json:"objectCount"`
	Selection        []string    `json:"selection,omitempty"`
	Hierarchy        []StateNode `json:"hierarchy,omitempty"`
	Error            string      `json:"error,omitempty"`
}

type StateNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Active   bool        `json:"active"`
	Children []StateNode `json:"children,omitempty"`
}

type GetObjectDetailsPayload struct {
	ObjectName string `json:"objectName"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Transform struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
	Scale    Vec3 `json:"scale"`
}

type ComponentInfo struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

type ObjectDetails struct {
	Name       string          `json:"name"`
	Path       string          `json:"path"`
	Active     bool            `json:"active"`
	Transform  Transform       `json:"transform"`
	Components []ComponentInfo `json:"components,omitempty"`
	Children   []string        `json:"children,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// TakeScreenshotPayload may be empty; the host falls back to its default
// viewport size and does not write a file unless Path is set.
type TakeScreenshotPayload struct {
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Screenshot carries the captured image as base64 PNG. Path is set when
// the host also wrote the image to disk.
type Screenshot struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   string `json:"data,omitempty"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty"`
}

type ManipulateScenePayload struct {
	Action  string            `json:"action"`
	Name    string            `json:"name"`
	Details ManipulateDetails `json:"details"`
}

// ManipulateDetails carries the action-specific arguments. Each action
// reads only the fields it needs and ignores the rest.
type ManipulateDetails struct {
	Parent     string         `json:"parent,omitempty"`
	NewName    string         `json:"newName,omitempty"`
	Transform  *Transform     `json:"transform,omitempty"`
	Components []string       `json:"components,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Active     *bool          `json:"active,omitempty"`
}

type SceneManipulationResult struct {
	Action string `json:"action"`
	Name   string `json:"name,omitempty"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty"`
}

type ManageAssetsPayload struct {
	Action string      `json:"action"`
	Filter AssetFilter `json:"filter"`
}

// AssetFilter selects the assets an action applies to. Create reads Path,
// Type and Contents; list and info match on Path, Type and Query.
type AssetFilter struct {
	Path     string `json:"path,omitempty"`
	Type     string `json:"type,omitempty"`
	Query    string `json:"query,omitempty"`
	Contents string `json:"contents,omitempty"`
}

type AssetInfo struct {
	GUID      string `json:"guid"`
	Path      string `json:"path"`
	Type      string `json:"type"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
}

type AssetManagementResult struct {
	Action  string      `json:"action"`
	Assets  []AssetInfo `json:"assets,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type LogPayload struct {
	Message    string    `json:"message"`
	StackTrace string    `json:"stackTrace,omitempty"`
	Severity   string    `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusPayload is the side channel health document served over HTTP on
// the tool server and parsed by the host gate before dialing.
type StatusPayload struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	UptimeSeconds float64   `json:"uptimeSeconds"`
	Connected     bool      `json:"connected"`
	Timestamp     time.Time `json:"timestamp"`
}
