// Package wire defines the JSON envelope exchanged over the bridge socket
// and the payload types for every message kind. The kind strings and field
// names are the wire contract with the editor plugin and must not change.
package wire

import (
	"encoding/json"
	"fmt"
)

const (
	KindHello                   = "hello"
	KindWelcome                 = "welcome"
	KindPing                    = "ping"
	KindPong                    = "pong"
	KindExecuteCommand          = "executeCommand"
	KindCommandResult           = "commandResult"
	KindGetState                = "getState"
	KindState                   = "state"
	KindGetObjectDetails        = "getObjectDetails"
	KindObjectDetails           = "objectDetails"
	KindTakeScreenshot          = "takeScreenshot"
	KindScreenshot              = "screenshot"
	KindManipulateScene         = "manipulateScene"
	KindSceneManipulationResult = "sceneManipulationResult"
	KindManageAssets            = "manageAssets"
	KindAssetManagementResult   = "assetManagementResult"
	KindLog                     = "log"
)

var replyKinds = map[string]string{
	KindHello:            KindWelcome,
	KindPing:             KindPong,
	KindExecuteCommand:   KindCommandResult,
	KindGetState:         KindState,
	KindGetObjectDetails: KindObjectDetails,
	KindTakeScreenshot:   KindScreenshot,
	KindManipulateScene:  KindSceneManipulationResult,
	KindManageAssets:     KindAssetManagementResult,
}

// ReplyKind returns the kind a request of the given kind resolves with.
// The second return is false for fire-and-forget kinds such as log.
func ReplyKind(request string) (string, bool) {
	k, ok := replyKinds[request]
	return k, ok
}

// Envelope is the outer frame of every bridge message. Payload stays raw
// until a handler that knows the kind decodes it.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals an envelope around payload. A nil payload produces an
// envelope with the payload field omitted.
func Encode(kind string, payload any) ([]byte, error) {
	env := Envelope{Kind: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses a raw frame. Frames that are not JSON objects or carry no
// kind are rejected; the payload is not validated here.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing kind")
	}
	return env, nil
}

// ReplyError reports the error string when a reply payload carries one.
// Any reply payload may signal failure this way regardless of its kind.
func ReplyError(payload json.RawMessage) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", false
	}
	return probe.Error, probe.Error != ""
}
