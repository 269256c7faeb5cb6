// Package world is the in-memory stand-in for a live editor: a scene
// hierarchy, an asset catalog and play/compile state. The bridge treats
// it as opaque; only the privileged dispatcher mutates it.
package world

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

type Component struct {
	Type       string
	Properties map[string]any
}

type GameObject struct {
	Name       string
	Active     bool
	Transform  wire.Transform
	Components []Component
	Children   []*GameObject
	parent     *GameObject
}

// World holds the whole simulated editor. Methods take the lock so status
// listeners can snapshot concurrently with privileged mutations.
type World struct {
	mu            sync.Mutex
	sceneName     string
	roots         []*GameObject
	selection     []string
	playing       bool
	paused        bool
	compileUntil  time.Time
	startedAt     time.Time
	assets        map[string]*Asset
	assetRefresh  int
	screenshotDir string
}

// NewWorld builds an empty scene with the editor's default objects.
func NewWorld() *World {
	w := &World{
		sceneName: "SampleScene",
		startedAt: time.Now(),
		assets:    map[string]*Asset{},
	}
	w.roots = []*GameObject{
		{Name: "Main Camera", Active: true, Transform: defaultTransform(wire.Vec3{Y: 1, Z: -10}),
			Components: []Component{{Type: "Camera", Properties: map[string]any{"fieldOfView": 60.0}}, {Type: "AudioListener"}}},
		{Name: "Directional Light", Active: true, Transform: defaultTransform(wire.Vec3{Y: 3}),
			Components: []Component{{Type: "Light", Properties: map[string]any{"type": "Directional", "intensity": 1.0}}}},
	}
	w.seedDefaultAssets()
	return w
}

func defaultTransform(pos wire.Vec3) wire.Transform {
	return wire.Transform{Position: pos, Scale: wire.Vec3{X: 1, Y: 1, Z: 1}}
}

// SetScreenshotDir sets where screenshots are written when a request asks
// for a file.
func (w *World) SetScreenshotDir(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.screenshotDir = dir
}

// State snapshots the editor for a getState reply.
func (w *World) State() wire.EditorState {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := wire.EditorState{
		ActiveScene:      w.sceneName,
		IsPlaying:        w.playing,
		IsPaused:         w.paused,
		IsCompiling:      w.compilingLocked(),
		TimeSinceStartup: time.Since(w.startedAt).Seconds(),
		ObjectCount:      w.countLocked(),
		Selection:        append([]string(nil), w.selection...),
	}
	for _, root := range w.roots {
		st.Hierarchy = append(st.Hierarchy, nodeOf(root, "/"+root.Name))
	}
	return st
}

func nodeOf(o *GameObject, path string) wire.StateNode {
	n := wire.StateNode{Name: o.Name, Path: path, Active: o.Active}
	for _, c := range o.Children {
		n.Children = append(n.Children, nodeOf(c, path+"/"+c.Name))
	}
	return n
}

// ObjectDetails answers getObjectDetails. A missing object reports an
// error payload instead of failing the connection.
func (w *World) ObjectDetails(name string) wire.ObjectDetails {
	w.mu.Lock()
	defer w.mu.Unlock()
	o := w.findLocked(name)
	if o == nil {
		return wire.ObjectDetails{Name: name, Error: fmt.Sprintf("no object named %q", name)}
	}
	d := wire.ObjectDetails{
		Name:      o.Name,
		Path:      w.pathLocked(o),
		Active:    o.Active,
		Transform: o.Transform,
	}
	for _, c := range o.Components {
		d.Components = append(d.Components, wire.ComponentInfo{Type: c.Type, Properties: copyProps(c.Properties)})
	}
	for _, c := range o.Children {
		d.Children = append(d.Children, c.Name)
	}
	return d
}

// Select replaces the current selection, keeping only names that resolve.
func (w *World) Select(names []string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	sel := make([]string, 0, len(names))
	for _, n := range names {
		if o := w.findLocked(n); o != nil {
			sel = append(sel, w.pathLocked(o))
		}
	}
	w.selection = sel
	return append([]string(nil), sel...)
}

// Play starts play mode; Pause toggles pause while playing; Stop leaves
// play mode.
func (w *World) Play() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.playing = true
	w.paused = false
}

func (w *World) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.playing {
		w.paused = !w.paused
	}
}

func (w *World) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.playing = false
	w.paused = false
}

// StartCompile simulates a script compilation that keeps the privileged
// context busy for d.
func (w *World) StartCompile(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(w.compileUntil) {
		w.compileUntil = until
	}
}

func (w *World) Compiling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.compilingLocked()
}

func (w *World) compilingLocked() bool {
	return time.Now().Before(w.compileUntil)
}

// WaitReady blocks until the editor stops compiling, the way privileged
// work defers while scripts rebuild.
func (w *World) WaitReady(ctx context.Context) error {
	for {
		w.mu.Lock()
		until := w.compileUntil
		w.mu.Unlock()
		if !time.Now().Before(until) {
			return nil
		}
		t := time.NewTimer(time.Until(until))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// ObjectCount reports the total number of objects in the scene.
func (w *World) ObjectCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.countLocked()
}

func (w *World) countLocked() int {
	n := 0
	var walk func(*GameObject)
	walk = func(o *GameObject) {
		n++
		for _, c := range o.Children {
			walk(c)
		}
	}
	for _, r := range w.roots {
		walk(r)
	}
	return n
}

// findLocked resolves a name or a /full/path to an object. Plain names
// match depth first.
func (w *World) findLocked(name string) *GameObject {
	if name == "" {
		return nil
	}
	if strings.HasPrefix(name, "/") {
		return w.byPathLocked(name)
	}
	var found *GameObject
	var walk func(*GameObject)
	walk = func(o *GameObject) {
		if found != nil {
			return
		}
		if o.Name == name {
			found = o
			return
		}
		for _, c := range o.Children {
			walk(c)
		}
	}
	for _, r := range w.roots {
		if found != nil {
			break
		}
		walk(r)
	}
	return found
}

func (w *World) byPathLocked(path string) *GameObject {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil
	}
	var cur *GameObject
	siblings := w.roots
	for _, part := range parts {
		cur = nil
		for _, o := range siblings {
			if o.Name == part {
				cur = o
				break
			}
		}
		if cur == nil {
			return nil
		}
		siblings = cur.Children
	}
	return cur
}

func (w *World) pathLocked(o *GameObject) string {
	parts := []string{}
	for cur := o; cur != nil; cur = cur.parent {
		parts = append([]string{cur.Name}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

func copyProps(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
