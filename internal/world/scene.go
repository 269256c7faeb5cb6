package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

// SceneFile is the YAML document a simulator scene loads from.
type SceneFile struct {
	Scene   string        `yaml:"scene"`
	Objects []SceneObject `yaml:"objects"`
	Assets  []SceneAsset  `yaml:"assets"`
}

type SceneObject struct {
	Name       string           `yaml:"name"`
	Active     *bool            `yaml:"active"`
	Transform  *SceneTransform  `yaml:"transform"`
	Components []SceneComponent `yaml:"components"`
	Children   []SceneObject    `yaml:"children"`
}

type SceneTransform struct {
	Position SceneVec3  `yaml:"position"`
	Rotation SceneVec3  `yaml:"rotation"`
	Scale    *SceneVec3 `yaml:"scale"`
}

type SceneVec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type SceneComponent struct {
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties"`
}

type SceneAsset struct {
	Path     string `yaml:"path"`
	Type     string `yaml:"type"`
	Contents string `yaml:"contents"`
}

// LoadSceneFile replaces the current scene with the contents of a YAML
// scene document.
func (w *World) LoadSceneFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc SceneFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("parse scene: %w", err)
	}
	w.LoadScene(doc)
	return nil
}

// LoadScene applies doc: objects replace the current hierarchy when
// present, assets merge into the catalog.
func (w *World) LoadScene(doc SceneFile) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if doc.Scene != "" {
		w.sceneName = doc.Scene
	}
	if len(doc.Objects) > 0 {
		w.roots = nil
		for _, so := range doc.Objects {
			w.roots = append(w.roots, buildObject(so, nil))
		}
		w.selection = nil
	}
	for _, sa := range doc.Assets {
		if sa.Path == "" {
			continue
		}
		typ := sa.Type
		if typ == "" {
			typ = assetTypeFor(sa.Path)
		}
		w.assets[sa.Path] = &Asset{GUID: newGUID(), Path: sa.Path, Type: typ, Contents: sa.Contents}
	}
}

func buildObject(so SceneObject, parent *GameObject) *GameObject {
	o := &GameObject{Name: so.Name, Active: true, Transform: defaultTransform(wire.Vec3{}), parent: parent}
	if so.Active != nil {
		o.Active = *so.Active
	}
	if so.Transform != nil {
		o.Transform = wire.Transform{
			Position: vec3Of(so.Transform.Position),
			Rotation: vec3Of(so.Transform.Rotation),
			Scale:    wire.Vec3{X: 1, Y: 1, Z: 1},
		}
		if so.Transform.Scale != nil {
			o.Transform.Scale = vec3Of(*so.Transform.Scale)
		}
	}
	for _, sc := range so.Components {
		o.Components = append(o.Components, Component{Type: sc.Type, Properties: sc.Properties})
	}
	for _, child := range so.Children {
		o.Children = append(o.Children, buildObject(child, o))
	}
	return o
}

func vec3Of(v SceneVec3) wire.Vec3 {
	return wire.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}
