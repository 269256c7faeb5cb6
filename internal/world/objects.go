package world

import (
	"fmt"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

// ManipulateScene applies one scene action and shapes the reply. Action
// failures become an error payload; the bridge connection is never at
// stake here.
func (w *World) ManipulateScene(req wire.ManipulateScenePayload) wire.SceneManipulationResult {
	res := wire.SceneManipulationResult{Action: req.Action, Name: req.Name}
	var path string
	var err error
	switch req.Action {
	case "create":
		path, err = w.CreateObject(req.Name, req.Details)
	case "delete":
		err = w.DeleteObject(req.Name)
	case "modify":
		path, err = w.ModifyObject(req.Name, req.Details)
	case "parent":
		path, err = w.ReparentObject(req.Name, req.Details.Parent)
	case "duplicate":
		path, err = w.DuplicateObject(req.Name)
	default:
		err = fmt.Errorf("unknown action %q", req.Action)
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Path = path
	return res
}

// CreateObject adds an object under the named parent, or at the scene
// root when parent is empty.
func (w *World) CreateObject(name string, d wire.ManipulateDetails) (string, error) {
	if name == "" {
		return "", fmt.Errorf("create: name is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	o := &GameObject{Name: name, Active: true, Transform: defaultTransform(wire.Vec3{})}
	if d.Transform != nil {
		o.Transform = *d.Transform
	}
	if d.Active != nil {
		o.Active = *d.Active
	}
	for _, t := range d.Components {
		o.Components = append(o.Components, Component{Type: t})
	}
	if err := applyProperties(o, d.Properties); err != nil {
		return "", err
	}

	if d.Parent != "" {
		p := w.findLocked(d.Parent)
		if p == nil {
			return "", fmt.Errorf("create: no parent named %q", d.Parent)
		}
		o.parent = p
		p.Children = append(p.Children, o)
	} else {
		w.roots = append(w.roots, o)
	}
	return w.pathLocked(o), nil
}

// DeleteObject removes the named object and its whole subtree.
func (w *World) DeleteObject(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	o := w.findLocked(name)
	if o == nil {
		return fmt.Errorf("delete: no object named %q", name)
	}
	w.detachLocked(o)
	return nil
}

// ModifyObject renames, moves, toggles or reconfigures the named object.
func (w *World) ModifyObject(name string, d wire.ManipulateDetails) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o := w.findLocked(name)
	if o == nil {
		return "", fmt.Errorf("modify: no object named %q", name)
	}
	if d.NewName != "" {
		o.Name = d.NewName
	}
	if d.Transform != nil {
		o.Transform = *d.Transform
	}
	if d.Active != nil {
		o.Active = *d.Active
	}
	for _, t := range d.Components {
		if componentOf(o, t) == nil {
			o.Components = append(o.Components, Component{Type: t})
		}
	}
	if err := applyProperties(o, d.Properties); err != nil {
		return "", err
	}
	return w.pathLocked(o), nil
}

// ReparentObject moves the named object under a new parent, or to the
// scene root when parent is empty.
func (w *World) ReparentObject(name, parent string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o := w.findLocked(name)
	if o == nil {
		return "", fmt.Errorf("parent: no object named %q", name)
	}
	var p *GameObject
	if parent != "" {
		p = w.findLocked(parent)
		if p == nil {
			return "", fmt.Errorf("parent: no object named %q", parent)
		}
		for cur := p; cur != nil; cur = cur.parent {
			if cur == o {
				return "", fmt.Errorf("parent: %q is a descendant of %q", parent, name)
			}
		}
	}
	w.detachLocked(o)
	if p == nil {
		w.roots = append(w.roots, o)
		o.parent = nil
	} else {
		o.parent = p
		p.Children = append(p.Children, o)
	}
	return w.pathLocked(o), nil
}

// DuplicateObject deep copies the named object next to the original
// under a free sibling name.
func (w *World) DuplicateObject(name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o := w.findLocked(name)
	if o == nil {
		return "", fmt.Errorf("duplicate: no object named %q", name)
	}
	cp := deepCopy(o)
	cp.Name = w.uniqueSiblingNameLocked(o)
	cp.parent = o.parent
	if o.parent != nil {
		o.parent.Children = append(o.parent.Children, cp)
	} else {
		w.roots = append(w.roots, cp)
	}
	return w.pathLocked(cp), nil
}

func (w *World) detachLocked(o *GameObject) {
	if o.parent != nil {
		sibs := o.parent.Children
		for i, c := range sibs {
			if c == o {
				o.parent.Children = append(sibs[:i:i], sibs[i+1:]...)
				break
			}
		}
		o.parent = nil
		return
	}
	for i, r := range w.roots {
		if r == o {
			w.roots = append(w.roots[:i:i], w.roots[i+1:]...)
			break
		}
	}
}

func (w *World) uniqueSiblingNameLocked(o *GameObject) string {
	siblings := w.roots
	if o.parent != nil {
		siblings = o.parent.Children
	}
	taken := map[string]bool{}
	for _, s := range siblings {
		taken[s.Name] = true
	}
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s (%d)", o.Name, i)
		if !taken[cand] {
			return cand
		}
	}
}

func deepCopy(o *GameObject) *GameObject {
	cp := &GameObject{Name: o.Name, Active: o.Active, Transform: o.Transform}
	for _, c := range o.Components {
		cp.Components = append(cp.Components, Component{Type: c.Type, Properties: copyProps(c.Properties)})
	}
	for _, child := range o.Children {
		cc := deepCopy(child)
		cc.parent = cp
		cp.Children = append(cp.Children, cc)
	}
	return cp
}

func componentOf(o *GameObject, typ string) *Component {
	for i := range o.Components {
		if o.Components[i].Type == typ {
			return &o.Components[i]
		}
	}
	return nil
}

// applyProperties merges per-component property maps, adding components
// that are not present yet. Keys are component types, values objects.
func applyProperties(o *GameObject, props map[string]any) error {
	for typ, v := range props {
		vals, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("properties for %q must be an object", typ)
		}
		c := componentOf(o, typ)
		if c == nil {
			o.Components = append(o.Components, Component{Type: typ})
			c = &o.Components[len(o.Components)-1]
		}
		if c.Properties == nil {
			c.Properties = map[string]any{}
		}
		for k, val := range vals {
			c.Properties[k] = val
		}
	}
	return nil
}
