package world

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

type Asset struct {
	GUID     string
	Path     string
	Type     string
	Contents string
}

// newGUID mints an editor style 32 hex character asset guid.
func newGUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (w *World) seedDefaultAssets() {
	for _, a := range []Asset{
		{Path: "Assets/Scenes/SampleScene.unity", Type: "Scene"},
		{Path: "Assets/Materials/Default.mat", Type: "Material"},
		{Path: "Assets/Scripts/AvatarDescriptor.cs", Type: "Script", Contents: "// placeholder"},
	} {
		a.GUID = newGUID()
		cp := a
		w.assets[a.Path] = &cp
	}
}

// ManageAssets applies one asset catalog action and shapes the reply.
func (w *World) ManageAssets(req wire.ManageAssetsPayload) wire.AssetManagementResult {
	res := wire.AssetManagementResult{Action: req.Action}
	var err error
	switch req.Action {
	case "list":
		res.Assets = w.listAssets(req.Filter)
		res.Message = fmt.Sprintf("%d assets", len(res.Assets))
	case "info":
		res.Assets, err = w.assetInfo(req.Filter.Path)
	case "create":
		res.Assets, err = w.createAsset(req.Filter)
	case "delete":
		err = w.deleteAsset(req.Filter.Path)
	case "refresh":
		res.Message = w.refreshAssets()
	default:
		err = fmt.Errorf("unknown action %q", req.Action)
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (w *World) listAssets(f wire.AssetFilter) []wire.AssetInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := []wire.AssetInfo{}
	for _, a := range w.assets {
		if f.Path != "" && !strings.HasPrefix(a.Path, f.Path) {
			continue
		}
		if f.Type != "" && !strings.EqualFold(a.Type, f.Type) {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(a.Path), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, assetInfoOf(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (w *World) assetInfo(p string) ([]wire.AssetInfo, error) {
	if p == "" {
		return nil, fmt.Errorf("info: path is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.assets[p]
	if !ok {
		return nil, fmt.Errorf("info: no asset at %q", p)
	}
	return []wire.AssetInfo{assetInfoOf(a)}, nil
}

func (w *World) createAsset(f wire.AssetFilter) ([]wire.AssetInfo, error) {
	if f.Path == "" {
		return nil, fmt.Errorf("create: path is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.assets[f.Path]; exists {
		return nil, fmt.Errorf("create: asset already exists at %q", f.Path)
	}
	typ := f.Type
	if typ == "" {
		typ = assetTypeFor(f.Path)
	}
	a := &Asset{GUID: newGUID(), Path: f.Path, Type: typ, Contents: f.Contents}
	w.assets[f.Path] = a
	return []wire.AssetInfo{assetInfoOf(a)}, nil
}

func (w *World) deleteAsset(p string) error {
	if p == "" {
		return fmt.Errorf("delete: path is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.assets[p]; !ok {
		return fmt.Errorf("delete: no asset at %q", p)
	}
	delete(w.assets, p)
	return nil
}

func (w *World) refreshAssets() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.assetRefresh++
	return fmt.Sprintf("asset database refreshed (%d assets)", len(w.assets))
}

func assetInfoOf(a *Asset) wire.AssetInfo {
	return wire.AssetInfo{GUID: a.GUID, Path: a.Path, Type: a.Type, SizeBytes: int64(len(a.Contents))}
}

func assetTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".cs":
		return "Script"
	case ".mat":
		return "Material"
	case ".unity":
		return "Scene"
	case ".prefab":
		return "Prefab"
	case ".png", ".jpg", ".tga":
		return "Texture"
	case ".fbx":
		return "Model"
	case ".anim":
		return "Animation"
	default:
		return "Asset"
	}
}
