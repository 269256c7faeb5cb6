package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

const sceneDoc = `scene: AvatarTest
objects:
  - name: Stage
    transform:
      position: {x: 0, y: 0, z: 5}
    children:
      - name: Avatar
        components:
          - type: Animator
          - type: AvatarDescriptor
            properties:
              viewPosition: 1.6
      - name: Mirror
        active: false
assets:
  - path: Assets/Scenes/AvatarTest.unity
  - path: Assets/Anims/Wave.anim
    contents: "curves"
`

func TestLoadSceneFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(p, []byte(sceneDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWorld()
	if err := w.LoadSceneFile(p); err != nil {
		t.Fatalf("load: %v", err)
	}

	st := w.State()
	if st.ActiveScene != "AvatarTest" {
		t.Fatalf("scene = %q", st.ActiveScene)
	}
	if len(st.Hierarchy) != 1 || st.Hierarchy[0].Name != "Stage" {
		t.Fatalf("hierarchy = %+v", st.Hierarchy)
	}
	if st.ObjectCount != 3 {
		t.Fatalf("object count = %d", st.ObjectCount)
	}

	d := w.ObjectDetails("Avatar")
	if d.Path != "/Stage/Avatar" {
		t.Fatalf("path = %q", d.Path)
	}
	if len(d.Components) != 2 || d.Components[1].Properties["viewPosition"] != 1.6 {
		t.Fatalf("components = %+v", d.Components)
	}

	if d := w.ObjectDetails("Mirror"); d.Active {
		t.Fatal("active: false ignored")
	}

	res := w.ManageAssets(wire.ManageAssetsPayload{Action: "list", Filter: wire.AssetFilter{Path: "Assets/Anims/"}})
	if len(res.Assets) != 1 || res.Assets[0].Type != "Animation" || res.Assets[0].SizeBytes != 6 {
		t.Fatalf("anim asset = %+v", res.Assets)
	}
}

func TestLoadSceneFileErrors(t *testing.T) {
	w := NewWorld()
	if err := w.LoadSceneFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}

	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("objects: {not: a list}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.LoadSceneFile(p); err == nil {
		t.Fatal("malformed document accepted")
	}
}

func TestLoadSceneMergesAssetsOnly(t *testing.T) {
	w := NewWorld()
	before := w.ObjectCount()
	w.LoadScene(SceneFile{Assets: []SceneAsset{{Path: "Assets/Extra.mat"}}})
	if w.ObjectCount() != before {
		t.Fatal("asset only document replaced the hierarchy")
	}
	res := w.ManageAssets(wire.ManageAssetsPayload{Action: "info", Filter: wire.AssetFilter{Path: "Assets/Extra.mat"}})
	if res.Error != "" || res.Assets[0].Type != "Material" {
		t.Fatalf("merged asset = %+v", res)
	}
}
