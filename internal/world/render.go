package world

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

const (
	defaultShotWidth  = 640
	defaultShotHeight = 360
	maxShotDim        = 4096
)

// Screenshot renders the scene into a PNG for a takeScreenshot reply.
// The render is deterministic for a given world state so tests can rely
// on it.
func (w *World) Screenshot(req wire.TakeScreenshotPayload) wire.Screenshot {
	width, height := req.Width, req.Height
	if width <= 0 {
		width = defaultShotWidth
	}
	if height <= 0 {
		height = defaultShotHeight
	}
	if width > maxShotDim || height > maxShotDim {
		return wire.Screenshot{Error: fmt.Sprintf("screenshot size %dx%d exceeds %dx%d", width, height, maxShotDim, maxShotDim)}
	}

	img := w.render(width, height)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return wire.Screenshot{Error: err.Error()}
	}
	shot := wire.Screenshot{
		Width:  width,
		Height: height,
		Data:   base64.StdEncoding.EncodeToString(buf.Bytes()),
	}

	if req.Path != "" {
		w.mu.Lock()
		dir := w.screenshotDir
		w.mu.Unlock()
		if dir == "" {
			dir = os.TempDir()
		}
		// Only the base name is honored so a request cannot write
		// outside the configured directory.
		target := filepath.Join(dir, filepath.Base(req.Path))
		if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
			return wire.Screenshot{Error: fmt.Sprintf("write %s: %v", target, err)}
		}
		shot.Path = target
	}
	return shot
}

// render draws a stylized orthographic view: sky gradient, ground plane
// and one marker per active object placed by its accumulated transform.
func (w *World) render(width, height int) *image.RGBA {
	w.mu.Lock()
	defer w.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	horizon := height * 2 / 3
	for y := 0; y < height; y++ {
		var c color.RGBA
		if y < horizon {
			t := float64(y) / float64(horizon)
			c = color.RGBA{R: uint8(90 + 60*t), G: uint8(140 + 40*t), B: uint8(200 + 40*t), A: 255}
		} else {
			t := float64(y-horizon) / float64(height-horizon+1)
			c = color.RGBA{R: uint8(60 + 20*t), G: uint8(120 - 30*t), B: uint8(60 + 10*t), A: 255}
		}
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	var draw func(o *GameObject, base wire.Vec3)
	draw = func(o *GameObject, base wire.Vec3) {
		pos := wire.Vec3{
			X: base.X + o.Transform.Position.X,
			Y: base.Y + o.Transform.Position.Y,
			Z: base.Z + o.Transform.Position.Z,
		}
		if o.Active {
			// World x in [-10,10] spans the frame; y in [0,10] rises from
			// the horizon; z shrinks distant markers.
			cx := int((pos.X + 10) / 20 * float64(width))
			cy := horizon - int(pos.Y/10*float64(horizon))
			size := 6 + int(o.Transform.Scale.X*4)
			if pos.Z > 0 {
				size = size * 10 / (10 + int(pos.Z))
			}
			if size < 2 {
				size = 2
			}
			fillRect(img, cx-size, cy-size, cx+size, cy+size, colorFor(o.Name))
		}
		for _, c := range o.Children {
			draw(c, pos)
		}
	}
	for _, r := range w.roots {
		draw(r, wire.Vec3{})
	}
	return img
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	b := img.Bounds()
	for y := max(y0, b.Min.Y); y < min(y1, b.Max.Y); y++ {
		for x := max(x0, b.Min.X); x < min(x1, b.Max.X); x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func colorFor(name string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(name))
	v := h.Sum32()
	return color.RGBA{
		R: uint8(64 + v%160),
		G: uint8(64 + (v>>8)%160),
		B: uint8(64 + (v>>16)%160),
		A: 255,
	}
}
