package sketch

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
)

// FileCanvas reads its drawing from disk on every snapshot, so an external
// editor can own the image. Accepts .png, .jpg and .svg.
type FileCanvas struct {
	Path   string
	Upload int
}

func (f *FileCanvas) Snapshot() (string, error) {
	img, err := f.load()
	if err != nil {
		return "", err
	}
	return EncodePNG(Fit(img, f.Upload))
}

// Clear is a no-op; the file belongs to the editor.
func (f *FileCanvas) Clear() {}

func (f *FileCanvas) load() (image.Image, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read drawing: %w", err)
	}
	if strings.EqualFold(filepath.Ext(f.Path), ".svg") {
		return RasterizeSVG(raw, 0, 0)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode drawing: %w", err)
	}
	return img, nil
}
