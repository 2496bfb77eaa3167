package sketch

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, b64 string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func isDark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r < 0x4000 && g < 0x4000 && b < 0x4000
}

func TestEmptySketchIsWhitePNG(t *testing.T) {
	s := New(80, 60)
	img := decode(t, must(s.Snapshot()))
	assert.Equal(t, image.Rect(0, 0, 80, 60), img.Bounds())
	assert.False(t, isDark(img.At(40, 30)))
}

func TestStrokeIsRasterized(t *testing.T) {
	s := New(100, 100)
	s.SetBrush(8)
	s.Draw(Point{10, 50}, Point{90, 50})

	img := decode(t, must(s.Snapshot()))
	assert.True(t, isDark(img.At(50, 50)), "stroke pixel")
	assert.False(t, isDark(img.At(50, 10)), "background pixel")
}

func TestUploadSizeKeepsAspect(t *testing.T) {
	s := New(800, 600, WithUploadSize(400))
	img := decode(t, must(s.Snapshot()))
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestClearAndColor(t *testing.T) {
	s := New(50, 50)
	require.NoError(t, s.SetColor("#F00"))
	s.Draw(Point{5, 5}, Point{45, 45})
	assert.Contains(t, string(s.SVG()), `stroke="#f00"`)
	assert.Equal(t, 1, s.Len())
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Error(t, s.SetColor("red"))
	assert.Error(t, s.SetColor("#12345"))
}

func TestParseHex(t *testing.T) {
	c, err := parseHex("#1a2b3c")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0x1a, 0x2b, 0x3c, 0xff}, c)
	c, err = parseHex("#abc")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0xaa, 0xbb, 0xcc, 0xff}, c)
}

func TestFileCanvasSVGAndPNG(t *testing.T) {
	dir := t.TempDir()
	s := New(64, 64)
	s.Draw(Point{0, 32}, Point{64, 32})

	svgPath := filepath.Join(dir, "d.svg")
	require.NoError(t, os.WriteFile(svgPath, s.SVG(), 0o644))
	fc := &FileCanvas{Path: svgPath, Upload: 32}
	img := decode(t, must(fc.Snapshot()))
	assert.Equal(t, 32, img.Bounds().Dx())

	rendered, err := s.Render()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, rendered))
	pngPath := filepath.Join(dir, "d.png")
	require.NoError(t, os.WriteFile(pngPath, buf.Bytes(), 0o644))
	img = decode(t, must((&FileCanvas{Path: pngPath}).Snapshot()))
	assert.Equal(t, 64, img.Bounds().Dx())

	_, err = (&FileCanvas{Path: filepath.Join(dir, "missing.png")}).Snapshot()
	assert.Error(t, err)
}

func must(s string, err error) string {
	if err != nil {
		panic(err)
	}
	return s
}
