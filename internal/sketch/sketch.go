// Package sketch keeps freehand strokes as SVG and renders them to the PNG
// payload the judging side expects.
package sketch

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
)

type Point struct{ X, Y float64 }

type Stroke struct {
	Color  string // #rrggbb
	Width  float64
	Points []Point
}

// Sketch is a white canvas with strokes drawn in order. Safe for concurrent use.
type Sketch struct {
	mu      sync.Mutex
	width   int
	height  int
	upload  int // longest side of the submitted PNG; 0 keeps the canvas size
	brush   float64
	color   string
	strokes []Stroke
}

type Option func(*Sketch)

// WithUploadSize scales submissions so the longest side is n pixels.
func WithUploadSize(n int) Option { return func(s *Sketch) { s.upload = n } }

func New(width, height int, opts ...Option) *Sketch {
	s := &Sketch{width: width, height: height, brush: 5, color: "#000000"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sketch) SetBrush(size float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size > 0 {
		s.brush = size
	}
}

// SetColor accepts #rgb or #rrggbb.
func (s *Sketch) SetColor(hex string) error {
	hex = strings.TrimSpace(hex)
	if _, err := parseHex(hex); err != nil {
		return err
	}
	s.mu.Lock()
	s.color = strings.ToLower(hex)
	s.mu.Unlock()
	return nil
}

// Draw adds one stroke through pts using the current brush and color.
func (s *Sketch) Draw(pts ...Point) {
	if len(pts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strokes = append(s.strokes, Stroke{Color: s.color, Width: s.brush, Points: append([]Point(nil), pts...)})
}

func (s *Sketch) Clear() {
	s.mu.Lock()
	s.strokes = nil
	s.mu.Unlock()
}

func (s *Sketch) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.strokes)
}

// SVG renders the strokes as a standalone SVG document.
func (s *Sketch) SVG() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, s.width, s.height, s.width, s.height)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="#ffffff"/>`, s.width, s.height)
	for _, st := range s.strokes {
		b.WriteString(`<path d="`)
		for i, p := range st.Points {
			cmd := "L"
			if i == 0 {
				cmd = "M"
			}
			fmt.Fprintf(&b, "%s%.1f %.1f ", cmd, p.X, p.Y)
		}
		if len(st.Points) == 1 {
			// a click leaves a dot
			fmt.Fprintf(&b, "L%.1f %.1f ", st.Points[0].X+0.1, st.Points[0].Y)
		}
		fmt.Fprintf(&b, `" fill="none" stroke="%s" stroke-width="%.1f" stroke-linecap="round" stroke-linejoin="round"/>`, st.Color, st.Width)
	}
	b.WriteString(`</svg>`)
	return b.Bytes()
}

// Render rasterizes the canvas at upload size.
func (s *Sketch) Render() (image.Image, error) {
	img, err := RasterizeSVG(s.SVG(), s.width, s.height)
	if err != nil {
		return nil, err
	}
	return Fit(img, s.upload), nil
}

// Snapshot returns the canvas as base64 PNG. An empty canvas is still a
// valid white image.
func (s *Sketch) Snapshot() (string, error) {
	img, err := s.Render()
	if err != nil {
		return "", err
	}
	return EncodePNG(img)
}

// RasterizeSVG draws an SVG document onto a white w×h image.
func RasterizeSVG(data []byte, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	if w <= 0 {
		w = int(icon.ViewBox.W)
	}
	if h <= 0 {
		h = int(icon.ViewBox.H)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("svg has no size")
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

// Fit scales img so its longest side is n, keeping the aspect ratio.
func Fit(img image.Image, n int) image.Image {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if n <= 0 || longest == 0 || longest == n {
		return img
	}
	w := max(1, b.Dx()*n/longest)
	h := max(1, b.Dy()*n/longest)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// sanitizeSVG normalizes inline style colors oksvg can't parse.
func sanitizeSVG(svg []byte) []byte {
	fixed := bytes.ReplaceAll(svg, []byte("fill: #"), []byte("fill:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: #"), []byte("stroke:#"))
	return fixed
}

func parseHex(hex string) (color.RGBA, error) {
	c := color.RGBA{A: 0xff}
	if !strings.HasPrefix(hex, "#") || (len(hex) != 4 && len(hex) != 7) {
		return c, fmt.Errorf("invalid color %q", hex)
	}
	digits := hex[1:]
	if len(digits) == 3 {
		digits = string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]})
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return c, fmt.Errorf("invalid color %q", hex)
	}
	c.R, c.G, c.B = uint8(v>>16), uint8(v>>8), uint8(v)
	return c, nil
}
