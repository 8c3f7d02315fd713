package effects

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Effect names the local substitute transform applied when a remote edit
// fails. Each tint composites a fixed semi-transparent color over the
// original image; Bokeh blurs instead.
type Effect string

const (
	Vintage   Effect = "vintage"
	Cyberpunk Effect = "cyberpunk"
	Sunset    Effect = "sunset"
	Forest    Effect = "forest"
	Space     Effect = "space"
	Bokeh     Effect = "bokeh"
	Beach     Effect = "beach"
	Storm     Effect = "storm"
	// Manual is the subtle default tint used for free-form edits.
	Manual Effect = "manual"
)

var tintColors = map[Effect]color.NRGBA{
	Vintage:   {R: 139, G: 69, B: 19, A: 77},   // sepia
	Cyberpunk: {R: 128, G: 0, B: 128, A: 51},   // blue/purple
	Sunset:    {R: 255, G: 140, B: 0, A: 51},   // orange/yellow
	Forest:    {R: 34, G: 139, B: 34, A: 51},   // green
	Space:     {R: 0, G: 0, B: 139, A: 77},     // dark blue
	Beach:     {R: 173, G: 216, B: 230, A: 51}, // light blue
	Storm:     {R: 105, G: 105, B: 105, A: 77}, // dark gray
	Manual:    {R: 100, G: 100, B: 200, A: 26},
}

// Apply renders the original image to a raster surface, applies the named
// effect and re-encodes the result as PNG. Unknown effect names fall back to
// the Manual tint.
func Apply(imageData []byte, effect Effect) ([]byte, error) {
	slog.Debug("applying local effect", "effect", effect, "input_size_bytes", len(imageData))

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	canvas := image.NewNRGBA(bounds)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Src)

	if effect == Bokeh {
		canvas = boxBlur(canvas)
	} else {
		tint, ok := tintColors[effect]
		if !ok {
			tint = tintColors[Manual]
		}
		draw.Draw(canvas, bounds, image.NewUniform(tint), image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}

	slog.Debug("local effect applied",
		"effect", effect,
		"source_format", format,
		"output_size_bytes", buf.Len())
	return buf.Bytes(), nil
}

// boxBlur applies a single 3x3 box blur pass, a light softening rather than a
// true lens blur.
func boxBlur(src *image.NRGBA) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var r, g, b, a, count int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < bounds.Min.X || nx >= bounds.Max.X || ny < bounds.Min.Y || ny >= bounds.Max.Y {
						continue
					}
					c := src.NRGBAAt(nx, ny)
					r += int(c.R)
					g += int(c.G)
					b += int(c.B)
					a += int(c.A)
					count++
				}
			}
			dst.SetNRGBA(x, y, color.NRGBA{
				R: uint8(r / count),
				G: uint8(g / count),
				B: uint8(b / count),
				A: uint8(a / count),
			})
		}
	}
	return dst
}
