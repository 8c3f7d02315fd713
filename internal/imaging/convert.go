package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// svgRenderSize is used when an uploaded SVG carries no explicit pixel size.
const svgRenderSize = 1024

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// IsPNG checks whether the data begins with a valid PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:8], pngSignature)
}

// ToPNG normalizes an uploaded image to PNG before it is sent to a model
// endpoint. PNG input is passed through untouched; JPEG, GIF, WEBP, BMP and
// TIFF are re-encoded and SVG is rasterized.
func ToPNG(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	if IsPNG(data) {
		return data, nil
	}

	if isSVG(data) {
		return renderSVG(data)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	slog.Debug("normalizing uploaded image to PNG",
		"source_format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isSVG performs a lightweight detection of SVG content from raw bytes.
func isSVG(data []byte) bool {
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.HasPrefix(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte(`xmlns="http://www.w3.org/2000/svg"`)) ||
		bytes.Contains(header, []byte(`xmlns='http://www.w3.org/2000/svg'`))
}

func renderSVG(data []byte) ([]byte, error) {
	width, height, ok := parseSVGExplicitSize(data)
	if !ok {
		width, height = svgRenderSize, svgRenderSize
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	// White background, matching what browsers show for SVG uploads
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, dst, dst.Bounds())
	dasher := rasterx.NewDasher(width, height, scanner)
	icon.Draw(dasher, 1.0)

	var buf bytes.Buffer
	buf.Grow(width * height)
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode rendered SVG as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// parseSVGExplicitSize extracts width/height attributes from the SVG start
// tag. viewBox is deliberately not treated as a pixel size.
func parseSVGExplicitSize(data []byte) (int, int, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))

	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s)
	} else {
		j = i + j
	}
	tag := s[i:j]

	width, widthOk := parseNumericAttr(tag, "width")
	height, heightOk := parseNumericAttr(tag, "height")
	if widthOk && heightOk && width > 0 && height > 0 {
		return width, height, true
	}
	return 0, 0, false
}

// parseNumericAttr extracts the leading numeric value of an attribute
// (e.g. width="123px").
func parseNumericAttr(tag, attr string) (int, bool) {
	// Only accept the attribute when it starts on a whitespace boundary, so
	// that "width=" does not match inside "stroke-width=".
	needle := attr + "="
	pos := -1
	for from := 0; ; {
		hit := strings.Index(tag[from:], needle)
		if hit < 0 {
			break
		}
		hit += from
		if hit > 0 {
			switch tag[hit-1] {
			case ' ', '\t', '\n', '\r':
				pos = hit
			}
		}
		if pos >= 0 {
			break
		}
		from = hit + len(needle)
	}
	if pos < 0 {
		return 0, false
	}

	q := strings.Index(tag[pos:], `"`)
	single := strings.Index(tag[pos:], "'")
	start := -1
	quoteChar := byte(0)
	if q >= 0 && (single < 0 || q < single) {
		start = pos + q + 1
		quoteChar = '"'
	} else if single >= 0 {
		start = pos + single + 1
		quoteChar = '\''
	}
	if start < 0 || start >= len(tag) {
		return 0, false
	}

	val := tag[start:]
	if end := strings.IndexByte(val, quoteChar); end >= 0 {
		val = val[:end]
	}

	num := 0
	found := false
	for i := 0; i < len(val); i++ {
		ch := val[i]
		if ch >= '0' && ch <= '9' {
			found = true
			num = num*10 + int(ch-'0')
		} else if found {
			break
		}
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}
