// Package render sizes map images and assembles the WMS GetMap requests that
// produce them.
package render

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"mapgen/internal/manifest"
	"mapgen/internal/services"
)

// FitDimensions returns an image size whose larger side is limit and whose
// other side keeps the extent's aspect ratio. Neither side is ever below one
// pixel.
func FitDimensions(extent manifest.Extent, limit int) (int, int) {
	if limit < 1 {
		limit = 1
	}
	w, h := extent.Width(), extent.Height()
	if w <= 0 && h <= 0 {
		return limit, limit
	}
	if w >= h {
		return limit, atLeastOne(float64(limit) * h / w)
	}
	return atLeastOne(float64(limit) * w / h), limit
}

func atLeastOne(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}

// Request is one WMS 1.1.1 GetMap call.
type Request struct {
	MapFile     string
	Layers      []string
	BBox        manifest.Extent
	Width       int
	Height      int
	SRS         string
	Format      string
	Transparent bool
}

// Query encodes the request as a CGI query string with parameters in a fixed
// order.
func (r Request) Query() string {
	pairs := [][2]string{
		{"TRANSPARENT", strconv.FormatBool(r.Transparent)},
		{"SERVICE", "WMS"},
		{"VERSION", "1.1.1"},
		{"REQUEST", "GetMap"},
		{"STYLES", ""},
		{"FORMAT", r.Format},
		{"SRS", r.SRS},
		{"WIDTH", strconv.Itoa(r.Width)},
		{"HEIGHT", strconv.Itoa(r.Height)},
		{"MAP", r.MapFile},
		{"LAYERS", strings.Join(r.Layers, ",")},
		{"BBOX", r.BBox.BBox()},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p[0]+"="+url.QueryEscape(p[1]))
	}
	return strings.Join(parts, "&")
}

// Options controls image requests.
type Options struct {
	MaxDimension int
	SRS          string
	Format       string
}

// Job pairs an output image with the request that renders it.
type Job struct {
	Boundary string
	Field    string
	Output   string
	Request  Request
}

// Jobs returns one render job per boundary/field pair in manifest order. Each
// image covers the boundary's widened extent and draws the field raster, its
// significance polygons and the boundary outline.
func Jobs(m *manifest.Manifest, opts Options) []Job {
	var jobs []Job
	for _, b := range m.Boundaries {
		width, height := FitDimensions(b.Extent, opts.MaxDimension)
		for _, f := range b.Fields {
			jobs = append(jobs, Job{
				Boundary: b.ID,
				Field:    f.Name,
				Output:   f.RenderPath,
				Request: Request{
					MapFile:     m.MapFile,
					Layers:      []string{f.LayerName, f.StatisticLayerName, b.OutlineLayer()},
					BBox:        b.Extent,
					Width:       width,
					Height:      height,
					SRS:         opts.SRS,
					Format:      opts.Format,
					Transparent: true,
				},
			})
		}
	}
	return jobs
}

// StripHeader splits CGI output into its Content-Type and body. The header
// block ends at the first blank line, with or without carriage returns.
func StripHeader(raw []byte) (string, []byte, error) {
	end, skip := -1, 0
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		end, skip = i, 4
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 && (end < 0 || i < end) {
		end, skip = i, 2
	}
	if end < 0 {
		return "", nil, services.Wrap(services.ErrExternalTool, "render", "response", "no header terminator in response", nil)
	}

	contentType := ""
	for _, line := range strings.Split(string(raw[:end]), "\n") {
		name, value, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Type") {
			contentType = strings.TrimSpace(value)
		}
	}
	return contentType, raw[end+skip:], nil
}

// Image validates CGI output and returns the image payload. A response whose
// Content-Type is not an image is reported with its body, which carries the
// map server's own error text.
func Image(raw []byte) ([]byte, error) {
	contentType, body, err := StripHeader(raw)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, services.Wrap(services.ErrExternalTool, "render", "response",
			fmt.Sprintf("unexpected content type %q: %s", contentType, snippet(body)), nil)
	}
	if len(body) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "render", "response", "empty image body", nil)
	}
	return body, nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	return text
}
