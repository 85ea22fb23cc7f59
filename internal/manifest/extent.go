package manifest

import (
	"fmt"
	"math"
	"strconv"
)

// Extent is a bounding box ordered xmin, ymin, xmax, ymax.
type Extent struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Widen grows the extent by one grid cell on every side so a raster at that
// resolution fully covers the original area.
func (e Extent) Widen(xres, yres float64) Extent {
	return Extent{
		MinX: e.MinX - xres,
		MinY: e.MinY - yres,
		MaxX: e.MaxX + xres,
		MaxY: e.MaxY + yres,
	}
}

// Width returns the horizontal span.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns the vertical span.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Valid reports whether the extent is finite and not inverted.
func (e Extent) Valid() bool {
	for _, v := range []float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return e.MinX <= e.MaxX && e.MinY <= e.MaxY
}

// Union returns the smallest extent covering both e and other.
func (e Extent) Union(other Extent) Extent {
	return Extent{
		MinX: math.Min(e.MinX, other.MinX),
		MinY: math.Min(e.MinY, other.MinY),
		MaxX: math.Max(e.MaxX, other.MaxX),
		MaxY: math.Max(e.MaxY, other.MaxY),
	}
}

// Args renders the extent as four command-line arguments.
func (e Extent) Args() []string {
	return []string{formatFloat(e.MinX), formatFloat(e.MinY), formatFloat(e.MaxX), formatFloat(e.MaxY)}
}

// BBox renders the extent as a comma-separated WMS bounding box.
func (e Extent) BBox() string {
	return fmt.Sprintf("%s,%s,%s,%s", formatFloat(e.MinX), formatFloat(e.MinY), formatFloat(e.MaxX), formatFloat(e.MaxY))
}

func (e Extent) String() string {
	return "(" + e.BBox() + ")"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
