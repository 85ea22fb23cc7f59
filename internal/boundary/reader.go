package boundary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"mapgen/internal/manifest"
)

const wgs84 = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"

// ErrEmpty indicates a boundary file without any geometry.
var ErrEmpty = errors.New("boundary file has no features")

// ShapefileReader reads boundary extents from ESRI shapefiles.
type ShapefileReader struct {
	// SkipReprojection treats coordinates as WGS84 even when a .prj exists.
	SkipReprojection bool
}

// Extent returns the union of all shape bounds in path.
func (r ShapefileReader) Extent(ctx context.Context, path string) (manifest.Extent, error) {
	decoder, err := shp.NewDecoder(path)
	if err != nil {
		return manifest.Extent{}, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer decoder.Close()

	var transform proj.Transformer
	if !r.SkipReprojection && hasProjection(path) {
		transform, err = toWGS84(decoder)
		if err != nil {
			return manifest.Extent{}, fmt.Errorf("projection for %s: %w", path, err)
		}
	}

	var extent manifest.Extent
	found := false
	for {
		if err := ctx.Err(); err != nil {
			return manifest.Extent{}, err
		}
		g, _, more := decoder.DecodeRowFields()
		if !more {
			break
		}
		if g == nil {
			continue
		}
		if transform != nil {
			if g, err = g.Transform(transform); err != nil {
				return manifest.Extent{}, fmt.Errorf("reproject %s: %w", path, err)
			}
		}
		shapeExtent := fromBounds(g.Bounds())
		if !found {
			extent = shapeExtent
			found = true
			continue
		}
		extent = extent.Union(shapeExtent)
	}
	if err := decoder.Error(); err != nil {
		return manifest.Extent{}, fmt.Errorf("decode shapefile %s: %w", path, err)
	}
	if !found {
		return manifest.Extent{}, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return extent, nil
}

func toWGS84(decoder *shp.Decoder) (proj.Transformer, error) {
	src, err := decoder.SR()
	if err != nil {
		return nil, err
	}
	dst, err := proj.Parse(wgs84)
	if err != nil {
		return nil, err
	}
	return src.NewTransform(dst)
}

func fromBounds(b *geom.Bounds) manifest.Extent {
	return manifest.Extent{MinX: b.Min.X, MinY: b.Min.Y, MaxX: b.Max.X, MaxY: b.Max.Y}
}

func hasProjection(path string) bool {
	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	info, err := os.Stat(prj)
	return err == nil && !info.IsDir()
}
