package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(0x41 + i%26)
	}
	writeBytes(t, path, buf)
}

// WriteText writes text to path, creating parent directories.
func WriteText(t testing.TB, path, text string) {
	t.Helper()
	writeBytes(t, path, []byte(text))
}

func writeBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type boundaryShape struct {
	geom.Polygon
	Code float64
}

// WriteBoundary writes a shapefile holding one rectangle.
func WriteBoundary(t testing.TB, path string, minX, minY, maxX, maxY float64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	encoder, err := shp.NewEncoder(path, boundaryShape{})
	if err != nil {
		t.Fatalf("create shapefile %s: %v", path, err)
	}
	rect := geom.Polygon{{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
		{X: minX, Y: minY},
	}}
	if err := encoder.Encode(boundaryShape{Polygon: rect, Code: 1}); err != nil {
		t.Fatalf("encode shapefile %s: %v", path, err)
	}
	encoder.Close()
}
