package mapfile

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"mapgen/internal/manifest"
	"mapgen/internal/services"
)

//go:embed layers.tmpl
var layersTemplate string

var layers = template.Must(template.New("layers").Parse(layersTemplate))

// ClassField is the integer attribute gdal_polygonize writes into statistic
// polygons.
const ClassField = "class"

// HatchSymbol is the symbol the high-significance class draws with. The map
// template, or a SYMBOLSET it references, must define it.
const HatchSymbol = "hatch"

// Options controls layer generation.
type Options struct {
	// Marker is the literal text in the template replaced by the layer blocks.
	Marker string
	// ClassesInclude is an optional file INCLUDEd in every raster layer.
	ClassesInclude string
	HighClass      int
	ModerateClass  int
}

type layerData struct {
	ClassesInclude string
	ClassField     string
	HatchSymbol    string
	HighClass      string
	ModerateClass  string
	Boundaries     []boundaryData
}

type boundaryData struct {
	Mask     string
	Outline  string
	Boundary string
	Fields   []fieldData
}

type fieldData struct {
	Layer             string
	Raster            string
	Mask              string
	StatisticLayer    string
	StatisticPolygons string
}

// Layers renders the layer blocks for every boundary and field in m. Data
// paths are made absolute so the configuration resolves them from any
// working directory.
func Layers(m *manifest.Manifest, opts Options) (string, error) {
	if m == nil {
		return "", services.Wrap(services.ErrValidation, "mapfile", "layers", "manifest required", nil)
	}
	data := layerData{
		ClassesInclude: opts.ClassesInclude,
		ClassField:     ClassField,
		HatchSymbol:    HatchSymbol,
		HighClass:      strconv.Itoa(opts.HighClass),
		ModerateClass:  strconv.Itoa(opts.ModerateClass),
	}
	for _, b := range m.Boundaries {
		bd := boundaryData{
			Mask:     b.MaskLayer(),
			Outline:  b.OutlineLayer(),
			Boundary: absolute(b.BoundaryPath),
		}
		for _, f := range b.Fields {
			bd.Fields = append(bd.Fields, fieldData{
				Layer:             f.LayerName,
				Raster:            absolute(f.DisplayRaster(m.Interpolate)),
				Mask:              b.MaskLayer(),
				StatisticLayer:    f.StatisticLayerName,
				StatisticPolygons: absolute(f.StatisticPolygonPath),
			})
		}
		data.Boundaries = append(data.Boundaries, bd)
	}

	var buf bytes.Buffer
	if err := layers.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render layer blocks: %w", err)
	}
	buf.WriteString("\n")
	return buf.String(), nil
}

// Substitute replaces every occurrence of marker in text with blocks.
func Substitute(text, marker, blocks string) (string, error) {
	if marker == "" {
		return "", services.Wrap(services.ErrConfiguration, "mapfile", "substitute", "layer marker required", nil)
	}
	if !strings.Contains(text, marker) {
		return "", services.Wrap(services.ErrConfiguration, "mapfile", "substitute",
			fmt.Sprintf("template does not contain marker %q", marker), nil)
	}
	return strings.ReplaceAll(text, marker, blocks), nil
}

// Write reads templatePath, substitutes the layer blocks for m, and writes
// the result to m.MapFile.
func Write(m *manifest.Manifest, templatePath string, opts Options) error {
	if m == nil || m.MapFile == "" {
		return services.Wrap(services.ErrConfiguration, "mapfile", "write", "output map file path required", nil)
	}
	raw, err := readTemplate(templatePath, "write")
	if err != nil {
		return err
	}
	blocks, err := Layers(m, opts)
	if err != nil {
		return err
	}
	out, err := Substitute(string(raw), opts.Marker, blocks)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.MapFile, []byte(out), 0o644); err != nil {
		return services.Wrap(services.ErrFilesystem, "mapfile", "write", "write map file", err)
	}
	return nil
}

// CheckTemplate confirms the template at templatePath is readable and
// carries marker. The returned warnings name symbols the generated layers use
// that the template does not visibly define.
func CheckTemplate(templatePath, marker string) ([]string, error) {
	raw, err := readTemplate(templatePath, "check")
	if err != nil {
		return nil, err
	}
	text := string(raw)
	if _, err := Substitute(text, marker, ""); err != nil {
		return nil, err
	}
	var warnings []string
	if !definesSymbol(text, HatchSymbol) {
		warnings = append(warnings, fmt.Sprintf("map template defines no SYMBOL %q and no SYMBOLSET; high-significance hatching will not draw", HatchSymbol))
	}
	return warnings, nil
}

func readTemplate(path, op string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "mapfile", op, "map template path required", nil)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "mapfile", op, "read map template", err)
	}
	return raw, nil
}

// definesSymbol reports whether text declares a SYMBOL named name or loads
// an external SYMBOLSET.
func definesSymbol(text, name string) bool {
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "SYMBOLSET") {
		return true
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !strings.EqualFold(strings.TrimSpace(line), "SYMBOL") {
			continue
		}
		for _, next := range lines[i+1:] {
			fields := strings.Fields(next)
			if len(fields) == 0 {
				continue
			}
			if strings.EqualFold(fields[0], "NAME") && len(fields) > 1 && strings.Trim(fields[1], `"'`) == name {
				return true
			}
			if strings.EqualFold(fields[0], "END") {
				break
			}
		}
	}
	return false
}

func absolute(path string) string {
	if path == "" {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
