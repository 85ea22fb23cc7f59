package render_test

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mapgen/internal/manifest"
	"mapgen/internal/render"
	"mapgen/internal/services"
)

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		name   string
		extent manifest.Extent
		max    int
		w, h   int
	}{
		{"wide", manifest.Extent{MinX: 0, MinY: 0, MaxX: 200, MaxY: 100}, 800, 800, 400},
		{"tall", manifest.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 40}, 800, 200, 800},
		{"square", manifest.Extent{MinX: -5, MinY: -5, MaxX: 5, MaxY: 5}, 640, 640, 640},
		{"sliver", manifest.Extent{MinX: 0, MinY: 0, MaxX: 10000, MaxY: 1}, 800, 800, 1},
		{"point", manifest.Extent{MinX: 3, MinY: 3, MaxX: 3, MaxY: 3}, 800, 800, 800},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := render.FitDimensions(tc.extent, tc.max)
			if w != tc.w || h != tc.h {
				t.Fatalf("FitDimensions = (%d, %d), want (%d, %d)", w, h, tc.w, tc.h)
			}
		})
	}
}

func TestRequestQuery(t *testing.T) {
	req := render.Request{
		MapFile:     "/maps/nca.map",
		Layers:      []string{"nca__conus__TAVG", "nca__conus__TAVG__sig", "conus_outline"},
		BBox:        manifest.Extent{MinX: -125.5, MinY: 24, MaxX: -66, MaxY: 49.5},
		Width:       800,
		Height:      342,
		SRS:         "EPSG:4326",
		Format:      "image/png",
		Transparent: true,
	}
	query := req.Query()
	if !strings.HasPrefix(query, "TRANSPARENT=true&SERVICE=WMS&VERSION=1.1.1&REQUEST=GetMap&STYLES=&") {
		t.Fatalf("unexpected parameter order: %s", query)
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	got := map[string]string{}
	for k := range values {
		got[k] = values.Get(k)
	}
	want := map[string]string{
		"TRANSPARENT": "true",
		"SERVICE":     "WMS",
		"VERSION":     "1.1.1",
		"REQUEST":     "GetMap",
		"STYLES":      "",
		"FORMAT":      "image/png",
		"SRS":         "EPSG:4326",
		"WIDTH":       "800",
		"HEIGHT":      "342",
		"MAP":         "/maps/nca.map",
		"LAYERS":      "nca__conus__TAVG,nca__conus__TAVG__sig,conus_outline",
		"BBOX":        "-125.5,24,-66,49.5",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestJobsCoverEveryPair(t *testing.T) {
	m := &manifest.Manifest{
		MapFile: "/maps/nca.map",
		Boundaries: []manifest.BoundaryRecord{
			{
				ID:     "a",
				Extent: manifest.Extent{MinX: 0, MinY: 0, MaxX: 20, MaxY: 10},
				Fields: []manifest.FieldRecord{
					{Name: "T", LayerName: "nca__a__T", StatisticLayerName: "nca__a__T__sig", RenderPath: "r/a_T.png"},
					{Name: "P", LayerName: "nca__a__P", StatisticLayerName: "nca__a__P__sig", RenderPath: "r/a_P.png"},
				},
			},
			{
				ID:     "b",
				Extent: manifest.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 20},
				Fields: []manifest.FieldRecord{
					{Name: "T", LayerName: "nca__b__T", StatisticLayerName: "nca__b__T__sig", RenderPath: "r/b_T.png"},
				},
			},
		},
	}
	jobs := render.Jobs(m, render.Options{MaxDimension: 100, SRS: "EPSG:4326", Format: "image/png"})
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].Request.Width != 100 || jobs[0].Request.Height != 50 {
		t.Fatalf("unexpected size for a: %dx%d", jobs[0].Request.Width, jobs[0].Request.Height)
	}
	if jobs[2].Request.Width != 50 || jobs[2].Request.Height != 100 {
		t.Fatalf("unexpected size for b: %dx%d", jobs[2].Request.Width, jobs[2].Request.Height)
	}
	if diff := cmp.Diff([]string{"nca__a__P", "nca__a__P__sig", "a_outline"}, jobs[1].Request.Layers); diff != "" {
		t.Fatalf("layers mismatch (-want +got):\n%s", diff)
	}
	if jobs[1].Output != "r/a_P.png" || jobs[1].Boundary != "a" || jobs[1].Field != "P" {
		t.Fatalf("unexpected job %+v", jobs[1])
	}
}

func TestImageStripsHeader(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	for _, sep := range []string{"\r\n\r\n", "\n\n"} {
		raw := append([]byte("Content-Type: image/png"+sep), payload...)
		body, err := render.Image(raw)
		if err != nil {
			t.Fatalf("Image returned error: %v", err)
		}
		if string(body) != string(payload) {
			t.Fatalf("body mismatch for separator %q: %q", sep, body)
		}
	}
}

func TestImageRejectsNonImageResponse(t *testing.T) {
	raw := []byte("Content-Type: text/html\r\n\r\n<HTML>msDrawMap(): Image handling error.</HTML>")
	_, err := render.Image(raw)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "msDrawMap") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestImageRejectsMissingTerminator(t *testing.T) {
	if _, err := render.Image([]byte("Content-Type: image/png")); err == nil {
		t.Fatal("expected error for response without header terminator")
	}
}
