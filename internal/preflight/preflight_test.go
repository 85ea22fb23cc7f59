package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mapgen/internal/services"
	"mapgen/internal/testsupport"
)

func TestCheckReadableDir(t *testing.T) {
	dir := t.TempDir()
	if r := CheckReadableDir("test", dir); !r.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", r.Detail)
	}
	if r := CheckReadableDir("test", filepath.Join(dir, "nope")); r.Passed || r.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %+v", r)
	}
}

func TestCheckReadableDirRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckReadableDir("test", f); r.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckReadableFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "nca.csv")
	if err := os.WriteFile(f, []byte("LON,LAT\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckReadableFile("source", f); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckReadableFile("source", dir); r.Passed {
		t.Fatal("expected failure for directory")
	}
	if r := CheckReadableFile("source", ""); r.Passed || r.Detail != "not configured" {
		t.Fatalf("unexpected result for empty path: %+v", r)
	}
}

func TestCheckWritableDirUsesNearestAncestor(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nca", "renders")
	r := CheckWritableDir("output", target)
	if !r.Passed {
		t.Fatalf("expected pass for creatable path, got %s", r.Detail)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatal("check must not create the directory")
	}
}

func TestRunAllPassesWithStubbedTools(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithSourceRows("10,40,1.5,2"),
		testsupport.WithStubbedBinaries(),
	)
	results := RunAll(context.Background(), cfg)
	for _, r := range results {
		if !r.Passed && !r.Optional {
			t.Errorf("check %s failed: %s", r.Name, r.Detail)
		}
	}
	if err := Err(results); err != nil {
		t.Fatalf("Err returned %v", err)
	}
}

func TestRunAllReportsMissingTool(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithSourceRows("10,40,1.5,2"),
		testsupport.WithStubbedBinaries(),
	)
	cfg.Tools.Mapserv = "clearly-not-present-mapserv"

	err := Err(RunAll(context.Background(), cfg))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGDALWarpOptionalUnlessInterpolating(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Tools.GDALWarp = "clearly-not-present-gdalwarp"

	warp := func() bool {
		for _, s := range CheckTools(cfg) {
			if s.Name == "gdalwarp" {
				return s.Optional
			}
		}
		t.Fatal("gdalwarp not checked")
		return false
	}
	if !warp() {
		t.Error("gdalwarp should be optional without interpolation")
	}
	cfg.Render.Interpolate = true
	if warp() {
		t.Error("gdalwarp should be required with interpolation")
	}
}
