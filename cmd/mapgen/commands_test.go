package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mapgen/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestPlanListsBoundaries(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithBoundary("alaska", -180, 50, -130, 72))

	out, _, err := env.run(t, "plan", "--paths")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "alaska")
	requireContains(t, out, "conus")
	requireContains(t, out, "nca__conus__TAVG.png")
	if len(env.fake.Commands()) != 0 {
		t.Error("plan invoked external tools")
	}
}

func TestRunRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "run", "--skip-preflight")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "succeeded")
	requireContains(t, out, "Renders:    1")

	out, _, err = env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "nca")
	requireContains(t, out, "succeeded")

	id := firstRunID(t, out)
	out, _, err = env.run(t, "history", id)
	if err != nil {
		t.Fatalf("history %s: %v", id, err)
	}
	requireContains(t, out, "clip")
	requireContains(t, out, "ogr2ogr")
	requireContains(t, out, "render")
}

func TestRunReportsFailedStage(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.Fail = map[string]error{"ogr2ogr": os.ErrPermission}

	_, _, err := env.run(t, "run", "--skip-preflight")
	if err == nil {
		t.Fatal("expected run to fail")
	}
	requireContains(t, err.Error(), "stage clip boundary conus")

	out, _, err := env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "failed")
}

func TestRunStopsOnPreflightFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Tools.Mapserv = "clearly-not-present-mapserv"
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := env.run(t, "run")
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	requireContains(t, err.Error(), "mapgen doctor")
	if len(env.fake.Commands()) != 0 {
		t.Error("tools ran despite failed preflight")
	}
	if _, statErr := os.Stat(env.cfg.OutputDir()); !os.IsNotExist(statErr) {
		t.Error("output directory created despite failed preflight")
	}
}

func TestNormalizeCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	dst := filepath.Join(t.TempDir(), "fixed.csv")

	out, _, err := env.run(t, "normalize", "--out", dst)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	requireContains(t, out, "Normalized 2 rows")
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	requireContains(t, string(data), "-160,45")
}

func TestDescriptorCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	dst := filepath.Join(t.TempDir(), "nca.vrt")

	if _, _, err := env.run(t, "descriptor", "--out", dst); err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	requireContains(t, string(data), "OGRVRTDataSource")
	requireContains(t, string(data), "nca.csv")
}

func TestCopyCommandAfterRun(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "run", "--skip-preflight", "--no-history"); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, _, err := env.run(t, "copy")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	requireContains(t, out, "for 1 boundaries")
	root := testsupport.BaseDir(env.cfg)
	if _, err := os.Stat(filepath.Join(root, "renders", "conus", "nca__conus__TAVG.png")); err != nil {
		t.Errorf("render not copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "renders_and_data", "conus", "nca__conus__TAVG.tif")); err != nil {
		t.Errorf("raster not copied: %v", err)
	}
}

func TestDoctorReportsMissingTool(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	env.cfg.Tools.Mapserv = "clearly-not-present-mapserv"
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := env.run(t, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	requireContains(t, out, "mapserv")
	requireContains(t, out, "missing")
}

func firstRunID(t *testing.T, table string) string {
	t.Helper()
	for _, line := range strings.Split(table, "\n") {
		if !strings.Contains(line, "nca") {
			continue
		}
		fields := strings.Fields(strings.Trim(line, "│ "))
		if len(fields) > 0 {
			return fields[0]
		}
	}
	t.Fatalf("no run id in %q", table)
	return ""
}
