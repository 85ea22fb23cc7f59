package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mapgen/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.StartRun(ctx, history.RunInfo{Dataset: "nca", ConfigPath: "/etc/mapgen.toml"})
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	if run.ID == "" || run.Status != history.StatusRunning {
		t.Fatalf("unexpected run %+v", run)
	}

	steps := []history.Step{
		{RunID: run.ID, Stage: "clip", Boundary: "conus", Command: "ogr2ogr -overwrite", Status: history.StatusSucceeded, Duration: 1500 * time.Millisecond},
		{RunID: run.ID, Stage: "rasterize", Boundary: "conus", Field: "TAVG", Status: history.StatusFailed, Error: "exit 1"},
	}
	for _, step := range steps {
		if err := store.RecordStep(ctx, step); err != nil {
			t.Fatalf("RecordStep returned error: %v", err)
		}
	}
	if err := store.FinishRun(ctx, run.ID, 1, 1, errors.New("rasterize failed")); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun returned error: %v", err)
	}
	if got.Status != history.StatusFailed || got.Error != "rasterize failed" {
		t.Fatalf("unexpected finished run %+v", got)
	}
	if got.FinishedAt == nil || got.Boundaries != 1 || got.Fields != 1 {
		t.Fatalf("expected counts and finish time, got %+v", got)
	}
	if got.ConfigPath != "/etc/mapgen.toml" {
		t.Fatalf("unexpected config path %q", got.ConfigPath)
	}

	recorded, err := store.Steps(ctx, run.ID)
	if err != nil {
		t.Fatalf("Steps returned error: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(recorded))
	}
	if recorded[0].Stage != "clip" || recorded[0].Duration != 1500*time.Millisecond || recorded[0].Field != "" {
		t.Fatalf("unexpected first step %+v", recorded[0])
	}
	if recorded[1].Status != history.StatusFailed || recorded[1].Error != "exit 1" {
		t.Fatalf("unexpected second step %+v", recorded[1])
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := store.StartRun(ctx, history.RunInfo{Dataset: "nca"})
		if err != nil {
			t.Fatalf("StartRun returned error: %v", err)
		}
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}
	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns returned error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestGetRunByPrefixAndMissing(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.StartRun(ctx, history.RunInfo{Dataset: "nca"})
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	got, err := store.GetRun(ctx, run.ID[:8])
	if err != nil {
		t.Fatalf("GetRun by prefix returned error: %v", err)
	}
	if got.ID != run.ID {
		t.Fatalf("expected %s, got %s", run.ID, got.ID)
	}
	if _, err := store.GetRun(ctx, "ffffffff-none"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	run, err := store.StartRun(context.Background(), history.RunInfo{Dataset: "nca"})
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	_ = store.Close()

	reopened, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetRun(context.Background(), run.ID); err != nil {
		t.Fatalf("GetRun after reopen returned error: %v", err)
	}
}
