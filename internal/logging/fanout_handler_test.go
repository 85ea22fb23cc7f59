package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Error("expected NoopHandler for all nil handlers")
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Error("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRoutesByLevel(t *testing.T) {
	var console, file bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug enabled through the debug child")
	}

	logger := slog.New(h).With("boundary", "conus")
	logger.Debug("tool command", slog.String("cmd", "ogr2ogr"))
	if console.Len() != 0 {
		t.Errorf("info handler received debug record: %s", console.String())
	}
	if !bytes.Contains(file.Bytes(), []byte(`"cmd":"ogr2ogr"`)) {
		t.Errorf("debug handler missing record: %s", file.String())
	}

	logger.Info("stage completed")
	for name, buf := range map[string]*bytes.Buffer{"console": &console, "file": &file} {
		if !bytes.Contains(buf.Bytes(), []byte(`"boundary":"conus"`)) {
			t.Errorf("%s output missing inherited attribute: %s", name, buf.String())
		}
	}
}
