package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mapgen/internal/services"
)

// PNGResponse is the CGI output FakeGIS returns for mapserv calls.
const PNGResponse = "Content-Type: image/png\r\n\r\n\x89PNG\r\n\x1a\n"

// FakeGIS stands in for the GDAL/OGR and mapserv binaries. It records every
// command and creates the output file each tool would have written.
type FakeGIS struct {
	mu       sync.Mutex
	commands []services.Command
	// Fail makes the first call whose binary base name contains the key
	// return the mapped error.
	Fail map[string]error
	// SkipOutput suppresses output creation for binaries containing the key.
	SkipOutput map[string]bool
}

// Run implements services.Executor.
func (f *FakeGIS) Run(ctx context.Context, cmd services.Command) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.commands = append(f.commands, cloneCommand(cmd))
	failure := f.match(cmd.Binary)
	skip := false
	for key, v := range f.SkipOutput {
		if v && strings.Contains(filepath.Base(cmd.Binary), key) {
			skip = true
		}
	}
	f.mu.Unlock()

	if failure != nil {
		return nil, &services.ToolError{Binary: cmd.Binary, Args: cmd.Args, ExitCode: 1, Stderr: failure.Error(), Err: failure}
	}
	name := filepath.Base(cmd.Binary)
	if strings.Contains(name, "mapserv") {
		return []byte(PNGResponse), nil
	}
	if skip {
		return nil, nil
	}
	if out := OutputArg(cmd); out != "" {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(out, []byte(name), 0o644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (f *FakeGIS) match(binary string) error {
	name := filepath.Base(binary)
	for key, err := range f.Fail {
		if err != nil && strings.Contains(name, key) {
			delete(f.Fail, key)
			return err
		}
	}
	return nil
}

// Commands returns a copy of the recorded commands.
func (f *FakeGIS) Commands() []services.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]services.Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// Count returns how many recorded commands ran a binary containing key.
func (f *FakeGIS) Count(key string) int {
	n := 0
	for _, cmd := range f.Commands() {
		if strings.Contains(filepath.Base(cmd.Binary), key) {
			n++
		}
	}
	return n
}

// OutputArg returns the output path of a GDAL/OGR invocation as laid out by
// the gdal client.
func OutputArg(cmd services.Command) string {
	args := cmd.Args
	name := filepath.Base(cmd.Binary)
	switch {
	case strings.Contains(name, "ogr2ogr") && len(args) >= 2:
		return args[len(args)-2]
	case strings.Contains(name, "polygonize") && len(args) >= 3:
		return args[len(args)-3]
	case (strings.Contains(name, "rasterize") || strings.Contains(name, "warp")) && len(args) >= 1:
		return args[len(args)-1]
	}
	return ""
}

func cloneCommand(cmd services.Command) services.Command {
	cmd.Args = append([]string(nil), cmd.Args...)
	cmd.Env = append([]string(nil), cmd.Env...)
	return cmd
}
