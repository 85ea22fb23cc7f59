package copier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"mapgen/internal/fileutil"
	"mapgen/internal/logging"
	"mapgen/internal/services"
)

// Placeholder marks the boundary segment of a pattern.
const Placeholder = "{boundary}"

// Target is one fan-out category. Ext "*" selects every extension.
type Target struct {
	Dir string
	Ext string
}

// Options configures a copy run. Patterns are relative to Root.
type Options struct {
	Root     string
	Discover string
	Source   string
	Targets  []Target
	// DryRun reports what would be copied without touching the filesystem.
	DryRun bool
}

// File is one copied (or planned) file.
type File struct {
	Target      string
	Boundary    string
	Source      string
	Destination string
	Bytes       int64
	Unchanged   bool
}

// Report summarizes a copy run.
type Report struct {
	Boundaries []string
	Files      []File
}

// Copied returns the number of files written.
func (r *Report) Copied() int {
	n := 0
	for _, f := range r.Files {
		if !f.Unchanged {
			n++
		}
	}
	return n
}

// Bytes returns the total size of the files written.
func (r *Report) Bytes() int64 {
	var total int64
	for _, f := range r.Files {
		if !f.Unchanged {
			total += f.Bytes
		}
	}
	return total
}

// Discover returns the distinct, sorted boundary values found in files under
// root that match pattern.
func Discover(root, pattern string) ([]string, error) {
	if strings.Count(pattern, Placeholder) != 1 {
		return nil, services.Wrap(services.ErrConfiguration, "copy", "discover",
			fmt.Sprintf("pattern %q must contain %s exactly once", pattern, Placeholder), nil)
	}
	re, err := placeholderRegexp(pattern)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "copy", "discover", "compile pattern", err)
	}
	glob := filepath.Join(root, strings.ReplaceAll(pattern, Placeholder, "*"))
	matches, err := filepath.Glob(glob)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "copy", "discover", fmt.Sprintf("invalid pattern %q", pattern), err)
	}

	seen := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		rel, err := filepath.Rel(root, match)
		if err != nil {
			continue
		}
		sub := re.FindStringSubmatch(filepath.ToSlash(rel))
		if sub == nil || sub[1] == "" {
			continue
		}
		seen[sub[1]] = struct{}{}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

// Copy discovers boundaries and copies every matching source file into each
// target. Existing destinations with identical content are left alone.
func Copy(ctx context.Context, opts Options, logger *slog.Logger) (*Report, error) {
	logger = logging.NewComponentLogger(logger, "copier")
	if len(opts.Targets) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "copy", "targets", "at least one target required", nil)
	}
	if !strings.Contains(opts.Source, Placeholder) {
		return nil, services.Wrap(services.ErrConfiguration, "copy", "source",
			fmt.Sprintf("pattern %q must contain %s", opts.Source, Placeholder), nil)
	}
	boundaries, err := Discover(opts.Root, opts.Discover)
	if err != nil {
		return nil, err
	}
	report := &Report{Boundaries: boundaries}
	if len(boundaries) == 0 {
		logging.WarnWithContext(logger, "no boundaries discovered", "copy_empty",
			logging.String("pattern", filepath.Join(opts.Root, opts.Discover)),
			logging.String(logging.FieldErrorHint, "check copier.discover against the output tree"),
			logging.String(logging.FieldImpact, "nothing copied"),
		)
		return report, nil
	}

	for _, target := range opts.Targets {
		for _, b := range boundaries {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			files, err := sources(opts.Root, opts.Source, b, target.Ext)
			if err != nil {
				return report, err
			}
			dir := filepath.Join(opts.Root, target.Dir, b)
			for _, src := range files {
				entry := File{
					Target:      target.Dir,
					Boundary:    b,
					Source:      src,
					Destination: filepath.Join(dir, filepath.Base(src)),
				}
				if err := copyOne(&entry, opts.DryRun); err != nil {
					return report, err
				}
				report.Files = append(report.Files, entry)
				logger.Debug("file copied",
					logging.String(logging.FieldBoundary, b),
					logging.String("target", target.Dir),
					logging.String("source", src),
					logging.Bool("unchanged", entry.Unchanged),
				)
			}
		}
		logger.Info("target populated",
			logging.String("target", target.Dir),
			logging.Int("boundaries", len(boundaries)),
		)
	}
	return report, nil
}

func copyOne(entry *File, dryRun bool) error {
	info, err := os.Stat(entry.Source)
	if err != nil {
		return services.Wrap(services.ErrFilesystem, "copy", entry.Source, "stat source", err)
	}
	entry.Bytes = info.Size()
	same, err := fileutil.SameContent(entry.Source, entry.Destination)
	if err != nil {
		return services.Wrap(services.ErrFilesystem, "copy", entry.Destination, "compare destination", err)
	}
	if same {
		entry.Unchanged = true
		return nil
	}
	if dryRun {
		return nil
	}
	if _, err := fileutil.CopyFileVerified(entry.Source, entry.Destination); err != nil {
		return services.Wrap(services.ErrFilesystem, "copy", entry.Destination, "copy file", err)
	}
	return nil
}

// sources expands the source pattern for one boundary and extension. Only
// regular files are returned.
func sources(root, pattern, boundary, ext string) ([]string, error) {
	glob := strings.ReplaceAll(pattern, Placeholder, escapeGlob(boundary))
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		glob += "." + ext
	}
	matches, err := filepath.Glob(filepath.Join(root, glob))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "copy", "source", fmt.Sprintf("invalid pattern %q", pattern), err)
	}
	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// placeholderRegexp translates a glob pattern with one placeholder into an
// anchored expression capturing the placeholder value.
func placeholderRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	before, after, _ := strings.Cut(filepath.ToSlash(pattern), Placeholder)
	b.WriteString(globToRegexp(before))
	b.WriteString("([^/]+?)")
	b.WriteString(globToRegexp(after))
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func globToRegexp(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

func escapeGlob(value string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(value)
}
