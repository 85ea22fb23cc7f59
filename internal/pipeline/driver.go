package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mapgen/internal/boundary"
	"mapgen/internal/config"
	"mapgen/internal/history"
	"mapgen/internal/logging"
	"mapgen/internal/lonfix"
	"mapgen/internal/manifest"
	"mapgen/internal/mapfile"
	"mapgen/internal/render"
	"mapgen/internal/services"
	"mapgen/internal/services/gdal"
	"mapgen/internal/services/mapserv"
	"mapgen/internal/vrt"
)

const (
	lockFileName = ".mapgen.lock"
	dataNoData   = -9999
	classNoData  = -1
)

// Option configures the driver.
type Option func(*Driver)

// WithExecutor replaces the process runner used for every external tool
// (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(d *Driver) {
		if exec != nil {
			d.exec = exec
		}
	}
}

// WithExtentReader replaces the boundary extent reader.
func WithExtentReader(reader manifest.ExtentReader) Option {
	return func(d *Driver) {
		if reader != nil {
			d.extents = reader
		}
	}
}

// WithJournal records runs and steps.
func WithJournal(journal Journal) Option {
	return func(d *Driver) {
		d.journal = journal
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithConfigPath records the configuration file a run was started from.
func WithConfigPath(path string) Option {
	return func(d *Driver) {
		d.configPath = path
	}
}

// Driver sequences one map-generation run.
type Driver struct {
	cfg        *config.Config
	configPath string
	exec       services.Executor
	extents    manifest.ExtentReader
	journal    Journal
	logger     *slog.Logger
}

// Result summarizes a completed run.
type Result struct {
	RunID    string
	Manifest *manifest.Manifest
	Rows     int
	Renders  []string
	LogPath  string
	Duration time.Duration
}

// New constructs a driver for cfg.
func New(cfg *config.Config, opts ...Option) (*Driver, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config required")
	}
	d := &Driver{
		cfg:     cfg,
		exec:    services.CommandExecutor{},
		extents: boundary.ShapefileReader{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "pipeline")
	return d, nil
}

// Plan validates the configuration and map template and builds the manifest
// without writing anything or invoking any tool.
func (d *Driver) Plan(ctx context.Context) (*manifest.Manifest, error) {
	if err := d.cfg.RequirePipeline(); err != nil {
		return nil, &StageError{Stage: StageManifest, Err: err}
	}
	warnings, err := mapfile.CheckTemplate(d.cfg.Render.MapTemplate, d.cfg.Render.LayerMarker)
	if err != nil {
		return nil, &StageError{Stage: StageManifest, Err: err}
	}
	for _, w := range warnings {
		d.logger.Warn(w, logging.String("template", d.cfg.Render.MapTemplate))
	}
	m, err := manifest.Build(ctx, d.manifestOptions(), d.extents)
	if err != nil {
		return nil, &StageError{Stage: StageManifest, Err: err}
	}
	return m, nil
}

// Run executes every stage. The first failure stops the run.
func (d *Driver) Run(ctx context.Context) (result *Result, err error) {
	start := time.Now()
	m, err := d.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(d.cfg.Source.Path); statErr != nil {
		return nil, &StageError{Stage: StageManifest, Err: services.Wrap(services.ErrConfiguration, "source", d.cfg.Source.Path, "source file unreadable", statErr)}
	}

	if err := prepareDirs(m); err != nil {
		return nil, &StageError{Stage: StagePrepare, Err: err}
	}
	lock := flock.New(filepath.Join(m.BaseDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, &StageError{Stage: StagePrepare, Err: services.Wrap(services.ErrFilesystem, "prepare", "lock", "acquire output lock", err)}
	}
	if !locked {
		return nil, &StageError{Stage: StagePrepare, Err: services.Wrap(services.ErrFilesystem, "prepare", "lock",
			fmt.Sprintf("another run holds %s", lock.Path()), nil)}
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	if d.journal != nil {
		run, jErr := d.journal.StartRun(ctx, history.RunInfo{Dataset: m.Dataset, ConfigPath: d.configPath, OutputDir: m.BaseDir})
		if jErr != nil {
			d.logger.Warn("journal unavailable; run not recorded", logging.Error(jErr))
		} else {
			runID = run.ID
		}
	}

	logger := d.logger
	result = &Result{RunID: runID, Manifest: m}
	if d.cfg.Paths.StateDir != "" {
		runLog, logErr := logging.OpenRunLog(logger, d.cfg.RunLogDir(), runID)
		if logErr != nil {
			d.logger.Warn("run log unavailable", logging.Error(logErr))
		} else {
			defer runLog.Close()
			logger = runLog.Logger
			result.LogPath = runLog.Path
			logging.PruneRunLogs(logger, d.cfg.RunLogDir(), d.cfg.Logging.RetentionDays, runLog.Path)
		}
	}
	ctx = services.WithRunID(ctx, runID)

	defer func() {
		result.Duration = time.Since(start)
		if d.journal != nil {
			if fErr := d.journal.FinishRun(context.WithoutCancel(ctx), runID, len(m.Boundaries), len(d.cfg.Source.Fields), err); fErr != nil {
				logger.Warn("journal finish failed", logging.Error(fErr))
			}
		}
		if err != nil {
			logging.ErrorWithContext(logger, "run failed", "run_failed",
				logging.String(logging.FieldRunID, runID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "see the failed step with `mapgen history "+shortID(runID)+"`"),
			)
			return
		}
		logger.Info("run completed",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.Int("boundaries", len(m.Boundaries)),
			logging.Int("renders", len(result.Renders)),
			logging.Duration("elapsed", result.Duration),
		)
	}()

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("dataset", m.Dataset),
		logging.String("output", m.BaseDir),
		logging.Int("boundaries", len(m.Boundaries)),
		logging.Int("fields", len(d.cfg.Source.Fields)),
	)

	r := &runner{
		cfg:     d.cfg,
		m:       m,
		journal: d.journal,
		logger:  logger,
	}
	timeout := time.Duration(d.cfg.Tools.TimeoutSeconds) * time.Second
	exec := &journalExecutor{next: d.exec, journal: d.journal, logger: logger}
	r.gis, err = gdal.New(gdal.Binaries{
		Ogr2ogr:    d.cfg.Tools.Ogr2ogr,
		Rasterize:  d.cfg.Tools.GDALRasterize,
		Warp:       d.cfg.Tools.GDALWarp,
		Polygonize: d.cfg.Tools.GDALPolygonize,
	}, gdal.WithExecutor(exec), gdal.WithTimeout(timeout))
	if err != nil {
		return result, &StageError{Stage: StagePrepare, Err: services.Wrap(services.ErrConfiguration, "prepare", "tools", "", err)}
	}
	r.renderer, err = mapserv.New(d.cfg.Tools.Mapserv, mapserv.WithExecutor(exec), mapserv.WithTimeout(timeout))
	if err != nil {
		return result, &StageError{Stage: StagePrepare, Err: services.Wrap(services.ErrConfiguration, "prepare", "tools", "", err)}
	}

	if err = r.run(ctx); err != nil {
		return result, err
	}
	result.Rows = r.rows
	result.Renders = r.renders
	return result, nil
}

func (d *Driver) manifestOptions() manifest.Options {
	fields := make([]manifest.Field, 0, len(d.cfg.Source.Fields))
	for _, f := range d.cfg.Source.Fields {
		fields = append(fields, manifest.Field{Data: f.Data, Significance: f.Significance})
	}
	return manifest.Options{
		Dataset:         d.cfg.DatasetName(),
		OutputDir:       d.cfg.OutputDir(),
		BoundaryDir:     d.cfg.Boundaries.Dir,
		BoundaryPattern: d.cfg.Boundaries.Pattern,
		Fields:          fields,
		XRes:            d.cfg.Source.XRes,
		YRes:            d.cfg.Source.YRes,
		MapTemplate:     d.cfg.Render.MapTemplate,
		Interpolate:     d.cfg.Render.Interpolate,
	}
}

func prepareDirs(m *manifest.Manifest) error {
	for _, dir := range []string{m.BaseDir, m.TempDir, m.DataDir, m.RendersDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrFilesystem, "prepare", dir, "create output directory", err)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// runner holds the state of one run after its prerequisites are in place.
type runner struct {
	cfg      *config.Config
	m        *manifest.Manifest
	gis      *gdal.Client
	renderer *mapserv.Client
	journal  Journal
	logger   *slog.Logger

	rows    int
	renders []string
}

func (r *runner) run(ctx context.Context) error {
	if err := r.step(ctx, StageNormalize, "", "", r.normalize); err != nil {
		return err
	}
	if err := r.step(ctx, StageDescriptor, "", "", r.descriptor); err != nil {
		return err
	}
	if err := r.boundaries(ctx); err != nil {
		return err
	}
	if err := r.step(ctx, StageMapfile, "", "", r.mapfile); err != nil {
		return err
	}
	if err := r.render(ctx); err != nil {
		return err
	}
	return r.step(ctx, StageVerify, "", "", r.verify)
}

// step runs fn as one journaled, logged unit. Tool invocations inside fn are
// journaled separately by the executor.
func (r *runner) step(ctx context.Context, stage Stage, boundaryID, field string, fn func(context.Context) error) error {
	ctx = services.WithStage(ctx, string(stage))
	if boundaryID != "" {
		ctx = services.WithBoundary(ctx, boundaryID)
	}
	if field != "" {
		ctx = services.WithField(ctx, field)
	}
	logger := logging.WithContext(ctx, r.logger)
	start := time.Now()
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))

	err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		var stageErr *StageError
		if !errors.As(err, &stageErr) {
			err = &StageError{Stage: stage, Boundary: boundaryID, Field: field, Err: err}
		}
		logger.Debug("stage failed", logging.Duration("elapsed", elapsed), logging.Error(err))
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

// record journals a stage that runs no external tool.
func (r *runner) record(ctx context.Context, stage Stage, start time.Time, err error) {
	if r.journal == nil {
		return
	}
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		return
	}
	step := history.Step{
		RunID:     runID,
		Stage:     string(stage),
		Status:    history.StatusSucceeded,
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
	}
	if err != nil {
		step.Status = history.StatusFailed
		step.Error = err.Error()
	}
	if recErr := r.journal.RecordStep(context.WithoutCancel(ctx), step); recErr != nil {
		r.logger.Warn("journal step failed", logging.Error(recErr))
	}
}

func (r *runner) normalize(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { r.record(ctx, StageNormalize, start, err) }()

	src := r.cfg.Source
	if !src.Lon0360 {
		if err := lonfix.CopyFile(src.Path, r.m.TempCSV); err != nil {
			return err
		}
		rows, countErr := lonfix.CountRows(ctx, r.m.TempCSV)
		if countErr != nil {
			logging.WithContext(ctx, r.logger).Warn("row count unavailable", logging.Error(countErr))
		}
		r.rows = rows
		logging.WithContext(ctx, r.logger).Info("source copied without longitude correction", logging.Int("rows", rows), logging.String("path", r.m.TempCSV))
		return nil
	}
	rows, err := lonfix.NormalizeFile(ctx, src.Path, r.m.TempCSV, lonfix.Options{LonColumn: src.LonColumn, Encoding: src.Encoding})
	if err != nil {
		return err
	}
	r.rows = rows
	logging.WithContext(ctx, r.logger).Info("longitudes normalized", logging.Int("rows", rows), logging.String("path", r.m.TempCSV))
	return nil
}

func (r *runner) descriptor(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { r.record(ctx, StageDescriptor, start, err) }()

	columns := make([]vrt.Column, 0, len(r.cfg.Source.Fields))
	for _, f := range r.cfg.Source.Fields {
		columns = append(columns, vrt.Column{Data: f.Data, Significance: f.Significance, Type: f.Type})
	}
	doc := vrt.Build(r.m.Dataset, filepath.Base(r.m.TempCSV), r.cfg.Source.LonColumn, r.cfg.Source.LatColumn, columns)
	return vrt.Write(r.m.Descriptor, doc)
}

func (r *runner) boundaries(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.cfg.Pipeline.Workers))
	for i := range r.m.Boundaries {
		b := &r.m.Boundaries[i]
		g.Go(func() error {
			return r.boundary(gctx, b)
		})
	}
	return g.Wait()
}

func (r *runner) boundary(ctx context.Context, b *manifest.BoundaryRecord) error {
	err := r.step(ctx, StageClip, b.ID, "", func(ctx context.Context) error {
		return r.gis.Clip(ctx, gdal.ClipRequest{
			Source:      r.m.Descriptor,
			Destination: b.ClippedPath,
			Layer:       b.ClippedLayer,
			Extent:      b.Extent,
		})
	})
	if err != nil {
		return err
	}
	for _, f := range b.Fields {
		if err := r.field(ctx, b, f); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) field(ctx context.Context, b *manifest.BoundaryRecord, f manifest.FieldRecord) error {
	err := r.step(ctx, StageRasterize, b.ID, f.Name, func(ctx context.Context) error {
		return r.gis.Rasterize(ctx, gdal.RasterizeRequest{
			Source:      b.ClippedPath,
			Layer:       b.ClippedLayer,
			Attribute:   f.Attribute,
			Destination: f.RasterPath,
			XRes:        r.m.XRes,
			YRes:        r.m.YRes,
			Extent:      b.Extent,
			NoData:      dataNoData,
		})
	})
	if err != nil {
		return err
	}
	err = r.step(ctx, StageRasterizeSignificance, b.ID, f.Name, func(ctx context.Context) error {
		return r.gis.Rasterize(ctx, gdal.RasterizeRequest{
			Source:      b.ClippedPath,
			Layer:       b.ClippedLayer,
			Attribute:   f.StatisticAttribute,
			Destination: f.StatisticRasterPath,
			XRes:        r.m.XRes,
			YRes:        r.m.YRes,
			Extent:      b.Extent,
			OutputType:  "Int16",
			NoData:      classNoData,
		})
	})
	if err != nil {
		return err
	}
	if r.m.Interpolate {
		width, height := render.FitDimensions(b.Extent, r.cfg.Render.InterpolateSize)
		err = r.step(ctx, StageInterpolate, b.ID, f.Name, func(ctx context.Context) error {
			return r.gis.Resample(ctx, gdal.ResampleRequest{
				Source:      f.RasterPath,
				Destination: f.InterpolatedPath,
				Width:       width,
				Height:      height,
			})
		})
		if err != nil {
			return err
		}
	}
	return r.step(ctx, StagePolygonize, b.ID, f.Name, func(ctx context.Context) error {
		return r.gis.Polygonize(ctx, gdal.PolygonizeRequest{
			Source:      f.StatisticRasterPath,
			Destination: f.StatisticPolygonPath,
			Layer:       f.StatisticLayerName,
			ClassField:  mapfile.ClassField,
		})
	})
}

func (r *runner) mapfile(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { r.record(ctx, StageMapfile, start, err) }()

	return mapfile.Write(r.m, r.cfg.Render.MapTemplate, mapfile.Options{
		Marker:         r.cfg.Render.LayerMarker,
		ClassesInclude: r.cfg.Render.ClassesInclude,
		HighClass:      r.cfg.Render.HighClass,
		ModerateClass:  r.cfg.Render.ModerateClass,
	})
}

func (r *runner) render(ctx context.Context) error {
	jobs := render.Jobs(r.m, render.Options{
		MaxDimension: r.cfg.Render.MaxDimension,
		SRS:          r.cfg.Render.SRS,
		Format:       r.cfg.Render.Format,
	})
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.cfg.Pipeline.Workers))
	for _, job := range jobs {
		g.Go(func() error {
			return r.step(gctx, StageRender, job.Boundary, job.Field, func(ctx context.Context) error {
				return r.renderer.Render(ctx, job.Request, job.Output)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, job := range jobs {
		r.renders = append(r.renders, job.Output)
	}
	return nil
}

func (r *runner) verify(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { r.record(ctx, StageVerify, start, err) }()

	missing := r.m.Missing()
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(services.ErrExternalTool, "verify", "", fmt.Sprintf("%d expected outputs missing: %s", len(missing), strings.Join(missing, ", ")), nil)
}
