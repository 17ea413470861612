package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
	"github.com/the-scouts/incognita-sub000/internal/census"
	"github.com/the-scouts/incognita-sub000/internal/config"
	"github.com/the-scouts/incognita-sub000/internal/export"
	"github.com/the-scouts/incognita-sub000/internal/model"
	"github.com/the-scouts/incognita-sub000/internal/store"
)

var boundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Estimate district boundaries from a census extract",
	Long: "Loads geocoded sections from a census CSV or XLSX file, buffers each location by the largest radius " +
		"that does not overlap a neighbouring district, and merges the buffers into one boundary per district.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyBoundaryFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("boundaries"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var hist store.RunStore
		if cfg.Store.HistoryPath != "" {
			st, err := initHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			hist = st
		}

		result, err := runBoundaries(ctx, cfg, hist)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%d districts from %d locations in %s\n",
			result.Districts, result.Points, result.Elapsed().Round(time.Millisecond))
		for _, out := range result.Outputs {
			fmt.Fprintf(os.Stdout, "  %s\n", out)
		}
		return nil
	},
}

func init() {
	addBoundaryFlags(boundariesCmd)
	rootCmd.AddCommand(boundariesCmd)
}

func addBoundaryFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("census", "", "census extract to read (.csv or .xlsx)")
	f.String("out", "", "output directory (default from config)")
	f.String("name", "", "output file stem (default from config)")
	f.StringSlice("format", nil, "output formats: geojson, shapefile, xlsx, summary")
	f.StringArray("filter", nil, `keep rows where column matches, e.g. "C_name=Leeds,Bradford"`)
	f.StringArray("exclude", nil, `drop rows where column matches, e.g. "type=Network"`)
	f.Int("max-passes", 0, "cap on solver passes (0 = one per location)")
	f.Int("workers", 0, "neighbour search workers (0 = GOMAXPROCS)")
	f.String("clip", "", "GeoJSON outline to clip districts to")
}

// applyBoundaryFlags copies explicitly set flags over the loaded config.
func applyBoundaryFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && f.Changed(name) {
			err = apply()
		}
	}
	set("census", func() (e error) { c.Census.Path, e = f.GetString("census"); return })
	set("out", func() (e error) { c.Output.Dir, e = f.GetString("out"); return })
	set("name", func() (e error) { c.Output.Name, e = f.GetString("name"); return })
	set("format", func() (e error) { c.Output.Formats, e = f.GetStringSlice("format"); return })
	set("filter", func() (e error) { c.Census.Include, e = f.GetStringArray("filter"); return })
	set("exclude", func() (e error) { c.Census.Exclude, e = f.GetStringArray("exclude"); return })
	set("max-passes", func() (e error) { c.Boundary.MaxPasses, e = f.GetInt("max-passes"); return })
	set("workers", func() (e error) { c.Boundary.Workers, e = f.GetInt("workers"); return })
	set("clip", func() (e error) { c.Boundary.ClipPath, e = f.GetString("clip"); return })
	return err
}

// runBoundaries records the run in hist (when set) around estimateBoundaries.
func runBoundaries(ctx context.Context, c *config.Config, hist store.RunStore) (*model.RunResult, error) {
	runID := uuid.NewString()
	if hist != nil {
		run, err := hist.CreateRun(ctx, c.Census.Path)
		if err != nil {
			return nil, err
		}
		runID = run.ID
	}

	result, err := estimateBoundaries(ctx, c, runID)
	if hist == nil {
		return result, err
	}

	// The run context may already be cancelled; history must still be written.
	recCtx := context.WithoutCancel(ctx)
	if err != nil {
		if ferr := hist.FailRun(recCtx, runID, err.Error()); ferr != nil {
			zap.L().Warn("record failed run", zap.String("run_id", runID), zap.Error(ferr))
		}
		return nil, err
	}
	if err := hist.CompleteRun(recCtx, runID, result); err != nil {
		return nil, eris.Wrap(err, "record run")
	}
	return result, nil
}

// estimateBoundaries loads the census, estimates boundaries and writes every
// configured output.
func estimateBoundaries(ctx context.Context, c *config.Config, runID string) (*model.RunResult, error) {
	started := time.Now()
	log := zap.L().With(zap.String("run_id", runID))

	tbl, err := census.LoadFile(ctx, c.Census.Path, census.Columns(c.Census.Columns))
	if err != nil {
		return nil, err
	}
	filters, err := census.ParseFilters(c.Census.Include, c.Census.Exclude)
	if err != nil {
		return nil, err
	}
	if tbl, err = tbl.Apply(filters); err != nil {
		return nil, err
	}

	est, err := boundary.NewEstimator(estimatorOptions(c.Boundary))
	if err != nil {
		return nil, err
	}
	res, err := est.Estimate(ctx, tbl.BoundaryRecords(), tbl.Districts())
	if err != nil {
		return nil, err
	}

	outputs, err := writeOutputs(c.Output, res)
	if err != nil {
		return nil, err
	}

	if c.Store.Driver == "postgres" {
		pg, closeFn, err := initPublisher(ctx, c)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		n, err := pg.PublishDistricts(ctx, runID, res.Districts)
		if err != nil {
			return nil, err
		}
		log.Info("published districts", zap.Int64("rows", n))
	}

	if c.Output.HasFormat(config.FormatSummary) {
		path := outputPath(c.Output, "_summary.yaml")
		summary := export.NewSummary(runID, c.Census.Path, started, res)
		summary.Records = tbl.Stats
		summary.Outputs = outputs
		if err := export.WriteSummary(path, summary); err != nil {
			return nil, err
		}
		outputs = append(outputs, path)
	}

	return &model.RunResult{
		Records:    tbl.Stats.Rows,
		Points:     res.Points.Len(),
		Districts:  len(res.Districts),
		Skipped:    len(res.Skipped),
		Unresolved: res.Solve.Unresolved,
		Passes:     res.Solve.Passes,
		CapReached: res.Solve.CapReached,
		ElapsedMS:  time.Since(started).Milliseconds(),
		Outputs:    outputs,
	}, nil
}

func estimatorOptions(b config.BoundaryConfig) boundary.Options {
	return boundary.Options{
		Projection: boundary.ProjectionConfig{
			Geographic: b.Geographic,
			Planar:     b.Planar,
			Domain: boundary.Domain{
				MinLon: b.Domain.MinLon,
				MinLat: b.Domain.MinLat,
				MaxLon: b.Domain.MaxLon,
				MaxLat: b.Domain.MaxLat,
			},
		},
		Solver:   boundary.SolverConfig{MaxPasses: b.MaxPasses},
		Workers:  b.Workers,
		QuadSegs: b.QuadSegs,
		ClipPath: b.ClipPath,
	}
}

// writeOutputs writes the file formats other than the summary and returns
// their paths.
func writeOutputs(o config.OutputConfig, res *boundary.Result) ([]string, error) {
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "create output dir %s", o.Dir)
	}

	var outputs []string
	if o.HasFormat(config.FormatGeoJSON) {
		path := outputPath(o, ".geojson")
		if err := export.WriteGeoJSONFile(path, res.Districts); err != nil {
			return nil, err
		}
		outputs = append(outputs, path)
	}
	if o.HasFormat(config.FormatShapefile) {
		path := outputPath(o, ".shp")
		if err := export.WriteShapefile(path, res.Districts); err != nil {
			return nil, err
		}
		outputs = append(outputs, path)
	}
	if o.HasFormat(config.FormatXLSX) {
		path := outputPath(o, "_report.xlsx")
		if err := export.WriteReport(path, export.Rows(res), res.Skipped); err != nil {
			return nil, err
		}
		outputs = append(outputs, path)
	}
	return outputs, nil
}

func outputPath(o config.OutputConfig, suffix string) string {
	return filepath.Join(o.Dir, o.Name+suffix)
}
