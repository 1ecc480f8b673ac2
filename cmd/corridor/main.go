package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forestline/corridor/internal/config"
	"github.com/forestline/corridor/internal/diag"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/pipeline"
	"github.com/forestline/corridor/internal/runstore"
	"github.com/forestline/corridor/internal/timeutil"
	"github.com/forestline/corridor/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// errUsage marks command line mistakes; the usage text has already been
// printed by the flag set.
var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "centerline":
		err = handleCenterline(ctx, rest, stderr)
	case "footprint-abs":
		err = handleFootprintAbs(ctx, rest, stderr)
	case "footprint-fixed":
		err = handleFootprintFixed(ctx, rest, stderr)
	case "check-seed-line":
		err = handleCheckSeedLine(ctx, rest, stderr)
	case "vertex-optimization":
		err = handleVertexOptimization(ctx, rest, stderr)
	case "runs":
		err = handleRuns(rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 1
	}

	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "corridor %s: %v\n", command, err)
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `corridor - canopy corridor tools for seismic and access lines

Usage: corridor <command> [options]

Commands:
  centerline           Reconstruct line centerlines through the canopy
  footprint-abs        Derive footprints from the least-cost corridor
  footprint-fixed      Buffer lines by widths sampled from footprints
  check-seed-line      Clean, split and group a seed line network
  vertex-optimization  Move shared vertices onto least-cost positions
  runs                 List recorded runs
  version              Show version information
  help                 Show this help message

Common Flags:
  --config <file>      Tool configuration (JSON)
  --processes <n>      Worker count (-1 uses every CPU)
  --mode <name>        sequential, multiprocessing or concurrent
  --verbose            Log per-stage diagnostics
  --trace              Log per-line telemetry
  --runs-db <file>     Record the run in a SQLite ledger
  --report <file>      Write an HTML run report
  --debug-dir <dir>    Write per-line debug heatmaps

Examples:
  corridor centerline --lines seed.gpkg --chm chm.tif --out centerline.gpkg
  corridor footprint-fixed --lines centerline.gpkg --footprints footprint.gpkg --out fixed.gpkg
  corridor runs --runs-db runs.db --limit 10
`)
}

// common holds the flags shared by every processing command.
type common struct {
	configPath string
	processes  int
	mode       string
	verbose    bool
	trace      bool
	runsDB     string
	report     string
	debugDir   string
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "Tool configuration file (JSON)")
	fs.IntVar(&c.processes, "processes", 0, "Worker count; -1 uses every CPU, 0 keeps the configured value")
	fs.StringVar(&c.mode, "mode", "", "Execution mode: sequential, multiprocessing or concurrent")
	fs.BoolVar(&c.verbose, "verbose", false, "Log per-stage diagnostics")
	fs.BoolVar(&c.trace, "trace", false, "Log per-line telemetry")
	fs.StringVar(&c.runsDB, "runs-db", "", "SQLite run ledger path")
	fs.StringVar(&c.report, "report", "", "HTML run report path")
	fs.StringVar(&c.debugDir, "debug-dir", "", "Directory for per-line debug heatmaps")
	return fs, c
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "unexpected arguments: %v\n", fs.Args())
		return errUsage
	}
	return nil
}

func required(fs *flag.FlagSet, names ...string) error {
	for _, n := range names {
		if fs.Lookup(n).Value.String() == "" {
			fmt.Fprintf(fs.Output(), "--%s is required\n", n)
			fs.Usage()
			return errUsage
		}
	}
	return nil
}

// setup loads the configuration, applies flag overrides, routes the log
// streams and opens the optional services. The returned closer releases
// them.
func (c *common) setup(stderr io.Writer) (*config.ToolConfig, pipeline.Env, func(), error) {
	w := monitoring.LogWriters{Ops: stderr}
	if c.verbose || c.trace {
		w.Diag = stderr
	}
	if c.trace {
		w.Trace = stderr
	}
	monitoring.SetLogWriters(w)

	cfg := config.EmptyToolConfig()
	if c.configPath != "" {
		loaded, err := config.LoadToolConfig(c.configPath)
		if err != nil {
			return nil, pipeline.Env{}, nil, err
		}
		cfg = loaded
		monitoring.Diagf("loaded configuration from %s", c.configPath)
	}
	if c.mode != "" {
		if _, err := config.ParseParallelMode(c.mode); err != nil {
			return nil, pipeline.Env{}, nil, err
		}
		mode := c.mode
		cfg.ParallelMode = &mode
	}
	if c.processes != 0 {
		n := c.processes
		cfg.Processes = &n
	}
	if err := cfg.Validate(); err != nil {
		return nil, pipeline.Env{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	env := pipeline.Env{
		Mode:    cfg.GetParallelMode(),
		Workers: cfg.GetProcesses(),
		Report:  c.report,
		Debug:   diag.NewDumper(c.debugDir),
	}
	closer := func() {}
	if c.runsDB != "" {
		store, err := runstore.Open(c.runsDB, timeutil.RealClock{})
		if err != nil {
			return nil, pipeline.Env{}, nil, err
		}
		env.Runs = store
		closer = func() {
			if err := store.Close(); err != nil {
				monitoring.Opsf("close run ledger: %v", err)
			}
		}
	}
	if c.debugDir != "" {
		if err := os.MkdirAll(c.debugDir, 0o755); err != nil {
			closer()
			return nil, pipeline.Env{}, nil, fmt.Errorf("create debug dir: %w", err)
		}
	}
	return cfg, env, closer, nil
}

func handleCenterline(ctx context.Context, args []string, stderr io.Writer) error {
	fs, c := newFlagSet("centerline", stderr)
	var in pipeline.CenterlineInput
	fs.StringVar(&in.Lines, "lines", "", "Input line file (required)")
	fs.StringVar(&in.LinesLayer, "lines-layer", "", "Input line layer")
	fs.StringVar(&in.CHM, "chm", "", "Canopy height model raster (required)")
	fs.StringVar(&in.Output, "out", "", "Output file (required)")
	fs.StringVar(&in.OutputLayer, "out-layer", "", "Output centerline layer")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "lines", "chm", "out"); err != nil {
		return err
	}
	cfg, env, closer, err := c.setup(stderr)
	if err != nil {
		return err
	}
	defer closer()
	return pipeline.Centerline(ctx, in, cfg, env)
}

func handleFootprintAbs(ctx context.Context, args []string, stderr io.Writer) error {
	fs, c := newFlagSet("footprint-abs", stderr)
	var in pipeline.FootprintInput
	fs.StringVar(&in.Lines, "lines", "", "Input line file (required)")
	fs.StringVar(&in.LinesLayer, "lines-layer", "", "Input line layer")
	fs.StringVar(&in.CHM, "chm", "", "Canopy height model raster (required)")
	fs.StringVar(&in.Output, "out", "", "Output file (required)")
	fs.StringVar(&in.OutputLayer, "out-layer", "", "Output footprint layer")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "lines", "chm", "out"); err != nil {
		return err
	}
	cfg, env, closer, err := c.setup(stderr)
	if err != nil {
		return err
	}
	defer closer()
	return pipeline.FootprintAbsolute(ctx, in, cfg, env)
}

func handleFootprintFixed(ctx context.Context, args []string, stderr io.Writer) error {
	fs, c := newFlagSet("footprint-fixed", stderr)
	var in pipeline.FixedInput
	fs.StringVar(&in.Lines, "lines", "", "Input line file, optionally with a least_cost_path layer (required)")
	fs.StringVar(&in.LinesLayer, "lines-layer", "", "Input line layer")
	fs.StringVar(&in.Footprints, "footprints", "", "Footprint polygon file (required)")
	fs.StringVar(&in.FootprintsLayer, "footprints-layer", "", "Footprint polygon layer")
	fs.StringVar(&in.Output, "out", "", "Output file (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "lines", "footprints", "out"); err != nil {
		return err
	}
	cfg, env, closer, err := c.setup(stderr)
	if err != nil {
		return err
	}
	defer closer()
	return pipeline.FootprintFixed(ctx, in, cfg, env)
}

func handleCheckSeedLine(ctx context.Context, args []string, stderr io.Writer) error {
	fs, c := newFlagSet("check-seed-line", stderr)
	var in pipeline.CheckSeedInput
	fs.StringVar(&in.Lines, "lines", "", "Seed line file (required)")
	fs.StringVar(&in.LinesLayer, "lines-layer", "", "Seed line layer")
	fs.StringVar(&in.Output, "out", "", "Output file (required)")
	fs.StringVar(&in.OutputLayer, "out-layer", "", "Output layer")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "lines", "out"); err != nil {
		return err
	}
	cfg, env, closer, err := c.setup(stderr)
	if err != nil {
		return err
	}
	defer closer()
	return pipeline.CheckSeedLine(ctx, in, cfg, env)
}

func handleVertexOptimization(ctx context.Context, args []string, stderr io.Writer) error {
	fs, c := newFlagSet("vertex-optimization", stderr)
	var in pipeline.VertexInput
	fs.StringVar(&in.Lines, "lines", "", "Input line file (required)")
	fs.StringVar(&in.LinesLayer, "lines-layer", "", "Input line layer")
	fs.StringVar(&in.CHM, "chm", "", "Canopy height model raster (required)")
	fs.StringVar(&in.Output, "out", "", "Output file (required)")
	fs.StringVar(&in.OutputLayer, "out-layer", "", "Output layer")
	radius := fs.Float64("line-radius", -1, "Anchor distance along each line; negative uses the default")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "lines", "chm", "out"); err != nil {
		return err
	}
	if *radius >= 0 {
		in.LineRadius = radius
	}
	cfg, env, closer, err := c.setup(stderr)
	if err != nil {
		return err
	}
	defer closer()
	return pipeline.VertexOptimization(ctx, in, cfg, env)
}

func handleRuns(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("runs-db", "", "SQLite run ledger path (required)")
	limit := fs.Int("limit", 20, "Number of runs to list; 0 lists all")
	runID := fs.String("id", "", "Show the line results of one run")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, "runs-db"); err != nil {
		return err
	}
	monitoring.SetLogWriters(monitoring.LogWriters{Ops: stderr})

	store, err := runstore.Open(*dbPath, timeutil.RealClock{})
	if err != nil {
		return err
	}
	defer store.Close()

	if *runID != "" {
		run, err := store.Get(*runID)
		if err != nil {
			return err
		}
		lines, err := store.Lines(*runID)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(stdout, struct {
				Run   *runstore.Run         `json:"run"`
				Lines []runstore.LineResult `json:"lines"`
			}{run, lines})
		}
		printRun(stdout, run)
		fmt.Fprintf(stdout, "\n%-8s %-5s %-20s %-16s %8s %10s\n", "OLnFID", "SEG", "STATUS", "REASON", "WIDTH", "ELAPSED")
		for _, l := range lines {
			fmt.Fprintf(stdout, "%-8d %-5d %-20s %-16s %8.2f %8.1fms\n", l.FID, l.Seg, l.Status, l.Reason, l.Width, l.ElapsedMs)
		}
		return nil
	}

	runs, err := store.List(*limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(stdout, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(stdout, "%-36s  %-20s %-10s %6s %6s  %s\n", "RUN", "TOOL", "STATUS", "LINES", "SKIP", "STARTED")
	for _, r := range runs {
		fmt.Fprintf(stdout, "%-36s  %-20s %-10s %6d %6d  %s\n",
			r.RunID, r.Tool, r.Status, r.LineCount, r.SkipCount, startedAt(r).Format(time.RFC3339))
	}
	return nil
}

func printRun(w io.Writer, r *runstore.Run) {
	fmt.Fprintf(w, "Run:      %s\n", r.RunID)
	fmt.Fprintf(w, "Tool:     %s\n", r.Tool)
	fmt.Fprintf(w, "Input:    %s\n", r.InputPath)
	fmt.Fprintf(w, "Output:   %s\n", r.OutputPath)
	fmt.Fprintf(w, "Status:   %s\n", r.Status)
	fmt.Fprintf(w, "Started:  %s\n", startedAt(r).Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %v\n", r.Duration())
	fmt.Fprintf(w, "Lines:    %d (%d skipped)\n", r.LineCount, r.SkipCount)
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.Error)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func startedAt(r *runstore.Run) time.Time {
	return time.Unix(0, r.StartedAt)
}
