package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/forestline/corridor/internal/diag"
	"github.com/forestline/corridor/internal/execute"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/report"
	"github.com/forestline/corridor/internal/runstore"
	"github.com/forestline/corridor/internal/timeutil"
)

// Env holds the services shared by one tool invocation. Everything but
// Mode and Workers is optional.
type Env struct {
	Mode    execute.Mode
	Workers int

	Runs   *runstore.Store // run ledger; nil records nothing
	Report string          // HTML report path; empty writes none
	Debug  *diag.Dumper    // per-line debug rasters; nil writes none
	Clock  timeutil.Clock  // nil uses the real clock
}

func (e Env) clock() timeutil.Clock {
	if e.Clock == nil {
		return timeutil.RealClock{}
	}
	return e.Clock
}

// ledger collects per-line outcomes from concurrent workers.
type ledger struct {
	mu    sync.Mutex
	lines []runstore.LineResult
}

func (l *ledger) add(r runstore.LineResult) {
	l.mu.Lock()
	l.lines = append(l.lines, r)
	l.mu.Unlock()
}

// results returns the outcomes ordered by FID and segment.
func (l *ledger) results() []runstore.LineResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]runstore.LineResult(nil), l.lines...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].FID != out[j].FID {
			return out[i].FID < out[j].FID
		}
		return out[i].Seg < out[j].Seg
	})
	return out
}

// session tracks one tool run from start to finish.
type session struct {
	env     Env
	tool    string
	run     *runstore.Run
	started time.Time
	ledger  ledger
}

func (e Env) begin(tool, input, output string, params interface{}) *session {
	s := &session{env: e, tool: tool, started: e.clock().Now()}
	monitoring.Opsf("%s: started (input %s, output %s)", tool, input, output)
	if e.Runs != nil {
		run, err := e.Runs.Begin(tool, input, output, params)
		if err != nil {
			monitoring.Opsf("%s: run ledger unavailable: %v", tool, err)
		} else {
			s.run = run
		}
	}
	return s
}

// lineOutcome describes a successful result for the ledger.
type lineOutcome struct {
	status string
	width  float64
}

// tracked wraps a per-line worker so every call lands in the ledger.
// describe may be nil; results are then recorded as plain successes.
func tracked[Out any](s *session, fn func(context.Context, geom.Feature) (Out, error), describe func(Out) lineOutcome) func(context.Context, geom.Feature) (Out, error) {
	clock := s.env.clock()
	return func(ctx context.Context, f geom.Feature) (Out, error) {
		start := clock.Now()
		out, err := fn(ctx, f)
		r := runstore.LineResult{
			FID:       f.FID,
			Seg:       f.Seg,
			ElapsedMs: float64(clock.Since(start).Microseconds()) / 1000,
		}
		switch {
		case err == nil:
			r.Status = runstore.LineSucceeded
			if describe != nil {
				o := describe(out)
				r.Width = o.width
				if o.status != "" {
					r.Status = o.status
				}
			}
		default:
			r.Status = runstore.LineSkipped
			r.Reason = failure.ReasonOf(err).String()
			monitoring.Opsf("%s: line %d/%d skipped: %v", s.tool, f.FID, f.Seg, err)
		}
		s.ledger.add(r)
		return out, err
	}
}

// finish closes the run record and writes the report. Ledger and report
// failures are logged; the tool's own error is returned unchanged.
func (s *session) finish(runErr error) error {
	lines := s.ledger.results()
	elapsed := s.env.clock().Since(s.started)

	skipped := 0
	for _, l := range lines {
		if l.Status == runstore.LineSkipped {
			skipped++
		}
	}
	if skipped > 0 {
		monitoring.Opsf("%s: %d of %d lines produced no result", s.tool, skipped, len(lines))
	}

	runID := ""
	if s.run != nil {
		runID = s.run.RunID
		if err := s.env.Runs.RecordLines(runID, lines); err != nil {
			monitoring.Opsf("%s: record line results: %v", s.tool, err)
		}
		if err := s.env.Runs.Finish(s.run, runErr); err != nil {
			monitoring.Opsf("%s: finish run %s: %v", s.tool, runID, err)
		}
	}

	if s.env.Report != "" {
		err := report.WriteFile(s.env.Report, report.Summary{
			Tool:    s.tool,
			RunID:   runID,
			Started: s.started,
			Elapsed: elapsed,
			Lines:   lines,
		})
		if err != nil {
			monitoring.Opsf("%s: write report: %v", s.tool, err)
		} else {
			monitoring.Diagf("%s: report written to %s", s.tool, s.env.Report)
		}
	}

	if runErr != nil {
		monitoring.Opsf("%s: failed after %v: %v", s.tool, elapsed.Round(time.Millisecond), runErr)
		return runErr
	}
	monitoring.Opsf("%s: finished in %v", s.tool, elapsed.Round(time.Millisecond))
	return nil
}

// errNoResults builds the aggregation error for a tool that produced
// nothing to write.
func errNoResults(what string) error {
	return fmt.Errorf("%w: no %s generated, output file not written", failure.ErrAggregation, what)
}
