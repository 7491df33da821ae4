package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Moni003/docksmaker"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// RunParameters describes a Monte-Carlo run in its parameters file.
type RunParameters struct {
	Date        string // DOCKS date of the initial conditions.
	R0, Target  docksmaker.Vector
	V0          docksmaker.Vector
	TOF         float64
	Arrival     string
	Central     string
	Perturbers  []string
	Samples     int
	Seed        uint64
	Sampler     string
	Scoring     string
	BestIndex   int // -1 if no sample was retained.
	BestScore   float64
	BestInitial docksmaker.State
}

// FileSink writes the initial conditions of every sample to its own DOCKS file in a run directory,
// and the run parameters once the search is done.
type FileSink struct {
	Dir     string
	date    string
	written []int
	deltas  []*docksmaker.Vector
	logger  log.Logger
}

// NewFileSink creates the run_<timestamp> directory under root.
func NewFileSink(root, date string, now time.Time, logger log.Logger) (*FileSink, error) {
	if _, err := time.Parse(docksmaker.DateFormat, date); err != nil {
		return nil, fmt.Errorf("invalid DOCKS date: %w", err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	dir := filepath.Join(root, "run_"+now.Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	level.Info(logger).Log("subsys", "store", "run", dir)
	return &FileSink{Dir: dir, date: date, logger: logger}, nil
}

// Record implements docksmaker.SampleSink. Samples whose candidate could not be drawn are not written.
func (f *FileSink) Record(s docksmaker.Sample) error {
	if !s.Initial.IsFinite() || s.Initial == (docksmaker.State{}) {
		return nil
	}
	name := filepath.Join(f.Dir, iterationName(s.Index))
	if err := docksmaker.WriteDOCKSFile(name, f.date, s.Initial); err != nil {
		return err
	}
	f.written = append(f.written, s.Index)
	f.deltas = append(f.deltas, s.DeltaV)
	level.Debug(f.logger).Log("subsys", "store", "wrote", name)
	return nil
}

// Files returns the names of the written initial conditions files.
func (f *FileSink) Files() []string {
	names := make([]string, len(f.written))
	for i, idx := range f.written {
		names[i] = iterationName(idx)
	}
	return names
}

// WriteParameters writes parametres.txt in the run directory.
func (f *FileSink) WriteParameters(p RunParameters) error {
	fd, err := os.Create(filepath.Join(f.Dir, "parametres.txt"))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fd)
	km := func(v docksmaker.Vector) string {
		return fmt.Sprintf("[%.6e, %.6e, %.6e]", v[0]/1e3, v[1]/1e3, v[2]/1e3)
	}
	fmt.Fprintln(w, "=== MONTE CARLO RUN PARAMETERS ===")
	fmt.Fprintf(w, "Run: %s\n\n", filepath.Base(f.Dir))
	fmt.Fprintln(w, "=== STATES ===")
	fmt.Fprintf(w, "r0 (km): %s\n", km(p.R0))
	fmt.Fprintf(w, "target (km): %s\n", km(p.Target))
	fmt.Fprintf(w, "v0 (km/s): %s\n\n", km(p.V0))
	fmt.Fprintln(w, "=== TIME ===")
	fmt.Fprintf(w, "Departure: %s\n", p.Date)
	fmt.Fprintf(w, "Time of flight (s): %g\n", p.TOF)
	fmt.Fprintf(w, "Arrival: %s\n\n", p.Arrival)
	fmt.Fprintln(w, "=== BODIES ===")
	fmt.Fprintf(w, "Central body: %s\n", p.Central)
	fmt.Fprintf(w, "Perturbers: %s\n\n", strings.Join(p.Perturbers, ", "))
	fmt.Fprintln(w, "=== MONTE CARLO ===")
	fmt.Fprintf(w, "Samples: %d\n", p.Samples)
	fmt.Fprintf(w, "Seed: %d\n", p.Seed)
	fmt.Fprintf(w, "Sampler: %s\n", p.Sampler)
	fmt.Fprintf(w, "Scoring: %s\n", p.Scoring)
	if p.BestIndex >= 0 {
		fmt.Fprintf(w, "Best: %s (score %.6e m)\n", iterationName(p.BestIndex), p.BestScore)
		fmt.Fprintf(w, "Best initial conditions: %s", docksmaker.FormatDOCKS(p.Date, p.BestInitial))
	} else {
		fmt.Fprintln(w, "Best: none")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== VELOCITY DELTAS ===")
	for i, idx := range f.written {
		if dv := f.deltas[i]; dv != nil {
			fmt.Fprintf(w, "  Iteration %03d: [%.12e, %.12e, %.12e] km/s\n", idx+1, dv[0]/1e3, dv[1]/1e3, dv[2]/1e3)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== FILES ===")
	for _, name := range f.Files() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== INITIAL CONDITIONS FORMAT ===")
	fmt.Fprintln(w, "Columns: date rx ry rz vx vy vz")
	fmt.Fprintln(w, "Units: - km km km km/s km/s km/s")
	fmt.Fprintln(w, "Separator: tab")
	if err := w.Flush(); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}
