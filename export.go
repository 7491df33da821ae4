package docksmaker

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const (
	// DateFormat is the date format of DOCKS initial conditions records.
	DateFormat = "2006-01-02T15:04:05"
	// docksMetaStop ends the header of a DOCKS trajectory file.
	docksMetaStop = "META_STOP"
	// mjdOffset converts between Julian and modified Julian dates.
	mjdOffset = 2400000.5
)

// FormatDOCKS returns the DOCKS initial conditions record of a state given in m and m/s.
// The record holds the date, the position in km and the velocity in km/s, tab separated,
// and ends with a single new line.
func FormatDOCKS(date string, s State) string {
	var b strings.Builder
	b.WriteString(date)
	for _, x := range s.R {
		fmt.Fprintf(&b, "\t%.15e", x/1e3)
	}
	for _, x := range s.V {
		fmt.Fprintf(&b, "\t%.15e", x/1e3)
	}
	b.WriteByte('\n')
	return b.String()
}

// WriteDOCKS writes the DOCKS initial conditions record of a state.
func WriteDOCKS(w io.Writer, date string, s State) error {
	if !s.IsFinite() {
		return newError("docks", InvalidInput, fmt.Errorf("non finite state"), "state", s)
	}
	_, err := io.WriteString(w, FormatDOCKS(date, s))
	return err
}

// WriteDOCKSFile creates (or truncates) the named file with the single record of a state.
func WriteDOCKSFile(name, date string, s State) error {
	fd, err := os.Create(name)
	if err != nil {
		return err
	}
	if err = WriteDOCKS(fd, date, s); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}

// ParseDOCKS parses a DOCKS initial conditions record back into a state in m and m/s.
func ParseDOCKS(line string) (date string, s State, err error) {
	record := strings.Fields(line)
	if len(record) != 7 {
		err = fmt.Errorf("expected 7 fields in DOCKS record, got %d", len(record))
		return
	}
	if _, err = time.Parse(DateFormat, record[0]); err != nil {
		return
	}
	date = record[0]
	var vals [6]float64
	for i := range vals {
		if vals[i], err = strconv.ParseFloat(record[i+1], 64); err != nil {
			return
		}
		vals[i] *= 1e3
	}
	s = StateFromSlice(vals[:])
	return
}

// DOCKSTrajectory is a trajectory read from a DOCKS ephemeris file (converted to m and m/s).
type DOCKSTrajectory struct {
	Epochs     []time.Time
	Times      []float64 // Seconds since the first epoch.
	Positions  []Vector
	Velocities []Vector // Only filled when the file has velocity columns.
}

// ReadDOCKSTrajectory reads a DOCKS trajectory file. The header runs until META_STOP; each record then
// holds the MJD, the seconds in day, the position in km and optionally the velocity in km/s (and the
// acceleration, which is ignored). Lines which cannot be parsed are skipped and counted.
func ReadDOCKSTrajectory(r io.Reader) (traj *DOCKSTrajectory, skipped int, err error) {
	traj = &DOCKSTrajectory{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	inHeader := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == docksMetaStop {
			inHeader = false
			continue
		}
		if inHeader || line == "" || strings.HasPrefix(line, "COMMENT") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 5 {
			skipped++
			continue
		}
		var vals []float64
		for _, p := range parts {
			v, perr := strconv.ParseFloat(p, 64)
			if perr != nil {
				break
			}
			vals = append(vals, v)
		}
		if len(vals) < 5 {
			skipped++
			continue
		}
		jd := vals[0] + vals[1]/86400 + mjdOffset
		// JD arithmetic is only good to tens of microseconds.
		epoch := julian.JDToTime(jd).Round(time.Millisecond)
		traj.Epochs = append(traj.Epochs, epoch)
		traj.Times = append(traj.Times, epoch.Sub(traj.Epochs[0]).Seconds())
		traj.Positions = append(traj.Positions, Vector{vals[2], vals[3], vals[4]}.Scale(1e3))
		if len(vals) >= 8 {
			traj.Velocities = append(traj.Velocities, Vector{vals[5], vals[6], vals[7]}.Scale(1e3))
		}
	}
	if err = scanner.Err(); err != nil {
		return
	}
	if inHeader {
		err = fmt.Errorf("no %s marker found", docksMetaStop)
	} else if len(traj.Positions) == 0 {
		err = fmt.Errorf("no trajectory records")
	}
	return
}

// ClosestApproach is the closest approach of the trajectory to the target.
func (t *DOCKSTrajectory) ClosestApproach(target Vector) (dist float64, idx int, epoch time.Time) {
	dist, idx, _ = ClosestApproachPositions(target, t.Positions, t.Times)
	if idx >= 0 {
		epoch = t.Epochs[idx]
	}
	return
}

// Final returns the last position of the trajectory.
func (t *DOCKSTrajectory) Final() Vector {
	return t.Positions[len(t.Positions)-1]
}

// TrajectoryCost compares a recorded trajectory with a target position.
type TrajectoryCost struct {
	Target          Vector
	Records         int
	Closest         float64 // Closest approach distance (m).
	ClosestIndex    int
	ClosestEpoch    time.Time
	ClosestPosition Vector
	Final           float64 // Distance of the last record (m).
	FinalEpoch      time.Time
	FinalPosition   Vector
}

// Cost returns the closest approach and terminal distances of the trajectory to the target.
func (t *DOCKSTrajectory) Cost(target Vector) (TrajectoryCost, error) {
	if len(t.Positions) == 0 {
		return TrajectoryCost{}, newError("cost", InvalidInput, fmt.Errorf("empty trajectory"))
	}
	if !target.IsFinite() {
		return TrajectoryCost{}, newError("cost", InvalidInput, fmt.Errorf("non finite target"))
	}
	c := TrajectoryCost{Target: target, Records: len(t.Positions)}
	c.Closest, c.ClosestIndex, c.ClosestEpoch = t.ClosestApproach(target)
	c.ClosestPosition = t.Positions[c.ClosestIndex]
	c.FinalPosition = t.Final()
	c.FinalEpoch = t.Epochs[len(t.Epochs)-1]
	c.Final = c.FinalPosition.Sub(target).Norm()
	return c, nil
}

// Improvement is how much closer the closest approach is than the last record (m).
func (c TrajectoryCost) Improvement() float64 {
	return c.Final - c.Closest
}

func mjd(t time.Time) float64 {
	return julian.TimeToJD(t) - mjdOffset
}

// WriteReport writes the cost report, distances in km.
func (c TrajectoryCost) WriteReport(w io.Writer, source string) error {
	km := func(v Vector) string {
		return fmt.Sprintf("[%.6e, %.6e, %.6e]", v[0]/1e3, v[1]/1e3, v[2]/1e3)
	}
	ew := &errWriter{w: w}
	ew.printf("=== COST FUNCTION ===\n")
	ew.printf("Trajectory: %s\n", source)
	ew.printf("Target (km): %s\n\n", km(c.Target))
	ew.printf("f = min_t |target - r(t)| = %.6f km\n\n", c.Closest/1e3)
	ew.printf("Closest record: %d/%d\n", c.ClosestIndex, c.Records)
	ew.printf("Closest epoch: %.6f MJD (%s UTC)\n", mjd(c.ClosestEpoch), c.ClosestEpoch.Format("2006-01-02 15:04:05"))
	ew.printf("Closest position (km): %s\n", km(c.ClosestPosition))
	ew.printf("Error vector (km): %s\n\n", km(c.Target.Sub(c.ClosestPosition)))
	ew.printf("Final position (km): %s\n", km(c.FinalPosition))
	ew.printf("Final epoch: %.6f MJD (%s UTC)\n", mjd(c.FinalEpoch), c.FinalEpoch.Format("2006-01-02 15:04:05"))
	ew.printf("Final distance: %.6f km\n", c.Final/1e3)
	ew.printf("Final error vector (km): %s\n", km(c.Target.Sub(c.FinalPosition)))
	ew.printf("Closest vs final improvement: %.6f km\n", c.Improvement()/1e3)
	return ew.err
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
