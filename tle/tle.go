// Package tle converts NORAD two-line element sets into classical orbital elements
// and reads and writes them in the orbital parameters CSV format.
package tle

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Moni003/docksmaker"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	// EarthMu is the gravitational parameter used to convert the mean motion, in km^3/s^2.
	EarthMu = 398600.4418
	// keplerMaxIter and keplerε bound the Newton solve of Kepler's equation.
	keplerMaxIter = 60
	keplerε       = 1e-12
	// circularε is the eccentricity under which the mean anomaly is used as the true anomaly.
	circularε = 1e-12
	// EpochFormat is the layout of the epoch column.
	EpochFormat = "2006-01-02T15:04:05.000000Z"
)

// Header lists the CSV columns, in order.
var Header = []string{
	"nom", "epoque_utc", "demi_grand_axe_km", "excentricite", "inclinaison_deg",
	"noeud_ascendant_deg", "argument_perigee_deg", "anomalie_vraie_deg",
}

// Record holds the classical elements extracted from a TLE. Angles are in degrees.
// Fields which could not be parsed are NaN, and a zero Epoch means the epoch was unreadable.
type Record struct {
	Name          string
	Epoch         time.Time
	SemiMajorAxis float64 // km
	Eccentricity  float64
	Inclination   float64
	RAAN          float64
	AoP           float64
	TrueAnomaly   float64
	MeanAnomaly   float64 // Not written to the CSV.
	MeanMotion    float64 // rev/day, not written to the CSV.
}

// Elements converts the record to engine elements (meters and radians).
func (r Record) Elements() (docksmaker.Elements, error) {
	el := docksmaker.NewElements(r.SemiMajorAxis*1e3, r.Eccentricity, r.Inclination, r.RAAN, r.AoP, r.TrueAnomaly)
	if err := el.Validate(); err != nil {
		return el, fmt.Errorf("%s: %w", r.Name, err)
	}
	return el, nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s @ %s a=%.3f km e=%.7f i=%.4f Ω=%.4f ω=%.4f ν=%.4f", r.Name, r.epochString(),
		r.SemiMajorAxis, r.Eccentricity, r.Inclination, r.RAAN, r.AoP, r.TrueAnomaly)
}

func (r Record) epochString() string {
	if r.Epoch.IsZero() {
		return ""
	}
	if r.Epoch.Nanosecond() == 0 {
		return r.Epoch.Format("2006-01-02T15:04:05Z")
	}
	return r.Epoch.Format(EpochFormat)
}

// field returns s[lo:hi] trimmed, clipped to the length of s.
func field(s string, lo, hi int) string {
	if lo >= len(s) {
		return ""
	}
	if hi > len(s) {
		hi = len(s)
	}
	return strings.TrimSpace(s[lo:hi])
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseEpoch reads the YYDDD.DDDDDDDD epoch of line 1. Years below 57 are in the 2000s.
func ParseEpoch(line1 string) (time.Time, error) {
	yy, err := strconv.Atoi(field(line1, 18, 20))
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch year: %w", err)
	}
	if yy < 57 {
		yy += 2000
	} else {
		yy += 1900
	}
	doy, err := strconv.ParseFloat(field(line1, 20, 32), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch day: %w", err)
	}
	day := math.Floor(doy)
	frac := (doy - day) * 86400 * float64(time.Second)
	epoch := time.Date(yy, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(day)-1).Add(time.Duration(frac))
	return epoch.Round(time.Microsecond), nil
}

// ParseLine2 returns the inclination, RAAN, eccentricity, argument of perigee, mean anomaly (degrees)
// and mean motion (rev/day) of line 2. Unreadable fields are NaN.
func ParseLine2(line2 string) (inc, raan, ecc, argp, mean, motion float64) {
	inc = parseFloat(field(line2, 8, 16))
	raan = parseFloat(field(line2, 17, 25))
	ecc = math.NaN()
	if e := field(line2, 26, 33); e != "" {
		ecc = parseFloat("0." + e)
	}
	argp = parseFloat(field(line2, 34, 42))
	mean = parseFloat(field(line2, 43, 51))
	motion = parseFloat(field(line2, 52, 63))
	return
}

// SemiMajorAxis converts a mean motion in rev/day to a semi-major axis in km.
func SemiMajorAxis(motion, μ float64) float64 {
	if math.IsNaN(motion) {
		return math.NaN()
	}
	n := motion * 2 * math.Pi / 86400
	return math.Pow(μ/(n*n), 1.0/3)
}

// TrueAnomaly converts a mean anomaly to a true anomaly (degrees, in [0, 360)) for an elliptical orbit
// by solving Kepler's equation with Newton iterations.
func TrueAnomaly(meanDeg, e float64) float64 {
	if math.IsNaN(meanDeg) || math.IsNaN(e) {
		return math.NaN()
	}
	M := math.Mod(docksmaker.Deg2rad(meanDeg), 2*math.Pi)
	if M < 0 {
		M += 2 * math.Pi
	}
	if math.Abs(e) < circularε {
		return docksmaker.Rad2deg(M)
	}
	E := M
	if e >= 0.8 {
		E = math.Pi
	}
	for i := 0; i < keplerMaxIter; i++ {
		fp := 1 - e*math.Cos(E)
		if math.Abs(fp) < 1e-16 {
			break
		}
		δ := (E - e*math.Sin(E) - M) / fp
		E -= δ
		if math.Abs(δ) < keplerε {
			break
		}
	}
	sinE, cosE := math.Sincos(E)
	denom := 1 - e*cosE
	if math.Abs(denom) < 1e-16 {
		return 0
	}
	ν := math.Atan2(math.Sqrt(1-e*e)*sinE/denom, (cosE-e)/denom)
	ν = math.Mod(docksmaker.Rad2deg(ν), 360)
	if ν < 0 {
		ν += 360
	}
	return ν
}

// NewRecord converts a three line element set.
func NewRecord(name, line1, line2 string) Record {
	r := Record{Name: strings.TrimSpace(name)}
	if epoch, err := ParseEpoch(line1); err == nil {
		r.Epoch = epoch
	}
	r.Inclination, r.RAAN, r.Eccentricity, r.AoP, r.MeanAnomaly, r.MeanMotion = ParseLine2(line2)
	r.SemiMajorAxis = SemiMajorAxis(r.MeanMotion, EarthMu)
	r.TrueAnomaly = TrueAnomaly(r.MeanAnomaly, r.Eccentricity)
	return r
}

// Parse reads three line element sets (name, line 1, line 2). Blank lines are ignored and a
// trailing incomplete group is dropped.
func Parse(r io.Reader, logger log.Logger) ([]Record, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	var recs []Record
	for i := 0; i+2 < len(lines); i += 3 {
		rec := NewRecord(lines[i], lines[i+1], lines[i+2])
		if rec.Epoch.IsZero() {
			level.Warn(logger).Log("subsys", "tle", "name", rec.Name, "err", "unreadable epoch")
		}
		level.Debug(logger).Log("subsys", "tle", "record", rec)
		recs = append(recs, rec)
	}
	if rem := len(lines) % 3; rem != 0 {
		level.Warn(logger).Log("subsys", "tle", "status", "incomplete trailing group", "lines", rem)
	}
	return recs, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes the records with the CSV header.
func WriteCSV(w io.Writer, recs []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.Name, r.epochString(), formatFloat(r.SemiMajorAxis), formatFloat(r.Eccentricity),
			formatFloat(r.Inclination), formatFloat(r.RAAN), formatFloat(r.AoP), formatFloat(r.TrueAnomaly),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads records written by WriteCSV. Columns are matched by header name.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, h := range Header {
		if _, ok := col[h]; !ok {
			return nil, fmt.Errorf("missing column %q", h)
		}
	}
	var recs []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return recs, err
		}
		num := func(name string) (float64, error) {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[col[name]]), 64)
			if err != nil {
				return v, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			return v, nil
		}
		rec := Record{Name: row[col["nom"]], MeanAnomaly: math.NaN(), MeanMotion: math.NaN()}
		if s := strings.TrimSpace(row[col["epoque_utc"]]); s != "" {
			if rec.Epoch, err = time.Parse(time.RFC3339Nano, s); err != nil {
				return recs, fmt.Errorf("line %d: %w", line, err)
			}
		}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"demi_grand_axe_km", &rec.SemiMajorAxis},
			{"excentricite", &rec.Eccentricity},
			{"inclinaison_deg", &rec.Inclination},
			{"noeud_ascendant_deg", &rec.RAAN},
			{"argument_perigee_deg", &rec.AoP},
			{"anomalie_vraie_deg", &rec.TrueAnomaly},
		} {
			if *f.dst, err = num(f.name); err != nil {
				return recs, err
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
