package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Moni003/docksmaker"
	"github.com/Moni003/docksmaker/tle"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/soniakeys/exit"
)

var (
	confPath            string
	date, central       string
	branchName          string
	a1, e1, i1          float64
	a2, e2, i2          float64
	hours               float64
	csvPath             string
	rows                int
	offset              float64
	outDir              string
	debug               bool
	logger              log.Logger
	conf                docksmaker.Config
	bodies              docksmaker.BodyTable
	branch              docksmaker.Branch
	defaultCentralEmpty = "~~config~~"
)

func init() {
	flag.StringVar(&confPath, "config", "", "docksmaker TOML configuration (defaults to $DOCKSMAKER_CONFIG/docksmaker.toml)")
	flag.StringVar(&date, "date", "", "departure date, "+docksmaker.DateFormat+" (defaults to general.epoch)")
	flag.StringVar(&central, "central", defaultCentralEmpty, "central body (defaults to general.central_body)")
	flag.StringVar(&branchName, "branch", "", "Lambert branch: auto, short or long (defaults to lambert.branch)")
	flag.Float64Var(&a1, "a1", 0, "semi-major axis of the departure orbit (m)")
	flag.Float64Var(&e1, "e1", 0, "eccentricity of the departure orbit")
	flag.Float64Var(&i1, "i1", 0, "inclination of the departure orbit (deg)")
	flag.Float64Var(&a2, "a2", 0, "semi-major axis of the arrival orbit (m)")
	flag.Float64Var(&e2, "e2", 0, "eccentricity of the arrival orbit")
	flag.Float64Var(&i2, "i2", 0, "inclination of the arrival orbit (deg)")
	flag.Float64Var(&hours, "hours", 2, "time of flight (hours)")
	flag.StringVar(&csvPath, "csv", "", "orbital parameters CSV: solve one transfer per row instead")
	flag.IntVar(&rows, "rows", 0, "number of CSV rows to process (0 for all)")
	flag.Float64Var(&offset, "offset", 100, "x displacement of the CSV transfer targets (km)")
	flag.StringVar(&outDir, "out", "", "output directory (defaults to general.output_dir)")
	flag.BoolVar(&debug, "debug", false, "verbose logging")
}

func main() {
	defer exit.Handler()
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lambertmaker [options]")
		fmt.Fprintln(os.Stderr, "Solves a Lambert transfer between two orbits and writes the DOCKS initial conditions.")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(2)
	}
	var err error
	if conf, err = docksmaker.LoadConfig(confPath); err != nil {
		exit.Log(err)
	}
	logger = log.With(docksmaker.NewLogger(os.Stderr, debug || conf.General.Debug), "subsys", "lambert")
	conf.Log(logger)
	if central == defaultCentralEmpty {
		central = conf.General.CentralBody
	}
	if outDir == "" {
		outDir = conf.General.OutputDir
	}
	if branchName == "" {
		branchName = conf.Lambert.Branch
	}
	if branch, err = docksmaker.ParseBranch(branchName); err != nil {
		exit.Log(err)
	}
	if bodies, err = conf.BodyTable(); err != nil {
		exit.Log(err)
	}
	if csvPath != "" {
		if err = fromCSV(); err != nil {
			exit.Log(err)
		}
		return
	}
	if date == "" {
		date = conf.General.Epoch
	}
	if err = interactive(); err != nil {
		exit.Log(err)
	}
}

// interactive solves the transfer between the two orbits given on the command line.
func interactive() error {
	body, err := bodies.Get(central)
	if err != nil {
		return err
	}
	departure, err := time.Parse(docksmaker.DateFormat, date)
	if err != nil {
		return err
	}
	μ := body.GM()
	r1, ν1, err := docksmaker.NewElements(a1, e1, i1, 0, 0, 0).ProperPosition(μ)
	if err != nil {
		return fmt.Errorf("departure orbit: %w", err)
	}
	if ν1 != 0 {
		level.Info(logger).Log("note", "departure true anomaly adjusted off the x axis", "nu", docksmaker.Rad2deg(ν1))
	}
	r2, ν2, err := docksmaker.NonCollinearPoint(μ, r1, docksmaker.NewElements(a2, e2, i2, 0, 0, 0))
	if err != nil {
		return fmt.Errorf("arrival orbit: %w", err)
	}
	if ν2 != 0 {
		level.Info(logger).Log("note", "arrival true anomaly adjusted to avoid collinear positions", "nu", docksmaker.Rad2deg(ν2))
	}
	name := filepath.Join(outDir, fmt.Sprintf("InitCond_Lambert_%s.txt", central))
	return solve(body, r1, r2, departure, name)
}

// fromCSV solves, for each row of the orbital parameters file, a transfer from the row's position to a
// point displaced along x.
func fromCSV() error {
	fd, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer fd.Close()
	recs, err := tle.ReadCSV(fd)
	if err != nil {
		return err
	}
	if rows > 0 && rows < len(recs) {
		recs = recs[:rows]
	}
	body, err := bodies.Get(central)
	if err != nil {
		return err
	}
	for i, rec := range recs {
		level.Info(logger).Log("row", i+1, "name", rec.Name)
		el, err := rec.Elements()
		if err != nil {
			level.Error(logger).Log("row", i+1, "err", err)
			continue
		}
		r1, err := el.Position(body.GM())
		if err != nil {
			level.Error(logger).Log("row", i+1, "err", err)
			continue
		}
		r2 := r1.Add(docksmaker.Vector{offset * 1e3, 0, 0})
		name := filepath.Join(outDir, fmt.Sprintf("InitCond_Lambert_test_%d.txt", i+1))
		if err := solve(body, r1, r2, rec.Epoch, name); err != nil {
			level.Error(logger).Log("row", i+1, "err", err)
		}
	}
	return nil
}

func solve(body docksmaker.CelestialObject, r1, r2 docksmaker.Vector, departure time.Time, name string) error {
	tof := hours * 3600
	spec := docksmaker.TransferSpec{R0: r1, R1: r2, TOF: tof, Central: body}
	v1, v2, err := spec.Solve(branch)
	if err != nil {
		return err
	}
	arrival := departure.Add(docksmaker.Seconds(tof))
	level.Info(logger).Log("r1", r1, "r2", r2, "v1", v1, "v2", v2, "branch", branch, "arrival", arrival.Format(docksmaker.DateFormat))
	if err := docksmaker.WriteDOCKSFile(name, departure.Format(docksmaker.DateFormat), docksmaker.State{R: r1, V: v1}); err != nil {
		return err
	}
	level.Info(logger).Log("wrote", name)
	return nil
}
