package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Moni003/docksmaker"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/soniakeys/exit"
)

var (
	confPath    string
	r0Str       string
	v0Str       string
	targetStr   string
	hours       float64
	method      string
	lambertSeed bool
	outDir      string
	debug       bool
)

func init() {
	flag.StringVar(&confPath, "config", "", "docksmaker TOML configuration (defaults to $DOCKSMAKER_CONFIG/docksmaker.toml)")
	flag.StringVar(&r0Str, "r0", "", "initial position \"x y z\" (m), defaults to transfer.r0")
	flag.StringVar(&v0Str, "v0", "", "initial velocity guess \"vx vy vz\" (m/s), defaults to transfer.v0")
	flag.StringVar(&targetStr, "target", "", "target position \"x y z\" (m), defaults to transfer.target")
	flag.Float64Var(&hours, "hours", 0, "time of flight (hours), defaults to transfer.tof")
	flag.StringVar(&method, "method", "", "shooting method: proportional or newton (defaults to shooting.method)")
	flag.BoolVar(&lambertSeed, "lambert", false, "seed the initial velocity with the two-body Lambert solution")
	flag.StringVar(&outDir, "out", "", "output directory (defaults to general.output_dir)")
	flag.BoolVar(&debug, "debug", false, "verbose logging")
}

func parseVector(s string, scale float64) (docksmaker.Vector, error) {
	var v docksmaker.Vector
	parts := strings.Fields(strings.NewReplacer(",", " ", "[", " ", "]", " ").Replace(s))
	if len(parts) != 3 {
		return v, fmt.Errorf("expected three components in %q", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return v, err
		}
		v[i] = f * scale
	}
	return v, nil
}

func main() {
	defer exit.Handler()
	flag.Parse()
	conf, err := docksmaker.LoadConfig(confPath)
	if err != nil {
		exit.Log(err)
	}
	logger := log.With(docksmaker.NewLogger(os.Stderr, debug || conf.General.Debug), "subsys", "shoot")
	conf.Log(logger)
	if method != "" {
		conf.Shooting.Method = method
	}
	if outDir == "" {
		outDir = conf.General.OutputDir
	}
	tof := conf.Transfer.TOF
	if hours > 0 {
		tof = hours * 3600
	}

	// Command line vectors are in SI, configured ones in km and km/s.
	var r0, v0, target docksmaker.Vector
	if r0Str != "" || v0Str != "" {
		if r0, err = parseVector(r0Str, 1); err != nil {
			exit.Log(err)
		}
		if v0, err = parseVector(v0Str, 1); err != nil {
			exit.Log(err)
		}
	} else {
		dep, err := conf.Departure()
		if err != nil {
			exit.Log(err)
		}
		r0, v0 = dep.R, dep.V
	}
	if targetStr != "" {
		target, err = parseVector(targetStr, 1)
	} else {
		target, err = conf.Target()
	}
	if err != nil {
		exit.Log(err)
	}

	prop, err := conf.NewPropagator(logger)
	if err != nil {
		exit.Log(err)
	}
	if lambertSeed {
		branch, err := conf.Branch()
		if err != nil {
			exit.Log(err)
		}
		v, _, err := docksmaker.SolveLambert(r0, target, tof, prop.Field.Central.GM(), branch)
		if err != nil {
			exit.Log(err)
		}
		level.Info(logger).Log("seed", "lambert", "v0", v)
		v0 = v
	}
	shooter, err := conf.NewShooter(prop, logger)
	if err != nil {
		exit.Log(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	rslt, err := shooter.Shoot(ctx, r0, v0, target, tof)
	if err != nil && docksmaker.KindOf(err) != docksmaker.MaxIterationsReached {
		exit.Log(err)
	}
	epoch, _ := conf.Epoch()
	arrival := epoch.Add(docksmaker.Seconds(tof))
	level.Info(logger).Log("status", rslt.Status, "iterations", rslt.Iterations, "residual", rslt.Residual,
		"r0", rslt.R0, "v0", rslt.V0, "arrival", arrival.Format(docksmaker.DateFormat))
	if !rslt.Converged {
		level.Warn(logger).Log("msg", "writing the best iterate, which did not converge")
	}
	name := filepath.Join(outDir, fmt.Sprintf("InitCond_SingleShooting_%s.txt", strings.ToLower(prop.Field.Central.Name)))
	if err := docksmaker.WriteDOCKSFile(name, conf.General.Epoch, docksmaker.State{R: rslt.R0, V: rslt.V0}); err != nil {
		exit.Log(err)
	}
	level.Info(logger).Log("wrote", name)
}
