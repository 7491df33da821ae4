package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Moni003/docksmaker"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/soniakeys/exit"
)

func main() {
	defer exit.Handler()
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: costfn [options] trajectory.txt")
		fmt.Fprintln(os.Stderr, "Computes the closest approach of a DOCKS trajectory to a target and writes cost_function_results.txt next to it.")
		flag.PrintDefaults()
	}
	x := flag.Float64("x", -2.27e8, "target x (km)")
	y := flag.Float64("y", 0, "target y (km)")
	z := flag.Float64("z", 0, "target z (km)")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)
	logger := log.With(docksmaker.NewLogger(os.Stderr, *debug), "subsys", "cost")

	fd, err := os.Open(path)
	if err != nil {
		exit.Log(err)
	}
	traj, skipped, err := docksmaker.ReadDOCKSTrajectory(fd)
	fd.Close()
	if err != nil {
		exit.Log(err)
	}
	if skipped > 0 {
		level.Warn(logger).Log("file", path, "skipped", skipped)
	}
	level.Info(logger).Log("file", path, "records", len(traj.Positions), "from", traj.Epochs[0], "to", traj.Epochs[len(traj.Epochs)-1])

	target := docksmaker.Vector{*x, *y, *z}.Scale(1e3)
	cost, err := traj.Cost(target)
	if err != nil {
		exit.Log(err)
	}
	level.Info(logger).Log("closest_km", cost.Closest/1e3, "index", cost.ClosestIndex, "epoch", cost.ClosestEpoch, "final_km", cost.Final/1e3)
	if err := cost.WriteReport(os.Stdout, path); err != nil {
		exit.Log(err)
	}
	name := filepath.Join(filepath.Dir(path), "cost_function_results.txt")
	w, err := os.Create(name)
	if err != nil {
		exit.Log(err)
	}
	if err := cost.WriteReport(w, path); err != nil {
		w.Close()
		exit.Log(err)
	}
	if err := w.Close(); err != nil {
		exit.Log(err)
	}
	level.Info(logger).Log("wrote", name)
}
