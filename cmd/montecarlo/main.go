package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/Moni003/docksmaker"
	"github.com/Moni003/docksmaker/store"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soniakeys/exit"
)

var (
	confPath string
	samples  int
	seed     int64
	workers  int
	outDir   string
	rank     bool
	shoot    bool
	debug    bool
)

func init() {
	flag.StringVar(&confPath, "config", "", "docksmaker TOML configuration (defaults to $DOCKSMAKER_CONFIG/docksmaker.toml)")
	flag.IntVar(&samples, "n", -1, "number of samples (defaults to montecarlo.samples)")
	flag.Int64Var(&seed, "seed", -1, "generator seed (defaults to montecarlo.seed)")
	flag.IntVar(&workers, "workers", -1, "number of parallel workers, 0 for all CPUs (defaults to montecarlo.workers)")
	flag.StringVar(&outDir, "out", "", "output directory (defaults to general.output_dir)")
	flag.BoolVar(&rank, "rank", false, "print the acceleration of each body at the departure position and exit")
	flag.BoolVar(&shoot, "shoot", false, "refine the best sample with the single shooting corrector")
	flag.BoolVar(&debug, "debug", false, "verbose logging")
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	level.Info(logger).Log("metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		level.Error(logger).Log("metrics", addr, "err", err)
	}
}

func main() {
	defer exit.Handler()
	flag.Parse()
	conf, err := docksmaker.LoadConfig(confPath)
	if err != nil {
		exit.Log(err)
	}
	if samples >= 0 {
		conf.MonteCarlo.Samples = samples
	}
	if seed >= 0 {
		conf.MonteCarlo.Seed = uint64(seed)
	}
	if workers >= 0 {
		conf.MonteCarlo.Workers = workers
	}
	if outDir == "" {
		outDir = conf.General.OutputDir
	}
	logger := log.With(docksmaker.NewLogger(os.Stderr, debug || conf.General.Debug), "subsys", "mc")
	conf.Log(logger)

	prop, err := conf.NewPropagator(logger)
	if err != nil {
		exit.Log(err)
	}
	departure, err := conf.Departure()
	if err != nil {
		exit.Log(err)
	}
	if rank {
		contribs, err := prop.Field.Contributions(0, departure.R)
		if err != nil {
			exit.Log(err)
		}
		fmt.Printf("Accelerations at %s m on %s:\n", departure.R, conf.General.Epoch)
		for i, c := range contribs {
			fmt.Printf("%2d. %-10s %.6e m/s^2\n", i+1, c.Name, c.Magnitude)
		}
		return
	}
	target, err := conf.Target()
	if err != nil {
		exit.Log(err)
	}
	tof := conf.Transfer.TOF
	arrival, err := conf.Arrival()
	if err != nil {
		exit.Log(err)
	}
	level.Info(logger).Log("departure", conf.General.Epoch, "arrival", arrival.Format(docksmaker.DateFormat), "tof", tof)

	sampler, err := conf.NewSampler()
	if err != nil {
		exit.Log(err)
	}
	cfg, err := conf.SearchConfig(logger)
	if err != nil {
		exit.Log(err)
	}
	if conf.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		cfg.Metrics = docksmaker.NewMetrics(reg)
		go serveMetrics(conf.Metrics.Listen, reg, logger)
	}

	var sinks store.Multi
	var files *store.FileSink
	if conf.MonteCarlo.PerSampleFiles {
		if files, err = store.NewFileSink(outDir, conf.General.Epoch, time.Now(), logger); err != nil {
			exit.Log(err)
		}
		sinks = append(sinks, files)
	}
	var csvSink *store.CSVSink
	var db *store.SQLiteSink
	switch conf.MonteCarlo.Sink {
	case "csv":
		path := conf.MonteCarlo.SinkPath
		if path == "" {
			path = filepath.Join(outDir, "samples.csv")
		}
		fd, err := os.Create(path)
		if err != nil {
			exit.Log(err)
		}
		defer fd.Close()
		csvSink = store.NewCSVSink(fd)
		sinks = append(sinks, csvSink)
	case "sqlite":
		path := conf.MonteCarlo.SinkPath
		if path == "" {
			path = filepath.Join(outDir, "samples.db")
		}
		run := store.Run{Date: conf.General.Epoch, Samples: cfg.Samples, Seed: cfg.Seed, Scoring: cfg.Scoring.String()}
		if db, err = store.OpenSQLite(path, run, logger); err != nil {
			exit.Log(err)
		}
		defer db.Close()
		sinks = append(sinks, db)
	}
	if len(sinks) > 0 {
		cfg.Sink = sinks
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	rslt, err := docksmaker.Search(ctx, cfg, sampler, prop, target, tof)
	if err != nil {
		exit.Log(err)
	}
	if csvSink != nil {
		if err := csvSink.Flush(); err != nil {
			exit.Log(err)
		}
	}
	if db != nil {
		if err := db.Finish(rslt); err != nil {
			exit.Log(err)
		}
	}
	if files != nil {
		params := store.RunParameters{
			Date: conf.General.Epoch, R0: departure.R, V0: departure.V, Target: target, TOF: tof,
			Arrival: arrival.Format(docksmaker.DateFormat), Central: conf.General.CentralBody,
			Samples: cfg.Samples, Seed: cfg.Seed, Sampler: conf.MonteCarlo.Sampler, Scoring: cfg.Scoring.String(),
			BestIndex: -1,
		}
		for _, p := range conf.Perturbers {
			params.Perturbers = append(params.Perturbers, p.Name)
		}
		if rslt.Best != nil {
			params.BestIndex, params.BestScore, params.BestInitial = rslt.Best.Index, rslt.Best.Score, rslt.Best.Initial
		}
		if err := files.WriteParameters(params); err != nil {
			exit.Log(err)
		}
	}
	if rslt.Best == nil {
		exit.Log(fmt.Errorf("no sample could be scored (%d discarded, %d skipped)", rslt.Discarded, rslt.Skipped))
	}

	best := rslt.Best.Initial
	if shoot {
		shooter, err := conf.NewShooter(prop, logger)
		if err != nil {
			exit.Log(err)
		}
		sr, err := shooter.Shoot(ctx, best.R, best.V, target, tof)
		cfg.Metrics.ObserveShooting(sr)
		switch {
		case err == nil:
			best.V = sr.V0
		case docksmaker.KindOf(err) == docksmaker.MaxIterationsReached && sr.Residual < rslt.Best.Score:
			level.Warn(logger).Log("msg", "shooting did not converge, keeping its best iterate", "residual", sr.Residual)
			best.V = sr.V0
		default:
			level.Error(logger).Log("msg", "shooting failed, keeping the Monte-Carlo sample", "err", err)
		}
	}
	name := filepath.Join(outDir, fmt.Sprintf("InitCond_MonteCarlo_%s.txt", strings.ToLower(conf.General.CentralBody)))
	if err := docksmaker.WriteDOCKSFile(name, conf.General.Epoch, best); err != nil {
		exit.Log(err)
	}
	level.Info(logger).Log("wrote", name, "best", rslt.Best.Index, "score", rslt.Best.Score)
}
