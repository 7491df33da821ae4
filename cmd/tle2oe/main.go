package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Moni003/docksmaker"
	"github.com/Moni003/docksmaker/tle"
	"github.com/go-kit/log/level"
	"github.com/soniakeys/exit"
)

func main() {
	defer exit.Handler()
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tle2oe [-i tle.txt] [-o orbital_params.csv]")
		fmt.Fprintln(os.Stderr, "Extracts the classical orbital elements of three line element sets into a CSV file.")
		flag.PrintDefaults()
	}
	in := flag.String("i", "tle.txt", "three line element file")
	out := flag.String("o", "orbital_params.csv", "output CSV file")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(2)
	}
	logger := docksmaker.NewLogger(os.Stderr, *debug)

	fd, err := os.Open(*in)
	if err != nil {
		exit.Log(err)
	}
	recs, err := tle.Parse(fd, logger)
	fd.Close()
	if err != nil {
		exit.Log(err)
	}
	w, err := os.Create(*out)
	if err != nil {
		exit.Log(err)
	}
	if err = tle.WriteCSV(w, recs); err != nil {
		w.Close()
		exit.Log(err)
	}
	if err = w.Close(); err != nil {
		exit.Log(err)
	}
	level.Info(logger).Log("subsys", "tle", "records", len(recs), "wrote", *out)
}
