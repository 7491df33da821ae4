// Package store records Monte-Carlo samples: per-sample DOCKS initial conditions files,
// a CSV log and an SQLite database.
package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/Moni003/docksmaker"
)

// Multi fans samples out to several sinks, stopping at the first failure.
type Multi []docksmaker.SampleSink

// Record implements docksmaker.SampleSink.
func (m Multi) Record(s docksmaker.Sample) error {
	for _, sink := range m {
		if err := sink.Record(s); err != nil {
			return err
		}
	}
	return nil
}

// CSVHeader lists the columns written by CSVSink.
var CSVHeader = []string{
	"index", "fidelity", "score_m", "closest_index", "closest_time_s",
	"rx_km", "ry_km", "rz_km", "vx_kms", "vy_kms", "vz_kms", "error",
}

// CSVSink writes one row per sample. Call Flush once the search is done.
type CSVSink struct {
	w      *csv.Writer
	header bool
}

// NewCSVSink returns a CSV sink writing to w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// Record implements docksmaker.SampleSink.
func (c *CSVSink) Record(s docksmaker.Sample) error {
	if !c.header {
		if err := c.w.Write(CSVHeader); err != nil {
			return err
		}
		c.header = true
	}
	row := make([]string, 0, len(CSVHeader))
	row = append(row, strconv.Itoa(s.Index), s.Fidelity.String(), fmtFloat(s.Score),
		strconv.Itoa(s.ClosestIndex), fmtFloat(s.ClosestTime))
	for _, x := range s.Initial.Slice() {
		row = append(row, fmtFloat(x/1e3))
	}
	if s.Err != nil {
		row = append(row, s.Err.Error())
	} else {
		row = append(row, "")
	}
	return c.w.Write(row)
}

// Flush writes any buffered rows.
func (c *CSVSink) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'e', 12, 64)
}

func iterationName(idx int) string {
	return fmt.Sprintf("initial_conditions_iter_%03d.txt", idx+1)
}
