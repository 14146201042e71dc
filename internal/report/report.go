// Package report delivers measurement records: the semicolon table on stdout
// and optional exports.
package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"cds-bench/internal/host"
	"cds-bench/internal/perf"
)

// Record is one sample of a sweep. Averaging is left to whoever reads the
// stream.
type Record struct {
	Program        string         `json:"program"`
	Run            int            `json:"run"`
	CPUs           int            `json:"cpus"`
	DurationMicros uint64         `json:"duration_us"`
	Perf           *perf.Counters `json:"perf,omitempty"`
}

// Session identifies the sweep the records belong to.
type Session struct {
	Program   string           `json:"program"`
	Image     string           `json:"image"`
	Checksum  string           `json:"checksum"`
	CPUs      []int            `json:"cpus"`
	Runs      int              `json:"runs"`
	StartTime time.Time        `json:"start_time"`
	Host      *host.HostConfig `json:"host,omitempty"`
}

type Sink interface {
	Emit(Record) error
	Close() error
}

const header = "program; run; cpus; duration;"

// Table writes the header line before the first record, then one line per
// record.
type Table struct {
	w           io.Writer
	wroteHeader bool
}

func NewTable(w io.Writer) *Table {
	return &Table{w: w}
}

func (t *Table) Emit(r Record) error {
	if !t.wroteHeader {
		if _, err := fmt.Fprintln(t.w, header); err != nil {
			return err
		}
		t.wroteHeader = true
	}
	_, err := fmt.Fprintf(t.w, "%s; %d; %d; %d\n", r.Program, r.Run, r.CPUs, r.DurationMicros)
	return err
}

func (t *Table) Close() error {
	return nil
}

// Multi emits to every sink in order and stops at the first failure.
type Multi []Sink

func (m Multi) Emit(r Record) error {
	for _, s := range m {
		if err := s.Emit(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
