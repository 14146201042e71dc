package report

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_HeaderOnceBeforeFirstRecord(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf)

	assert.Empty(t, buf.String())

	require.NoError(t, table.Emit(Record{Program: "sort", Run: 0, CPUs: 1, DurationMicros: 1200}))
	require.NoError(t, table.Emit(Record{Program: "sort", Run: 0, CPUs: 2, DurationMicros: 700}))
	require.NoError(t, table.Close())

	assert.Equal(t, "program; run; cpus; duration;\nsort; 0; 1; 1200\nsort; 0; 2; 700\n", buf.String())
}

type recordingSink struct {
	records  []Record
	emitErr  error
	closed   bool
	closeErr error
}

func (s *recordingSink) Emit(r Record) error {
	if s.emitErr != nil {
		return s.emitErr
	}
	s.records = append(s.records, r)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.closeErr
}

func TestMulti_StopsAtFirstEmitError(t *testing.T) {
	failing := &recordingSink{emitErr: errors.New("disk full")}
	after := &recordingSink{}

	err := Multi{failing, after}.Emit(Record{Program: "p"})
	assert.EqualError(t, err, "disk full")
	assert.Empty(t, after.records)
}

func TestMulti_ClosesAll(t *testing.T) {
	a := &recordingSink{closeErr: errors.New("a failed")}
	b := &recordingSink{}

	err := Multi{a, b}.Close()
	assert.ErrorContains(t, err, "a failed")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
