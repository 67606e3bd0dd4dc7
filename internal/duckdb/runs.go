package duckdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inodb/vibe-mity/internal/normalise"
	"github.com/inodb/vibe-mity/internal/vcf"
)

// Run records one normalisation of an input file.
type Run struct {
	ID      string
	Started time.Time
	Command string
	Input   FileFingerprint
	Summary normalise.Summary
}

// NewRun starts a run record with a fresh identifier.
func NewRun(command string, input FileFingerprint) Run {
	return Run{
		ID:      uuid.NewString(),
		Started: time.Now().UTC(),
		Command: command,
		Input:   input,
	}
}

// WriteRun stores the run summary, replacing an earlier row with the same ID.
func (s *Store) WriteRun(r Run) error {
	counts, err := json.Marshal(r.Summary.Filtered)
	if err != nil {
		return fmt.Errorf("encode filter counts: %w", err)
	}
	var mtime any
	if !r.Input.ModTime.IsZero() {
		mtime = r.Input.ModTime.UTC()
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Started, r.Command, r.Input.Path, r.Input.Size, mtime,
		r.Summary.Read, r.Summary.Skipped, r.Summary.Split, r.Summary.Written,
		r.Summary.Passed, r.Summary.Recomputed, r.Summary.Warnings, string(counts))
	if err != nil {
		return fmt.Errorf("write run %s: %w", r.ID, err)
	}
	return nil
}

// Runs returns all runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT
		run_id, started, command, input_path, input_size, input_mtime,
		records_read, records_skipped, records_split, records_written,
		records_passed, records_recomputed, warnings, filter_counts
		FROM runs ORDER BY started DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var mtime sql.NullTime
		var counts string
		if err := rows.Scan(&r.ID, &r.Started, &r.Command, &r.Input.Path, &r.Input.Size, &mtime,
			&r.Summary.Read, &r.Summary.Skipped, &r.Summary.Split, &r.Summary.Written,
			&r.Summary.Passed, &r.Summary.Recomputed, &r.Summary.Warnings, &counts); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if mtime.Valid {
			r.Input.ModTime = mtime.Time
		}
		if err := json.Unmarshal([]byte(counts), &r.Summary.Filtered); err != nil {
			return nil, fmt.Errorf("decode filter counts of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// CallSink collects calls from records as they are written and appends
// them in batches.
type CallSink struct {
	store     *Store
	runID     string
	samples   []string
	fields    Fields
	batchSize int
	pending   []Call
	written   int
}

// NewCallSink creates a sink for run runID over the given sample columns.
func (s *Store) NewCallSink(runID string, samples []string, fields Fields) *CallSink {
	return &CallSink{
		store:     s,
		runID:     runID,
		samples:   samples,
		fields:    fields,
		batchSize: 10000,
	}
}

// Write extracts calls from a normalised record.
func (cs *CallSink) Write(v *vcf.Variant) error {
	cs.pending = append(cs.pending, CallsFromVariant(v, cs.samples, cs.fields)...)
	if len(cs.pending) >= cs.batchSize {
		return cs.Flush()
	}
	return nil
}

// Flush appends pending calls.
func (cs *CallSink) Flush() error {
	if err := cs.store.WriteCalls(cs.runID, cs.pending); err != nil {
		return err
	}
	cs.written += len(cs.pending)
	cs.pending = cs.pending[:0]
	return nil
}

// Written returns the number of calls flushed so far.
func (cs *CallSink) Written() int {
	return cs.written
}
