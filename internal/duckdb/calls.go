package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-mity/internal/hetero"
	"github.com/inodb/vibe-mity/internal/vcf"
)

// Call is one sample's heteroplasmy result for one alternate allele.
// Undefined numeric values are NaN (or -1 for counts) and stored as NULL.
type Call struct {
	Sample   string
	Chrom    string
	Pos      int64
	Ref      string
	Alt      string
	Qual     float64
	Filter   string
	Depth    int64
	AltCount int64
	Fraction float64
	Class    string
	Quality  float64
}

// Fields names the FORMAT keys a Call is read from.
type Fields struct {
	Depth    string
	AltCount string
	Fraction string
	Class    string
	Quality  string
}

// DefaultFields returns the freebayes and recomputed field names.
func DefaultFields() Fields {
	return FieldsFor(hetero.DefaultConfig())
}

// FieldsFor returns the field names a recomputer configured with cfg reads
// and writes.
func FieldsFor(cfg hetero.Config) Fields {
	return Fields{
		Depth:    cfg.DepthField,
		AltCount: cfg.AltCountField,
		Fraction: cfg.FractionField,
		Class:    cfg.ClassField,
		Quality:  cfg.QualityField,
	}
}

// CallsFromVariant extracts one Call per sample and alternate allele.
// Samples whose class is missing are skipped.
func CallsFromVariant(v *vcf.Variant, samples []string, f Fields) []Call {
	filter := vcf.PassFilter
	if len(v.Filter) > 0 {
		filter = strings.Join(v.Filter, ";")
	}

	var calls []Call
	for i, name := range samples {
		class, ok := v.SampleValue(i, f.Class)
		if !ok || class.IsMissing() {
			continue
		}
		for a, alt := range v.Alt {
			c := Call{
				Sample:   name,
				Chrom:    v.Chrom,
				Pos:      v.Pos,
				Ref:      v.Ref,
				Alt:      alt,
				Qual:     v.Qual,
				Filter:   filter,
				Depth:    -1,
				AltCount: -1,
				Fraction: math.NaN(),
				Quality:  math.NaN(),
			}
			c.Class, _ = class.Str(a)
			if val, ok := v.SampleValue(i, f.Depth); ok {
				if n, ok := val.Int(0); ok {
					c.Depth = n
				}
			}
			if val, ok := v.SampleValue(i, f.AltCount); ok {
				if n, ok := val.Int(a); ok {
					c.AltCount = n
				}
			}
			if val, ok := v.SampleValue(i, f.Fraction); ok {
				if x, ok := val.Float(a); ok {
					c.Fraction = x
				}
			}
			if val, ok := v.SampleValue(i, f.Quality); ok {
				if x, ok := val.Float(a); ok {
					c.Quality = x
				}
			}
			calls = append(calls, c)
		}
	}
	return calls
}

// callKey is the composite key for deduplicating calls before writing.
type callKey struct {
	sample, chrom, ref, alt string
	pos                     int64
}

// WriteCalls batch-inserts calls for a run using the Appender API.
// Duplicate (sample, chrom, pos, ref, alt) entries keep the first.
func (s *Store) WriteCalls(runID string, calls []Call) error {
	if len(calls) == 0 {
		return nil
	}

	seen := make(map[callKey]bool, len(calls))
	deduped := make([]Call, 0, len(calls))
	for _, c := range calls {
		k := callKey{c.Sample, c.Chrom, c.Ref, c.Alt, c.Pos}
		if !seen[k] {
			seen[k] = true
			deduped = append(deduped, c)
		}
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "calls")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for _, c := range deduped {
		if err := appender.AppendRow(
			runID, c.Sample, c.Chrom, c.Pos, c.Ref, c.Alt,
			nullFloat(c.Qual), c.Filter, nullCount(c.Depth), nullCount(c.AltCount),
			nullFloat(c.Fraction), c.Class, nullFloat(c.Quality),
		); err != nil {
			return fmt.Errorf("append call %s %s:%d: %w", c.Sample, c.Chrom, c.Pos, err)
		}
	}

	return appender.Flush()
}

// CallsForSample returns a sample's calls across all runs, ordered by
// position.
func (s *Store) CallsForSample(sample string) ([]Call, error) {
	rows, err := s.db.Query(`SELECT
		sample, chrom, pos, ref, alt, qual, filter,
		depth, alt_count, fraction, class, quality
		FROM calls
		WHERE sample=?
		ORDER BY chrom, pos, alt`, sample)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// CallsAt returns every call at a position, for comparing samples.
func (s *Store) CallsAt(chrom string, pos int64) ([]Call, error) {
	rows, err := s.db.Query(`SELECT
		sample, chrom, pos, ref, alt, qual, filter,
		depth, alt_count, fraction, class, quality
		FROM calls
		WHERE chrom=? AND pos=?
		ORDER BY sample, alt`, chrom, pos)
	if err != nil {
		return nil, fmt.Errorf("query calls at %s:%d: %w", chrom, pos, err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// scanCalls scans rows into Call slices.
func scanCalls(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Call, error) {
	var calls []Call
	for rows.Next() {
		var c Call
		var qual, fraction, quality sql.NullFloat64
		var depth, altCount sql.NullInt64
		if err := rows.Scan(
			&c.Sample, &c.Chrom, &c.Pos, &c.Ref, &c.Alt, &qual, &c.Filter,
			&depth, &altCount, &fraction, &c.Class, &quality,
		); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		c.Qual = floatOrNaN(qual)
		c.Fraction = floatOrNaN(fraction)
		c.Quality = floatOrNaN(quality)
		c.Depth = countOrMissing(depth)
		c.AltCount = countOrMissing(altCount)
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

func nullFloat(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func nullCount(n int64) any {
	if n < 0 {
		return nil
	}
	return n
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

func countOrMissing(n sql.NullInt64) int64 {
	if !n.Valid {
		return -1
	}
	return n.Int64
}
