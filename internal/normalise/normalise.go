// Package normalise runs the per-record mitochondrial pipeline: split
// multi-allelic records, recompute heteroplasmy fields, then annotate
// filter labels.
package normalise

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/inodb/vibe-mity/internal/filter"
	"github.com/inodb/vibe-mity/internal/hetero"
	"github.com/inodb/vibe-mity/internal/vcf"
)

// Source yields records in input order; Next returns nil, nil at the end.
type Source interface {
	Next() (*vcf.Variant, error)
	Header() *vcf.Header
}

// Sink receives normalised records.
type Sink interface {
	Write(v *vcf.Variant) error
}

// Options configures a Normaliser.
type Options struct {
	MitoContigs []string
	Hetero      hetero.Config
	Filter      filter.Config
	Split       bool
	// CommandLine, when set, is recorded in the output header.
	CommandLine string
}

// DefaultOptions returns the default pipeline settings.
func DefaultOptions() Options {
	return Options{
		MitoContigs: []string{"MT", "chrM"},
		Hetero:      hetero.DefaultConfig(),
		Filter:      filter.DefaultConfig(),
		Split:       true,
	}
}

// Summary counts what a run did.
type Summary struct {
	Read       int            `json:"read"`
	Skipped    int            `json:"skipped"` // non-variant input records
	Split      int            `json:"split"`   // extra records produced by splitting
	Written    int            `json:"written"`
	Recomputed int            `json:"recomputed"`
	Warnings   int            `json:"warnings"`
	Passed     int            `json:"passed"`
	Filtered   map[string]int `json:"filtered"`
}

// Normaliser streams records through the pipeline stages.
type Normaliser struct {
	opts       Options
	recomputer *hetero.Recomputer
	engine     *filter.Engine
	header     *vcf.Header
	logger     *zap.Logger
}

// New builds the rule set and recomputer from opts.
func New(opts Options) (*Normaliser, error) {
	rules, err := filter.DefaultRules(opts.Filter, opts.MitoContigs)
	if err != nil {
		return nil, fmt.Errorf("build filter rules: %w", err)
	}
	if opts.Hetero.Low < 0 || opts.Hetero.High > 1 || opts.Hetero.Low >= opts.Hetero.High {
		return nil, fmt.Errorf("heteroplasmy thresholds must satisfy 0 <= low < high <= 1, got %v and %v",
			opts.Hetero.Low, opts.Hetero.High)
	}
	return &Normaliser{
		opts:       opts,
		recomputer: hetero.New(opts.Hetero, opts.MitoContigs),
		engine:     filter.NewEngine(rules),
		logger:     zap.NewNop(),
	}, nil
}

// SetLogger sets the logger on the normaliser and its stages.
func (n *Normaliser) SetLogger(l *zap.Logger) {
	n.logger = l
	n.recomputer.SetLogger(l)
	n.engine.SetLogger(l)
}

// OutputHeader returns a copy of in with the recomputed fields and filter
// labels declared. It must be called before Run.
func (n *Normaliser) OutputHeader(in *vcf.Header) *vcf.Header {
	h := in.Clone()
	n.recomputer.DeclareFields(h)
	n.engine.DeclareFilters(h)
	if n.opts.CommandLine != "" {
		h.Meta = append(h.Meta, "##vibe-mity_normaliseCommand="+n.opts.CommandLine)
	}
	n.header = h
	return h
}

// Run normalises every record of src into sink.
func (n *Normaliser) Run(src Source, sink Sink) (Summary, error) {
	sum := Summary{}
	if n.header == nil {
		n.OutputHeader(src.Header())
	}
	// Split needs the input declarations to slice Number=A/R/G fields.
	in := src.Header()

	for {
		v, err := src.Next()
		if err != nil {
			return n.finish(src, sum), err
		}
		if v == nil {
			break
		}
		sum.Read++

		records := []*vcf.Variant{v}
		if n.opts.Split {
			records = vcf.SplitMultiAllelic(v, in)
			sum.Split += len(records) - 1
		}

		for _, r := range records {
			if n.recomputer.Recompute(r) == hetero.StatusRecomputed {
				sum.Recomputed++
			}
			n.engine.Apply(r)
			if r.Passed() {
				sum.Passed++
			}
			if err := sink.Write(r); err != nil {
				return n.finish(src, sum), fmt.Errorf("write %s:%d: %w", r.Chrom, r.Pos, err)
			}
			sum.Written++
		}
	}

	sum = n.finish(src, sum)
	fields := []zap.Field{
		zap.Int("read", sum.Read),
		zap.Int("skipped", sum.Skipped),
		zap.Int("split", sum.Split),
		zap.Int("written", sum.Written),
		zap.Int("passed", sum.Passed),
	}
	for _, lc := range n.engine.SortedCounts() {
		fields = append(fields, zap.Int("filter_"+lc.Label, lc.Count))
	}
	n.logger.Info("normalise complete", fields...)
	if sum.Warnings > 0 {
		n.logger.Warn("records without read support passed through unchanged",
			zap.Int("count", sum.Warnings))
	}
	return sum, nil
}

func (n *Normaliser) finish(src Source, sum Summary) Summary {
	if s, ok := src.(interface{ Skipped() int }); ok {
		sum.Skipped = s.Skipped()
	}
	sum.Warnings = n.recomputer.Warnings()
	sum.Filtered = n.engine.Counts()
	return sum
}
