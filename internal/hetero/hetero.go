// Package hetero recomputes mitochondrial heteroplasmy fields from the
// per-sample read support that the variant caller reports.
package hetero

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inodb/vibe-mity/internal/vcf"
)

// Heteroplasmy classes written to the class field.
const (
	ClassHomoplasmic   = "homoplasmic"
	ClassHeteroplasmic = "heteroplasmic"
	ClassAbsent        = "absent"
)

// WarningMissingReadSupport is the warning value set on records that lack
// the alternate read count field.
const WarningMissingReadSupport = "missing_read_support"

// maxQuality caps the phred-scaled heteroplasmy quality.
const maxQuality = 200

// Config holds thresholds and field names used by the recomputation.
type Config struct {
	Low       float64 `mapstructure:"low" yaml:"low"`
	High      float64 `mapstructure:"high" yaml:"high"`
	ErrorRate float64 `mapstructure:"error_rate" yaml:"error_rate"`

	AltCountField string `mapstructure:"alt_count_field" yaml:"alt_count_field"`
	RefCountField string `mapstructure:"ref_count_field" yaml:"ref_count_field"`
	DepthField    string `mapstructure:"depth_field" yaml:"depth_field"`

	FractionField string `mapstructure:"fraction_field" yaml:"fraction_field"`
	ClassField    string `mapstructure:"class_field" yaml:"class_field"`
	QualityField  string `mapstructure:"quality_field" yaml:"quality_field"`
	WarningField  string `mapstructure:"warning_field" yaml:"warning_field"`
}

// DefaultConfig returns the freebayes field names and the default
// thresholds.
func DefaultConfig() Config {
	return Config{
		Low:           0.10,
		High:          0.98,
		ErrorRate:     0.002,
		AltCountField: "AO",
		RefCountField: "RO",
		DepthField:    "DP",
		FractionField: "HF",
		ClassField:    "HC",
		QualityField:  "HPQ",
		WarningField:  "MITY_WARN",
	}
}

// Status reports what Recompute did with a record.
type Status int

const (
	StatusSkipped Status = iota // not on a mitochondrial contig
	StatusRecomputed
	StatusWarned // no read support field; passed through
)

// Recomputer derives heteroplasmy fields for mitochondrial records.
type Recomputer struct {
	cfg      Config
	mito     map[string]bool
	warnings int
	logger   *zap.Logger
}

// New creates a recomputer for records on the given mitochondrial contigs.
func New(cfg Config, mitoContigs []string) *Recomputer {
	mito := make(map[string]bool, len(mitoContigs))
	for _, c := range mitoContigs {
		mito[c] = true
	}
	return &Recomputer{
		cfg:    cfg,
		mito:   mito,
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for warning and debug messages.
func (r *Recomputer) SetLogger(l *zap.Logger) {
	r.logger = l
}

// Warnings returns the number of records passed through with a warning.
func (r *Recomputer) Warnings() int {
	return r.warnings
}

// DeclareFields adds header declarations for the fields Recompute writes.
func (r *Recomputer) DeclareFields(h *vcf.Header) {
	h.SetFormat(vcf.FieldDef{ID: r.cfg.FractionField, Number: "A", Type: vcf.KindFloat,
		Description: "Heteroplasmy fraction: alternate read count over total read count"})
	h.SetFormat(vcf.FieldDef{ID: r.cfg.ClassField, Number: "A", Type: vcf.KindString,
		Description: "Heteroplasmy class: homoplasmic, heteroplasmic or absent"})
	h.SetFormat(vcf.FieldDef{ID: r.cfg.QualityField, Number: "A", Type: vcf.KindFloat,
		Description: "Phred-scaled probability that the alternate reads are sequencing error"})
	if _, ok := h.Formats[fieldSAF]; ok {
		h.SetFormat(vcf.FieldDef{ID: fieldSBA, Number: "A", Type: vcf.KindFloat,
			Description: "Fraction of alternate reads on the forward strand"})
	}
	if _, ok := h.Formats[fieldSRF]; ok {
		h.SetFormat(vcf.FieldDef{ID: fieldSBR, Number: "1", Type: vcf.KindFloat,
			Description: "Fraction of reference reads on the forward strand"})
	}
	h.SetInfo(vcf.FieldDef{ID: r.cfg.WarningField, Number: "1", Type: vcf.KindString,
		Description: "Heteroplasmy recomputation warning"})
}

// Recompute writes fraction, class and quality fields for every sample of a
// mitochondrial record. Records on other contigs are left untouched.
func (r *Recomputer) Recompute(v *vcf.Variant) Status {
	if !r.mito[v.Chrom] {
		return StatusSkipped
	}

	if v.FormatIndex(r.cfg.AltCountField) < 0 {
		v.Info.Set(r.cfg.WarningField, vcf.StringValue(WarningMissingReadSupport))
		r.warnings++
		r.logger.Debug("record has no read support field",
			zap.String("chrom", v.Chrom),
			zap.Int64("pos", v.Pos),
			zap.String("field", r.cfg.AltCountField))
		return StatusWarned
	}

	nAlt := len(v.Alt)
	for i := range v.Samples {
		// A "." sample column stays "." in the output.
		if len(v.Samples[i]) == 0 {
			continue
		}
		alt, _ := v.SampleValue(i, r.cfg.AltCountField)
		total, hasTotal := r.totalDepth(v, i, alt, nAlt)

		fractions := make([]float64, nAlt)
		classes := make([]string, nAlt)
		quals := make([]float64, nAlt)
		for j := 0; j < nAlt; j++ {
			count, ok := alt.Int(j)
			if !ok || !hasTotal || total == 0 {
				fractions[j] = math.NaN()
				classes[j] = ClassAbsent
				quals[j] = math.NaN()
				continue
			}
			// Classify the fraction as written so HF and HC agree.
			f := round(float64(count)/float64(total), 4)
			fractions[j] = f
			classes[j] = Classify(f, r.cfg.Low, r.cfg.High)
			quals[j] = round(Quality(count, total, r.cfg.ErrorRate), 2)
		}

		v.SetSampleValue(i, r.cfg.FractionField, vcf.FloatValue(fractions...))
		v.SetSampleValue(i, r.cfg.ClassField, vcf.StringValue(classes...))
		v.SetSampleValue(i, r.cfg.QualityField, vcf.FloatValue(quals...))
		strandBias(v, i, nAlt)
	}

	return StatusRecomputed
}

// totalDepth returns the total read count of sample i: the depth field when
// present, otherwise reference plus alternate observations.
func (r *Recomputer) totalDepth(v *vcf.Variant, i int, alt vcf.Value, nAlt int) (int64, bool) {
	if dp, ok := v.SampleValue(i, r.cfg.DepthField); ok {
		if n, ok := dp.Int(0); ok {
			return n, true
		}
	}

	ro, ok := v.SampleValue(i, r.cfg.RefCountField)
	if !ok {
		return 0, false
	}
	total, ok := ro.Int(0)
	if !ok {
		return 0, false
	}
	for j := 0; j < nAlt; j++ {
		n, ok := alt.Int(j)
		if !ok {
			return 0, false
		}
		total += n
	}
	return total, true
}

// Classify maps an allele fraction to a heteroplasmy class. The upper
// boundary is closed: a fraction equal to high is homoplasmic. A fraction
// at or below low is absent. NaN is absent.
func Classify(fraction, low, high float64) string {
	switch {
	case math.IsNaN(fraction):
		return ClassAbsent
	case fraction >= high:
		return ClassHomoplasmic
	case fraction > low:
		return ClassHeteroplasmic
	default:
		return ClassAbsent
	}
}

// Quality returns -10*log10 P(X >= alt) for X ~ Binomial(total, errorRate),
// the phred-scaled chance that alt reads are all sequencing errors. The
// result is capped at 200.
func Quality(alt, total int64, errorRate float64) float64 {
	if alt <= 0 || total <= 0 {
		return 0
	}
	b := distuv.Binomial{N: float64(total), P: errorRate}
	p := b.Survival(float64(alt - 1))
	if p <= 0 {
		return maxQuality
	}
	q := -10 * math.Log10(p)
	if q > maxQuality || math.IsInf(q, 1) {
		return maxQuality
	}
	if q < 0 {
		return 0
	}
	return q
}

func round(f float64, places int) float64 {
	if math.IsNaN(f) {
		return f
	}
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
