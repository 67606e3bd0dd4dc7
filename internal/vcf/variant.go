// Package vcf provides VCF reading, writing and the in-memory record model.
package vcf

import (
	"math"
	"strconv"
	"strings"
)

// PassFilter is the FILTER value of a record with no failure labels.
const PassFilter = "PASS"

// Sample holds one sample's FORMAT values keyed by FORMAT key. An empty
// sample stands for a column that was entirely missing (".").
type Sample map[string]Value

// Variant represents a single record from a VCF file.
type Variant struct {
	Chrom  string   // Chromosome name (e.g., "MT", "chr1")
	Pos    int64    // 1-based genomic position
	ID     string   // Variant identifier (e.g., rs ID)
	Ref    string   // Reference allele
	Alt    []string // Alternate alleles; index i is allele i+1 in GT
	Qual   float64  // Quality score, NaN when missing
	Filter []string // Failure labels; empty means PASS
	Info   *Info    // INFO key-value pairs

	// Format lists the FORMAT keys shared by every sample of the record.
	Format  []string
	Samples []Sample

	qualText   string
	filterText string
}

// NewVariant returns a record with empty INFO and a missing quality.
func NewVariant(chrom string, pos int64, ref string, alt ...string) *Variant {
	return &Variant{
		Chrom: chrom,
		Pos:   pos,
		ID:    ".",
		Ref:   ref,
		Alt:   alt,
		Qual:  math.NaN(),
		Info:  NewInfo(),
	}
}

// End returns the last reference base covered by the record.
func (v *Variant) End() int64 {
	if len(v.Ref) == 0 {
		return v.Pos
	}
	return v.Pos + int64(len(v.Ref)) - 1
}

// HasQual reports whether QUAL is present.
func (v *Variant) HasQual() bool {
	return !math.IsNaN(v.Qual)
}

// Passed reports whether the record carries no failure labels.
func (v *Variant) Passed() bool {
	return len(v.Filter) == 0
}

// HasFilter reports whether label is among the failure labels.
func (v *Variant) HasFilter(label string) bool {
	for _, f := range v.Filter {
		if f == label {
			return true
		}
	}
	return false
}

// AddFilter adds a failure label. Labels form a set: adding a label that is
// already present does nothing and returns false.
func (v *Variant) AddFilter(label string) bool {
	if label == "" || label == PassFilter || v.HasFilter(label) {
		return false
	}
	v.Filter = append(v.Filter, label)
	v.filterText = ""
	return true
}

// MarkFiltered records that filters were evaluated. A record without
// failure labels is then written as PASS rather than with its input text.
func (v *Variant) MarkFiltered() {
	if len(v.Filter) == 0 {
		v.filterText = ""
	}
}

// FormatIndex returns the position of key in the FORMAT descriptor, or -1.
func (v *Variant) FormatIndex(key string) int {
	for i, k := range v.Format {
		if k == key {
			return i
		}
	}
	return -1
}

// SampleValue returns FORMAT value key of sample i.
func (v *Variant) SampleValue(i int, key string) (Value, bool) {
	if i < 0 || i >= len(v.Samples) {
		return Value{}, false
	}
	val, ok := v.Samples[i][key]
	return val, ok
}

// SetSampleValue stores a FORMAT value for sample i. A key new to the
// record is appended to the FORMAT descriptor and every other sample gets a
// missing value for it, so all samples keep the same keys.
func (v *Variant) SetSampleValue(i int, key string, val Value) {
	if i < 0 || i >= len(v.Samples) {
		return
	}
	if v.FormatIndex(key) < 0 {
		v.Format = append(v.Format, key)
		for j := range v.Samples {
			if j != i && len(v.Samples[j]) > 0 {
				v.Samples[j][key] = MissingValue(val.Kind())
			}
		}
	}
	v.Samples[i][key] = val
}

// Clone returns a deep copy of the record.
func (v *Variant) Clone() *Variant {
	out := *v
	out.Alt = append([]string(nil), v.Alt...)
	out.Filter = append([]string(nil), v.Filter...)
	out.Format = append([]string(nil), v.Format...)
	if v.Info != nil {
		out.Info = v.Info.Clone()
	}
	out.Samples = make([]Sample, len(v.Samples))
	for i, s := range v.Samples {
		ns := make(Sample, len(s))
		for k, val := range s {
			ns[k] = val
		}
		out.Samples[i] = ns
	}
	return &out
}

// qualString renders QUAL, reusing the input text while QUAL is unchanged.
func (v *Variant) qualString() string {
	if v.qualText != "" {
		if v.qualText == "." && math.IsNaN(v.Qual) {
			return v.qualText
		}
		if f, err := strconv.ParseFloat(v.qualText, 64); err == nil && f == v.Qual {
			return v.qualText
		}
	}
	return FormatFloat(v.Qual)
}

// filterString renders FILTER, reusing the input text while no label was
// added.
func (v *Variant) filterString() string {
	if v.filterText != "" {
		return v.filterText
	}
	if len(v.Filter) == 0 {
		return PassFilter
	}
	return strings.Join(v.Filter, ";")
}

// Genotype holds the allele indices of a GT value. Missing alleles are -1.
type Genotype struct {
	Alleles []int
	Phased  bool
}

// ParseGenotype parses a GT string such as "0/1", "1|0", "1" or "./.".
func ParseGenotype(s string) (Genotype, error) {
	var g Genotype
	sep := "/"
	if strings.Contains(s, "|") {
		sep = "|"
		g.Phased = true
	}
	for _, a := range strings.Split(s, sep) {
		if a == "." {
			g.Alleles = append(g.Alleles, -1)
			continue
		}
		n, err := strconv.Atoi(a)
		if err != nil {
			return Genotype{}, err
		}
		g.Alleles = append(g.Alleles, n)
	}
	return g, nil
}

// String renders the genotype in VCF form.
func (g Genotype) String() string {
	sep := "/"
	if g.Phased {
		sep = "|"
	}
	parts := make([]string, len(g.Alleles))
	for i, a := range g.Alleles {
		if a < 0 {
			parts[i] = "."
		} else {
			parts[i] = strconv.Itoa(a)
		}
	}
	return strings.Join(parts, sep)
}
