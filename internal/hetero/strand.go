package hetero

import (
	"math"

	"github.com/inodb/vibe-mity/internal/vcf"
)

// freebayes strand-specific observation counts.
const (
	fieldSAF = "SAF"
	fieldSAR = "SAR"
	fieldSRF = "SRF"
	fieldSRR = "SRR"

	fieldSBA = "SBA"
	fieldSBR = "SBR"
)

// strandBias writes the forward-strand fraction of alternate (SBA, one per
// allele) and reference (SBR) reads for sample i when the counts are
// present. A zero denominator yields a missing value.
func strandBias(v *vcf.Variant, i, nAlt int) {
	saf, okF := v.SampleValue(i, fieldSAF)
	sar, okR := v.SampleValue(i, fieldSAR)
	if okF && okR {
		sba := make([]float64, nAlt)
		for j := range sba {
			f, ok1 := saf.Int(j)
			r, ok2 := sar.Int(j)
			sba[j] = forwardFraction(f, r, ok1 && ok2)
		}
		v.SetSampleValue(i, fieldSBA, vcf.FloatValue(sba...))
	}

	srf, okF := v.SampleValue(i, fieldSRF)
	srr, okR := v.SampleValue(i, fieldSRR)
	if okF && okR {
		f, ok1 := srf.Int(0)
		r, ok2 := srr.Int(0)
		v.SetSampleValue(i, fieldSBR, vcf.FloatValue(forwardFraction(f, r, ok1 && ok2)))
	}
}

func forwardFraction(fwd, rev int64, ok bool) float64 {
	if !ok || fwd+rev == 0 {
		return math.NaN()
	}
	return round(float64(fwd)/float64(fwd+rev), 4)
}
