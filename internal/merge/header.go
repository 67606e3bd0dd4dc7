package merge

import (
	"strings"

	"github.com/inodb/vibe-mity/internal/vcf"
)

// sampleMap places one input's samples into the merged sample list.
// A nil map means the input's samples are used unchanged.
type sampleMap struct {
	positions []int // merged index of each input sample
	total     int
}

// MergeHeaders builds the output header from the nuclear header, adding
// the mitochondrial contigs, field and filter declarations, and other meta
// lines it does not already carry. Identical sample lists are kept as is;
// otherwise the lists must be disjoint and are concatenated, nuclear first.
func (m *Merger) MergeHeaders(mito, nuclear *vcf.Header) (*vcf.Header, error) {
	out := nuclear.Clone()

	for _, id := range sortedKeys(mito.Infos) {
		if err := mergeField(out, "INFO", mito.Infos[id], out.Infos[id]); err != nil {
			return nil, err
		}
	}
	for _, id := range sortedKeys(mito.Formats) {
		if err := mergeField(out, "FORMAT", mito.Formats[id], out.Formats[id]); err != nil {
			return nil, err
		}
	}
	for _, id := range sortedKeys(mito.Filters) {
		if _, ok := out.Filters[id]; !ok {
			out.SetFilter(id, mito.Filters[id])
		}
	}
	for _, c := range mito.Contigs {
		out.AddContig(c)
	}

	present := make(map[string]bool, len(out.Meta))
	for _, line := range out.Meta {
		present[line] = true
	}
	for _, line := range mito.Meta {
		if present[line] || isStructured(line) || strings.HasPrefix(line, "##fileformat=") {
			continue
		}
		out.Meta = append(out.Meta, line)
		present[line] = true
	}

	m.mitoSamples, m.nuclearSamples = nil, nil
	if !equalStrings(mito.Samples, nuclear.Samples) {
		seen := make(map[string]bool, len(nuclear.Samples))
		for _, s := range nuclear.Samples {
			seen[s] = true
		}
		for _, s := range mito.Samples {
			if seen[s] {
				return nil, &DuplicateSampleError{Sample: s}
			}
		}
		out.Samples = append(append([]string(nil), nuclear.Samples...), mito.Samples...)
		total := len(out.Samples)
		m.nuclearSamples = &sampleMap{positions: seq(0, len(nuclear.Samples)), total: total}
		m.mitoSamples = &sampleMap{positions: seq(len(nuclear.Samples), len(mito.Samples)), total: total}
	}

	m.header = out
	m.order = NewContigOrder(m.cfg, out.Contigs)
	return out, nil
}

func mergeField(out *vcf.Header, section string, mito, nuclear *vcf.FieldDef) error {
	if nuclear == nil {
		if section == "INFO" {
			out.SetInfo(*mito)
		} else {
			out.SetFormat(*mito)
		}
		return nil
	}
	if !mito.Compatible(nuclear) {
		return &IncompatibleFieldDescriptorError{
			Section: section,
			ID:      mito.ID,
			Mito:    "Number=" + mito.Number + ",Type=" + mito.Type.String(),
			Nuclear: "Number=" + nuclear.Number + ",Type=" + nuclear.Type.String(),
		}
	}
	return nil
}

func isStructured(line string) bool {
	for _, p := range []string{"##INFO=<", "##FORMAT=<", "##FILTER=<", "##contig=<"} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// remap moves a record's samples to their merged positions, filling the
// other input's samples with missing values.
func (sm *sampleMap) remap(v *vcf.Variant) {
	if sm == nil {
		return
	}
	if len(v.Format) == 0 {
		v.Format = []string{"GT"}
	}
	samples := make([]vcf.Sample, sm.total)
	for i, s := range v.Samples {
		samples[sm.positions[i]] = s
	}
	for i, s := range samples {
		if s == nil {
			samples[i] = vcf.Sample{}
		}
	}
	v.Samples = samples
}

func seq(start, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
