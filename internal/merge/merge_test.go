package merge

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-mity/internal/vcf"
)

const nuclearVCF = `##fileformat=VCFv4.2
##contig=<ID=chr1,length=248956422>
##contig=<ID=chr2,length=242193529>
##contig=<ID=chrM,length=16569>
##INFO=<ID=DP,Number=1,Type=Integer,Description="Total depth">
##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	S1
chr1	100	.	A	G	50	PASS	DP=30	GT	0/1
chr1	500	.	C	T	60	PASS	DP=40	GT	0/1
chr2	10	.	G	A	70	PASS	DP=20	GT	1/1
`

const mitoVCF = `##fileformat=VCFv4.2
##freebayesSource=freeBayes v1.3.6
##contig=<ID=chr1,length=248956422>
##contig=<ID=chr2,length=242193529>
##contig=<ID=chrM,length=16569>
##INFO=<ID=DP,Number=1,Type=Integer,Description="Total depth">
##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">
##FORMAT=<ID=HF,Number=A,Type=Float,Description="Heteroplasmy fraction">
##FILTER=<ID=DP,Description="Sample read depth below 15">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	S1
chrM	73	.	A	G	900	PASS	DP=1000	GT:HF	1:1
chrM	3243	.	A	G	800	PASS	DP=100	GT:HF	0/1:0.95
`

func parse(t *testing.T, text string) *vcf.Parser {
	t.Helper()
	p, err := vcf.NewParserFromReader(strings.NewReader(text))
	require.NoError(t, err)
	return p
}

// sliceSource serves records from memory.
type sliceSource struct {
	header  *vcf.Header
	records []*vcf.Variant
}

func (s *sliceSource) Header() *vcf.Header { return s.header }

func (s *sliceSource) Next() (*vcf.Variant, error) {
	if len(s.records) == 0 {
		return nil, nil
	}
	v := s.records[0]
	s.records = s.records[1:]
	return v, nil
}

func newSource(contigs []string, records ...*vcf.Variant) *sliceSource {
	h := vcf.NewHeader()
	for _, c := range contigs {
		h.AddContig(vcf.Contig{ID: c})
	}
	return &sliceSource{header: h, records: records}
}

type collector struct {
	records []*vcf.Variant
}

func (c *collector) Write(v *vcf.Variant) error {
	c.records = append(c.records, v)
	return nil
}

func (c *collector) loci() []string {
	out := make([]string, len(c.records))
	for i, v := range c.records {
		out[i] = v.Chrom + ":" + strconv.FormatInt(v.Pos, 10) + ":" + strings.Join(v.Alt, ",")
	}
	return out
}

func defaultConfig() Config {
	return Config{MitoContigs: []string{"MT", "chrM"}}
}

func TestMerge_InterleavesByContigOrder(t *testing.T) {
	m, err := New(defaultConfig())
	require.NoError(t, err)

	var out collector
	stats, err := m.Merge(parse(t, mitoVCF), parse(t, nuclearVCF), &out)
	require.NoError(t, err)

	assert.Equal(t, []string{"chr1:100:G", "chr1:500:T", "chr2:10:A", "chrM:73:G", "chrM:3243:G"}, out.loci())
	assert.Equal(t, Stats{MitoRecords: 2, NuclearRecords: 3, Written: 5}, stats)
}

func TestMerge_MitoFirst(t *testing.T) {
	cfg := defaultConfig()
	cfg.MitoFirst = true
	m, err := New(cfg)
	require.NoError(t, err)

	var out collector
	_, err = m.Merge(parse(t, mitoVCF), parse(t, nuclearVCF), &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"chrM:73:G", "chrM:3243:G", "chr1:100:G", "chr1:500:T", "chr2:10:A"}, out.loci())
}

func TestMerge_MitoLast(t *testing.T) {
	cfg := defaultConfig()
	cfg.MitoLast = true
	m, err := New(cfg)
	require.NoError(t, err)

	mito := newSource([]string{"chrM", "chr1", "chr2"},
		vcf.NewVariant("chrM", 73, "A", "G"))
	nuclear := newSource([]string{"chrM", "chr1", "chr2"},
		vcf.NewVariant("chr1", 100, "A", "G"), vcf.NewVariant("chr2", 10, "G", "A"))

	var out collector
	_, err = m.Merge(mito, nuclear, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1:100:G", "chr2:10:A", "chrM:73:G"}, out.loci())

	cfg.MitoFirst = true
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestMerge_OverlapsAreNotConflicts(t *testing.T) {
	m, err := New(defaultConfig())
	require.NoError(t, err)

	mito := newSource([]string{"chr1"},
		vcf.NewVariant("chr1", 100, "ACGT", "A"), vcf.NewVariant("chr1", 200, "C", "T"))
	nuclear := newSource([]string{"chr1"},
		vcf.NewVariant("chr1", 102, "G", "C"), vcf.NewVariant("chr1", 150, "T", "A"))

	var out collector
	stats, err := m.Merge(mito, nuclear, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1:100:A", "chr1:102:C", "chr1:150:A", "chr1:200:T"}, out.loci())
	assert.Equal(t, 1, stats.Overlaps)
	assert.Equal(t, 0, stats.Conflicts)
}

func TestMerge_HeteroplasmicRecordPassesThrough(t *testing.T) {
	m, err := New(Config{MitoContigs: []string{"MT"}})
	require.NoError(t, err)

	v := vcf.NewVariant("MT", 3243, "A", "G")
	v.Format = []string{"HF", "HC"}
	v.Samples = []vcf.Sample{{"HF": vcf.FloatValue(0.95), "HC": vcf.StringValue("heteroplasmic")}}
	mito := newSource([]string{"1", "MT"}, v)
	mito.header.Samples = []string{"S1"}
	nuclear := newSource([]string{"1"}, vcf.NewVariant("1", 10, "A", "T"), vcf.NewVariant("1", 20, "C", "G"))
	nuclear.header.Samples = []string{"S1"}
	for _, r := range nuclear.records {
		r.Format = []string{"GT"}
		r.Samples = []vcf.Sample{{"GT": vcf.StringValue("0/1")}}
	}

	var out collector
	_, err = m.Merge(mito, nuclear, &out)
	require.NoError(t, err)

	require.Len(t, out.records, 3)
	last := out.records[2]
	assert.Same(t, v, last)
	hf, _ := last.SampleValue(0, "HF")
	assert.Equal(t, "0.95", hf.Text())
	hc, _ := last.SampleValue(0, "HC")
	assert.Equal(t, "heteroplasmic", hc.Text())
}

func TestMerge_AmbiguousConflict(t *testing.T) {
	m, err := New(defaultConfig())
	require.NoError(t, err)

	mito := newSource([]string{"chr1", "chrM"}, vcf.NewVariant("chr1", 500, "A", "G"))
	nuclear := newSource([]string{"chr1"}, vcf.NewVariant("chr1", 500, "A", "T"))

	_, err = m.Merge(mito, nuclear, &collector{})
	var ae *AmbiguousMergeConflictError
	require.True(t, errors.As(err, &ae), "got %v", err)
	assert.Equal(t, "chr1", ae.Chrom)
	assert.Equal(t, int64(500), ae.Pos)
	assert.Equal(t, []string{"G"}, ae.MitoAlt)
	assert.Equal(t, []string{"T"}, ae.NuclearAlt)
}

func TestMerge_KeepAmbiguous(t *testing.T) {
	cfg := defaultConfig()
	cfg.KeepAmbiguous = true
	m, err := New(cfg)
	require.NoError(t, err)

	mito := newSource([]string{"chr1"}, vcf.NewVariant("chr1", 500, "A", "G"))
	nuclear := newSource([]string{"chr1"}, vcf.NewVariant("chr1", 500, "A", "T"))

	var out collector
	stats, err := m.Merge(mito, nuclear, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1:500:G", "chr1:500:T"}, out.loci())
	assert.Equal(t, 1, stats.Ambiguous)
}

func TestMerge_MitoOwnsItsContig(t *testing.T) {
	tests := []struct {
		name      string
		keepDup   bool
		want      []string
		discarded int
	}{
		{"owner wins", false, []string{"chrM:150:C", "chrM:200:A"}, 1},
		{"keep duplicates adjacent", true, []string{"chrM:150:C", "chrM:150:T", "chrM:200:A"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.KeepDuplicates = tt.keepDup
			m, err := New(cfg)
			require.NoError(t, err)

			mito := newSource([]string{"chrM"}, vcf.NewVariant("chrM", 150, "A", "C"))
			nuclear := newSource([]string{"chrM"},
				vcf.NewVariant("chrM", 150, "A", "T"),
				vcf.NewVariant("chrM", 200, "G", "A"))

			var out collector
			stats, err := m.Merge(mito, nuclear, &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.loci())
			assert.Equal(t, 1, stats.Conflicts)
			assert.Equal(t, tt.discarded, stats.Discarded)
		})
	}
}

func TestMerge_NuclearOwnerDropsEveryMitoRecordAtLocus(t *testing.T) {
	cfg := defaultConfig()
	cfg.DefaultOwner = "nuclear"
	m, err := New(cfg)
	require.NoError(t, err)

	mito := newSource([]string{"chr1"},
		vcf.NewVariant("chr1", 500, "A", "G"),
		vcf.NewVariant("chr1", 500, "A", "C"),
		vcf.NewVariant("chr1", 600, "A", "C"))
	nuclear := newSource([]string{"chr1"}, vcf.NewVariant("chr1", 500, "A", "T"))

	var out collector
	stats, err := m.Merge(mito, nuclear, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1:500:T", "chr1:600:C"}, out.loci())
	assert.Equal(t, 2, stats.Discarded)
}

func TestMerge_ExhaustedStream(t *testing.T) {
	m, err := New(defaultConfig())
	require.NoError(t, err)

	mito := newSource([]string{"chr1", "chrM"})
	nuclear := newSource([]string{"chr1", "chrM"},
		vcf.NewVariant("chr1", 1, "A", "G"),
		vcf.NewVariant("chr1", 2, "A", "G"))

	var out collector
	stats, err := m.Merge(mito, nuclear, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Written)
	assert.Zero(t, stats.MitoRecords)
}

func TestMerge_UnknownContigsAppended(t *testing.T) {
	m, err := New(defaultConfig())
	require.NoError(t, err)

	mito := newSource([]string{"chrM"}, vcf.NewVariant("chrM", 10, "A", "G"))
	nuclear := newSource(nil,
		vcf.NewVariant("chrUn_1", 5, "A", "G"),
		vcf.NewVariant("chrUn_2", 5, "A", "G"))

	var out collector
	_, err = m.Merge(mito, nuclear, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"chrM:10:G", "chrUn_1:5:G", "chrUn_2:5:G"}, out.loci())
}

func TestMerge_StreamDisagreesWithOrder(t *testing.T) {
	cfg := defaultConfig()
	cfg.Order = map[string]int{"chr2": 0, "chr1": 1}
	m, err := New(cfg)
	require.NoError(t, err)

	mito := newSource([]string{"chr1", "chr2"})
	nuclear := newSource([]string{"chr1", "chr2"},
		vcf.NewVariant("chr1", 1, "A", "G"),
		vcf.NewVariant("chr2", 1, "A", "G"))

	_, err = m.Merge(mito, nuclear, &collector{})
	var ue *vcf.UnsortedInputError
	require.True(t, errors.As(err, &ue), "got %v", err)
	assert.Equal(t, "chr2", ue.Chrom)
	assert.Equal(t, "chr1", ue.PrevChrom)
}

func TestMerge_OutputIsOrdered(t *testing.T) {
	m, err := New(defaultConfig())
	require.NoError(t, err)

	contigs := []string{"chr1", "chr2", "chrM"}
	var mitoRecs, nuclearRecs []*vcf.Variant
	for _, c := range contigs {
		for p := int64(1); p <= 30; p++ {
			switch {
			case p%3 == 0 && c != "chrM":
				nuclearRecs = append(nuclearRecs, vcf.NewVariant(c, p*7, "A", "G"))
			case p%4 == 0 && c == "chrM":
				mitoRecs = append(mitoRecs, vcf.NewVariant(c, p*5, "A", "G"))
			case p%5 == 0 && c != "chrM":
				mitoRecs = append(mitoRecs, vcf.NewVariant(c, p*11, "A", "C"))
			}
		}
	}
	sortStream(mitoRecs)
	sortStream(nuclearRecs)

	var out collector
	_, err = m.Merge(newSource(contigs, mitoRecs...), newSource(contigs, nuclearRecs...), &out)
	require.NoError(t, err)

	order := NewContigOrder(defaultConfig(), []vcf.Contig{{ID: "chr1"}, {ID: "chr2"}, {ID: "chrM"}})
	for i := 1; i < len(out.records); i++ {
		a := locus{order.Rank(out.records[i-1].Chrom), out.records[i-1].Pos}
		b := locus{order.Rank(out.records[i].Chrom), out.records[i].Pos}
		assert.False(t, b.less(a), "record %d out of order", i)
	}
}

func sortStream(recs []*vcf.Variant) {
	rank := map[string]int{"chr1": 0, "chr2": 1, "chrM": 2}
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0; j-- {
			a, b := recs[j-1], recs[j]
			if rank[a.Chrom] < rank[b.Chrom] || (a.Chrom == b.Chrom && a.Pos <= b.Pos) {
				break
			}
			recs[j-1], recs[j] = b, a
		}
	}
}

func TestMergeHeaders(t *testing.T) {
	m, err := New(defaultConfig())
	require.NoError(t, err)

	h, err := m.MergeHeaders(parse(t, mitoVCF).Header(), parse(t, nuclearVCF).Header())
	require.NoError(t, err)

	assert.Equal(t, []string{"S1"}, h.Samples)
	assert.Len(t, h.Contigs, 3)
	assert.Contains(t, h.Formats, "HF")
	assert.Contains(t, h.Filters, "DP")
	assert.Contains(t, h.Meta, "##freebayesSource=freeBayes v1.3.6")
}

func TestMergeHeaders_IncompatibleField(t *testing.T) {
	m, err := New(defaultConfig())
	require.NoError(t, err)

	mito := vcf.NewHeader()
	mito.SetInfo(vcf.FieldDef{ID: "DP", Number: "1", Type: vcf.KindFloat})
	nuclear := vcf.NewHeader()
	nuclear.SetInfo(vcf.FieldDef{ID: "DP", Number: "1", Type: vcf.KindInteger})

	_, err = m.MergeHeaders(mito, nuclear)
	var fe *IncompatibleFieldDescriptorError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, "INFO", fe.Section)
	assert.Equal(t, "DP", fe.ID)
}

func TestMergeHeaders_Samples(t *testing.T) {
	m, err := New(defaultConfig())
	require.NoError(t, err)

	mito := vcf.NewHeader()
	mito.Samples = []string{"A", "B"}
	nuclear := vcf.NewHeader()
	nuclear.Samples = []string{"B", "C"}

	_, err = m.MergeHeaders(mito, nuclear)
	var de *DuplicateSampleError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.Equal(t, "B", de.Sample)

	mito.Samples = []string{"M1"}
	nuclear.Samples = []string{"N1", "N2"}
	h, err := m.MergeHeaders(mito, nuclear)
	require.NoError(t, err)
	assert.Equal(t, []string{"N1", "N2", "M1"}, h.Samples)

	mv := vcf.NewVariant("chr1", 1, "A", "G")
	mv.Format = []string{"GT"}
	mv.Samples = []vcf.Sample{{"GT": vcf.StringValue("1")}}
	nv := vcf.NewVariant("chr1", 2, "A", "G")
	nv.Format = []string{"GT"}
	nv.Samples = []vcf.Sample{{"GT": vcf.StringValue("0/1")}, {"GT": vcf.StringValue("1/1")}}

	var buf bytes.Buffer
	w := vcf.NewWriter(&buf, h)
	_, err = m.Merge(&sliceSource{header: mito, records: []*vcf.Variant{mv}},
		&sliceSource{header: nuclear, records: []*vcf.Variant{nv}}, w)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "GT\t.\t.\t1"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "GT\t0/1\t1/1\t."), lines[1])
}

func TestNew_InvalidOwner(t *testing.T) {
	_, err := New(Config{Owners: map[string]string{"chr1": "both"}})
	assert.Error(t, err)
	_, err = New(Config{DefaultOwner: "x"})
	assert.Error(t, err)
	_, err = New(Config{Order: map[string]int{"chr1": -1}})
	assert.Error(t, err)
}
