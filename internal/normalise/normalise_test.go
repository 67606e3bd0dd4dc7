package normalise

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-mity/internal/hetero"
	"github.com/inodb/vibe-mity/internal/vcf"
)

func findTestFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("testdata", name)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("test file not found: %s", path)
	}
	return path
}

// run normalises the raw fixture and parses the result back.
func run(t *testing.T, opts Options) (Summary, *vcf.Header, []*vcf.Variant) {
	t.Helper()
	p, err := vcf.NewParser(findTestFile(t, "raw.vcf"))
	require.NoError(t, err)
	defer p.Close()

	n, err := New(opts)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := vcf.NewWriter(&buf, n.OutputHeader(p.Header()))
	require.NoError(t, w.WriteHeader())
	sum, err := n.Run(p, w)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	out, err := vcf.NewParserFromReader(strings.NewReader(buf.String()))
	require.NoError(t, err)
	var records []*vcf.Variant
	for {
		v, err := out.Next()
		require.NoError(t, err)
		if v == nil {
			break
		}
		records = append(records, v)
	}
	return sum, out.Header(), records
}

func sampleText(t *testing.T, v *vcf.Variant, key string) string {
	t.Helper()
	val, ok := v.SampleValue(0, key)
	require.True(t, ok, "%s:%d has no %s", v.Chrom, v.Pos, key)
	return val.Text()
}

func TestRun(t *testing.T) {
	sum, h, records := run(t, DefaultOptions())

	assert.Equal(t, 5, sum.Read)
	assert.Equal(t, 1, sum.Split)
	assert.Equal(t, 6, sum.Written)
	assert.Equal(t, 5, sum.Recomputed)
	assert.Equal(t, 1, sum.Warnings)
	assert.Equal(t, 3, sum.Passed)
	assert.Equal(t, map[string]int{"LowQual": 1, "DP": 1, "MQM": 1, "POS": 1}, sum.Filtered)

	assert.Contains(t, h.Formats, "HF")
	assert.Contains(t, h.Filters, "POS")

	require.Len(t, records, 6)
	m73 := records[0]
	assert.Equal(t, int64(73), m73.Pos)
	assert.Empty(t, m73.Filter)
	assert.Equal(t, "0.995", sampleText(t, m73, "HF"))
	assert.Equal(t, hetero.ClassHomoplasmic, sampleText(t, m73, "HC"))

	m310 := records[1]
	assert.Equal(t, []string{"POS"}, m310.Filter)
	assert.Equal(t, hetero.ClassHeteroplasmic, sampleText(t, m310, "HC"))

	m3243 := records[2]
	assert.Equal(t, "0.95", sampleText(t, m3243, "HF"))
	assert.Equal(t, hetero.ClassHeteroplasmic, sampleText(t, m3243, "HC"))
	assert.Empty(t, m3243.Filter)

	ac, c := records[3], records[4]
	assert.Equal(t, []string{"AC"}, ac.Alt)
	assert.Equal(t, []string{"C"}, c.Alt)
	assert.Equal(t, "1/0", sampleText(t, ac, "GT"))
	assert.Equal(t, "0/1", sampleText(t, c, "GT"))
	assert.Equal(t, "0.5", sampleText(t, ac, "HF"))
	assert.Equal(t, "0.05", sampleText(t, c, "HF"))
	assert.Equal(t, hetero.ClassAbsent, sampleText(t, c, "HC"))
	assert.Empty(t, ac.Filter)
	assert.Equal(t, []string{"MQM"}, c.Filter)

	low := records[5]
	assert.Equal(t, []string{"LowQual", "DP"}, low.Filter)
	warn, ok := low.Info.Get("MITY_WARN")
	require.True(t, ok)
	assert.Equal(t, hetero.WarningMissingReadSupport, warn.Text())
}

func TestRun_NoSplit(t *testing.T) {
	opts := DefaultOptions()
	opts.Split = false
	sum, _, records := run(t, opts)

	assert.Zero(t, sum.Split)
	require.Len(t, records, 5)
	assert.Equal(t, "0.5,0.05", sampleText(t, records[3], "HF"))
	// MQM 50,20: one element below threshold fails the record
	assert.Equal(t, []string{"MQM"}, records[3].Filter)
}

func TestRun_PassWrittenExplicitly(t *testing.T) {
	p, err := vcf.NewParser(findTestFile(t, "raw.vcf"))
	require.NoError(t, err)
	defer p.Close()

	n, err := New(DefaultOptions())
	require.NoError(t, err)
	var buf bytes.Buffer
	w := vcf.NewWriter(&buf, n.OutputHeader(p.Header()))
	_, err = n.Run(p, w)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	first := strings.SplitN(buf.String(), "\n", 2)[0]
	cols := strings.Split(first, "\t")
	require.Greater(t, len(cols), 6)
	assert.Equal(t, "PASS", cols[6])
}

func TestNew_InvalidThresholds(t *testing.T) {
	opts := DefaultOptions()
	opts.Hetero.Low, opts.Hetero.High = 0.9, 0.5
	_, err := New(opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.Filter.StrandBias = []float64{0.5}
	_, err = New(opts)
	assert.Error(t, err)
}

func TestOutputHeader_CommandLine(t *testing.T) {
	opts := DefaultOptions()
	opts.CommandLine = "vibe-mity normalise in.vcf"
	n, err := New(opts)
	require.NoError(t, err)

	h := n.OutputHeader(vcf.NewHeader())
	assert.Contains(t, h.Meta, "##vibe-mity_normaliseCommand=vibe-mity normalise in.vcf")
}
