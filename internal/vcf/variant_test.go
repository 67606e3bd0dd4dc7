package vcf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariant_End(t *testing.T) {
	assert.Equal(t, int64(100), (&Variant{Pos: 100, Ref: "A"}).End())
	assert.Equal(t, int64(103), (&Variant{Pos: 100, Ref: "ACGT"}).End())
}

func TestVariant_AddFilterIsSet(t *testing.T) {
	v := NewVariant("MT", 3243, "A", "G")
	assert.True(t, v.Passed())
	assert.Equal(t, "PASS", v.filterString())

	assert.True(t, v.AddFilter("DP"))
	assert.False(t, v.AddFilter("DP"))
	assert.False(t, v.AddFilter("PASS"))
	assert.True(t, v.AddFilter("SBA"))

	assert.Equal(t, []string{"DP", "SBA"}, v.Filter)
	assert.Equal(t, "DP;SBA", v.filterString())
	assert.False(t, v.Passed())
}

func TestVariant_SetSampleValueExtendsFormat(t *testing.T) {
	v := NewVariant("MT", 73, "A", "G")
	v.Format = []string{"GT"}
	v.Samples = []Sample{
		{"GT": StringValue("1")},
		{"GT": StringValue("0")},
	}

	v.SetSampleValue(0, "HF", FloatValue(0.99))

	assert.Equal(t, []string{"GT", "HF"}, v.Format)
	hf, ok := v.SampleValue(0, "HF")
	require.True(t, ok)
	f, _ := hf.Float(0)
	assert.Equal(t, 0.99, f)

	other, ok := v.SampleValue(1, "HF")
	require.True(t, ok, "every sample must carry every FORMAT key")
	assert.True(t, other.IsMissing())
}

func TestVariant_Clone(t *testing.T) {
	v := NewVariant("MT", 73, "A", "G")
	v.Info.Set("DP", IntValue(10))
	v.Format = []string{"GT"}
	v.Samples = []Sample{{"GT": StringValue("1")}}

	c := v.Clone()
	c.AddFilter("DP")
	c.Info.Set("DP", IntValue(20))
	c.Samples[0]["GT"] = StringValue("0")

	assert.True(t, v.Passed())
	dp, _ := v.Info.Get("DP")
	assert.Equal(t, "10", dp.Text())
	gt, _ := v.SampleValue(0, "GT")
	assert.Equal(t, "1", gt.Text())
}

func TestVariant_QualText(t *testing.T) {
	v := &Variant{Qual: 30.5, qualText: "30.50"}
	assert.Equal(t, "30.50", v.qualString())

	v.Qual = 40
	assert.Equal(t, "40", v.qualString())

	v = &Variant{Qual: math.NaN(), qualText: "."}
	assert.Equal(t, ".", v.qualString())
}

func TestParseGenotype(t *testing.T) {
	tests := []struct {
		in      string
		alleles []int
		phased  bool
	}{
		{"0/1", []int{0, 1}, false},
		{"1|0", []int{1, 0}, true},
		{"1", []int{1}, false},
		{"./.", []int{-1, -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			g, err := ParseGenotype(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.alleles, g.Alleles)
			assert.Equal(t, tt.phased, g.Phased)
			assert.Equal(t, tt.in, g.String())
		})
	}

	_, err := ParseGenotype("x/1")
	assert.Error(t, err)
}

func TestValue_Parse(t *testing.T) {
	v, err := ParseValue("20,.,10", KindInteger)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Len())
	n, ok := v.Int(0)
	assert.True(t, ok)
	assert.Equal(t, int64(20), n)
	_, ok = v.Int(1)
	assert.False(t, ok)
	assert.False(t, v.IsMissing())
	assert.Equal(t, "20,.,10", v.Text())

	f, err := ParseValue("0.950", KindFloat)
	require.NoError(t, err)
	x, ok := f.Float(0)
	assert.True(t, ok)
	assert.Equal(t, 0.95, x)
	assert.Equal(t, "0.950", f.Text())

	_, err = ParseValue("abc", KindFloat)
	assert.Error(t, err)

	m, err := ParseValue(".", KindFloat)
	require.NoError(t, err)
	assert.True(t, m.IsMissing())
}

func TestValue_Constructors(t *testing.T) {
	assert.Equal(t, "0.95,.", FloatValue(0.95, math.NaN()).Text())
	assert.Equal(t, "1,.", IntValue(1, MissingInt()).Text())
	assert.Equal(t, "heteroplasmic", StringValue("heteroplasmic").Text())
	assert.Equal(t, "", FlagValue().Text())
	assert.False(t, FlagValue().IsMissing())
	assert.True(t, MissingValue(KindInteger).IsMissing())
}

func TestValue_Pick(t *testing.T) {
	v, err := ParseValue("5,20,10", KindInteger)
	require.NoError(t, err)

	p := v.Pick(0, 2)
	assert.Equal(t, "5,10", p.Text())
	n, _ := p.Int(1)
	assert.Equal(t, int64(10), n)

	out := v.Pick(7)
	assert.True(t, out.IsMissing())
}

func TestInfo_Order(t *testing.T) {
	in := NewInfo()
	in.Set("DP", IntValue(1))
	in.Set("AO", IntValue(2))
	in.Set("DP", IntValue(3))
	assert.Equal(t, []string{"DP", "AO"}, in.Keys())

	in.Delete("DP")
	assert.Equal(t, []string{"AO"}, in.Keys())
	_, ok := in.Get("DP")
	assert.False(t, ok)
}
