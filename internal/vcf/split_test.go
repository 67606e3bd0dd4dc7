package vcf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMultiAllelic(t *testing.T) {
	parser, err := NewParser(findTestFile(t, "mito.vcf"))
	require.NoError(t, err)
	defer parser.Close()

	variants, err := readAll(parser)
	require.NoError(t, err)
	require.Len(t, variants, 3)

	single := SplitMultiAllelic(variants[0], parser.Header())
	require.Len(t, single, 1)
	assert.Same(t, variants[0], single[0])

	split := SplitMultiAllelic(variants[2], parser.Header())
	require.Len(t, split, 2)

	first, second := split[0], split[1]
	assert.Equal(t, []string{"AC"}, first.Alt)
	assert.Equal(t, []string{"C"}, second.Alt)
	assert.Equal(t, first.Pos, second.Pos)

	ao, _ := first.Info.Get("AO")
	assert.Equal(t, "20", ao.Text())
	ao, _ = second.Info.Get("AO")
	assert.Equal(t, "10", ao.Text())
	mqm, _ := second.Info.Get("MQM")
	assert.Equal(t, "38", mqm.Text())
	_, ok := second.Info.Get("INDEL")
	assert.True(t, ok, "unsized INFO fields are kept")

	gt, _ := first.SampleValue(0, "GT")
	assert.Equal(t, "1/0", gt.Text())
	gt, _ = second.SampleValue(0, "GT")
	assert.Equal(t, "0/1", gt.Text())
	gt, _ = second.SampleValue(1, "GT")
	assert.Equal(t, "0/0", gt.Text())

	sao, _ := second.SampleValue(0, "AO")
	assert.Equal(t, "10", sao.Text())
	gl, _ := first.SampleValue(0, "GL")
	assert.True(t, gl.IsMissing(), "Number=G fields do not survive a split")

	// The source record is untouched.
	assert.Equal(t, []string{"AC", "C"}, variants[2].Alt)
}
