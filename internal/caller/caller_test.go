package caller

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-mity/internal/vcf"
)

const samHeader = "@HD\tVN:1.6\tSO:coordinate\n" +
	"@SQ\tSN:1\tLN:249250621\n" +
	"@SQ\tSN:MT\tLN:16569\n" +
	"@RG\tID:rg1\tSM:S1\n"

// script writes an executable shell script and returns its path.
func script(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func TestParseSAMHeader(t *testing.T) {
	h, err := ParseSAMHeader(strings.NewReader(samHeader))
	require.NoError(t, err)
	assert.Equal(t, []string{"rg1"}, h.ReadGroups)
	assert.Equal(t, []vcf.Contig{{ID: "1", Length: 249250621}, {ID: "MT", Length: 16569}}, h.Contigs)

	region, err := h.MitoRegion([]string{"MT", "chrM"})
	require.NoError(t, err)
	assert.Equal(t, "MT:1-16569", region)

	_, err = ParseSAMHeader(strings.NewReader("@SQ\tSN:MT\tLN:abc\n"))
	assert.Error(t, err)
}

func TestMitoRegion_Errors(t *testing.T) {
	none := AlignmentHeader{Contigs: []vcf.Contig{{ID: "1", Length: 10}}}
	_, err := none.MitoRegion([]string{"MT", "chrM"})
	assert.Error(t, err)

	both := AlignmentHeader{Contigs: []vcf.Contig{{ID: "MT", Length: 16569}, {ID: "chrM", Length: 16571}}}
	_, err = both.MitoRegion([]string{"MT", "chrM"})
	assert.Error(t, err)
}

func TestArgs(t *testing.T) {
	a, b := touch(t, "a.bam"), touch(t, "b.bam")
	opts := DefaultOptions()
	opts.Reference = "ref.fa"
	opts.BAMs = []string{a, b}
	opts.Prefix = "family"
	c, err := New(Tools{}, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-f", "ref.fa", "-b", b, "-b", a,
		"--min-mapping-quality", "30",
		"--min-base-quality", "24",
		"--min-alternate-fraction", "0.01",
		"--min-alternate-count", "4",
		"--ploidy", "2",
		"--region", "MT:1-16569",
	}, c.Args("MT:1-16569"))
}

func TestNew(t *testing.T) {
	bam := touch(t, "sample.bam")
	opts := DefaultOptions()
	opts.Reference = "ref.fa"
	opts.BAMs = []string{bam}
	c, err := New(Tools{}, opts)
	require.NoError(t, err)
	assert.Equal(t, "sample", c.Prefix())

	opts.BAMs = []string{bam, bam}
	_, err = New(Tools{}, opts)
	assert.ErrorContains(t, err, "--prefix")

	opts.BAMs = []string{filepath.Join(t.TempDir(), "missing.bam")}
	_, err = New(Tools{}, opts)
	assert.ErrorContains(t, err, "missing file")

	opts.Reference = ""
	_, err = New(Tools{}, opts)
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	bam := touch(t, "sample.bam")
	header := filepath.Join(t.TempDir(), "header.sam")
	require.NoError(t, os.WriteFile(header, []byte(samHeader), 0o644))

	opts := DefaultOptions()
	opts.Reference = "ref.fa"
	opts.BAMs = []string{bam}
	c, err := New(Tools{Samtools: script(t, "samtools", "cat "+header)}, opts)
	require.NoError(t, err)

	region, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MT:1-16569", region)

	noRG := filepath.Join(t.TempDir(), "norg.sam")
	require.NoError(t, os.WriteFile(noRG, []byte("@SQ\tSN:MT\tLN:16569\n"), 0o644))
	c, err = New(Tools{Samtools: script(t, "samtools", "cat "+noRG)}, opts)
	require.NoError(t, err)
	_, err = c.Check(context.Background())
	assert.ErrorContains(t, err, "@RG")
}

func TestStart(t *testing.T) {
	bam := touch(t, "sample.bam")
	opts := DefaultOptions()
	opts.Reference = "ref.fa"
	opts.BAMs = []string{bam}
	c, err := New(Tools{Freebayes: script(t, "freebayes", `echo "##fileformat=VCFv4.2"; echo "$@" >&2`)}, opts)
	require.NoError(t, err)

	p, err := c.Start(context.Background(), "MT:1-16569")
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, _ := p.Read(buf)
	assert.Equal(t, "##fileformat=VCFv4.2\n", string(buf[:n]))
	require.NoError(t, p.Wait())

	failing, err := New(Tools{Freebayes: script(t, "freebayes", `echo "no reference" >&2; exit 3`)}, opts)
	require.NoError(t, err)
	p, err = failing.Start(context.Background(), "MT:1-16569")
	require.NoError(t, err)
	assert.ErrorContains(t, p.Wait(), "no reference")
}

func TestBgzipWriter(t *testing.T) {
	tools := Tools{Bgzip: script(t, "bgzip", "cat")}
	out := filepath.Join(t.TempDir(), "out.vcf.gz")

	w, err := tools.NewBgzipWriter(context.Background(), out)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestIndex(t *testing.T) {
	dir := t.TempDir()
	tools := Tools{Tabix: script(t, "tabix", `touch "$4.tbi"`)}
	path := filepath.Join(dir, "x.vcf.gz")
	require.NoError(t, tools.Index(context.Background(), path))
	assert.FileExists(t, path+".tbi")
}

func TestLoadTools(t *testing.T) {
	t.Setenv("MITY_FREEBAYES", "/opt/freebayes/bin/freebayes")
	tools, err := LoadTools()
	require.NoError(t, err)
	assert.Equal(t, "/opt/freebayes/bin/freebayes", tools.Freebayes)
	assert.Equal(t, "samtools", tools.Samtools)
	assert.Equal(t, "tabix", tools.Tabix)
}

func TestReadBAMList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bams.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.bam\n\n b.cram \n"), 0o644))
	bams, err := ReadBAMList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.bam", "b.cram"}, bams)
}

func TestRenameCallerMeta(t *testing.T) {
	h := vcf.NewHeader()
	h.Meta = append(h.Meta, "##source=freeBayes v1.3.6", "##phasing=none", "##commandline=\"freebayes -f ref.fa\"")
	RenameCallerMeta(h, "vibe-mity call sample.bam")

	assert.Equal(t, []string{
		"##fileformat=VCFv4.2",
		"##freebayesSource=freeBayes v1.3.6",
		`##mityCommandline="vibe-mity call sample.bam"`,
		"##freebayesCommandline=\"freebayes -f ref.fa\"",
	}, h.Meta)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "s1.mity.call.vcf.gz"), CallPath("out", "s1"))
	assert.Equal(t, filepath.Join("out", "s1.mity.normalise.vcf.gz"), NormalisePath("out", "s1"))
}
