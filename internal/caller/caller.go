package caller

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/vibe-mity/internal/vcf"
)

// Options configures a freebayes run.
type Options struct {
	Reference   string
	BAMs        []string
	Region      string // derived from the first BAM when empty
	Prefix      string // derived from the BAM file name when empty
	MinMQ       int
	MinBQ       int
	MinAF       float64
	MinAC       int
	Ploidy      int
	MitoContigs []string
}

// DefaultOptions returns the sensitive-mode thresholds.
func DefaultOptions() Options {
	return Options{
		MinMQ:       30,
		MinBQ:       24,
		MinAF:       0.01,
		MinAC:       4,
		Ploidy:      2,
		MitoContigs: []string{"MT", "chrM"},
	}
}

// ReadBAMList reads one alignment path per line, ignoring blank lines.
func ReadBAMList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bam list: %w", err)
	}
	var bams []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			bams = append(bams, line)
		}
	}
	return bams, nil
}

// AlignmentHeader is the part of a SAM header the call step needs.
type AlignmentHeader struct {
	ReadGroups []string
	Contigs    []vcf.Contig
}

// ParseSAMHeader reads @RG IDs and @SQ names and lengths from SAM header
// text.
func ParseSAMHeader(r io.Reader) (AlignmentHeader, error) {
	var h AlignmentHeader
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		tags := make(map[string]string, len(fields))
		for _, f := range fields[1:] {
			if k, v, ok := strings.Cut(f, ":"); ok {
				tags[k] = v
			}
		}
		switch fields[0] {
		case "@RG":
			h.ReadGroups = append(h.ReadGroups, tags["ID"])
		case "@SQ":
			c := vcf.Contig{ID: tags["SN"]}
			if ln, ok := tags["LN"]; ok {
				n, err := strconv.ParseInt(ln, 10, 64)
				if err != nil {
					return h, fmt.Errorf("@SQ %s: invalid length %q", c.ID, ln)
				}
				c.Length = n
			}
			h.Contigs = append(h.Contigs, c)
		}
	}
	return h, scanner.Err()
}

// MitoRegion returns "<contig>:1-<length>" for the single mitochondrial
// contig in h.
func (h AlignmentHeader) MitoRegion(names []string) (string, error) {
	vh := vcf.NewHeader()
	for _, c := range h.Contigs {
		vh.AddContig(c)
	}
	c, err := vh.MitoContig(names)
	if err != nil {
		return "", err
	}
	if c.Length <= 0 {
		return "", fmt.Errorf("contig %s has no length", c.ID)
	}
	return fmt.Sprintf("%s:1-%d", c.ID, c.Length), nil
}

// Caller builds and runs freebayes.
type Caller struct {
	tools  Tools
	opts   Options
	logger *zap.Logger
}

// New validates opts.
func New(tools Tools, opts Options) (*Caller, error) {
	if opts.Reference == "" {
		return nil, fmt.Errorf("a reference fasta is required")
	}
	if len(opts.BAMs) == 0 {
		return nil, fmt.Errorf("at least one BAM or CRAM file is required")
	}
	if len(opts.BAMs) > 1 && opts.Prefix == "" {
		return nil, fmt.Errorf("--prefix is required with more than one BAM or CRAM file")
	}
	for _, b := range opts.BAMs {
		if _, err := os.Stat(b); err != nil {
			return nil, fmt.Errorf("missing file: %s", b)
		}
	}
	if opts.Prefix == "" {
		base := filepath.Base(opts.BAMs[0])
		opts.Prefix = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &Caller{tools: tools, opts: opts, logger: zap.NewNop()}, nil
}

// SetLogger sets the logger.
func (c *Caller) SetLogger(l *zap.Logger) {
	c.logger = l
}

// Prefix returns the output file prefix.
func (c *Caller) Prefix() string {
	return c.opts.Prefix
}

// Check verifies that every alignment file has a read group and resolves
// the calling region.
func (c *Caller) Check(ctx context.Context) (string, error) {
	var missingRG []string
	var first AlignmentHeader
	for i, bam := range c.opts.BAMs {
		out, err := run(ctx, c.tools.Samtools, "view", "-H", bam)
		if err != nil {
			return "", err
		}
		h, err := ParseSAMHeader(bytes.NewReader(out))
		if err != nil {
			return "", fmt.Errorf("%s: %w", bam, err)
		}
		if len(h.ReadGroups) == 0 {
			missingRG = append(missingRG, bam)
		}
		if i == 0 {
			first = h
		}
	}
	if len(missingRG) > 0 {
		return "", fmt.Errorf("the BAM/CRAM files %s lack an @RG header", strings.Join(missingRG, ", "))
	}

	if c.opts.Region != "" {
		return c.opts.Region, nil
	}
	region, err := first.MitoRegion(c.opts.MitoContigs)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.opts.BAMs[0], err)
	}
	c.logger.Info("calling region", zap.String("region", region))
	return region, nil
}

// Args returns the freebayes arguments for region. BAMs are passed in
// reverse order.
func (c *Caller) Args(region string) []string {
	args := []string{"-f", c.opts.Reference}
	for i := len(c.opts.BAMs) - 1; i >= 0; i-- {
		args = append(args, "-b", c.opts.BAMs[i])
	}
	return append(args,
		"--min-mapping-quality", strconv.Itoa(c.opts.MinMQ),
		"--min-base-quality", strconv.Itoa(c.opts.MinBQ),
		"--min-alternate-fraction", strconv.FormatFloat(c.opts.MinAF, 'g', -1, 64),
		"--min-alternate-count", strconv.Itoa(c.opts.MinAC),
		"--ploidy", strconv.Itoa(c.opts.Ploidy),
		"--region", region,
	)
}

// Process is a running freebayes whose stdout carries the raw VCF.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
}

// Start launches freebayes for region.
func (c *Caller) Start(ctx context.Context, region string) (*Process, error) {
	args := c.Args(region)
	c.logger.Debug("starting variant caller",
		zap.String("cmd", c.tools.Freebayes),
		zap.Strings("args", args))

	p := &Process{cmd: exec.CommandContext(ctx, c.tools.Freebayes, args...)}
	p.cmd.Stderr = &p.stderr
	var err error
	if p.stdout, err = p.cmd.StdoutPipe(); err != nil {
		return nil, fmt.Errorf("freebayes stdout: %w", err)
	}
	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.tools.Freebayes, err)
	}
	return p, nil
}

func (p *Process) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Wait drains any unread output and waits for the process to exit.
func (p *Process) Wait() error {
	_, _ = io.Copy(io.Discard, p.stdout)
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("freebayes failed: %w: %s", err, strings.TrimSpace(p.stderr.String()))
	}
	return nil
}

// RenameCallerMeta marks the caller's own ##source and ##commandline lines
// so they are not mistaken for this tool's, and records commandLine in
// place of ##phasing=none.
func RenameCallerMeta(h *vcf.Header, commandLine string) {
	for i, line := range h.Meta {
		switch {
		case strings.HasPrefix(line, "##source="):
			h.Meta[i] = "##freebayesSource=" + strings.TrimPrefix(line, "##source=")
		case strings.HasPrefix(line, "##commandline="):
			h.Meta[i] = "##freebayesCommandline=" + strings.TrimPrefix(line, "##commandline=")
		case line == "##phasing=none" && commandLine != "":
			h.Meta[i] = fmt.Sprintf("##mityCommandline=%q", commandLine)
		}
	}
}

// CallPath and NormalisePath are the output file names for a prefix.
func CallPath(dir, prefix string) string {
	return filepath.Join(dir, prefix+".mity.call.vcf.gz")
}

func NormalisePath(dir, prefix string) string {
	return filepath.Join(dir, prefix+".mity.normalise.vcf.gz")
}
