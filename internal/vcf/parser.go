package vcf

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
)

// Parser reads variants from a VCF file. Besides parsing, it enforces the
// sorted-input contract: positions never decrease within a contig and each
// contig occupies a single contiguous block.
type Parser struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *pgzip.Reader
	lineNumber int
	header     *Header
	order      orderCheck
	skipped    int
}

// NewParser creates a new VCF parser for the given file.
// Supports both plain VCF and gzipped/bgzipped VCF (.vcf.gz) files.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}

	p := &Parser{file: file}

	// Check for gzip magic bytes
	buf := make([]byte, 2)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		file.Close()
		return nil, fmt.Errorf("read vcf header: %w", err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek vcf file: %w", err)
	}

	// Check for gzip magic number (0x1f, 0x8b)
	if n == 2 && buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = pgzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = bufio.NewReader(file)
	}

	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader (e.g., stdin or
// the stdout of a variant caller).
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(r),
	}

	if err := p.parseHeader(); err != nil {
		return nil, err
	}

	return p, nil
}

// readLine returns the next line without its terminator. It returns io.EOF
// only when no further data is available.
func (p *Parser) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", err
		}
		if line == "" {
			return "", io.EOF
		}
	}
	p.lineNumber++
	return strings.TrimRight(line, "\r\n"), nil
}

// parseHeader reads the ## meta lines and the #CHROM line.
func (p *Parser) parseHeader() error {
	p.header = newHeader()

	for {
		line, err := p.readLine()
		if err == io.EOF {
			return &MissingHeaderError{
				Line:    p.lineNumber,
				Message: "no #CHROM header line found",
			}
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		if strings.HasPrefix(line, "##") {
			if err := p.header.addMetaLine(line); err != nil {
				return &MalformedRecordError{Line: p.lineNumber, Message: err.Error()}
			}
			continue
		}

		if strings.HasPrefix(line, "#CHROM") {
			// Extract sample names from columns after FORMAT (index 9+)
			fields := strings.Split(line, "\t")
			if len(fields) > 9 {
				p.header.Samples = fields[9:]
			}
			return nil
		}

		if line == "" {
			continue
		}

		return &MissingHeaderError{
			Line:    p.lineNumber,
			Message: "data record before #CHROM header line",
		}
	}
}

// Next reads the next variant from the VCF file.
// Returns nil, nil when there are no more variants. Records without an
// alternate allele are skipped and counted.
func (p *Parser) Next() (*Variant, error) {
	for {
		line, err := p.readLine()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read variant line: %w", err)
		}

		if line == "" {
			continue
		}
		if line[0] == '#' {
			return nil, &MalformedRecordError{
				Line:    p.lineNumber,
				Message: "header line after data records",
			}
		}

		v, err := p.parseLine(line)
		if err != nil {
			return nil, err
		}

		prevChrom, prevPos := p.order.chrom, p.order.pos
		if msg := p.order.observe(v.Chrom, v.Pos); msg != "" {
			return nil, &UnsortedInputError{
				Line:      p.lineNumber,
				Chrom:     v.Chrom,
				Pos:       v.Pos,
				PrevChrom: prevChrom,
				PrevPos:   prevPos,
				Message:   msg,
			}
		}

		if len(v.Alt) == 0 {
			p.skipped++
			continue
		}
		return v, nil
	}
}

// parseLine parses a single VCF data line into a Variant.
func (p *Parser) parseLine(line string) (*Variant, error) {
	fields := strings.Split(line, "\t")

	want := 8
	if len(p.header.Samples) > 0 {
		want = 9 + len(p.header.Samples)
	}
	if len(fields) != want && !(want == 8 && len(fields) == 9) {
		return nil, p.malformed("", 0, "expected %d columns, found %d", want, len(fields))
	}

	chrom := fields[0]
	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, p.malformed("", 0, "invalid position: %s", fields[1])
	}
	if pos < 1 {
		return nil, p.malformed(chrom, 0, "position must be >= 1, got %d", pos)
	}

	v := &Variant{
		Chrom:      chrom,
		Pos:        pos,
		ID:         fields[2],
		Ref:        fields[3],
		qualText:   fields[5],
		filterText: fields[6],
	}

	if fields[4] != "." {
		v.Alt = strings.Split(fields[4], ",")
	}

	v.Qual = math.NaN()
	if fields[5] != "." {
		v.Qual, err = strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return nil, p.malformed(chrom, pos, "invalid QUAL: %s", fields[5])
		}
	}

	if fields[6] != "." && fields[6] != PassFilter {
		v.Filter = strings.Split(fields[6], ";")
	}

	v.Info, err = p.parseInfo(fields[7])
	if err != nil {
		return nil, p.malformed(chrom, pos, "%v", err)
	}

	if len(fields) > 8 {
		if err := p.parseSamples(v, fields[8], fields[9:]); err != nil {
			return nil, p.malformed(chrom, pos, "%v", err)
		}
	}

	return v, nil
}

func (p *Parser) malformed(chrom string, pos int64, format string, args ...any) error {
	return &MalformedRecordError{
		Line:    p.lineNumber,
		Chrom:   chrom,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
}

// parseInfo parses the INFO field using the header's declared types.
func (p *Parser) parseInfo(info string) (*Info, error) {
	result := NewInfo()
	if info == "." {
		return result, nil
	}

	for _, kv := range strings.Split(info, ";") {
		key, val, hasVal := strings.Cut(kv, "=")
		if !hasVal {
			// Flag-type INFO field
			result.Set(key, FlagValue())
			continue
		}
		kind := p.header.FieldKind(key, true)
		if kind == KindFlag {
			kind = KindString
		}
		parsed, err := ParseValue(val, kind)
		if err != nil {
			return nil, fmt.Errorf("INFO %s: value %q is not %s", key, val, kind)
		}
		result.Set(key, parsed)
	}

	return result, nil
}

// parseSamples parses the FORMAT descriptor and the per-sample columns.
func (p *Parser) parseSamples(v *Variant, format string, columns []string) error {
	if format == "." || format == "" {
		if len(columns) > 0 {
			return fmt.Errorf("sample columns without FORMAT")
		}
		return nil
	}
	v.Format = strings.Split(format, ":")
	v.Samples = make([]Sample, len(columns))

	for i, col := range columns {
		s := make(Sample, len(v.Format))
		v.Samples[i] = s

		// A bare "." column stays an empty sample so it is written back
		// as ".".
		if col == "." {
			continue
		}

		parts := strings.Split(col, ":")
		if len(parts) != len(v.Format) {
			return fmt.Errorf("sample %s has %d fields, FORMAT declares %d",
				p.sampleName(i), len(parts), len(v.Format))
		}

		for j, key := range v.Format {
			if key == "GT" {
				if err := checkGenotype(parts[j], len(v.Alt)); err != nil {
					return fmt.Errorf("sample %s: %w", p.sampleName(i), err)
				}
				s[key] = StringValue(parts[j])
				continue
			}
			val, err := ParseValue(parts[j], p.header.FieldKind(key, false))
			if err != nil {
				return fmt.Errorf("sample %s FORMAT %s: invalid value %q", p.sampleName(i), key, parts[j])
			}
			s[key] = val
		}
	}
	return nil
}

// checkGenotype validates that every allele index refers to REF or an ALT.
func checkGenotype(gt string, nAlt int) error {
	g, err := ParseGenotype(gt)
	if err != nil {
		return fmt.Errorf("invalid genotype %q", gt)
	}
	for _, a := range g.Alleles {
		if a > nAlt || a < -1 {
			return fmt.Errorf("genotype %q references allele %d but record has %d alternate alleles", gt, a, nAlt)
		}
	}
	return nil
}

func (p *Parser) sampleName(i int) string {
	if i < len(p.header.Samples) {
		return p.header.Samples[i]
	}
	return strconv.Itoa(i)
}

// Header returns the parsed VCF header.
func (p *Parser) Header() *Header {
	return p.header
}

// SampleNames returns sample names from the #CHROM header line.
// Returns nil if no sample columns are present.
func (p *Parser) SampleNames() []string {
	return p.header.Samples
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Skipped returns the number of records dropped for having no alternate
// allele.
func (p *Parser) Skipped() int {
	return p.skipped
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
