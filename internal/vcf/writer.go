package vcf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Writer writes VCF records in the same column order and escaping used by
// Parser. Values that were read and not modified keep their input text.
type Writer struct {
	w      *bufio.Writer
	header *Header
	lb     strings.Builder
}

// NewWriter creates a VCF writer for the given header.
func NewWriter(w io.Writer, h *Header) *Writer {
	return &Writer{
		w:      bufio.NewWriter(w),
		header: h,
	}
}

// WriteHeader writes the ## lines followed by the #CHROM line.
func (vw *Writer) WriteHeader() error {
	for _, line := range vw.header.Lines() {
		if _, err := vw.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Write serializes a single record.
func (vw *Writer) Write(v *Variant) error {
	if len(v.Samples) != len(vw.header.Samples) {
		return fmt.Errorf("%s:%d: record has %d samples, header declares %d",
			v.Chrom, v.Pos, len(v.Samples), len(vw.header.Samples))
	}

	lb := &vw.lb
	lb.Reset()

	lb.WriteString(v.Chrom)
	lb.WriteByte('\t')
	lb.WriteString(strconv.FormatInt(v.Pos, 10))
	lb.WriteByte('\t')
	lb.WriteString(orMissing(v.ID))
	lb.WriteByte('\t')
	lb.WriteString(v.Ref)
	lb.WriteByte('\t')
	if len(v.Alt) == 0 {
		lb.WriteByte('.')
	} else {
		lb.WriteString(strings.Join(v.Alt, ","))
	}
	lb.WriteByte('\t')
	lb.WriteString(v.qualString())
	lb.WriteByte('\t')
	lb.WriteString(v.filterString())
	lb.WriteByte('\t')
	writeInfo(lb, v.Info)

	if len(vw.header.Samples) > 0 {
		lb.WriteByte('\t')
		if len(v.Format) == 0 {
			lb.WriteByte('.')
		} else {
			lb.WriteString(strings.Join(v.Format, ":"))
		}
		for _, s := range v.Samples {
			lb.WriteByte('\t')
			writeSample(lb, v.Format, s)
		}
	}

	lb.WriteByte('\n')
	_, err := vw.w.WriteString(lb.String())
	return err
}

// Flush flushes the underlying writer.
func (vw *Writer) Flush() error {
	return vw.w.Flush()
}

func writeInfo(b *strings.Builder, info *Info) {
	if info == nil || info.Len() == 0 {
		b.WriteByte('.')
		return
	}
	for i, key := range info.Keys() {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(key)
		val, _ := info.Get(key)
		if val.Kind() == KindFlag {
			continue
		}
		b.WriteByte('=')
		b.WriteString(val.Text())
	}
}

// writeSample writes one sample column. A sample with no values at all is
// written as a single ".", every other sample as one element per FORMAT key.
func writeSample(b *strings.Builder, format []string, s Sample) {
	if len(s) == 0 || len(format) == 0 {
		b.WriteByte('.')
		return
	}

	for i, key := range format {
		if i > 0 {
			b.WriteByte(':')
		}
		val, ok := s[key]
		if !ok || val.Len() == 0 {
			b.WriteByte('.')
			continue
		}
		b.WriteString(val.Text())
	}
}

func orMissing(s string) string {
	if s == "" {
		return "."
	}
	return s
}
