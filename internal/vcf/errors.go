package vcf

import "fmt"

// MalformedRecordError reports a data line that cannot be parsed.
type MalformedRecordError struct {
	Line    int
	Chrom   string // empty when the line failed before CHROM/POS were read
	Pos     int64
	Message string
}

func (e *MalformedRecordError) Error() string {
	if e.Chrom != "" && e.Pos > 0 {
		return fmt.Sprintf("malformed record at line %d (%s:%d): %s", e.Line, e.Chrom, e.Pos, e.Message)
	}
	return fmt.Sprintf("malformed record at line %d: %s", e.Line, e.Message)
}

// MissingHeaderError reports data encountered before the #CHROM header line.
type MissingHeaderError struct {
	Line    int
	Message string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("missing header at line %d: %s", e.Line, e.Message)
}

// UnsortedInputError reports a record that breaks the sorted-input
// contract: a position decreasing within a contig, or a contig block that
// reappears after another contig started.
type UnsortedInputError struct {
	Line      int
	Chrom     string
	Pos       int64
	PrevChrom string
	PrevPos   int64
	Message   string
}

func (e *UnsortedInputError) Error() string {
	return fmt.Sprintf("unsorted input at line %d (%s:%d after %s:%d): %s",
		e.Line, e.Chrom, e.Pos, e.PrevChrom, e.PrevPos, e.Message)
}
