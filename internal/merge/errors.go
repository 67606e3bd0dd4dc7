package merge

import (
	"fmt"
	"strings"
)

// AmbiguousMergeConflictError reports two records at the same locus on a
// contig that neither stream owns.
type AmbiguousMergeConflictError struct {
	Chrom      string
	Pos        int64
	MitoAlt    []string
	NuclearAlt []string
}

func (e *AmbiguousMergeConflictError) Error() string {
	return fmt.Sprintf("ambiguous merge conflict at %s:%d: no owner for contig %s (mito ALT %s, nuclear ALT %s)",
		e.Chrom, e.Pos, e.Chrom, strings.Join(e.MitoAlt, ","), strings.Join(e.NuclearAlt, ","))
}

// IncompatibleFieldDescriptorError reports an INFO or FORMAT field declared
// with different Number or Type in the two headers.
type IncompatibleFieldDescriptorError struct {
	Section string // INFO or FORMAT
	ID      string
	Mito    string
	Nuclear string
}

func (e *IncompatibleFieldDescriptorError) Error() string {
	return fmt.Sprintf("incompatible %s field %s: mito declares %s, nuclear declares %s",
		e.Section, e.ID, e.Mito, e.Nuclear)
}

// DuplicateSampleError reports a sample name present in both inputs when
// the sample lists are not identical.
type DuplicateSampleError struct {
	Sample string
}

func (e *DuplicateSampleError) Error() string {
	return fmt.Sprintf("sample %q appears in both inputs with differing sample lists", e.Sample)
}
