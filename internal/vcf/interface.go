package vcf

// VariantParser is the interface for sources that stream sorted variant
// records.
type VariantParser interface {
	// Next reads the next variant.
	// Returns nil, nil when there are no more variants.
	Next() (*Variant, error)

	// Header returns the parsed header.
	Header() *Header

	// Close closes the parser and releases resources.
	Close() error

	// LineNumber returns the current line number being processed.
	LineNumber() int
}

// VariantWriter is the interface for sinks that accept variant records.
type VariantWriter interface {
	Write(v *Variant) error
}

// Copy writes every remaining record of src to dst and returns the number
// written.
func Copy(dst VariantWriter, src VariantParser) (int, error) {
	n := 0
	for {
		v, err := src.Next()
		if err != nil {
			return n, err
		}
		if v == nil {
			return n, nil
		}
		if err := dst.Write(v); err != nil {
			return n, err
		}
		n++
	}
}
