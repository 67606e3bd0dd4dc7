package vcf

// orderCheck tracks the last (contig, position) seen in a stream and the
// contigs whose block has already ended.
type orderCheck struct {
	started bool
	chrom   string
	pos     int64
	closed  map[string]bool
}

// observe records (chrom, pos) and returns a description of the violation,
// or "" when the stream is still sorted.
func (o *orderCheck) observe(chrom string, pos int64) string {
	if !o.started {
		o.started = true
		o.chrom, o.pos = chrom, pos
		o.closed = make(map[string]bool)
		return ""
	}

	if chrom == o.chrom {
		if pos < o.pos {
			return "position decreased within contig"
		}
		o.pos = pos
		return ""
	}

	if o.closed[chrom] {
		return "contig " + chrom + " reappears after its block ended"
	}
	o.closed[o.chrom] = true
	o.chrom, o.pos = chrom, pos
	return ""
}
