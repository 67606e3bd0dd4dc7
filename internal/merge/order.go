package merge

import "github.com/inodb/vibe-mity/internal/vcf"

// Contigs are ranked in tiers: mitochondrial contigs when MitoFirst is set,
// then contigs with an explicit rank, then header order, then contigs first
// seen in the data, then mitochondrial contigs when MitoLast is set.
const (
	tierMito int64 = iota
	tierExplicit
	tierHeader
	tierUnknown
	tierMitoLast

	tierWidth int64 = 1 << 32
)

// ContigOrder maps contig names to a total order.
type ContigOrder struct {
	rank    map[string]int64
	unknown int64
}

// NewContigOrder builds the order table from configuration and the merged
// header's contig list.
func NewContigOrder(cfg Config, contigs []vcf.Contig) *ContigOrder {
	o := &ContigOrder{rank: make(map[string]int64)}
	mito := make(map[string]bool, len(cfg.MitoContigs))
	for _, c := range cfg.MitoContigs {
		mito[c] = true
	}

	for i, c := range contigs {
		o.rank[c.ID] = tierHeader*tierWidth + int64(i)
	}
	for c, r := range cfg.Order {
		o.rank[c] = tierExplicit*tierWidth + int64(r)
	}
	tier := int64(-1)
	switch {
	case cfg.MitoFirst:
		tier = tierMito
	case cfg.MitoLast:
		tier = tierMitoLast
	}
	if tier >= 0 {
		for i, c := range cfg.MitoContigs {
			o.rank[c] = tier*tierWidth + int64(i)
		}
	}
	return o
}

// Rank returns the rank of chrom, assigning the next free rank to a contig
// not seen before.
func (o *ContigOrder) Rank(chrom string) int64 {
	if r, ok := o.rank[chrom]; ok {
		return r
	}
	r := tierUnknown*tierWidth + o.unknown
	o.unknown++
	o.rank[chrom] = r
	return r
}

// locus is a comparable (contig rank, position) key.
type locus struct {
	rank int64
	pos  int64
}

func (a locus) less(b locus) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.pos < b.pos
}
