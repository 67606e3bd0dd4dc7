// Package merge combines a mitochondrial and a nuclear variant stream into
// one coordinate-ordered stream.
package merge

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/inodb/vibe-mity/internal/vcf"
)

// Origin identifies one of the two merge inputs.
type Origin int

const (
	Mito Origin = iota
	Nuclear
)

func (o Origin) String() string {
	if o == Mito {
		return "mito"
	}
	return "nuclear"
}

// ParseOrigin parses "mito" or "nuclear".
func ParseOrigin(s string) (Origin, error) {
	switch s {
	case "mito":
		return Mito, nil
	case "nuclear":
		return Nuclear, nil
	}
	return 0, fmt.Errorf("unknown stream %q, want mito or nuclear", s)
}

// Source is a sorted record stream. Next returns nil, nil at the end.
type Source interface {
	Next() (*vcf.Variant, error)
	Header() *vcf.Header
}

// Sink receives merged records.
type Sink interface {
	Write(v *vcf.Variant) error
}

// Config controls contig order and same-locus conflict resolution.
type Config struct {
	MitoContigs    []string
	MitoFirst      bool
	MitoLast       bool
	Order          map[string]int    // contig -> rank, case sensitive
	Owners         map[string]string // contig -> "mito" or "nuclear"
	DefaultOwner   string
	KeepDuplicates bool
	KeepAmbiguous  bool
}

// Stats summarises a merge.
type Stats struct {
	MitoRecords    int
	NuclearRecords int
	Written        int
	Conflicts      int // loci present in both streams
	Discarded      int // records dropped in favour of the owning stream
	Ambiguous      int // conflicts kept because KeepAmbiguous is set
	Overlaps       int // records overlapping the previous record of the other stream
}

// Merger merges two sorted streams. It is single use per pair of inputs.
type Merger struct {
	cfg    Config
	owners map[string]Origin
	def    *Origin
	mito   map[string]bool
	logger *zap.Logger

	header         *vcf.Header
	order          *ContigOrder
	mitoSamples    *sampleMap
	nuclearSamples *sampleMap
}

// New validates cfg and returns a Merger.
func New(cfg Config) (*Merger, error) {
	m := &Merger{
		cfg:    cfg,
		owners: make(map[string]Origin, len(cfg.Owners)),
		mito:   make(map[string]bool, len(cfg.MitoContigs)),
		logger: zap.NewNop(),
	}
	for _, c := range cfg.MitoContigs {
		m.mito[c] = true
	}
	for c, s := range cfg.Owners {
		o, err := ParseOrigin(s)
		if err != nil {
			return nil, fmt.Errorf("owner of %s: %w", c, err)
		}
		m.owners[c] = o
	}
	if cfg.DefaultOwner != "" {
		o, err := ParseOrigin(cfg.DefaultOwner)
		if err != nil {
			return nil, fmt.Errorf("default owner: %w", err)
		}
		m.def = &o
	}
	if cfg.MitoFirst && cfg.MitoLast {
		return nil, fmt.Errorf("mito_first and mito_last are mutually exclusive")
	}
	for c, r := range cfg.Order {
		if r < 0 || int64(r) >= tierWidth {
			return nil, fmt.Errorf("order of %s: rank %d out of range", c, r)
		}
	}
	return m, nil
}

// SetLogger sets the logger for conflict messages.
func (m *Merger) SetLogger(l *zap.Logger) {
	m.logger = l
}

// Owner returns the stream that is authoritative for chrom. Explicit
// owners come first, then mitochondrial contigs belong to the mito stream,
// then the default owner applies.
func (m *Merger) Owner(chrom string) (Origin, bool) {
	if o, ok := m.owners[chrom]; ok {
		return o, true
	}
	if m.mito[chrom] {
		return Mito, true
	}
	if m.def != nil {
		return *m.def, true
	}
	return 0, false
}

// Cursor holds the current record of one input stream.
type Cursor struct {
	origin    Origin
	src       Source
	current   *vcf.Variant
	at        locus
	exhausted bool
	read      int
}

// advance reads the next record and checks it against the order table.
func (c *Cursor) advance(order *ContigOrder, samples *sampleMap) error {
	if c.exhausted {
		return nil
	}
	prev, prevRec := c.at, c.current
	v, err := c.src.Next()
	if err != nil {
		return fmt.Errorf("%s input: %w", c.origin, err)
	}
	if v == nil {
		c.current, c.exhausted = nil, true
		return nil
	}
	at := locus{rank: order.Rank(v.Chrom), pos: v.Pos}
	if prevRec != nil && at.less(prev) {
		e := &vcf.UnsortedInputError{
			Chrom:     v.Chrom,
			Pos:       v.Pos,
			PrevChrom: prevRec.Chrom,
			PrevPos:   prevRec.Pos,
			Message:   c.origin.String() + " input does not follow the contig order",
		}
		if ln, ok := c.src.(interface{ LineNumber() int }); ok {
			e.Line = ln.LineNumber()
		}
		return e
	}
	samples.remap(v)
	c.current, c.at = v, at
	c.read++
	return nil
}

// Merge streams both inputs into out in contig-order. MergeHeaders is
// called first if it has not been already.
func (m *Merger) Merge(mito, nuclear Source, out Sink) (Stats, error) {
	var stats Stats
	if m.header == nil {
		if _, err := m.MergeHeaders(mito.Header(), nuclear.Header()); err != nil {
			return stats, err
		}
	}

	mc := &Cursor{origin: Mito, src: mito}
	nc := &Cursor{origin: Nuclear, src: nuclear}
	cursors := map[Origin]*Cursor{Mito: mc, Nuclear: nc}
	advance := func(c *Cursor) error {
		sm := m.nuclearSamples
		if c.origin == Mito {
			sm = m.mitoSamples
		}
		return c.advance(m.order, sm)
	}

	var (
		last       locus
		lastEnd    int64
		lastOrigin Origin
		wrote      bool
	)
	emit := func(c *Cursor) error {
		v := c.current
		if wrote && c.at.less(last) {
			return fmt.Errorf("merge produced %s:%d out of order", v.Chrom, v.Pos)
		}
		// Records at different positions never conflict, even when their
		// reference spans overlap.
		if wrote && c.origin != lastOrigin && c.at.rank == last.rank && c.at.pos != last.pos && v.Pos <= lastEnd {
			stats.Overlaps++
			m.logger.Debug("overlapping records from both inputs",
				zap.String("chrom", v.Chrom),
				zap.Int64("pos", v.Pos),
				zap.Int64("previous_end", lastEnd),
				zap.Stringer("origin", c.origin))
		}
		if err := out.Write(v); err != nil {
			return fmt.Errorf("write %s:%d: %w", v.Chrom, v.Pos, err)
		}
		if !wrote || c.at.rank != last.rank || c.origin != lastOrigin || v.End() > lastEnd {
			lastEnd = v.End()
		}
		last, lastOrigin, wrote = c.at, c.origin, true
		stats.Written++
		return advance(c)
	}
	// drain emits or discards every record of c at locus at.
	drain := func(c *Cursor, at locus, keep bool) error {
		for !c.exhausted && c.at == at {
			if keep {
				if err := emit(c); err != nil {
					return err
				}
				continue
			}
			stats.Discarded++
			if err := advance(c); err != nil {
				return err
			}
		}
		return nil
	}

	if err := advance(mc); err != nil {
		return stats, err
	}
	if err := advance(nc); err != nil {
		return stats, err
	}

	for !mc.exhausted || !nc.exhausted {
		var err error
		switch {
		case nc.exhausted || (!mc.exhausted && mc.at.less(nc.at)):
			err = emit(mc)
		case mc.exhausted || nc.at.less(mc.at):
			err = emit(nc)
		default:
			err = m.resolve(mc, nc, cursors, drain, &stats)
		}
		if err != nil {
			stats.MitoRecords, stats.NuclearRecords = mc.read, nc.read
			return stats, err
		}
	}

	stats.MitoRecords, stats.NuclearRecords = mc.read, nc.read
	m.logger.Info("merge complete",
		zap.Int("mito_records", stats.MitoRecords),
		zap.Int("nuclear_records", stats.NuclearRecords),
		zap.Int("written", stats.Written),
		zap.Int("conflicts", stats.Conflicts),
		zap.Int("discarded", stats.Discarded),
		zap.Int("overlaps", stats.Overlaps))
	return stats, nil
}

// resolve handles both cursors sitting on the same locus. The owning
// stream's records are written first; the other stream's records at that
// locus are dropped unless duplicates are kept.
func (m *Merger) resolve(mc, nc *Cursor, cursors map[Origin]*Cursor,
	drain func(*Cursor, locus, bool) error, stats *Stats) error {
	at := mc.at
	chrom, pos := mc.current.Chrom, mc.current.Pos
	stats.Conflicts++

	owner, ok := m.Owner(chrom)
	keepLoser := m.cfg.KeepDuplicates
	if !ok {
		if !m.cfg.KeepAmbiguous {
			return &AmbiguousMergeConflictError{
				Chrom:      chrom,
				Pos:        pos,
				MitoAlt:    mc.current.Alt,
				NuclearAlt: nc.current.Alt,
			}
		}
		owner, keepLoser = Mito, true
		stats.Ambiguous++
	}
	m.logger.Debug("same-locus conflict",
		zap.String("chrom", chrom),
		zap.Int64("pos", pos),
		zap.Stringer("owner", owner),
		zap.Bool("keep_both", keepLoser))

	loser := Nuclear
	if owner == Nuclear {
		loser = Mito
	}
	if err := drain(cursors[owner], at, true); err != nil {
		return err
	}
	return drain(cursors[loser], at, keepLoser)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
