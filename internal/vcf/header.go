package vcf

import (
	"fmt"
	"strconv"
	"strings"
)

// Fixed column names of the #CHROM line.
var fixedColumns = []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO"}

// FieldDef describes an ##INFO or ##FORMAT header line.
type FieldDef struct {
	ID          string
	Number      string // "1", "2", "A", "R", "G" or "."
	Type        Kind
	Description string
}

// Compatible reports whether two definitions of the same ID agree on
// number and type.
func (d *FieldDef) Compatible(o *FieldDef) bool {
	return d.ID == o.ID && d.Number == o.Number && d.Type == o.Type
}

func (d *FieldDef) line(section string) string {
	typ := d.Type.String()
	return fmt.Sprintf("##%s=<ID=%s,Number=%s,Type=%s,Description=%q>",
		section, d.ID, d.Number, typ, d.Description)
}

// Contig describes a ##contig header line.
type Contig struct {
	ID     string
	Length int64 // 0 when not declared
}

// Header holds the meta-information lines and sample names of a VCF file.
// Meta keeps every ## line in input order and is what gets written back;
// the maps index the structured lines.
type Header struct {
	Meta    []string
	Infos   map[string]*FieldDef
	Formats map[string]*FieldDef
	Filters map[string]string
	Contigs []Contig
	Samples []string
}

// NewHeader returns an empty header declaring VCFv4.2.
func NewHeader() *Header {
	h := newHeader()
	h.Meta = append(h.Meta, "##fileformat=VCFv4.2")
	return h
}

func newHeader() *Header {
	return &Header{
		Infos:   make(map[string]*FieldDef),
		Formats: make(map[string]*FieldDef),
		Filters: make(map[string]string),
	}
}

// addMetaLine indexes a ## line and appends it to Meta.
func (h *Header) addMetaLine(line string) error {
	h.Meta = append(h.Meta, line)

	key, rest, ok := strings.Cut(strings.TrimPrefix(line, "##"), "=")
	if !ok || !strings.HasPrefix(rest, "<") || !strings.HasSuffix(rest, ">") {
		return nil
	}
	attrs := parseStructured(rest[1 : len(rest)-1])

	switch key {
	case "INFO", "FORMAT":
		def, err := fieldDefFromAttrs(attrs)
		if err != nil {
			return err
		}
		if key == "INFO" {
			h.Infos[def.ID] = def
		} else {
			h.Formats[def.ID] = def
		}
	case "FILTER":
		h.Filters[attrs["ID"]] = attrs["Description"]
	case "contig":
		c := Contig{ID: attrs["ID"]}
		if l, ok := attrs["length"]; ok {
			n, err := strconv.ParseInt(l, 10, 64)
			if err != nil {
				return fmt.Errorf("contig %s: invalid length %q", c.ID, l)
			}
			c.Length = n
		}
		if h.ContigIndex(c.ID) < 0 {
			h.Contigs = append(h.Contigs, c)
		}
	}
	return nil
}

func fieldDefFromAttrs(attrs map[string]string) (*FieldDef, error) {
	def := &FieldDef{
		ID:          attrs["ID"],
		Number:      attrs["Number"],
		Description: attrs["Description"],
	}
	if def.ID == "" {
		return nil, fmt.Errorf("field definition without ID")
	}
	switch attrs["Type"] {
	case "Integer":
		def.Type = KindInteger
	case "Float":
		def.Type = KindFloat
	case "Flag":
		def.Type = KindFlag
	case "String", "Character", "":
		def.Type = KindString
	default:
		return nil, fmt.Errorf("field %s: unknown type %q", def.ID, attrs["Type"])
	}
	return def, nil
}

// parseStructured splits the body of a <...> header value into attributes,
// honouring quoted strings that contain commas.
func parseStructured(s string) map[string]string {
	attrs := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inKey, inQuote := true, false

	flush := func() {
		if key.Len() > 0 {
			attrs[key.String()] = val.String()
		}
		key.Reset()
		val.Reset()
		inKey = true
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(s):
			i++
			val.WriteByte(s[i])
		case c == '"':
			inQuote = !inQuote
		case inQuote:
			val.WriteByte(c)
		case inKey && c == '=':
			inKey = false
		case c == ',':
			flush()
		case inKey:
			key.WriteByte(c)
		default:
			val.WriteByte(c)
		}
	}
	flush()
	return attrs
}

// ContigIndex returns the index of a contig in the header, or -1.
func (h *Header) ContigIndex(id string) int {
	for i, c := range h.Contigs {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// FieldKind returns the declared kind of an INFO (info=true) or FORMAT
// field. Undeclared fields are strings.
func (h *Header) FieldKind(id string, info bool) Kind {
	defs := h.Formats
	if info {
		defs = h.Infos
	}
	if d, ok := defs[id]; ok {
		return d.Type
	}
	return KindString
}

// SetInfo declares an INFO field, replacing an existing declaration.
func (h *Header) SetInfo(def FieldDef) {
	h.Infos[def.ID] = &def
	h.setLine("INFO", def.ID, def.line("INFO"))
}

// SetFormat declares a FORMAT field, replacing an existing declaration.
func (h *Header) SetFormat(def FieldDef) {
	h.Formats[def.ID] = &def
	h.setLine("FORMAT", def.ID, def.line("FORMAT"))
}

// SetFilter declares a FILTER label.
func (h *Header) SetFilter(id, description string) {
	h.Filters[id] = description
	h.setLine("FILTER", id, fmt.Sprintf("##FILTER=<ID=%s,Description=%q>", id, description))
}

// AddContig declares a contig if it is not yet present.
func (h *Header) AddContig(c Contig) {
	if h.ContigIndex(c.ID) >= 0 {
		return
	}
	h.Contigs = append(h.Contigs, c)
	line := "##contig=<ID=" + c.ID
	if c.Length > 0 {
		line += ",length=" + strconv.FormatInt(c.Length, 10)
	}
	h.setLine("contig", c.ID, line+">")
}

// setLine replaces the ##section line declaring id, or appends a new one
// after the last line of the same section.
func (h *Header) setLine(section, id, line string) {
	prefix := "##" + section + "=<"
	last := -1
	for i, m := range h.Meta {
		if !strings.HasPrefix(m, prefix) {
			continue
		}
		last = i
		if parseStructured(strings.TrimSuffix(m[len(prefix):], ">"))["ID"] == id {
			h.Meta[i] = line
			return
		}
	}
	if last < 0 {
		h.Meta = append(h.Meta, line)
		return
	}
	h.Meta = append(h.Meta, "")
	copy(h.Meta[last+2:], h.Meta[last+1:])
	h.Meta[last+1] = line
}

// ColumnLine renders the #CHROM line.
func (h *Header) ColumnLine() string {
	cols := append([]string(nil), fixedColumns...)
	if len(h.Samples) > 0 {
		cols = append(cols, "FORMAT")
		cols = append(cols, h.Samples...)
	}
	return strings.Join(cols, "\t")
}

// Lines returns all header lines, #CHROM line last.
func (h *Header) Lines() []string {
	lines := make([]string, 0, len(h.Meta)+1)
	lines = append(lines, h.Meta...)
	return append(lines, h.ColumnLine())
}

// MitoContig returns the single header contig whose name is one of names.
// It fails when none or more than one is declared.
func (h *Header) MitoContig(names []string) (Contig, error) {
	var found []Contig
	for _, c := range h.Contigs {
		for _, n := range names {
			if c.ID == n {
				found = append(found, c)
				break
			}
		}
	}
	if len(found) != 1 {
		ids := make([]string, len(found))
		for i, c := range found {
			ids[i] = c.ID
		}
		return Contig{}, fmt.Errorf("expected exactly one mitochondrial contig among %v, found %v", names, ids)
	}
	return found[0], nil
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() *Header {
	out := newHeader()
	out.Meta = append([]string(nil), h.Meta...)
	for k, d := range h.Infos {
		dd := *d
		out.Infos[k] = &dd
	}
	for k, d := range h.Formats {
		dd := *d
		out.Formats[k] = &dd
	}
	for k, d := range h.Filters {
		out.Filters[k] = d
	}
	out.Contigs = append([]Contig(nil), h.Contigs...)
	out.Samples = append([]string(nil), h.Samples...)
	return out
}
