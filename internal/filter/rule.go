// Package filter annotates variant records with FILTER labels from a
// configurable set of threshold rules.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/inodb/vibe-mity/internal/vcf"
)

// Op is a comparison operator. A rule passes when "value Op threshold"
// holds.
type Op string

const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
	OpIn           Op = "in"
	OpNotIn        Op = "notin"
)

// Scope says where a rule reads its value from.
type Scope int

const (
	ScopeInfo   Scope = iota // INFO/<key>, evaluated once per record
	ScopeSample              // FORMAT/<key>, evaluated per sample
	ScopeQual                // QUAL column
	ScopePos                 // POS column
)

// Aggregate decides how per-sample results combine for FORMAT rules.
type Aggregate int

const (
	AnySample  Aggregate = iota // record fails if any sample fails
	AllSamples                  // record fails only if every sample fails
)

// Range is an inclusive numeric interval used by in/notin rules.
type Range struct {
	Lo, Hi float64
}

func (r Range) contains(x float64) bool {
	return x >= r.Lo && x <= r.Hi
}

// Rule is one named threshold check. Rules are immutable once built.
type Rule struct {
	Label       string
	Description string
	Scope       Scope
	Field       string
	Op          Op
	Threshold   float64
	Ranges      []Range
	Aggregate   Aggregate
	Optional    bool // a missing value passes instead of failing
	contigs     map[string]bool
}

// RuleConfig is the configuration form of a rule.
type RuleConfig struct {
	Label       string   `mapstructure:"label" yaml:"label"`
	Description string   `mapstructure:"description" yaml:"description,omitempty"`
	Field       string   `mapstructure:"field" yaml:"field"`
	Op          string   `mapstructure:"op" yaml:"op"`
	Value       float64  `mapstructure:"value" yaml:"value"`
	Values      []string `mapstructure:"values" yaml:"values,omitempty"`
	Samples     string   `mapstructure:"samples" yaml:"samples,omitempty"`
	Optional    bool     `mapstructure:"optional" yaml:"optional,omitempty"`
	Contigs     []string `mapstructure:"contigs" yaml:"contigs,omitempty"`
}

// RuleError reports an invalid rule configuration.
type RuleError struct {
	Label   string
	Message string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("filter rule %q: %s", e.Label, e.Message)
}

// ParseRule validates a rule configuration.
func ParseRule(rc RuleConfig) (Rule, error) {
	r := Rule{
		Label:       rc.Label,
		Description: rc.Description,
		Op:          Op(rc.Op),
		Threshold:   rc.Value,
		Optional:    rc.Optional,
	}
	fail := func(format string, args ...any) (Rule, error) {
		return Rule{}, &RuleError{Label: rc.Label, Message: fmt.Sprintf(format, args...)}
	}

	if r.Label == "" {
		return fail("label is required")
	}
	if r.Label == vcf.PassFilter || strings.ContainsAny(r.Label, "; \t") {
		return fail("label must not be PASS or contain separators")
	}

	switch field := rc.Field; {
	case field == "QUAL":
		r.Scope = ScopeQual
	case field == "POS":
		r.Scope = ScopePos
	case strings.HasPrefix(field, "INFO/"):
		r.Scope, r.Field = ScopeInfo, strings.TrimPrefix(field, "INFO/")
	case strings.HasPrefix(field, "FORMAT/"):
		r.Scope, r.Field = ScopeSample, strings.TrimPrefix(field, "FORMAT/")
	default:
		return fail("field %q must be QUAL, POS, INFO/<key> or FORMAT/<key>", field)
	}
	if (r.Scope == ScopeInfo || r.Scope == ScopeSample) && r.Field == "" {
		return fail("field key is empty")
	}

	switch r.Op {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpEqual, OpNotEqual:
	case OpIn, OpNotIn:
		if len(rc.Values) == 0 {
			return fail("operator %s needs values", r.Op)
		}
		for _, s := range rc.Values {
			rg, err := parseRange(s)
			if err != nil {
				return fail("%v", err)
			}
			r.Ranges = append(r.Ranges, rg)
		}
	default:
		return fail("unknown operator %q", rc.Op)
	}

	switch strings.ToLower(rc.Samples) {
	case "", "any":
		r.Aggregate = AnySample
	case "all":
		r.Aggregate = AllSamples
	default:
		return fail("samples must be any or all, got %q", rc.Samples)
	}

	if len(rc.Contigs) > 0 {
		r.contigs = make(map[string]bool, len(rc.Contigs))
		for _, c := range rc.Contigs {
			r.contigs[c] = true
		}
	}

	if r.Description == "" {
		r.Description = r.String()
	}
	return r, nil
}

// parseRange parses "302-318" or a single number "3105".
func parseRange(s string) (Range, error) {
	lo, hi, isRange := strings.Cut(strings.TrimSpace(s), "-")
	l, err := strconv.ParseFloat(lo, 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	if !isRange {
		return Range{Lo: l, Hi: l}, nil
	}
	h, err := strconv.ParseFloat(hi, 64)
	if err != nil || h < l {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	return Range{Lo: l, Hi: h}, nil
}

// String renders the rule's pass condition.
func (r Rule) String() string {
	var field string
	switch r.Scope {
	case ScopeQual:
		field = "QUAL"
	case ScopePos:
		field = "POS"
	case ScopeInfo:
		field = "INFO/" + r.Field
	case ScopeSample:
		field = "FORMAT/" + r.Field
	}
	if r.Op == OpIn || r.Op == OpNotIn {
		parts := make([]string, len(r.Ranges))
		for i, rg := range r.Ranges {
			if rg.Lo == rg.Hi {
				parts[i] = vcf.FormatFloat(rg.Lo)
			} else {
				parts[i] = vcf.FormatFloat(rg.Lo) + "-" + vcf.FormatFloat(rg.Hi)
			}
		}
		return fmt.Sprintf("%s %s {%s}", field, r.Op, strings.Join(parts, ","))
	}
	return fmt.Sprintf("%s %s %s", field, r.Op, vcf.FormatFloat(r.Threshold))
}

// AppliesTo reports whether the rule is evaluated on records of chrom.
func (r Rule) AppliesTo(chrom string) bool {
	return r.contigs == nil || r.contigs[chrom]
}

// compare reports whether x satisfies the rule's pass condition.
func (r Rule) compare(x float64) bool {
	switch r.Op {
	case OpLess:
		return x < r.Threshold
	case OpLessEqual:
		return x <= r.Threshold
	case OpGreater:
		return x > r.Threshold
	case OpGreaterEqual:
		return x >= r.Threshold
	case OpEqual:
		return x == r.Threshold
	case OpNotEqual:
		return x != r.Threshold
	case OpIn, OpNotIn:
		in := false
		for _, rg := range r.Ranges {
			if rg.contains(x) {
				in = true
				break
			}
		}
		return in == (r.Op == OpIn)
	}
	return false
}

// passesValue evaluates a typed value. Every element must pass; a missing
// value or element fails unless the rule is optional.
func (r Rule) passesValue(val vcf.Value, present bool) bool {
	if !present || val.IsMissing() {
		return r.Optional
	}
	if val.Kind() == vcf.KindFlag {
		return r.compare(1)
	}
	for i := 0; i < val.Len(); i++ {
		x, ok := val.Float(i)
		if !ok {
			if r.Optional {
				continue
			}
			return false
		}
		if !r.compare(x) {
			return false
		}
	}
	return true
}

// Passes evaluates the rule against a record.
func (r Rule) Passes(v *vcf.Variant) bool {
	switch r.Scope {
	case ScopeQual:
		if !v.HasQual() {
			return r.Optional
		}
		return r.compare(v.Qual)
	case ScopePos:
		return r.compare(float64(v.Pos))
	case ScopeInfo:
		val, ok := v.Info.Get(r.Field)
		return r.passesValue(val, ok)
	}

	if len(v.Samples) == 0 {
		return r.Optional
	}
	failed := 0
	for i := range v.Samples {
		val, ok := v.SampleValue(i, r.Field)
		if !r.passesValue(val, ok) {
			failed++
		}
	}
	if r.Aggregate == AllSamples {
		return failed < len(v.Samples)
	}
	return failed == 0
}
