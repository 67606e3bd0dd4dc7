package filter

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/inodb/vibe-mity/internal/vcf"
)

// Config holds the threshold settings from which the default rule set is
// built, plus any extra rules.
type Config struct {
	MinQual    float64      `mapstructure:"min_qual" yaml:"min_qual"`
	MinDepth   float64      `mapstructure:"min_depth" yaml:"min_depth"`
	MinMQM     float64      `mapstructure:"min_mqm" yaml:"min_mqm"`
	StrandBias []float64    `mapstructure:"strand_bias" yaml:"strand_bias"`
	Blacklist  []string     `mapstructure:"blacklist" yaml:"blacklist"`
	Rules      []RuleConfig `mapstructure:"rules" yaml:"rules,omitempty"`
}

// DefaultConfig returns the thresholds used for mitochondrial calls.
func DefaultConfig() Config {
	return Config{
		MinQual:    30,
		MinDepth:   15,
		MinMQM:     30,
		StrandBias: []float64{0.1, 0.9},
		Blacklist:  []string{"302-318", "3105-3107"},
	}
}

// DefaultRules builds the rule set from cfg. Thresholds set to zero are
// disabled. The position blacklist applies to mitochondrial contigs only.
func DefaultRules(cfg Config, mitoContigs []string) ([]Rule, error) {
	var configs []RuleConfig

	if cfg.MinQual > 0 {
		configs = append(configs, RuleConfig{
			Label: "LowQual", Field: "QUAL", Op: ">=", Value: cfg.MinQual,
			Description: fmt.Sprintf("Variant quality below %s", vcf.FormatFloat(cfg.MinQual)),
		})
	}
	if cfg.MinDepth > 0 {
		configs = append(configs, RuleConfig{
			Label: "DP", Field: "FORMAT/DP", Op: ">=", Value: cfg.MinDepth,
			Description: fmt.Sprintf("Sample read depth below %s", vcf.FormatFloat(cfg.MinDepth)),
		})
	}
	if cfg.MinMQM > 0 {
		configs = append(configs, RuleConfig{
			Label: "MQM", Field: "INFO/MQM", Op: ">=", Value: cfg.MinMQM, Optional: true,
			Description: fmt.Sprintf("Mean mapping quality of alternate reads below %s", vcf.FormatFloat(cfg.MinMQM)),
		})
	}
	if len(cfg.StrandBias) == 2 {
		lo, hi := cfg.StrandBias[0], cfg.StrandBias[1]
		desc := fmt.Sprintf("Forward strand fraction outside [%s, %s]", vcf.FormatFloat(lo), vcf.FormatFloat(hi))
		for _, label := range []string{"SBA", "SBR"} {
			configs = append(configs,
				RuleConfig{Label: label, Field: "FORMAT/" + label, Op: ">=", Value: lo, Optional: true, Description: desc},
				RuleConfig{Label: label, Field: "FORMAT/" + label, Op: "<=", Value: hi, Optional: true, Description: desc},
			)
		}
	} else if len(cfg.StrandBias) != 0 {
		return nil, &RuleError{Label: "SBA", Message: "strand_bias needs exactly two values"}
	}
	if len(cfg.Blacklist) > 0 {
		configs = append(configs, RuleConfig{
			Label: "POS", Field: "POS", Op: "notin", Values: cfg.Blacklist, Contigs: mitoContigs,
			Description: "Position in a blacklisted mitochondrial region",
		})
	}
	configs = append(configs, cfg.Rules...)

	rules := make([]Rule, 0, len(configs))
	for _, rc := range configs {
		r, err := ParseRule(rc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Engine applies a rule set to records in order. It never drops records;
// failing rules only add labels to the FILTER set.
type Engine struct {
	rules  []Rule
	counts map[string]int
	logger *zap.Logger
}

// NewEngine creates an engine for the given rules.
func NewEngine(rules []Rule) *Engine {
	return &Engine{
		rules:  rules,
		counts: make(map[string]int),
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for debug messages.
func (e *Engine) SetLogger(l *zap.Logger) {
	e.logger = l
}

// Rules returns the configured rules.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Apply evaluates every rule against v and adds the label of each failing
// rule. It returns the labels that failed on this pass.
func (e *Engine) Apply(v *vcf.Variant) []string {
	var failed []string
	for _, r := range e.rules {
		if !r.AppliesTo(v.Chrom) || r.Passes(v) {
			continue
		}
		if containsLabel(failed, r.Label) {
			continue
		}
		failed = append(failed, r.Label)
		v.AddFilter(r.Label)
		e.counts[r.Label]++
	}
	v.MarkFiltered()
	if len(failed) > 0 {
		e.logger.Debug("record failed filters",
			zap.String("chrom", v.Chrom),
			zap.Int64("pos", v.Pos),
			zap.Strings("labels", failed))
	}
	return failed
}

// DeclareFilters adds a ##FILTER line for each rule label.
func (e *Engine) DeclareFilters(h *vcf.Header) {
	seen := make(map[string]bool)
	for _, r := range e.rules {
		if seen[r.Label] {
			continue
		}
		seen[r.Label] = true
		h.SetFilter(r.Label, r.Description)
	}
}

// Counts returns the number of records that failed each label.
func (e *Engine) Counts() map[string]int {
	out := make(map[string]int, len(e.counts))
	for k, v := range e.counts {
		out[k] = v
	}
	return out
}

// Labels returns the distinct labels in rule order.
func (e *Engine) Labels() []string {
	var labels []string
	for _, r := range e.rules {
		if !containsLabel(labels, r.Label) {
			labels = append(labels, r.Label)
		}
	}
	return labels
}

// SortedCounts returns label counts ordered by label.
func (e *Engine) SortedCounts() []LabelCount {
	out := make([]LabelCount, 0, len(e.counts))
	for k, v := range e.counts {
		out = append(out, LabelCount{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// LabelCount pairs a filter label with the number of records it failed.
type LabelCount struct {
	Label string
	Count int
}

func containsLabel(labels []string, l string) bool {
	for _, x := range labels {
		if x == l {
			return true
		}
	}
	return false
}
