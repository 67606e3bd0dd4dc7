// Package config holds the settings shared by the vibe-mity commands and
// loads them through viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/inodb/vibe-mity/internal/caller"
	"github.com/inodb/vibe-mity/internal/filter"
	"github.com/inodb/vibe-mity/internal/hetero"
	"github.com/inodb/vibe-mity/internal/merge"
	"github.com/inodb/vibe-mity/internal/normalise"
)

// Config is the full configuration tree.
type Config struct {
	MitoContigs  []string      `mapstructure:"mito_contigs" yaml:"mito_contigs"`
	Heteroplasmy hetero.Config `mapstructure:"heteroplasmy" yaml:"heteroplasmy"`
	Filter       filter.Config `mapstructure:"filter" yaml:"filter"`
	Merge        MergeConfig   `mapstructure:"merge" yaml:"merge"`
	Call         CallConfig    `mapstructure:"call" yaml:"call"`
	Database     string        `mapstructure:"database" yaml:"database"`
}

// MergeConfig is the configuration form of merge.Config. The contig tables
// are lists rather than maps because viper lower-cases map keys, and contig
// names are case sensitive.
type MergeConfig struct {
	MitoFirst      bool          `mapstructure:"mito_first" yaml:"mito_first"`
	MitoLast       bool          `mapstructure:"mito_last" yaml:"mito_last"`
	Order          []ContigRank  `mapstructure:"order" yaml:"order"`
	Owners         []ContigOwner `mapstructure:"owners" yaml:"owners"`
	DefaultOwner   string        `mapstructure:"default_owner" yaml:"default_owner"`
	KeepDuplicates bool          `mapstructure:"keep_duplicates" yaml:"keep_duplicates"`
	KeepAmbiguous  bool          `mapstructure:"keep_ambiguous" yaml:"keep_ambiguous"`
}

// ContigRank places a contig in the merge output order.
type ContigRank struct {
	Contig string `mapstructure:"contig" yaml:"contig"`
	Rank   int    `mapstructure:"rank" yaml:"rank"`
}

// ContigOwner names the stream authoritative for a contig.
type ContigOwner struct {
	Contig string `mapstructure:"contig" yaml:"contig"`
	Owner  string `mapstructure:"owner" yaml:"owner"`
}

// CallConfig holds the variant caller thresholds.
type CallConfig struct {
	MinMQ  int     `mapstructure:"min_mq" yaml:"min_mq"`
	MinBQ  int     `mapstructure:"min_bq" yaml:"min_bq"`
	MinAF  float64 `mapstructure:"min_af" yaml:"min_af"`
	MinAC  int     `mapstructure:"min_ac" yaml:"min_ac"`
	Ploidy int     `mapstructure:"ploidy" yaml:"ploidy"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mito_contigs", []string{"MT", "chrM"})

	h := hetero.DefaultConfig()
	v.SetDefault("heteroplasmy.low", h.Low)
	v.SetDefault("heteroplasmy.high", h.High)
	v.SetDefault("heteroplasmy.error_rate", h.ErrorRate)
	v.SetDefault("heteroplasmy.alt_count_field", h.AltCountField)
	v.SetDefault("heteroplasmy.ref_count_field", h.RefCountField)
	v.SetDefault("heteroplasmy.depth_field", h.DepthField)
	v.SetDefault("heteroplasmy.fraction_field", h.FractionField)
	v.SetDefault("heteroplasmy.class_field", h.ClassField)
	v.SetDefault("heteroplasmy.quality_field", h.QualityField)
	v.SetDefault("heteroplasmy.warning_field", h.WarningField)

	f := filter.DefaultConfig()
	v.SetDefault("filter.min_qual", f.MinQual)
	v.SetDefault("filter.min_depth", f.MinDepth)
	v.SetDefault("filter.min_mqm", f.MinMQM)
	v.SetDefault("filter.strand_bias", f.StrandBias)
	v.SetDefault("filter.blacklist", f.Blacklist)

	v.SetDefault("merge.mito_first", false)
	v.SetDefault("merge.mito_last", false)
	v.SetDefault("merge.default_owner", "")
	v.SetDefault("merge.keep_duplicates", false)
	v.SetDefault("merge.keep_ambiguous", false)

	c := caller.DefaultOptions()
	v.SetDefault("call.min_mq", c.MinMQ)
	v.SetDefault("call.min_bq", c.MinBQ)
	v.SetDefault("call.min_af", c.MinAF)
	v.SetDefault("call.min_ac", c.MinAC)
	v.SetDefault("call.ploidy", c.Ploidy)
}

// Load decodes the configuration from v and checks it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that viper cannot express.
func (c Config) Validate() error {
	if len(c.MitoContigs) == 0 {
		return fmt.Errorf("mito_contigs must name at least one contig")
	}
	h := c.Heteroplasmy
	if h.Low < 0 || h.High > 1 || h.Low >= h.High {
		return fmt.Errorf("heteroplasmy thresholds must satisfy 0 <= low < high <= 1, got low=%v high=%v", h.Low, h.High)
	}
	if h.ErrorRate <= 0 || h.ErrorRate >= 1 {
		return fmt.Errorf("heteroplasmy.error_rate must be in (0, 1), got %v", h.ErrorRate)
	}
	if _, err := filter.DefaultRules(c.Filter, c.MitoContigs); err != nil {
		return err
	}
	mc, err := c.MergeOptions()
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	if _, err := merge.New(mc); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

// MergeOptions converts the merge section into a merge.Config. A contig
// listed twice in the same table is an error.
func (c Config) MergeOptions() (merge.Config, error) {
	m := c.Merge
	mc := merge.Config{
		MitoContigs:    c.MitoContigs,
		MitoFirst:      m.MitoFirst,
		MitoLast:       m.MitoLast,
		DefaultOwner:   m.DefaultOwner,
		KeepDuplicates: m.KeepDuplicates,
		KeepAmbiguous:  m.KeepAmbiguous,
	}
	if len(m.Order) > 0 {
		mc.Order = make(map[string]int, len(m.Order))
		for _, e := range m.Order {
			if e.Contig == "" {
				return merge.Config{}, fmt.Errorf("order entry without contig")
			}
			if _, dup := mc.Order[e.Contig]; dup {
				return merge.Config{}, fmt.Errorf("contig %s listed twice in order", e.Contig)
			}
			mc.Order[e.Contig] = e.Rank
		}
	}
	if len(m.Owners) > 0 {
		mc.Owners = make(map[string]string, len(m.Owners))
		for _, e := range m.Owners {
			if e.Contig == "" {
				return merge.Config{}, fmt.Errorf("owners entry without contig")
			}
			if _, dup := mc.Owners[e.Contig]; dup {
				return merge.Config{}, fmt.Errorf("contig %s listed twice in owners", e.Contig)
			}
			mc.Owners[e.Contig] = e.Owner
		}
	}
	return mc, nil
}

// NormaliseOptions returns the pipeline options for this configuration.
func (c Config) NormaliseOptions() normalise.Options {
	return normalise.Options{
		MitoContigs: c.MitoContigs,
		Hetero:      c.Heteroplasmy,
		Filter:      c.Filter,
		Split:       true,
	}
}

// CallerOptions returns caller options with the configured thresholds.
func (c Config) CallerOptions() caller.Options {
	opts := caller.DefaultOptions()
	opts.MinMQ = c.Call.MinMQ
	opts.MinBQ = c.Call.MinBQ
	opts.MinAF = c.Call.MinAF
	opts.MinAC = c.Call.MinAC
	opts.Ploidy = c.Call.Ploidy
	opts.MitoContigs = c.MitoContigs
	return opts
}
