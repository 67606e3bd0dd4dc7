package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inodb/vibe-mity/internal/config"
	"github.com/inodb/vibe-mity/internal/filter"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vibe-mity configuration",
		Long: `Show, get, or set configuration values. Config is stored in ~/.vibe-mity.yaml.

show prints the effective configuration after defaults, the config file and
VIBE_MITY_* environment variables are applied, followed by the filter labels
and rules it produces.`,
		Example: `  vibe-mity config                                # show all config
  vibe-mity config set heteroplasmy.low 0.05      # lower the heteroplasmy threshold
  vibe-mity config set merge.mito_first true      # emit mitochondrial records first
  vibe-mity config get filter.min_depth           # get a value
  vibe-mity config get merge.owners               # get a contig table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd.OutOrStdout(), args[0])
		},
	}
}

// configView is the rendered form of the effective configuration: the
// decoded settings plus the filter rules they produce.
type configView struct {
	File          string `yaml:"config_file,omitempty"`
	config.Config `yaml:",inline"`
	Labels        []string `yaml:"filter_labels"`
	Rules         []string `yaml:"filter_rules"`
}

func loadConfigView() (configView, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return configView{}, err
	}
	rules, err := filter.DefaultRules(cfg.Filter, cfg.MitoContigs)
	if err != nil {
		return configView{}, err
	}
	engine := filter.NewEngine(rules)
	view := configView{
		File:   viper.ConfigFileUsed(),
		Config: cfg,
		Labels: engine.Labels(),
	}
	for _, r := range engine.Rules() {
		view.Rules = append(view.Rules, r.Label+": "+r.String())
	}
	return view, nil
}

func runConfigShow(w io.Writer) error {
	view, err := loadConfigView()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(w, string(out))
	return nil
}

func runConfigSet(w io.Writer, key, value string) error {
	// Parse boolean-like values
	switch value {
	case "true", "yes", "on":
		viper.Set(key, true)
	case "false", "no", "off":
		viper.Set(key, false)
	default:
		viper.Set(key, value)
	}

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".vibe-mity.yaml")
	}

	// Reject values that would leave an unloadable config behind.
	if _, err := config.Load(viper.GetViper()); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

// runConfigGet resolves a dotted key against the decoded configuration.
// Numeric path elements index into lists, so merge.owners.0.contig works.
func runConfigGet(w io.Writer, key string) error {
	view, err := loadConfigView()
	if err != nil {
		return err
	}
	raw, err := yaml.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	var node any
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	for _, part := range strings.Split(key, ".") {
		switch n := node.(type) {
		case map[string]any:
			next, ok := n[part]
			if !ok {
				return fmt.Errorf("key %q is not set", key)
			}
			node = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(n) {
				return fmt.Errorf("key %q: %q is not an index into a list of %d", key, part, len(n))
			}
			node = n[i]
		default:
			return fmt.Errorf("key %q is not set", key)
		}
	}

	switch node.(type) {
	case map[string]any, []any:
		out, err := yaml.Marshal(node)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", key, err)
		}
		fmt.Fprint(w, string(out))
	case nil:
		return fmt.Errorf("key %q is not set", key)
	default:
		fmt.Fprintln(w, node)
	}
	return nil
}
