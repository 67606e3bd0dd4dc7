// Package main provides the vibe-mity command-line tool.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-mity/internal/config"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries state shared by subcommands after flags are parsed.
type app struct {
	cfgFile  string
	verbose  bool
	profile  string
	logger   *zap.Logger
	profiler interface{ Stop() }
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	viper.Reset()
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.Execute()
	if a.profiler != nil {
		a.profiler.Stop()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "vibe-mity",
		Short: "Mitochondrial variant calling, normalisation and merging",
		Long: `vibe-mity calls mitochondrial variants with freebayes, recomputes
heteroplasmy fields, annotates filter labels and merges the result with a
nuclear call set into one coordinate-ordered VCF.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file (default ~/.vibe-mity.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&a.profile, "profile", "", "Write a cpu or mem profile to the working directory")

	root.AddCommand(newCallCmd(a))
	root.AddCommand(newNormaliseCmd(a))
	root.AddCommand(newMergeCmd(a))
	root.AddCommand(newCheckCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// init reads the config file and environment, builds the logger and
// starts profiling.
func (a *app) init() error {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("VIBE_MITY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if a.cfgFile != "" {
		viper.SetConfigFile(a.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.SetConfigFile(filepath.Join(home, ".vibe-mity.yaml"))
	}
	// A missing default config file is not an error.
	if err := viper.ReadInConfig(); err != nil && (a.cfgFile != "" || !errors.Is(err, fs.ErrNotExist)) {
		return fmt.Errorf("read config: %w", err)
	}

	logger, err := newLogger(a.verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.logger = logger

	switch a.profile {
	case "":
	case "cpu":
		a.profiler = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet)
	case "mem":
		a.profiler = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet)
	default:
		return fmt.Errorf("--profile must be cpu or mem, got %q", a.profile)
	}
	return nil
}

// loadConfig decodes the merged configuration.
func (a *app) loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger builds a production logger on stderr, or a development logger
// at debug level when verbose is set.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vibe-mity version %s (%s) built %s\n", version, commit, date)
		},
	}
}
