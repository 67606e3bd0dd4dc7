package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-mity/internal/duckdb"
	"github.com/inodb/vibe-mity/internal/normalise"
	"github.com/inodb/vibe-mity/internal/vcf"
)

func newNormaliseCmd(a *app) *cobra.Command {
	var (
		output  string
		noSplit bool
		bgzip   bool
		dbPath  string
	)

	cmd := &cobra.Command{
		Use:     "normalise <input.vcf>",
		Aliases: []string{"normalize"},
		Short:   "Recompute heteroplasmy fields and annotate filters",
		Long: `Normalise a mitochondrial VCF: split multi-allelic records, recompute the
heteroplasmy fraction, class and quality for every sample, and set the
FILTER column from the configured thresholds and custom rules.

Use "-" to read from standard input.`,
		Example: `  vibe-mity normalise sample.vcf.gz -o sample.mity.normalise.vcf
  vibe-mity normalise sample.vcf.gz -o sample.mity.normalise.vcf.gz --bgzip
  vibe-mity normalise sample.vcf.gz --db calls.duckdb > out.vcf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = cfg.Database
			}
			opts := cfg.NormaliseOptions()
			opts.Split = !noSplit
			opts.CommandLine = commandLine()

			parser, err := vcf.NewParser(args[0])
			if err != nil {
				return err
			}
			defer parser.Close()

			ctx := cmd.Context()
			out, err := openOutput(ctx, output, bgzip, a.logger)
			if err != nil {
				return err
			}
			sum, err := runNormalise(ctx, a.logger, opts, parser, out, args[0], dbPath)
			if err != nil {
				return err
			}
			a.logger.Info("wrote normalised calls",
				zap.String("output", output),
				zap.Int("records", sum.Written))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&noSplit, "no-split", false, "Keep multi-allelic records as they are")
	cmd.Flags().BoolVar(&bgzip, "bgzip", false, "Compress output with bgzip and index it with tabix")
	cmd.Flags().StringVar(&dbPath, "db", "", "Also store calls and the run summary in this DuckDB file")

	return cmd
}

// runNormalise streams src through a Normaliser into out, and into the
// calls table when dbPath is set. out is closed before returning.
func runNormalise(ctx context.Context, logger *zap.Logger, opts normalise.Options,
	src normalise.Source, out *output, input, dbPath string) (normalise.Summary, error) {
	n, err := normalise.New(opts)
	if err != nil {
		out.Close(ctx)
		return normalise.Summary{}, err
	}
	n.SetLogger(logger)

	h := n.OutputHeader(src.Header())
	w := vcf.NewWriter(out.w, h)
	if err := w.WriteHeader(); err != nil {
		out.Close(ctx)
		return normalise.Summary{}, fmt.Errorf("write header: %w", err)
	}

	sinks := teeSink{w}
	var (
		store *duckdb.Store
		calls *duckdb.CallSink
		rec   duckdb.Run
	)
	if dbPath != "" {
		fp, err := duckdb.StatFile(input)
		if err != nil {
			out.Close(ctx)
			return normalise.Summary{}, fmt.Errorf("stat input: %w", err)
		}
		if store, err = duckdb.Open(dbPath); err != nil {
			out.Close(ctx)
			return normalise.Summary{}, err
		}
		defer store.Close()
		rec = duckdb.NewRun(opts.CommandLine, fp)
		calls = store.NewCallSink(rec.ID, h.Samples, duckdb.FieldsFor(opts.Hetero))
		sinks = append(sinks, calls)
	}

	sum, err := n.Run(src, sinks)
	if err != nil {
		out.Close(ctx)
		return sum, err
	}
	if err := w.Flush(); err != nil {
		out.Close(ctx)
		return sum, fmt.Errorf("flush output: %w", err)
	}
	if err := out.Close(ctx); err != nil {
		return sum, err
	}

	if store != nil {
		if err := calls.Flush(); err != nil {
			return sum, err
		}
		rec.Summary = sum
		if err := store.WriteRun(rec); err != nil {
			return sum, err
		}
		logger.Info("stored calls",
			zap.String("db", dbPath),
			zap.String("run_id", rec.ID),
			zap.Int("calls", calls.Written()))
	}
	return sum, nil
}
