package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-mity/internal/merge"
	"github.com/inodb/vibe-mity/internal/vcf"
)

func newMergeCmd(a *app) *cobra.Command {
	var (
		mitoPath       string
		nuclearPath    string
		output         string
		bgzip          bool
		mitoFirst      bool
		mitoLast       bool
		keepDuplicates bool
		keepAmbiguous  bool
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a mitochondrial and a nuclear VCF",
		Long: `Merge a normalised mitochondrial VCF with a nuclear VCF into one
coordinate-ordered VCF. Both inputs must be sorted. Where both streams have
a record at the same locus, the stream owning that contig wins.`,
		Example: `  vibe-mity merge --mito sample.mity.normalise.vcf.gz --nuclear sample.vcf.gz -o merged.vcf
  vibe-mity merge --mito mito.vcf --nuclear nuclear.vcf --mito-first -o merged.vcf.gz --bgzip`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			mc, err := cfg.MergeOptions()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("mito-first") {
				mc.MitoFirst = mitoFirst
				mc.MitoLast = mc.MitoLast && !mitoFirst
			}
			if cmd.Flags().Changed("mito-last") {
				mc.MitoLast = mitoLast
				mc.MitoFirst = mc.MitoFirst && !mitoLast
			}
			if cmd.Flags().Changed("keep-duplicates") {
				mc.KeepDuplicates = keepDuplicates
			}
			if cmd.Flags().Changed("keep-ambiguous") {
				mc.KeepAmbiguous = keepAmbiguous
			}

			m, err := merge.New(mc)
			if err != nil {
				return err
			}
			m.SetLogger(a.logger)

			mito, err := vcf.NewParser(mitoPath)
			if err != nil {
				return fmt.Errorf("mito input: %w", err)
			}
			defer mito.Close()
			nuclear, err := vcf.NewParser(nuclearPath)
			if err != nil {
				return fmt.Errorf("nuclear input: %w", err)
			}
			defer nuclear.Close()

			h, err := m.MergeHeaders(mito.Header(), nuclear.Header())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out, err := openOutput(ctx, output, bgzip, a.logger)
			if err != nil {
				return err
			}
			w := vcf.NewWriter(out.w, h)
			if err := w.WriteHeader(); err != nil {
				out.Close(ctx)
				return fmt.Errorf("write header: %w", err)
			}
			stats, err := m.Merge(mito, nuclear, w)
			if err != nil {
				out.Close(ctx)
				return err
			}
			if err := w.Flush(); err != nil {
				out.Close(ctx)
				return fmt.Errorf("flush output: %w", err)
			}
			if err := out.Close(ctx); err != nil {
				return err
			}
			a.logger.Debug("merge finished",
				zap.String("output", output),
				zap.Int("discarded", stats.Discarded))
			return nil
		},
	}

	cmd.Flags().StringVar(&mitoPath, "mito", "", "Mitochondrial VCF (required)")
	cmd.Flags().StringVar(&nuclearPath, "nuclear", "", "Nuclear VCF (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&bgzip, "bgzip", false, "Compress output with bgzip and index it with tabix")
	cmd.Flags().BoolVar(&mitoFirst, "mito-first", false, "Emit mitochondrial contigs before all others")
	cmd.Flags().BoolVar(&mitoLast, "mito-last", false, "Emit mitochondrial contigs after all others")
	cmd.Flags().BoolVar(&keepDuplicates, "keep-duplicates", false, "Keep the non-owning stream's records at a shared locus")
	cmd.Flags().BoolVar(&keepAmbiguous, "keep-ambiguous", false, "Keep both records when a shared locus has no owner")
	_ = cmd.MarkFlagRequired("mito")
	_ = cmd.MarkFlagRequired("nuclear")

	return cmd
}
