package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-mity/internal/caller"
	"github.com/inodb/vibe-mity/internal/vcf"
)

func newCallCmd(a *app) *cobra.Command {
	var (
		reference string
		prefix    string
		region    string
		bamList   string
		outputDir string
		doNorm    bool
		dbPath    string
	)

	cmd := &cobra.Command{
		Use:   "call [flags] <bam-or-cram>...",
		Short: "Call mitochondrial variants with freebayes",
		Long: `Call mitochondrial variants from one or more BAM or CRAM files with
freebayes in sensitive mode. The output is bgzipped and tabix indexed.
With --normalise the calls go straight through normalisation.

Tool paths are read from MITY_FREEBAYES, MITY_SAMTOOLS, MITY_BGZIP and
MITY_TABIX.`,
		Example: `  vibe-mity call --reference hs37d5.fa sample.bam
  vibe-mity call --reference hs37d5.fa --prefix family --normalise a.bam b.bam c.bam
  vibe-mity call --reference hs37d5.fa --bam-list bams.txt --prefix cohort --output-dir out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			bams := args
			if bamList != "" {
				listed, err := caller.ReadBAMList(bamList)
				if err != nil {
					return err
				}
				bams = append(bams, listed...)
			}

			tools, err := caller.LoadTools()
			if err != nil {
				return err
			}
			if missing := tools.Missing(); len(missing) > 0 {
				return fmt.Errorf("required tools not found on PATH: %v", missing)
			}

			opts := cfg.CallerOptions()
			opts.Reference = reference
			opts.BAMs = bams
			opts.Region = region
			opts.Prefix = prefix
			c, err := caller.New(tools, opts)
			if err != nil {
				return err
			}
			c.SetLogger(a.logger)

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			ctx := cmd.Context()
			resolved, err := c.Check(ctx)
			if err != nil {
				return err
			}
			proc, err := c.Start(ctx, resolved)
			if err != nil {
				return err
			}
			parser, err := vcf.NewParserFromReader(proc)
			if err != nil {
				proc.Wait()
				return err
			}
			caller.RenameCallerMeta(parser.Header(), commandLine())

			path := caller.CallPath(outputDir, c.Prefix())
			if doNorm {
				path = caller.NormalisePath(outputDir, c.Prefix())
			}
			out, err := openOutput(ctx, path, true, a.logger)
			if err != nil {
				proc.Wait()
				return err
			}

			if doNorm {
				if dbPath == "" {
					dbPath = cfg.Database
				}
				nopts := cfg.NormaliseOptions()
				nopts.CommandLine = commandLine()
				_, err = runNormalise(ctx, a.logger, nopts, parser, out, "-", dbPath)
			} else {
				err = copyCalls(ctx, parser, out)
			}
			if waitErr := proc.Wait(); err == nil {
				err = waitErr
			}
			if err != nil {
				return err
			}
			a.logger.Info("wrote calls", zap.String("output", path))
			return nil
		},
	}

	cmd.Flags().StringVar(&reference, "reference", "", "Reference FASTA the alignments were made against (required)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Output file prefix (required with more than one input)")
	cmd.Flags().StringVar(&region, "region", "", "Region to call (default: the whole mitochondrial contig)")
	cmd.Flags().StringVar(&bamList, "bam-list", "", "File with one BAM or CRAM path per line")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "Output directory")
	cmd.Flags().BoolVar(&doNorm, "normalise", false, "Normalise the calls before writing them")
	cmd.Flags().StringVar(&dbPath, "db", "", "With --normalise, also store calls in this DuckDB file")
	_ = cmd.MarkFlagRequired("reference")

	return cmd
}

// copyCalls writes the caller's records unchanged.
func copyCalls(ctx context.Context, p vcf.VariantParser, out *output) error {
	w := vcf.NewWriter(out.w, p.Header())
	if err := w.WriteHeader(); err != nil {
		out.Close(ctx)
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := vcf.Copy(w, p); err != nil {
		out.Close(ctx)
		return err
	}
	if err := w.Flush(); err != nil {
		out.Close(ctx)
		return err
	}
	return out.Close(ctx)
}
