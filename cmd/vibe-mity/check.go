package main

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-mity/internal/caller"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the external tools are installed",
		Long: `Check that freebayes, samtools, bgzip and tabix can be found and report
the number of available CPUs. Tool paths are read from MITY_FREEBAYES,
MITY_SAMTOOLS, MITY_BGZIP and MITY_TABIX.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := caller.LoadTools()
			if err != nil {
				return err
			}
			return runCheck(cmd.OutOrStdout(), tools)
		},
	}
}

func runCheck(w io.Writer, tools caller.Tools) error {
	missing := tools.Missing()
	fmt.Fprintln(w, "Checking for required commands...")
	for _, name := range []string{tools.Freebayes, tools.Samtools, tools.Bgzip, tools.Tabix} {
		status := "ok"
		for _, m := range missing {
			if m == name {
				status = "missing"
				break
			}
		}
		fmt.Fprintf(w, "  %-12s %s\n", name, status)
	}
	fmt.Fprintf(w, "Number of available CPUs: %d\n", runtime.NumCPU())

	if len(missing) > 0 {
		return fmt.Errorf("required tools not found on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
