// Package caller runs the external programs around normalisation: the
// freebayes variant caller, the samtools header reader, bgzip and tabix.
package caller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Tools holds the executable paths, read from MITY_FREEBAYES,
// MITY_SAMTOOLS, MITY_BGZIP and MITY_TABIX.
type Tools struct {
	Freebayes string `envconfig:"FREEBAYES" default:"freebayes"`
	Samtools  string `envconfig:"SAMTOOLS" default:"samtools"`
	Bgzip     string `envconfig:"BGZIP" default:"bgzip"`
	Tabix     string `envconfig:"TABIX" default:"tabix"`
}

// LoadTools reads tool paths from the environment.
func LoadTools() (Tools, error) {
	var t Tools
	if err := envconfig.Process("mity", &t); err != nil {
		return Tools{}, fmt.Errorf("read tool paths: %w", err)
	}
	return t, nil
}

// Missing returns the tools that cannot be found on PATH.
func (t Tools) Missing() []string {
	var missing []string
	for _, name := range []string{t.Freebayes, t.Samtools, t.Bgzip, t.Tabix} {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// run executes a command to completion, returning stdout. Stderr is
// included in the error.
func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Index builds a tabix index for a bgzipped VCF, overwriting any existing
// index.
func (t Tools) Index(ctx context.Context, path string) error {
	_, err := run(ctx, t.Tabix, "-f", "-p", "vcf", path)
	return err
}

// BgzipWriter compresses everything written to it into path through the
// bgzip program. Close waits for bgzip to finish.
type BgzipWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	file   *os.File
	stderr bytes.Buffer
}

// NewBgzipWriter starts bgzip writing to path.
func (t Tools) NewBgzipWriter(ctx context.Context, path string) (*BgzipWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := &BgzipWriter{file: f}
	w.cmd = exec.CommandContext(ctx, t.Bgzip, "-c")
	w.cmd.Stdout = f
	w.cmd.Stderr = &w.stderr
	w.stdin, err = w.cmd.StdinPipe()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bgzip stdin: %w", err)
	}
	if err := w.cmd.Start(); err != nil {
		f.Close()
		return nil, fmt.Errorf("start %s: %w", t.Bgzip, err)
	}
	return w, nil
}

func (w *BgzipWriter) Write(p []byte) (int, error) {
	return w.stdin.Write(p)
}

// Close flushes bgzip and closes the output file.
func (w *BgzipWriter) Close() error {
	inErr := w.stdin.Close()
	waitErr := w.cmd.Wait()
	fileErr := w.file.Close()
	switch {
	case waitErr != nil:
		return fmt.Errorf("bgzip: %w: %s", waitErr, strings.TrimSpace(w.stderr.String()))
	case inErr != nil:
		return inErr
	}
	return fileErr
}
