package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"go.uber.org/zap"

	"github.com/inodb/vibe-mity/internal/caller"
	"github.com/inodb/vibe-mity/internal/vcf"
)

// output is a VCF destination. Paths ending in .gz are compressed: through
// bgzip (and indexed with tabix on Close) when useBgzip is set, otherwise
// with an in-process gzip writer.
type output struct {
	path   string
	w      io.Writer
	closer io.Closer
	gz     *pgzip.Writer
	index  bool
	tools  caller.Tools
	logger *zap.Logger
}

func openOutput(ctx context.Context, path string, useBgzip bool, logger *zap.Logger) (*output, error) {
	o := &output{path: path, logger: logger}
	if path == "" || path == "-" {
		o.w = os.Stdout
		return o, nil
	}

	if useBgzip {
		if !strings.HasSuffix(path, ".gz") {
			return nil, fmt.Errorf("--bgzip needs an output path ending in .gz, got %s", path)
		}
		tools, err := caller.LoadTools()
		if err != nil {
			return nil, err
		}
		bw, err := tools.NewBgzipWriter(ctx, path)
		if err != nil {
			return nil, err
		}
		o.w, o.closer, o.index, o.tools = bw, bw, true, tools
		return o, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	o.w, o.closer = f, f
	if strings.HasSuffix(path, ".gz") {
		o.gz = pgzip.NewWriter(f)
		o.w = o.gz
	}
	return o, nil
}

// Close flushes compression, closes the file and builds the index.
func (o *output) Close(ctx context.Context) error {
	if o.gz != nil {
		if err := o.gz.Close(); err != nil {
			return fmt.Errorf("close gzip writer: %w", err)
		}
	}
	if o.closer != nil {
		if err := o.closer.Close(); err != nil {
			return err
		}
	}
	if o.index {
		if err := o.tools.Index(ctx, o.path); err != nil {
			return err
		}
		o.logger.Info("indexed output", zap.String("path", o.path+".tbi"))
	}
	return nil
}

// sink is satisfied by vcf.Writer and duckdb.CallSink.
type sink interface {
	Write(v *vcf.Variant) error
}

// teeSink writes every record to each sink in turn.
type teeSink []sink

func (t teeSink) Write(v *vcf.Variant) error {
	for _, s := range t {
		if err := s.Write(v); err != nil {
			return err
		}
	}
	return nil
}

func commandLine() string {
	return strings.Join(os.Args, " ")
}
