package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sqlconv/internal/metrics"
	"sqlconv/internal/splitter"
)

func (a *app) splitCmd() *cobra.Command {
	var (
		maxLines  int
		outDir    string
		noHeaders bool
	)

	cmd := &cobra.Command{
		Use:   "split FILE...",
		Short: "Split SQL scripts into chunks without breaking statements",
		Long: `Split each script into <stem>_parte_NNN.sql files of at least --max-lines
lines, cutting only between statements. A script that ends inside a
statement is reported and no chunk is written for it; other scripts are
still processed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.SplitOptions(outDir)
			if maxLines > 0 {
				opts.MaxLines = maxLines
			}
			if noHeaders {
				opts.Headers = false
			}

			failed := 0
			for _, path := range args {
				start := time.Now()
				files, err := splitter.SplitFile(cmd.Context(), path, opts)
				metrics.RecordStep("split", start, err)
				if err != nil {
					failed++
					a.log.Error("split failed", zap.String("path", path), zap.Error(err))
					fmt.Fprintf(a.stderr, "FAILED  %s: %v\n", path, err)
					continue
				}
				metrics.RecordChunks(len(files))

				lines := 0
				for _, f := range files {
					lines += f.Lines()
					fmt.Fprintln(a.stdout, f.Path)
				}
				a.log.Info("stage=split ok",
					zap.String("path", path),
					zap.Int("chunks", len(files)),
					zap.Int("lines", lines),
					zap.Duration("duration", time.Since(start)),
				)
				fmt.Fprintf(a.stderr, "ok      %s: %s lines in %d chunks\n", path, humanize.Comma(int64(lines)), len(files))
			}
			if failed > 0 {
				return errFailures
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&maxLines, "max-lines", "n", 0, "minimum lines per chunk (overrides config, default 50000)")
	fl.StringVar(&outDir, "out-dir", "", "folder for chunk files (default: next to the script)")
	fl.BoolVar(&noHeaders, "no-headers", false, "do not prefix chunks with the part/line comment block")
	return cmd
}
