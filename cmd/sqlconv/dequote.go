package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sqlconv/internal/source/csv"
)

func (a *app) dequoteCmd() *cobra.Command {
	var delimiter, encoding string

	cmd := &cobra.Command{
		Use:   "dequote SRC DST",
		Short: "Rewrite a delimited file without quote characters",
		Long: `Remove every double quote from a delimited text file. Delimiters and
backslashes inside a field are escaped with a backslash; the output is UTF-8
with the input's delimiter, whatever the input encoding. Records whose field
count differs from the header are dropped and reported as skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.SourceOptions()
			if delimiter != "" {
				opts["delimiter"] = delimiter
			}
			if encoding != "" {
				opts["encoding"] = encoding
			}

			st, err := csv.RemoveQuotesFile(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return fmt.Errorf("dequote %s: %w", args[0], err)
			}
			a.log.Info("dequote ok",
				zap.String("src", args[0]),
				zap.String("dst", args[1]),
				zap.Int("rows", st.Rows),
				zap.Int("skipped", st.Skipped),
			)
			if st.Skipped > 0 {
				a.log.Warn("dequote dropped misaligned records",
					zap.String("src", args[0]), zap.Int("skipped", st.Skipped))
			}
			fmt.Fprintf(a.stderr, "ok      %s -> %s (%s rows, %d skipped)\n",
				args[0], args[1], humanize.Comma(int64(st.Rows)), st.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&delimiter, "delimiter", "", "input delimiter; detected when empty")
	cmd.Flags().StringVar(&encoding, "encoding", "", "input encoding; detected when empty")
	return cmd
}
