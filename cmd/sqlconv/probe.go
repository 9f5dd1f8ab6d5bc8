package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sqlconv/internal/batch"
	"sqlconv/internal/dialect"
	"sqlconv/internal/schema"
	"sqlconv/internal/source"
	"sqlconv/internal/source/csv"
	"sqlconv/internal/sqlgen"
)

// probeTable is the YAML view of one inferred table.
type probeTable struct {
	Table      string        `yaml:"table"`
	Origin     string        `yaml:"origin"`
	Dialect    *probeDialect `yaml:"dialect,omitempty"`
	PrimaryKey []string      `yaml:"primary_key,omitempty"`
	Columns    []probeColumn `yaml:"columns"`
}

type probeDialect struct {
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
}

type probeColumn struct {
	Name     string `yaml:"name"`
	Original string `yaml:"original"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

func (a *app) probeCmd() *cobra.Command {
	var (
		sf     sourceFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "probe [PATH...]",
		Short: "Print inferred table definitions without converting rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "ddl" {
				return fmt.Errorf("--format must be yaml or ddl, got %q", format)
			}
			srcs, _, err := a.sources(&sf, args)
			if err != nil {
				return err
			}

			r := a.runner(&sf, a.cfg.SQL)
			tables, sum, err := r.Plan(cmd.Context(), srcs)
			if err != nil {
				return err
			}

			if format == "ddl" {
				for _, t := range tables {
					fmt.Fprintln(a.stdout, r.Generator.RenderCreateTable(t))
				}
			} else {
				profiles := sniffAll(srcs)
				out := make([]probeTable, 0, len(tables))
				i := 0
				for _, res := range sum.Tables {
					if res.Status != batch.StatusOK {
						continue
					}
					out = append(out, toProbe(tables[i], res.Origin, profiles[res.Origin]))
					i++
				}
				enc := yaml.NewEncoder(a.stdout)
				enc.SetIndent(2)
				if err := enc.Encode(out); err != nil {
					return err
				}
				if err := enc.Close(); err != nil {
					return err
				}
			}

			for _, res := range sum.Tables {
				if res.Status != batch.StatusOK {
					fmt.Fprintf(a.stderr, "FAILED  %s (%s): %s\n", res.Origin, res.Stage, res.Error)
				}
			}
			for _, s := range sum.Sources {
				if s.Error != "" {
					fmt.Fprintf(a.stderr, "FAILED  %s: %s\n", s.Path, s.Error)
				}
			}
			if sum.HasFailures() {
				return errFailures
			}
			return nil
		},
	}

	sf.register(cmd)
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml|ddl")
	return cmd
}

// sniffAll detects the dialect of every delimited-text source, keyed by the
// origin the csv adapter reports (the file's base name).
func sniffAll(srcs []source.Config) map[string]dialect.Profile {
	out := map[string]dialect.Profile{}
	for _, s := range srcs {
		if s.Kind != "csv" {
			continue
		}
		p, err := csv.Sniff(s.Path, s.Options)
		if err != nil {
			continue
		}
		out[s.FileOrigin()] = p
	}
	return out
}

func toProbe(t *schema.Table, origin string, p dialect.Profile) probeTable {
	pt := probeTable{Table: sqlgen.Ident(t.Name), Origin: origin, PrimaryKey: t.PrimaryKey}
	if p.Delimiter != 0 {
		pt.Dialect = &probeDialect{Delimiter: p.DelimiterName(), Encoding: p.Encoding}
	}
	for _, c := range t.Columns {
		pt.Columns = append(pt.Columns, probeColumn{
			Name:     c.Name,
			Original: c.Original,
			Type:     c.Type.SQL(),
			Nullable: c.Type.Nullable,
		})
	}
	return pt
}
