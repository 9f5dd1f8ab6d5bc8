package main

import (
	"github.com/spf13/cobra"

	"sqlconv/internal/httpapi"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detect, convert and split HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			srv := httpapi.New(httpapi.Options{
				Inference:      a.cfg.Inference,
				SQL:            a.cfg.SQL,
				Dialect:        a.cfg.DialectOptions(),
				SourceOptions:  a.cfg.SourceOptions(),
				SplitMaxLines:  a.cfg.Split.MaxLines,
				MaxBodyBytes:   a.cfg.HTTP.MaxBodyBytes,
				RequestTimeout: a.cfg.HTTP.RequestTimeout,
			}, a.log)

			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cfg.Write(a.stdout)
		},
	}
}
