package main

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/server"
	"github.com/spf13/cobra"
)

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the vector store, knowledge graph and catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			h := svc.Health(cmd.Context())
			out := cmd.OutOrStdout()

			line := func(name, problem, detail string) {
				if problem != "" {
					fmt.Fprintf(out, "%-8s %s %s\n", name, errorStyle.Render("down"), mutedStyle.Render(problem))
					return
				}
				fmt.Fprintf(out, "%-8s %s %s\n", name, successStyle.Render("ok"), mutedStyle.Render(detail))
			}
			line("vectors", h.VectorError, fmt.Sprintf("%d chunks", h.Chunks))
			line("graph", h.GraphError, "")
			line("catalog", h.CatalogError, fmt.Sprintf("%d documents", h.Documents))

			if !h.OK {
				return errors.New("unhealthy")
			}
			return nil
		},
	}
}

func newServeCmd(c *cli) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			if addr == "" {
				addr = c.cfg.ServerAddr
			}
			if log.ParseLevel(c.cfg.LogLevel) != log.LogLevelDebug {
				gin.SetMode(gin.ReleaseMode)
			}

			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("docrag API on "+addr))
			return server.New(svc, server.WithLogger(c.logger)).Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default SERVER_ADDR)")
	return cmd
}
