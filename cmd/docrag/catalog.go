package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFactsCmd(c *cli) *cobra.Command {
	var docID string

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Show a sample of knowledge graph facts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			out := cmd.OutOrStdout()
			facts := svc.Facts(cmd.Context(), docID)
			if len(facts) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("no facts found"))
				return nil
			}
			for _, f := range facts {
				fmt.Fprintln(out, f.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "doc-id", "", "Restrict the sample to one document")
	return cmd
}

func newDocsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			docs, err := svc.Documents(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("no documents ingested yet"))
				return nil
			}

			for _, d := range docs {
				status := string(d.Status)
				fmt.Fprintf(out, "%s  %s  %s\n", titleStyle.Render(d.ID), d.FileName, statusStyle(status).Render(status))
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("    %d pages, deep=%v, added %s", d.Pages, d.Deep, d.CreatedAt.Format("2006-01-02 15:04"))))
			}
			fmt.Fprintf(out, "\nTotal: %d documents\n", len(docs))
			return nil
		},
	}
}
