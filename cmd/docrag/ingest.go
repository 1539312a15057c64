package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newIngestCmd(c *cli) *cobra.Command {
	var docID string
	var deep bool

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Index a PDF, HTML or text document",
		Long: `Extracts every page of the document, splits it into chunks, embeds them and
builds the knowledge graph. Deep mode transcribes page images and describes
embedded figures with the vision model, which is slower and paced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			out := cmd.OutOrStdout()
			name := filepath.Base(path)
			fmt.Fprintln(out, titleStyle.Render("Ingesting "+name))

			doc, err := svc.Ingest(cmd.Context(), data, name, docID, deep, func(current, total int) {
				fmt.Fprintln(out, progressLine(current, total))
			})
			if err != nil {
				if doc != nil {
					fmt.Fprintf(out, "%s %s\n", errorStyle.Render("failed"), doc.ID)
				}
				return err
			}

			fmt.Fprintf(out, "%s %s (%d pages)\n", successStyle.Render("ready"), doc.ID, doc.Pages)
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "doc-id", "", "Document id (generated when empty)")
	cmd.Flags().BoolVar(&deep, "deep", false, "Transcribe page images and describe figures")
	return cmd
}
