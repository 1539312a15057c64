package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/smallnest/docrag/rag/engine"
	"github.com/spf13/cobra"
)

func newAskCmd(c *cli) *cobra.Command {
	var docID, language string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errNoQuestion
			}

			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			answer := svc.Ask(cmd.Context(), engine.NewSession(), question, docID, language)
			printAnswer(cmd.OutOrStdout(), answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "doc-id", "", "Restrict retrieval to one document")
	cmd.Flags().StringVar(&language, "lang", "", "Answer language (detected when empty)")
	return cmd
}

func newChatCmd(c *cli) *cobra.Command {
	var docID, language string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long:  `Starts a conversation that remembers earlier turns. Type /reset to forget them and /exit to quit.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			out := cmd.OutOrStdout()
			session := engine.NewSession()
			scanner := bufio.NewScanner(cmd.InOrStdin())

			fmt.Fprintln(out, titleStyle.Render("docrag chat")+" "+mutedStyle.Render("(/reset, /exit)"))
			for {
				fmt.Fprint(out, accentStyle.Render("you> "))
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}

				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/exit", "/quit", "exit", "quit":
					return nil
				case "/reset":
					session.Reset()
					fmt.Fprintln(out, mutedStyle.Render("conversation cleared"))
					continue
				}

				if cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}
				printAnswer(out, svc.Ask(cmd.Context(), session, line, docID, language))
			}
		},
	}

	cmd.Flags().StringVar(&docID, "doc-id", "", "Restrict retrieval to one document")
	cmd.Flags().StringVar(&language, "lang", "", "Answer language (detected when empty)")
	return cmd
}

func printAnswer(w io.Writer, answer engine.Answer) {
	fmt.Fprintln(w, answerStyle.Render(answer.Text))
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("confidence %.2f", answer.Confidence)))
	for _, p := range answer.ImagePaths {
		fmt.Fprintln(w, mutedStyle.Render("image: "+p))
	}
}
