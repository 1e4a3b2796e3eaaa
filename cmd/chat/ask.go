package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/service/session"
)

func newAskCmd(opts *options) *cobra.Command {
	var questions []string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer questions about the recording",
		Long: `Answer questions about the recording. Without -q, questions are read
from stdin one per line. Type /history to print the conversation, /reset to
start over and /quit to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, conv, err := opts.load(ctx)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("Indexed %d chunks from %s", len(conv.Cache().Chunks()), conv.Cache().ActiveMedia())))

			if len(questions) > 0 {
				for _, q := range questions {
					if err := ask(ctx, out, conv, q); err != nil {
						return err
					}
				}
				return nil
			}
			return repl(ctx, cmd.InOrStdin(), out, conv, opts)
		},
	}
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "Question to ask (repeatable); skips the interactive prompt")
	return cmd
}

func repl(ctx context.Context, in io.Reader, out io.Writer, conv *session.Conversation, opts *options) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("? "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			printHistory(out, conv.History())
			continue
		case "/reset":
			conv.Reset()
			fmt.Fprintln(out, infoStyle.Render("Session reset, re-indexing..."))
			if _, err := conv.EnsureIndexBuilt(ctx, mediaRef(opts)); err != nil {
				return err
			}
			continue
		}
		if err := ask(ctx, out, conv, line); err != nil {
			if session.KindOf(err) == session.KindInput || session.KindOf(err) == session.KindExternalService {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
				continue
			}
			return err
		}
	}
}

// ask streams one answer to out followed by its citations.
func ask(ctx context.Context, out io.Writer, conv *session.Conversation, question string) error {
	reply, err := conv.SubmitQuery(ctx, question)
	if err != nil {
		return err
	}
	for delta := range reply.Deltas {
		fmt.Fprint(out, delta)
	}
	fmt.Fprintln(out)
	printSources(out, reply.Sources)
	return nil
}

func printSources(out io.Writer, docs []models.SourceDocument) {
	for _, d := range docs {
		fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("["+d.Source+"]"), sourceStyle.Render(truncate(strings.TrimSpace(d.Text), 80)))
	}
}

func printHistory(out io.Writer, history []models.Turn) {
	if len(history) == 0 {
		fmt.Fprintln(out, sourceStyle.Render("(no questions yet)"))
		return
	}
	for i, t := range history {
		fmt.Fprintf(out, "%s %s\n%s\n", labelStyle.Render(fmt.Sprintf("%d.", i+1)), t.Question, t.Answer)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
