package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tutorbook/internal/answer"
	"tutorbook/internal/diagram"
	"tutorbook/internal/render"
)

func newAskCommand() *cobra.Command {
	var (
		meta       metaFlags
		copyAnswer bool
		diagramDir string
		noHistory  bool
		width      int
	)
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask the tutor a question and print the rendered answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			q := answer.Question{
				Subject:       meta.subject,
				Level:         meta.level,
				LearningStyle: meta.learningStyle,
				Language:      meta.language,
				Question:      strings.Join(args, " "),
			}
			if err := q.Validate(); err != nil {
				return err
			}

			client := a.newBackend()
			defer func() { _ = client.Close() }()

			ctx := cmd.Context()
			resp, err := client.Ask(ctx, q)
			if err != nil {
				a.log.Debug("ask failed", "error", err)
				return fmt.Errorf("failed to get answer, please try again: %w", err)
			}

			if !noHistory {
				store, err := a.openHistory()
				if err != nil {
					a.log.Warn("history unavailable", "error", err)
				} else {
					if _, err := store.Add(ctx, answer.NewHistoryEntry(q, resp, time.Now())); err != nil {
						a.log.Warn("history add failed", "error", err)
					}
					_ = store.Close()
				}
			}

			view := a.composer.Compose(ctx, resp, render.ComposeOptions{Diagrams: render.DiagramsSkip})
			defer view.Reset()
			printView(cmd, a.composer, view, diagramDir, width)

			if copyAnswer {
				if err := view.Copy(render.SystemClipboard); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
				color.Green("Copied answer to clipboard")
			}
			return nil
		},
	}
	meta.register(cmd)
	flags := cmd.Flags()
	flags.BoolVar(&copyAnswer, "copy", false, "Copy the raw answer to the clipboard")
	flags.StringVar(&diagramDir, "diagram-dir", "", "Write compiled diagrams as SVG files into this directory")
	flags.BoolVar(&noHistory, "no-history", false, "Do not record the question in history")
	flags.IntVar(&width, "width", 100, "Wrap width for paragraphs")
	return cmd
}

func printView(cmd *cobra.Command, c *render.Composer, v *render.View, diagramDir string, width int) {
	opts := render.TerminalOptions{Width: width}
	if diagramDir != "" {
		opts.DiagramSink = func(d diagram.Diagram) (string, error) {
			if err := os.MkdirAll(diagramDir, 0o755); err != nil {
				return "", err
			}
			p := filepath.Join(diagramDir, d.ID+".svg")
			if err := os.WriteFile(p, []byte(d.SVG), 0o644); err != nil {
				return "", err
			}
			return p, nil
		}
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), c.Terminal(cmd.Context(), v, opts))
}
