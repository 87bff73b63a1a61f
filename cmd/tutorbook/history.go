package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tutorbook/internal/history"
	"tutorbook/internal/render"
)

func newHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List, search, show, or clear previously asked questions",
	}
	historyCmd.AddCommand(
		newHistoryListCommand(),
		newHistorySearchCommand(),
		newHistoryShowCommand(),
		newHistoryClearCommand(),
	)
	return historyCmd
}

// withHistory runs fn with the configured store open.
func withHistory(fn func(a *app, store *history.Store) error) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(a, store)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func newHistoryListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent questions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(a *app, store *history.Store) error {
				entries, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No questions yet.")
					return nil
				}
				t := table.New().
					Border(lipgloss.NormalBorder()).
					Headers("ID", "When", "Subject", "Level", "Question")
				for _, e := range entries {
					t.Row(
						strconv.FormatInt(e.ID, 10),
						e.Timestamp.Local().Format("2006-01-02 15:04"),
						e.Subject,
						e.Level,
						truncate(e.Question, 60),
					)
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.String())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.MaxEntries, "Maximum number of entries")
	return cmd
}

func newHistorySearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search questions and answers (smart-case)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(a *app, store *history.Store) error {
				res, err := store.Search(cmd.Context(), strings.Join(args, " "), 200)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range res.Results {
					fmt.Fprintf(out, "%s %s:%d  %s\n",
						color.CyanString("#%d", m.ID), m.Field, m.Line, truncate(m.Preview, 100))
				}
				if res.Truncated {
					color.Yellow("(results truncated)")
				}
				return nil
			})
		},
	}
}

func newHistoryShowCommand() *cobra.Command {
	var diagramDir string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Render a stored answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return withHistory(func(a *app, store *history.Store) error {
				e, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), color.New(color.Bold).Sprint(e.Question))
				view := a.composer.Compose(cmd.Context(), e.Response(), render.ComposeOptions{Diagrams: render.DiagramsSkip})
				defer view.Reset()
				printView(cmd, a.composer, view, diagramDir, 100)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&diagramDir, "diagram-dir", "", "Write compiled diagrams as SVG files into this directory")
	return cmd
}

func newHistoryClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(a *app, store *history.Store) error {
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
				color.Green("History cleared")
				return nil
			})
		},
	}
}
