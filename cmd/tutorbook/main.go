package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tutorbook",
		Short:         "Ask the tutor and read its answers with code and diagrams rendered",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./tutorbook.yaml or $HOME/.config/tutorbook/tutorbook.yaml)")

	root.AddCommand(
		newServeCommand(),
		newAskCommand(),
		newRenderCommand(),
		newPreviewCommand(),
		newHistoryCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	_, _ = fmt.Fprintln(os.Stderr, color.RedString("tutorbook: %v", err))
	os.Exit(1)
}
