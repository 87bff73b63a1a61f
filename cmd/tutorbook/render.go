package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tutorbook/internal/render"
)

func newRenderCommand() *cobra.Command {
	var (
		meta       metaFlags
		format     string
		standalone bool
		diagramDir string
	)
	cmd := &cobra.Command{
		Use:   "render <answer.md|->",
		Short: "Render a markdown answer to HTML or the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				src []byte
				err error
			)
			if args[0] == "-" {
				src, err = io.ReadAll(cmd.InOrStdin())
			} else {
				src, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read answer: %w", err)
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			resp := meta.response(string(src))
			out := cmd.OutOrStdout()

			switch format {
			case "terminal":
				view := a.composer.Compose(ctx, resp, render.ComposeOptions{Diagrams: render.DiagramsSkip})
				defer view.Reset()
				printView(cmd, a.composer, view, diagramDir, 100)
				return nil
			case "html":
				view := a.composer.Compose(ctx, resp, render.ComposeOptions{Diagrams: render.DiagramsInline})
				defer view.Reset()
				if !standalone {
					_, err := fmt.Fprintln(out, view.HTML)
					return err
				}
				return writeStandalone(out, a.composer, view)
			default:
				return fmt.Errorf("unknown format %q (want html or terminal)", format)
			}
		},
	}
	meta.register(cmd)
	flags := cmd.Flags()
	flags.StringVar(&format, "format", "html", "Output format: html or terminal")
	flags.BoolVar(&standalone, "standalone", false, "Wrap HTML output in a full page with the code stylesheet")
	flags.StringVar(&diagramDir, "diagram-dir", "", "With --format terminal, write compiled diagrams into this directory")
	return cmd
}

func writeStandalone(w io.Writer, c *render.Composer, v *render.View) error {
	var css strings.Builder
	if err := c.Code().CSS(&css, false); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "<!doctype html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n<style>\n%s</style>\n</head>\n<body>\n%s\n</body>\n</html>\n", css.String(), v.HTML)
	return err
}
