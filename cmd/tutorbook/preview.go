package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tutorbook/internal/answer"
	"tutorbook/internal/server"
)

type metaFlags struct {
	subject, level, learningStyle, language string
}

func (m *metaFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&m.subject, "subject", "", "Subject tag")
	flags.StringVar(&m.level, "level", "", "Level tag")
	flags.StringVar(&m.learningStyle, "learning-style", "", "Learning style tag")
	flags.StringVar(&m.language, "language", "", "Language tag")
}

func (m *metaFlags) response(body string) answer.Response {
	return answer.Response{
		Answer:        body,
		Subject:       m.subject,
		Level:         m.level,
		LearningStyle: m.learningStyle,
		Language:      m.language,
	}
}

func newPreviewCommand() *cobra.Command {
	var (
		meta   metaFlags
		host   string
		port   int
		noOpen bool
	)
	cmd := &cobra.Command{
		Use:   "preview <answer.md>",
		Short: "Serve one markdown answer and reload it on every save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			st, err := os.Stat(path)
			if err != nil {
				return err
			}
			if st.IsDir() {
				return fmt.Errorf("%s is a directory", args[0])
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			s, err := server.New(server.Options{
				Composer:    a.composer,
				Logger:      a.log.With("component", "preview"),
				PreviewFile: path,
				PreviewMeta: meta.response(""),
			})
			if err != nil {
				return fmt.Errorf("server: %w", err)
			}
			defer func() { _ = s.Close() }()

			fmt.Printf("tutorbook: previewing %s\n", path)
			return listenAndServe(cmd.Context(), a, s.Handler(), fmt.Sprintf("%s:%d", host, port), !noOpen)
		},
	}
	meta.register(cmd)
	flags := cmd.Flags()
	flags.StringVar(&host, "host", "127.0.0.1", "Host/interface to bind to")
	flags.IntVar(&port, "port", 0, "Port to listen on (0 = auto)")
	flags.BoolVar(&noOpen, "no-open", false, "Do not open the browser automatically")
	return cmd
}
