package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tutorbook/internal/server"
)

func newServeCommand() *cobra.Command {
	var (
		host   string
		port   int
		noOpen bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			client := a.newBackend()
			defer func() { _ = client.Close() }()

			s, err := server.New(server.Options{
				Backend:  client,
				History:  store,
				Composer: a.composer,
				Logger:   a.log.With("component", "server"),
			})
			if err != nil {
				return fmt.Errorf("server: %w", err)
			}
			defer func() { _ = s.Close() }()

			fmt.Printf("tutorbook: backend %s\n", a.cfg.Backend.BaseURL)
			return listenAndServe(cmd.Context(), a, s.Handler(), a.cfg.Addr(), !noOpen)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&host, "host", "127.0.0.1", "Host/interface to bind to")
	flags.IntVar(&port, "port", 0, "Port to listen on (0 = auto)")
	flags.BoolVar(&noOpen, "no-open", false, "Do not open the browser automatically")
	return cmd
}
