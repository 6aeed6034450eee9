package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stgm/visitreport/internal/revizto"
	"github.com/stgm/visitreport/internal/server"
)

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve report generation over HTTP",
	Long: `Serve report generation over HTTP.

Routes:
  GET  /healthz
  GET  /projects
  POST /projects/{projectID}/report   (JSON metadata body, returns the PDF)
  GET  /region/redirect?url=<link>    (opens an application link)

The access token is refreshed in the background while the server runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := cmd.Flags().GetString("addr")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if addr == "" {
			addr = a.cfg.Server.Addr
		}

		service, err := a.reportService("")
		if err != nil {
			return err
		}

		refresher := revizto.NewRefresher(a.session, a.cfg.Revizto.RefreshInterval)
		refresher.Start()
		defer refresher.Stop()

		return server.Run(ctx, addr, server.NewRouter(a.client, service))
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default SERVER_ADDR)")
}
