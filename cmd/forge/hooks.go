package main

import (
	"errors"
	"net/http"
	"os"

	"github.com/forgeci/forge/hooks"
	"github.com/forgeci/forge/log"
	"github.com/spf13/cobra"
)

const hooksAddrFlag = "addr"

// hooksCmd listens for GitHub webhooks and queues rebuilds of the images a
// push touched.
var hooksCmd = &cobra.Command{
	Use: "hooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := []byte(os.Getenv("GITHUB_WEBHOOK_SECRET"))
		addr, err := cmd.Flags().GetString(hooksAddrFlag)
		if err != nil {
			return err
		}
		redis, err := redisClient(cmd)
		if err != nil {
			return err
		}

		l := log.New()
		_, gh, err := gitHubClient(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:    addr,
			Handler: hooks.NewServer(l, redis, gh, secret),
		}

		l.Info("starting server", "addr", srv.Addr)
		if err := hooks.Serve(cmd.Context(), srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	hooksCmd.Flags().String(hooksAddrFlag, "127.0.0.1:8080", "listen address")
	rootCmd.AddCommand(hooksCmd)
}
