package main

import (
	"os"
	"path/filepath"

	"github.com/forgeci/forge/build"
	"github.com/forgeci/forge/history"
	"github.com/forgeci/forge/hooks"
	"github.com/forgeci/forge/log"
	"github.com/spf13/cobra"
)

// listenerCmd consumes queued build requests and performs the builds.
var listenerCmd = &cobra.Command{
	Use: "listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		l := log.New()
		ctx := cmd.Context()

		redis, err := redisClient(cmd)
		if err != nil {
			return err
		}
		token, gh, err := gitHubClient(ctx, cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		builder, err := newBuilder(cmd, l, cfg)
		if err != nil {
			return err
		}

		cloneDir := filepath.Join(os.TempDir(), "forge-src")
		cloner := build.NewGitCloner(l, token, cloneDir)
		store, err := history.NewLRUStore(64, history.NewRedisStore(redis))
		if err != nil {
			return err
		}

		hooks.NewListener(l, redis, gh, cloner, builder, store).Listen(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listenerCmd)
}
