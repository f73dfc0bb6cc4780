package main

import (
	"github.com/forgeci/forge/history"
	"github.com/forgeci/forge/hooks"
	"github.com/forgeci/forge/log"
	"github.com/spf13/cobra"
)

const scheduleFlag = "schedule"

// watchCmd rebuilds the configured images on a schedule, so images pick up
// patched base layers without a push.
var watchCmd = &cobra.Command{
	Use: "watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		l := log.New()
		schedule, err := cmd.Flags().GetString(scheduleFlag)
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
		redis, err := redisClient(cmd)
		if err != nil {
			return err
		}
		store := history.NewRedisStore(redis)

		rebuilder := hooks.NewRebuilder(l, builder, store, cfg.Params())
		if err := rebuilder.Cron(schedule); err != nil {
			return err
		}
		rebuilder.Start()
		defer rebuilder.Stop()

		<-cmd.Context().Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().String(scheduleFlag, "0 4 * * *", "cron schedule for rebuilds")
	rootCmd.AddCommand(watchCmd)
}
