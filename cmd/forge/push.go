package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgeci/forge/build"
	"github.com/forgeci/forge/log"
	"github.com/spf13/cobra"
)

const registryUserFlag = "registry-user"

var pushCmd = &cobra.Command{
	Use:   "push IMAGE",
	Short: "Push a previously exported image tar to the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image := args[0]
		l := log.NewConsole()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Registry == "" {
			return fmt.Errorf("no registry configured")
		}
		outputDir, err := cmd.Flags().GetString(outputDirFlag)
		if err != nil {
			return err
		}
		user, err := cmd.Flags().GetString(registryUserFlag)
		if err != nil {
			return err
		}

		ctr, err := newContainerd()
		if err != nil {
			return err
		}
		defer ctr.Close()

		ctx := cmd.Context()
		pusher := build.NewPusher(ctx, l, ctr, cfg.Registry, user, os.Getenv("REGISTRY_PUSH_PASSWORD"))
		return pusher.Push(ctx, image, filepath.Join(outputDir, fmt.Sprintf("%s.tar", image)))
	},
}

func init() {
	pushCmd.Flags().String(registryUserFlag, "", "registry username")
	rootCmd.AddCommand(pushCmd)
}
