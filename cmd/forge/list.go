package main

import (
	"fmt"
	"path/filepath"

	"github.com/forgeci/forge/manifest"
	"github.com/spf13/cobra"
)

const basesFlag = "bases"

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List buildable images discovered under docker/containers/",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		showBases, err := cmd.Flags().GetBool(basesFlag)
		if err != nil {
			return err
		}

		images, err := manifest.Walk(cfg.Root)
		if err != nil {
			return err
		}
		for _, img := range images {
			fmt.Println(img.Name)
			if !showBases {
				continue
			}
			bases, err := manifest.BaseImages(filepath.Join(cfg.Root, img.Dockerfile))
			if err != nil {
				return err
			}
			for _, base := range bases {
				fmt.Printf("  %s\n", base)
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Bool(basesFlag, false, "show base images from each dockerfile")
	rootCmd.AddCommand(listCmd)
}
