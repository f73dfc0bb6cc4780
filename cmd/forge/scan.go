package main

import (
	"fmt"
	"path/filepath"

	"github.com/containerd/containerd/namespaces"
	"github.com/forgeci/forge/build"
	"github.com/forgeci/forge/log"
	"github.com/spf13/cobra"
)

const scannerImageFlag = "scanner-image"

var scanCmd = &cobra.Command{
	Use:   "scan IMAGE",
	Short: "Scan a previously exported image tar for vulnerabilities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image := args[0]
		l := log.NewConsole()
		outputDir, err := cmd.Flags().GetString(outputDirFlag)
		if err != nil {
			return err
		}
		scannerImage, err := cmd.Flags().GetString(scannerImageFlag)
		if err != nil {
			return err
		}

		ctr, err := newContainerd()
		if err != nil {
			return err
		}
		defer ctr.Close()

		ctx := namespaces.WithNamespace(cmd.Context(), containerdNamespace)
		scanner := build.NewScanner(l, ctr, scannerImage)
		tarPath, err := filepath.Abs(filepath.Join(outputDir, fmt.Sprintf("%s.tar", image)))
		if err != nil {
			return err
		}

		report, err := scanner.Scan(ctx, tarPath)
		if err != nil {
			return err
		}
		report.Metadata.ImageID = image

		md, err := build.RenderReport(report)
		if err != nil {
			return err
		}
		fmt.Println(md)
		return nil
	},
}

func init() {
	scanCmd.Flags().String(scannerImageFlag, "", "scanner image reference")
	rootCmd.AddCommand(scanCmd)
}
