package main

import (
	"github.com/forgeci/forge/log"
	"github.com/forgeci/forge/manifest"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build [images...]",
	Short: "Build the configured images, in order, stopping at the first failure",
	RunE: func(cmd *cobra.Command, args []string) error {
		l := log.NewConsole()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			cfg.Images = args
		}
		if root, err := cmd.Flags().GetString(rootFlag); err == nil && root != "" {
			cfg.Root = root
		}
		if backend, err := cmd.Flags().GetString(backendFlag); err == nil && backend != "" {
			cfg.Backend = backend
		}
		if registry, err := cmd.Flags().GetString(registryFlag); err == nil && registry != "" {
			cfg.Registry = registry
		}

		builder, err := newBuilder(cmd, l, cfg)
		if err != nil {
			return err
		}

		params := cfg.Params()
		params.ImageArgs, err = manifestArgs(params.Root)
		if err != nil {
			return err
		}

		res, err := builder.Build(cmd.Context(), params)
		if err != nil {
			return err
		}
		for _, b := range res.Builds {
			l.Info("built image", "image", b.Image, "tag", b.Tag, "duration", b.Duration.String())
		}
		return nil
	},
}

// manifestArgs collects per-image build arguments from the build.yaml
// manifests under root.
func manifestArgs(root string) (map[string]map[string]string, error) {
	images, err := manifest.Walk(root)
	if err != nil {
		return nil, err
	}
	var args map[string]map[string]string
	for _, img := range images {
		if img.Manifest == nil || len(img.Manifest.BuildArgs) == 0 {
			continue
		}
		if args == nil {
			args = map[string]map[string]string{}
		}
		args[img.Name] = img.Manifest.BuildArgs
	}
	return args, nil
}

func init() {
	flags := buildCmd.Flags()
	flags.String(rootFlag, "", "build context root (overrides config)")
	flags.String(backendFlag, "", "build backend: docker, engine, or buildkit")
	flags.String(registryFlag, "", "registry prefix for image tags")
	rootCmd.AddCommand(buildCmd)
}
