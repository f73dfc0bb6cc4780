package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bradleyfalzon/ghinstallation"
	"github.com/containerd/containerd"
	"github.com/forgeci/forge/build"
	"github.com/go-logr/logr"
	"github.com/go-redis/redis/v8"
	"github.com/google/go-github/v39/github"
	"github.com/spf13/cobra"
)

const (
	configFlag       = "config"
	rootFlag         = "root"
	backendFlag      = "backend"
	registryFlag     = "registry"
	outputDirFlag    = "output-dir"
	buildkitAddrFlag = "buildkit-addr"

	redisUrlFlag                = "redis-url"
	githubAppIDFlag             = "github-app-id"
	githubInstallationIDFlag    = "github-installation-id"
	githubAppPrivateKeyFileFlag = "github-private-key-file"

	containerdSocket    = "/run/containerd/containerd.sock"
	containerdNamespace = "forge"
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Builds a fleet of container images from dockerfiles in one repository",
}

func init() {
	pflags := rootCmd.PersistentFlags()

	pflags.String(configFlag, "docker/forge.yaml", "config file")
	pflags.String(outputDirFlag, "out", "directory for exported image tars")
	pflags.String(buildkitAddrFlag, build.DefaultBuildkitAddr, "buildkitd address")
	pflags.String(redisUrlFlag, "localhost:6379", "redis url")
	pflags.Int64(githubAppIDFlag, 0, "GitHub app ID")
	pflags.Int64(githubInstallationIDFlag, 0, "GitHub installation ID")
	pflags.String(githubAppPrivateKeyFileFlag, "", "GitHub app private key file")
}

func loadConfig(cmd *cobra.Command) (*build.Config, error) {
	fn, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return nil, err
	}
	return build.LoadConfigFile(fn)
}

func redisClient(cmd *cobra.Command) (*redis.Client, error) {
	redisAddr, err := cmd.Flags().GetString(redisUrlFlag)
	if err != nil {
		return nil, err
	}
	opts := &redis.Options{Addr: redisAddr}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		opts.Password = redisPassword
	}
	return redis.NewClient(opts), nil
}

// gitHubClient returns an installation-authenticated client when app
// credentials are configured, otherwise an anonymous one.
func gitHubClient(ctx context.Context, cmd *cobra.Command) (string, *github.Client, error) {
	flags := cmd.Flags()
	appID, err := flags.GetInt64(githubAppIDFlag)
	if err != nil {
		return "", nil, err
	}
	installationID, err := flags.GetInt64(githubInstallationIDFlag)
	if err != nil {
		return "", nil, err
	}
	pkeyFile, err := flags.GetString(githubAppPrivateKeyFileFlag)
	if err != nil {
		return "", nil, err
	}

	if appID == 0 || pkeyFile == "" {
		return "", github.NewClient(&http.Client{}), nil
	}

	ghTransport, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, appID, installationID, pkeyFile)
	if err != nil {
		return "", nil, err
	}
	token, err := ghTransport.Token(ctx)
	if err != nil {
		return "", nil, err
	}
	return token, github.NewClient(&http.Client{Transport: ghTransport}), nil
}

// newBuilder constructs the backend the config selects.
func newBuilder(cmd *cobra.Command, l logr.Logger, cfg *build.Config) (build.Builder, error) {
	switch cfg.Backend {
	case build.BackendDocker:
		return build.NewDocker(l, nil), nil
	case build.BackendEngine:
		return build.NewEngine(l)
	case build.BackendBuildkit:
		addr, err := cmd.Flags().GetString(buildkitAddrFlag)
		if err != nil {
			return nil, err
		}
		outputDir, err := cmd.Flags().GetString(outputDirFlag)
		if err != nil {
			return nil, err
		}
		return build.NewBuildkit(cmd.Context(), l, addr, outputDir)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func newContainerd() (*containerd.Client, error) {
	return containerd.New(containerdSocket, containerd.WithDefaultNamespace(containerdNamespace))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
