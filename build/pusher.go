package build

import (
	"context"
	"fmt"
	"os"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/images/archive"
	"github.com/containerd/containerd/remotes"
	"github.com/containerd/containerd/remotes/docker"
	"github.com/containerd/containerd/remotes/docker/config"
	"github.com/go-logr/logr"
)

// Pusher imports exported docker-archive tars into containerd and pushes
// them to a registry.
type Pusher struct {
	log      logr.Logger
	ctr      *containerd.Client
	registry string
	resolver remotes.Resolver
}

// NewPusher pushes to registry, authenticating with username/secret when the
// registry host asks.
func NewPusher(ctx context.Context, log logr.Logger, ctr *containerd.Client, registry, username, secret string) *Pusher {
	hostOptions := config.HostOptions{
		Credentials: func(host string) (string, string, error) {
			if username != "" {
				return username, secret, nil
			}
			return "", "", nil
		},
	}
	options := docker.ResolverOptions{Hosts: config.ConfigureHosts(ctx, hostOptions)}
	return &Pusher{
		log:      log,
		ctr:      ctr,
		registry: registry,
		resolver: docker.NewResolver(options),
	}
}

// Push imports the tar at tarPath and pushes it as registry/<image>:latest.
func (p *Pusher) Push(ctx context.Context, image, tarPath string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("opening image tar: %w", err)
	}
	defer f.Close()

	repoName := fmt.Sprintf("%s:latest", Tag(p.registry, image))
	images, err := p.ctr.Import(ctx, f, containerd.WithImageRefTranslator(archive.AddRefPrefix(repoName)), containerd.WithAllPlatforms(true))
	if err != nil {
		return fmt.Errorf("importing image: %w", err)
	}
	img := images[0]
	imageService := p.ctr.ImageService()
	imported := img.Name
	defer func() {
		if err := imageService.Delete(ctx, imported); err != nil {
			p.log.Error(err, "failed to delete imported image")
		}
	}()

	// Apply the remote tag to the imported image:
	img.Name = repoName
	if _, err := imageService.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if err := imageService.Delete(ctx, repoName); err != nil {
			return err
		}
		if _, err := imageService.Create(ctx, img); err != nil {
			return err
		}
	}
	defer func() {
		if err := imageService.Delete(ctx, repoName); err != nil {
			p.log.Error(err, "failed to delete tagged image")
		}
	}()

	p.log.Info("pushing image", "image", repoName, "digest", img.Target.Digest.String())
	return p.ctr.Push(ctx, repoName, img.Target, containerd.WithResolver(p.resolver))
}
