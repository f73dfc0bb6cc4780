package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-logr/logr"
)

// ImageBuildClient is the slice of the Docker Engine API the builder needs.
type ImageBuildClient interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// Engine builds through the Docker Engine API instead of the docker CLI.
// Build parameters are the same: parent images are pulled, the cache is
// disabled, BUILD_DATE is injected.
type Engine struct {
	log    logr.Logger
	docker ImageBuildClient
	now    func() time.Time
}

var _ Builder = (*Engine)(nil)

// NewEngine connects to the daemon described by the standard DOCKER_HOST
// environment.
func NewEngine(log logr.Logger) (*Engine, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}
	return NewEngineClient(log, docker), nil
}

// NewEngineClient wraps an existing API client.
func NewEngineClient(log logr.Logger, docker ImageBuildClient) *Engine {
	return &Engine{
		log:    log,
		docker: docker,
		now:    time.Now,
	}
}

func (e *Engine) Build(ctx context.Context, params *Params) (*Result, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, image := range params.Images {
		tag := Tag(params.Registry, image)
		buildDate := FormatBuildDate(e.now())
		e.log.Info("building image", "image", image, "tag", tag, "build_date", buildDate)

		start := e.now()
		if err := e.buildOne(ctx, params, image, tag, buildDate); err != nil {
			return res, fmt.Errorf("building %q: %w", image, err)
		}
		res.Builds = append(res.Builds, ImageBuild{
			Image:     image,
			Tag:       tag,
			BuildDate: buildDate,
			Duration:  e.now().Sub(start),
		})
	}
	return res, nil
}

func (e *Engine) buildOne(ctx context.Context, params *Params, image, tag, buildDate string) error {
	buildCtx, err := archive.TarWithOptions(params.root(), &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("tarring context: %w", err)
	}
	defer buildCtx.Close()

	buildArgs := map[string]*string{
		BuildDateArg: &buildDate,
	}
	for k, v := range params.buildArgs(image) {
		v := v
		buildArgs[k] = &v
	}

	rsp, err := e.docker.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: Dockerfile(image),
		NoCache:    true,
		PullParent: true,
		Remove:     true,
		BuildArgs:  buildArgs,
	})
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	// The stream carries build errors; surface them as the build's error.
	return jsonmessage.DisplayJSONMessagesStream(rsp.Body, os.Stderr, 0, false, nil)
}
