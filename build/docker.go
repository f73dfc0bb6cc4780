package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/go-logr/logr"
)

// Runner executes an external command with its working directory set to dir.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs commands as subprocesses, streaming output to the parent's
// stdout and stderr.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Docker drives `docker build` once per image. Base layers are always pulled
// and the layer cache is disabled, so every run is a full rebuild against
// fresh bases.
type Docker struct {
	log    logr.Logger
	runner Runner
	now    func() time.Time
}

var _ Builder = (*Docker)(nil)

// NewDocker returns a Docker builder. A nil runner uses ExecRunner.
func NewDocker(log logr.Logger, runner Runner) *Docker {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Docker{
		log:    log,
		runner: runner,
		now:    time.Now,
	}
}

func (d *Docker) Build(ctx context.Context, params *Params) (*Result, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, image := range params.Images {
		tag := Tag(params.Registry, image)
		buildDate := FormatBuildDate(d.now())
		d.log.Info("building image", "image", image, "tag", tag, "build_date", buildDate)

		args := []string{
			"build",
			"--pull",
			"--no-cache",
			"--build-arg", fmt.Sprintf("%s=%s", BuildDateArg, buildDate),
		}
		for _, arg := range extraArgs(params.buildArgs(image)) {
			args = append(args, "--build-arg", arg)
		}
		args = append(args,
			"-t", tag,
			"-f", Dockerfile(image),
			".",
		)

		start := d.now()
		if err := d.runner.Run(ctx, params.root(), "docker", args...); err != nil {
			return res, fmt.Errorf("building %q: %w", image, err)
		}
		res.Builds = append(res.Builds, ImageBuild{
			Image:     image,
			Tag:       tag,
			BuildDate: buildDate,
			Duration:  d.now().Sub(start),
		})
	}
	return res, nil
}

// extraArgs renders KEY=value pairs in a stable order.
func extraArgs(buildArgs map[string]string) []string {
	if len(buildArgs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(buildArgs))
	for k := range buildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("%s=%s", k, buildArgs[k]))
	}
	return args
}
