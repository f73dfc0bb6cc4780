package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	buildkit "github.com/moby/buildkit/client"
	"github.com/moby/buildkit/frontend/dockerfile/builder"
	"github.com/moby/buildkit/util/progress/progressui"
	"golang.org/x/sync/errgroup"
)

// DefaultBuildkitAddr is buildkitd's standard unix socket.
const DefaultBuildkitAddr = "unix:///run/buildkit/buildkitd.sock"

// Buildkit builds images through buildkitd and exports each image as a
// docker-archive tar under outputDir. The tars feed the pusher and the
// scanner.
type Buildkit struct {
	log       logr.Logger
	bk        *buildkit.Client
	outputDir string
	now       func() time.Time
}

var _ Builder = (*Buildkit)(nil)

// NewBuildkit connects to buildkitd at addr.
func NewBuildkit(ctx context.Context, log logr.Logger, addr, outputDir string) (*Buildkit, error) {
	if addr == "" {
		addr = DefaultBuildkitAddr
	}
	bk, err := buildkit.New(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to buildkit: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return nil, err
	}
	return &Buildkit{
		log:       log,
		bk:        bk,
		outputDir: outputDir,
		now:       time.Now,
	}, nil
}

func (b *Buildkit) Build(ctx context.Context, params *Params) (*Result, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, image := range params.Images {
		tag := Tag(params.Registry, image)
		buildDate := FormatBuildDate(b.now())
		b.log.Info("building image", "image", image, "tag", tag, "build_date", buildDate)

		start := b.now()
		tarPath, err := b.buildOne(ctx, params, image, tag, buildDate)
		if err != nil {
			return res, fmt.Errorf("building %q: %w", image, err)
		}
		res.Builds = append(res.Builds, ImageBuild{
			Image:     image,
			Tag:       tag,
			BuildDate: buildDate,
			Duration:  b.now().Sub(start),
			TarPath:   tarPath,
		})
	}
	return res, nil
}

func (b *Buildkit) buildOne(ctx context.Context, params *Params, image, tag, buildDate string) (string, error) {
	tarPath := b.TarPath(image)
	out, err := os.Create(tarPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	frontendAttrs := map[string]string{
		"filename":                  "dockerfile",
		"no-cache":                  "",
		"image-resolve-mode":        "pull",
		"build-arg:" + BuildDateArg: buildDate,
	}
	for k, v := range params.buildArgs(image) {
		frontendAttrs["build-arg:"+k] = v
	}

	solveOpt := buildkit.SolveOpt{
		Frontend:      "dockerfile.v0",
		FrontendAttrs: frontendAttrs,
		LocalDirs: map[string]string{
			builder.DefaultLocalNameContext:    params.root(),
			builder.DefaultLocalNameDockerfile: filepath.Join(params.root(), "docker", "containers", image),
		},
		Exports: []buildkit.ExportEntry{
			{
				Type: buildkit.ExporterDocker,
				Attrs: map[string]string{
					"name": tag,
				},
				Output: func(map[string]string) (io.WriteCloser, error) {
					return out, nil
				},
			},
		},
	}

	ch := make(chan *buildkit.SolveStatus)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		_, err := b.bk.Solve(ctx, nil, solveOpt, ch)
		return err
	})
	eg.Go(func() error {
		return progressui.DisplaySolveStatus(context.Background(), "", nil, os.Stdout, ch)
	})
	if err := eg.Wait(); err != nil {
		_ = os.Remove(tarPath)
		return "", err
	}
	return tarPath, nil
}

// TarPath returns where an image's exported docker-archive tar lands.
func (b *Buildkit) TarPath(image string) string {
	return filepath.Join(b.outputDir, fmt.Sprintf("%s.tar", image))
}
