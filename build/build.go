package build

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// BuildDateArg is the build argument carrying the UTC timestamp of the build.
const BuildDateArg = "BUILD_DATE"

// buildDateFormat is ISO-8601 at second precision, always UTC.
const buildDateFormat = "2006-01-02T15:04:05Z"

// Params select what to build. Images are built strictly in order; the first
// failure aborts the run.
type Params struct {
	// Images are the names of the images to build.
	Images []string
	// Root is the build context, the root of the repository that holds the
	// dockerfiles.
	Root string
	// Registry optionally prefixes image tags, e.g. "registry.example.com/library".
	Registry string
	// BuildArgs are merged under the generated BUILD_DATE argument.
	BuildArgs map[string]string
	// ImageArgs are per-image build arguments, merged over BuildArgs for
	// the image they name. They come from the image's build.yaml manifest.
	ImageArgs map[string]map[string]string
}

// ImageBuild records one completed image build.
type ImageBuild struct {
	Image     string
	Tag       string
	BuildDate string
	Duration  time.Duration
	// TarPath is set by backends that export a docker-archive tar.
	TarPath string
}

// Result collects the builds completed before the run finished or aborted.
type Result struct {
	Builds []ImageBuild
}

// Builder builds every image in Params, one at a time.
type Builder interface {
	Build(ctx context.Context, params *Params) (*Result, error)
}

// Dockerfile returns the path of an image's dockerfile, relative to the
// build context root.
func Dockerfile(image string) string {
	return filepath.Join("docker", "containers", image, "dockerfile")
}

// Tag returns the tag for an image, prefixed by the registry when set.
func Tag(registry, image string) string {
	if registry == "" {
		return image
	}
	return path.Join(registry, image)
}

// FormatBuildDate renders t for the BUILD_DATE argument.
func FormatBuildDate(t time.Time) string {
	return t.UTC().Format(buildDateFormat)
}

func (p *Params) validate() error {
	if len(p.Images) == 0 {
		return fmt.Errorf("no images to build")
	}
	for _, img := range p.Images {
		if strings.TrimSpace(img) == "" {
			return fmt.Errorf("empty image name")
		}
		if strings.ContainsAny(img, "/ \t") {
			return fmt.Errorf("invalid image name %q", img)
		}
	}
	return nil
}

// buildArgs merges the image's per-image arguments over the shared ones.
func (p *Params) buildArgs(image string) map[string]string {
	if len(p.ImageArgs[image]) == 0 {
		return p.BuildArgs
	}
	merged := make(map[string]string, len(p.BuildArgs)+len(p.ImageArgs[image]))
	for k, v := range p.BuildArgs {
		merged[k] = v
	}
	for k, v := range p.ImageArgs[image] {
		merged[k] = v
	}
	return merged
}

func (p *Params) root() string {
	if p.Root == "" {
		return "."
	}
	return p.Root
}
