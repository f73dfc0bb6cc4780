package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Image is a buildable image discovered under docker/containers/.
type Image struct {
	// Name is the directory name, which is also the image tag.
	Name string
	// Dockerfile is the path of the dockerfile, relative to root.
	Dockerfile string
	// Manifest holds optional per-image build settings.
	Manifest *Manifest
}

// Manifest is the optional build.yaml next to an image's dockerfile.
type Manifest struct {
	// BuildArgs are passed to the build in addition to BUILD_DATE.
	BuildArgs map[string]string `yaml:"build_args"`
	// Bases pin the expected base images; `forge list --bases` compares them
	// against the dockerfile's FROM lines.
	Bases []string `yaml:"bases"`
}

// Walk discovers buildable images below root, sorted by name. An image is a
// directory under docker/containers/ that contains a dockerfile.
func Walk(root string) ([]Image, error) {
	containers := filepath.Join(root, "docker", "containers")
	entries, err := os.ReadDir(containers)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var images []Image
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		df := filepath.Join(containers, e.Name(), "dockerfile")
		if _, err := os.Stat(df); err != nil {
			continue
		}

		img := Image{
			Name:       e.Name(),
			Dockerfile: filepath.Join("docker", "containers", e.Name(), "dockerfile"),
		}
		m, err := manifestFile(filepath.Join(containers, e.Name(), "build.yaml"))
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", e.Name(), err)
		}
		img.Manifest = m
		images = append(images, img)
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, nil
}

func manifestFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseManifest(f)
}

// ParseManifest decodes a build.yaml.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// BaseImages extracts the FROM references of a dockerfile, in order. Stage
// aliases ("AS builder") are stripped, and references to earlier stages are
// skipped.
func BaseImages(dockerfile string) ([]string, error) {
	f, err := os.Open(dockerfile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bases []string
	stages := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToUpper(line), "FROM ") {
			continue
		}
		// drop flags like --platform before the reference
		var fields []string
		for _, f := range strings.Fields(line)[1:] {
			if strings.HasPrefix(f, "--") {
				continue
			}
			fields = append(fields, f)
		}
		if len(fields) == 0 {
			continue
		}
		ref := fields[0]
		if len(fields) >= 3 && strings.EqualFold(fields[1], "AS") {
			stages[strings.ToLower(fields[2])] = true
		}
		if stages[strings.ToLower(ref)] {
			continue
		}
		bases = append(bases, ref)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return bases, nil
}
