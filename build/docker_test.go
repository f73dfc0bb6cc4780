package build_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/forgeci/forge/build"
	"github.com/forgeci/forge/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	invocations []invocation
	failOn      string
}

type invocation struct {
	dir  string
	name string
	args []string
}

func (r *recordingRunner) Run(_ context.Context, dir, name string, args ...string) error {
	r.invocations = append(r.invocations, invocation{dir: dir, name: name, args: args})
	for _, a := range args {
		if a == r.failOn {
			return fmt.Errorf("exit status 1")
		}
	}
	return nil
}

func TestDockerBuild_SingleImage(t *testing.T) {
	runner := &recordingRunner{}
	d := build.NewDocker(log.New(), runner)
	d.SetNow(func() time.Time {
		return time.Date(2021, 10, 5, 12, 30, 45, 0, time.UTC)
	})

	res, err := d.Build(context.Background(), &build.Params{
		Images: []string{"app"},
		Root:   "/src/repo",
	})
	require.NoError(t, err)

	require.Len(t, runner.invocations, 1)
	inv := runner.invocations[0]
	assert.Equal(t, "docker", inv.name)
	assert.Equal(t, "/src/repo", inv.dir)
	assert.Equal(t, []string{
		"build",
		"--pull",
		"--no-cache",
		"--build-arg", "BUILD_DATE=2021-10-05T12:30:45Z",
		"-t", "app",
		"-f", "docker/containers/app/dockerfile",
		".",
	}, inv.args)

	require.Len(t, res.Builds, 1)
	assert.Equal(t, "app", res.Builds[0].Image)
	assert.Equal(t, "app", res.Builds[0].Tag)
	assert.Equal(t, "2021-10-05T12:30:45Z", res.Builds[0].BuildDate)
}

func TestDockerBuild_BuildDateIsUTC(t *testing.T) {
	runner := &recordingRunner{}
	d := build.NewDocker(log.New(), runner)
	loc := time.FixedZone("UTC+2", 2*60*60)
	d.SetNow(func() time.Time {
		return time.Date(2021, 10, 5, 14, 30, 45, 0, loc)
	})

	_, err := d.Build(context.Background(), &build.Params{Images: []string{"app"}})
	require.NoError(t, err)

	require.Len(t, runner.invocations, 1)
	assert.Contains(t, runner.invocations[0].args, "BUILD_DATE=2021-10-05T12:30:45Z")
}

func TestDockerBuild_BuildDateFormat(t *testing.T) {
	runner := &recordingRunner{}
	d := build.NewDocker(log.New(), runner)

	res, err := d.Build(context.Background(), &build.Params{Images: []string{"app"}})
	require.NoError(t, err)
	require.Len(t, res.Builds, 1)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`), res.Builds[0].BuildDate)
}

func TestDockerBuild_Sequential(t *testing.T) {
	runner := &recordingRunner{}
	d := build.NewDocker(log.New(), runner)

	res, err := d.Build(context.Background(), &build.Params{
		Images:   []string{"app", "nginx", "nats"},
		Registry: "registry.example.com/library",
	})
	require.NoError(t, err)

	require.Len(t, runner.invocations, 3)
	assert.Contains(t, runner.invocations[0].args, "registry.example.com/library/app")
	assert.Contains(t, runner.invocations[1].args, "registry.example.com/library/nginx")
	assert.Contains(t, runner.invocations[2].args, "registry.example.com/library/nats")
	assert.Len(t, res.Builds, 3)
}

func TestDockerBuild_FailureAborts(t *testing.T) {
	runner := &recordingRunner{failOn: "nginx"}
	d := build.NewDocker(log.New(), runner)

	res, err := d.Build(context.Background(), &build.Params{
		Images: []string{"app", "nginx", "nats"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nginx")

	// app built, nginx failed, nats never attempted
	assert.Len(t, runner.invocations, 2)
	assert.Len(t, res.Builds, 1)
	assert.Equal(t, "app", res.Builds[0].Image)
}

func TestDockerBuild_ExtraBuildArgs(t *testing.T) {
	runner := &recordingRunner{}
	d := build.NewDocker(log.New(), runner)

	_, err := d.Build(context.Background(), &build.Params{
		Images:    []string{"app"},
		BuildArgs: map[string]string{"VERSION": "1.2.3", "CHANNEL": "stable"},
	})
	require.NoError(t, err)

	args := runner.invocations[0].args
	assert.Contains(t, args, "CHANNEL=stable")
	assert.Contains(t, args, "VERSION=1.2.3")
}

func TestDockerBuild_ImageArgs(t *testing.T) {
	runner := &recordingRunner{}
	d := build.NewDocker(log.New(), runner)

	_, err := d.Build(context.Background(), &build.Params{
		Images:    []string{"app", "nginx"},
		BuildArgs: map[string]string{"CHANNEL": "stable"},
		ImageArgs: map[string]map[string]string{
			"app": {"CHANNEL": "beta", "FEATURES": "all"},
		},
	})
	require.NoError(t, err)
	require.Len(t, runner.invocations, 2)

	// app gets its manifest's arguments, overriding the shared ones
	appArgs := runner.invocations[0].args
	assert.Contains(t, appArgs, "CHANNEL=beta")
	assert.Contains(t, appArgs, "FEATURES=all")
	assert.NotContains(t, appArgs, "CHANNEL=stable")

	// nginx only gets the shared arguments
	nginxArgs := runner.invocations[1].args
	assert.Contains(t, nginxArgs, "CHANNEL=stable")
	assert.NotContains(t, nginxArgs, "FEATURES=all")
}

func TestDockerBuild_InvalidParams(t *testing.T) {
	d := build.NewDocker(log.New(), &recordingRunner{})

	_, err := d.Build(context.Background(), &build.Params{})
	assert.Error(t, err)

	_, err = d.Build(context.Background(), &build.Params{Images: []string{"  "}})
	assert.Error(t, err)

	_, err = d.Build(context.Background(), &build.Params{Images: []string{"../escape"}})
	assert.Error(t, err)
}
