package manifest_test

import (
	"strings"
	"testing"

	"github.com/forgeci/forge/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalk(t *testing.T) {
	images, err := manifest.Walk("testdata/repo")
	require.NoError(t, err)
	require.Len(t, images, 2)

	app := images[0]
	assert.Equal(t, "app", app.Name)
	assert.Equal(t, "docker/containers/app/dockerfile", app.Dockerfile)
	require.NotNil(t, app.Manifest)
	assert.Equal(t, map[string]string{"CHANNEL": "stable"}, app.Manifest.BuildArgs)
	assert.Equal(t, []string{"golang:1.17-alpine", "alpine:3.14"}, app.Manifest.Bases)

	nginx := images[1]
	assert.Equal(t, "nginx", nginx.Name)
	assert.Nil(t, nginx.Manifest)
}

func TestWalk_MissingRoot(t *testing.T) {
	images, err := manifest.Walk("testdata/nope")
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestParseManifest(t *testing.T) {
	m, err := manifest.ParseManifest(strings.NewReader("bases: [alpine:3.14]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpine:3.14"}, m.Bases)
}

func TestBaseImages(t *testing.T) {
	bases, err := manifest.BaseImages("testdata/repo/docker/containers/app/dockerfile")
	require.NoError(t, err)
	assert.Equal(t, []string{"golang:1.17-alpine", "alpine:3.14"}, bases)
}

func TestBaseImages_PlatformFlag(t *testing.T) {
	bases, err := manifest.BaseImages("testdata/repo/docker/containers/nginx/dockerfile")
	require.NoError(t, err)
	assert.Equal(t, []string{"nginx:1.21-alpine"}, bases)
}
