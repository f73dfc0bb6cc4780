package hooks_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/forgeci/forge/build"
	"github.com/forgeci/forge/history"
	"github.com/forgeci/forge/hooks"
	"github.com/forgeci/forge/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuilderRebuild(t *testing.T) {
	builder := &fakeBuilder{}
	store, err := history.NewFileStore(log.New(), t.TempDir())
	require.NoError(t, err)

	r := hooks.NewRebuilder(log.New(), builder, store, &build.Params{
		Images: []string{"app", "nginx"},
		Root:   "/src/repo",
	})
	require.NoError(t, r.Rebuild(context.Background()))

	require.Len(t, builder.params, 1)
	assert.Equal(t, []string{"app", "nginx"}, builder.params[0].Images)

	rec, err := store.Latest(context.Background(), "nginx")
	require.NoError(t, err)
	assert.True(t, rec.Succeeded)
}

func TestRebuilderRebuild_Failure(t *testing.T) {
	builder := &fakeBuilder{err: fmt.Errorf("exit status 1")}
	store, err := history.NewFileStore(log.New(), t.TempDir())
	require.NoError(t, err)

	r := hooks.NewRebuilder(log.New(), builder, store, &build.Params{Images: []string{"app"}})
	assert.Error(t, r.Rebuild(context.Background()))
}

func TestRebuilderCron(t *testing.T) {
	r := hooks.NewRebuilder(log.New(), &fakeBuilder{}, nil, &build.Params{Images: []string{"app"}})
	require.NoError(t, r.Cron("0 4 * * *"))
	assert.Error(t, r.Cron("not a schedule"))

	r.Start()
	r.Stop()
}
