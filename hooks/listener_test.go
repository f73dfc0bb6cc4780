package hooks_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/forgeci/forge/build"
	"github.com/forgeci/forge/history"
	"github.com/forgeci/forge/hooks"
	"github.com/forgeci/forge/log"
	"github.com/google/go-github/v39/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuilder struct {
	params []*build.Params
	err    error
}

func (f *fakeBuilder) Build(_ context.Context, params *build.Params) (*build.Result, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return &build.Result{}, f.err
	}
	res := &build.Result{}
	for _, img := range params.Images {
		res.Builds = append(res.Builds, build.ImageBuild{
			Image:     img,
			Tag:       img,
			BuildDate: "2021-10-05T12:30:45Z",
		})
	}
	return res, nil
}

type fakeCloner struct {
	dir     string
	cleaned bool
}

func (f *fakeCloner) Clone(_ context.Context, owner, repo, commit string) (string, error) {
	return f.dir, nil
}

func (f *fakeCloner) Cleanup(owner, repo, commit string) error {
	f.cleaned = true
	return nil
}

// checkRunServer fakes the GitHub checks API, recording updated statuses.
func checkRunServer(t *testing.T) (*github.Client, *[]string) {
	t.Helper()
	var statuses []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status     string `json:"status"`
			Conclusion string `json:"conclusion"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		status := body.Status
		if body.Conclusion != "" {
			status = fmt.Sprintf("%s:%s", body.Status, body.Conclusion)
		}
		statuses = append(statuses, status)
		fmt.Fprint(w, `{"id": 42}`)
	}))
	t.Cleanup(srv.Close)

	gh := github.NewClient(nil)
	base, _ := url.Parse(srv.URL + "/")
	gh.BaseURL = base
	return gh, &statuses
}

func TestListenerBuildRequested(t *testing.T) {
	gh, statuses := checkRunServer(t)
	builder := &fakeBuilder{}
	cloner := &fakeCloner{dir: t.TempDir()}
	store, err := history.NewFileStore(log.New(), t.TempDir())
	require.NoError(t, err)

	l := hooks.NewListener(log.New(), nil, gh, cloner, builder, store)
	err = l.BuildRequested(context.Background(), &hooks.BuildRequest{
		RepoOwner:       "octocat",
		RepoName:        "containers",
		SHA:             "deadbeef",
		Images:          []string{"app", "nginx"},
		BuildCheckRunID: 42,
	})
	require.NoError(t, err)

	require.Len(t, builder.params, 1)
	assert.Equal(t, []string{"app", "nginx"}, builder.params[0].Images)
	assert.Equal(t, cloner.dir, builder.params[0].Root)
	assert.True(t, cloner.cleaned)

	assert.Equal(t, []string{"in_progress", "completed:success"}, *statuses)

	rec, err := store.Latest(context.Background(), "app")
	require.NoError(t, err)
	assert.Equal(t, "2021-10-05T12:30:45Z", rec.BuildDate)
}

func TestListenerBuildRequested_Failure(t *testing.T) {
	gh, statuses := checkRunServer(t)
	builder := &fakeBuilder{err: fmt.Errorf("exit status 1")}
	cloner := &fakeCloner{dir: t.TempDir()}
	store, err := history.NewFileStore(log.New(), t.TempDir())
	require.NoError(t, err)

	l := hooks.NewListener(log.New(), nil, gh, cloner, builder, store)
	err = l.BuildRequested(context.Background(), &hooks.BuildRequest{
		RepoOwner:       "octocat",
		RepoName:        "containers",
		SHA:             "deadbeef",
		Images:          []string{"app"},
		BuildCheckRunID: 42,
	})
	require.Error(t, err)

	assert.Equal(t, []string{"in_progress", "completed:failure"}, *statuses)
}
