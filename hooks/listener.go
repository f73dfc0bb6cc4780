package hooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgeci/forge/build"
	"github.com/forgeci/forge/history"
	"github.com/forgeci/forge/manifest"
	"github.com/go-logr/logr"
	"github.com/go-redis/redis/v8"
	"github.com/google/go-github/v39/github"
)

// Cloner produces a checkout of a commit to build from.
type Cloner interface {
	Clone(ctx context.Context, owner, repo, commit string) (string, error)
	Cleanup(owner, repo, commit string) error
}

// Listener consumes build requests from the redis queue and performs builds
// from a checkout of the pushed commit.
type Listener struct {
	log     logr.Logger
	redis   *redis.Client
	gh      *github.Client
	cloner  Cloner
	builder build.Builder
	store   history.Store
}

func NewListener(log logr.Logger, redisC *redis.Client, gh *github.Client, cloner Cloner, builder build.Builder, store history.Store) *Listener {
	return &Listener{
		log:     log,
		redis:   redisC,
		gh:      gh,
		cloner:  cloner,
		builder: builder,
		store:   store,
	}
}

// Listen blocks, processing requests until the context is cancelled.
func (l *Listener) Listen(ctx context.Context) {
	for {
		data, err := l.redis.BLPop(ctx, 0, buildRequestQueue).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Error(err, "failed to get build request")
			continue
		}

		var req BuildRequest
		if err := json.Unmarshal([]byte(data[1]), &req); err != nil {
			l.log.Error(err, "failed to unmarshal build request")
			continue
		}

		if err := l.BuildRequested(ctx, &req); err != nil {
			l.log.Error(err, "failed to process build request")
		}
	}
}

// BuildRequested performs one queued build and reports the result as a
// check run.
func (l *Listener) BuildRequested(ctx context.Context, req *BuildRequest) error {
	l.log.Info("build requested", "repo", fmt.Sprintf("%s/%s", req.RepoOwner, req.RepoName), "sha", req.SHA, "images", req.Images)

	if err := l.checkRunInProgress(ctx, req); err != nil {
		return err
	}

	res, buildErr := l.runBuild(ctx, req)
	if buildErr != nil {
		if err := l.checkRunComplete(ctx, req, "failure", fmt.Sprintf("build failed: %v", buildErr)); err != nil {
			// Log, but the build error is more interesting to return
			l.log.Error(err, "failed to update check run")
		}
		return buildErr
	}

	l.record(ctx, res)
	return l.checkRunComplete(ctx, req, "success", fmt.Sprintf("built %d images", len(res.Builds)))
}

func (l *Listener) runBuild(ctx context.Context, req *BuildRequest) (*build.Result, error) {
	dir, err := l.cloner.Clone(ctx, req.RepoOwner, req.RepoName, req.SHA)
	if err != nil {
		return nil, fmt.Errorf("cloning repo: %w", err)
	}
	defer func() {
		if err := l.cloner.Cleanup(req.RepoOwner, req.RepoName, req.SHA); err != nil {
			l.log.Error(err, "failed to clean checkout")
		}
	}()

	params := &build.Params{
		Images: req.Images,
		Root:   dir,
	}
	images, err := manifest.Walk(dir)
	if err != nil {
		return nil, fmt.Errorf("walking manifests: %w", err)
	}
	for _, img := range images {
		if img.Manifest == nil || len(img.Manifest.BuildArgs) == 0 {
			continue
		}
		if params.ImageArgs == nil {
			params.ImageArgs = map[string]map[string]string{}
		}
		params.ImageArgs[img.Name] = img.Manifest.BuildArgs
	}

	res, err := l.builder.Build(ctx, params)
	if err != nil {
		l.record(ctx, res)
		return res, err
	}
	return res, nil
}

// record stores completed builds; failures to record are logged, not fatal.
func (l *Listener) record(ctx context.Context, res *build.Result) {
	if res == nil {
		return
	}
	for _, b := range res.Builds {
		rec := &history.Record{
			Image:     b.Image,
			Tag:       b.Tag,
			BuildDate: b.BuildDate,
			Duration:  b.Duration,
			Succeeded: true,
		}
		if b.TarPath != "" {
			if d, err := history.FileDigest(b.TarPath); err != nil {
				l.log.Error(err, "failed to digest image tar", "image", b.Image)
			} else {
				rec.Digest = d
			}
		}
		if err := l.store.Put(ctx, rec); err != nil {
			l.log.Error(err, "failed to store build record", "image", b.Image)
		}
	}
}

func (l *Listener) checkRunInProgress(ctx context.Context, req *BuildRequest) error {
	_, _, err := l.gh.Checks.UpdateCheckRun(ctx, req.RepoOwner, req.RepoName, req.BuildCheckRunID, github.UpdateCheckRunOptions{
		Name:   buildCheckRunName,
		Status: github.String("in_progress"),
	})
	return err
}

func (l *Listener) checkRunComplete(ctx context.Context, req *BuildRequest, conclusion, summary string) error {
	opts := github.UpdateCheckRunOptions{
		Name:       buildCheckRunName,
		Status:     github.String("completed"),
		Conclusion: github.String(conclusion),
		Output: &github.CheckRunOutput{
			Title:   github.String("Image Build"),
			Summary: github.String(summary),
		},
	}
	_, _, err := l.gh.Checks.UpdateCheckRun(ctx, req.RepoOwner, req.RepoName, req.BuildCheckRunID, opts)
	return err
}
