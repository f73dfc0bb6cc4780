package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-redis/redis/v8"
	"github.com/google/go-github/v39/github"
)

// buildRequestQueue is the redis key of the build request queue.
const buildRequestQueue = "forge-hook-build"

// buildCheckRunName labels the check run attached to rebuilt commits.
const buildCheckRunName = "forge/build"

// BuildRequest are parameters to perform a build, sent on the build queue.
type BuildRequest struct {
	RepoOwner       string   `json:"owner"`
	RepoName        string   `json:"name"`
	Ref             string   `json:"ref"`
	SHA             string   `json:"sha"`
	Images          []string `json:"images"`
	BuildCheckRunID int64    `json:"buildCheckRunID"`
	DefaultBranch   bool     `json:"defaultBranch"`
}

// Server receives GitHub webhooks and enqueues rebuilds of the images whose
// dockerfiles the push touched.
type Server struct {
	log           logr.Logger
	redis         *redis.Client
	gh            *github.Client
	webhookSecret []byte
}

func NewServer(log logr.Logger, redis *redis.Client, gh *github.Client, webhookSecret []byte) *Server {
	return &Server{
		log:           log,
		redis:         redis,
		gh:            gh,
		webhookSecret: webhookSecret,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, s.webhookSecret)
	if err != nil {
		s.log.Info("invalid payload", "path", r.URL.Path)
		http.NotFound(w, r)
		return
	}

	switch hook := github.WebHookType(r); hook {
	case "push":
		err = s.OnPush(r, payload)
	default:
		s.log.Info("ignored event", "event", hook)
	}

	if err != nil {
		s.log.Error(err, "failed to handle event")
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
}

func (s *Server) OnPush(r *http.Request, payload []byte) error {
	evt, err := github.ParseWebHook("push", payload)
	if err != nil {
		return err
	}
	pushEvt := evt.(*github.PushEvent)

	images := AffectedImages(pushEvt)
	if len(images) == 0 {
		s.log.Info("push touched no images", "ref", pushEvt.GetRef())
		return nil
	}

	repo := pushEvt.GetRepo()
	repoOwner := repo.GetOwner().GetLogin()
	repoName := repo.GetName()
	s.log.Info("push touched images", "repo", fmt.Sprintf("%s/%s", repoOwner, repoName), "images", images)

	buildCheckRun, _, err := s.gh.Checks.CreateCheckRun(r.Context(), repoOwner, repoName, github.CreateCheckRunOptions{
		Name:    buildCheckRunName,
		Status:  github.String("queued"),
		HeadSHA: pushEvt.GetAfter(),
	})
	if err != nil {
		return err
	}

	b, err := json.Marshal(&BuildRequest{
		RepoOwner:       repoOwner,
		RepoName:        repoName,
		Ref:             pushEvt.GetRef(),
		SHA:             pushEvt.GetAfter(),
		Images:          images,
		BuildCheckRunID: buildCheckRun.GetID(),
		DefaultBranch:   pushEvt.GetRef() == fmt.Sprintf("refs/heads/%s", repo.GetDefaultBranch()),
	})
	if err != nil {
		return err
	}
	return s.redis.RPush(r.Context(), buildRequestQueue, b).Err()
}

// AffectedImages returns the names of images whose files a push modified,
// sorted and de-duplicated. An image is affected when any commit touches a
// path under docker/containers/<image>/.
func AffectedImages(evt *github.PushEvent) []string {
	seen := map[string]bool{}
	for _, c := range evt.Commits {
		for _, paths := range [][]string{c.Added, c.Modified, c.Removed} {
			for _, p := range paths {
				if img := imageForPath(p); img != "" {
					seen[img] = true
				}
			}
		}
	}

	images := make([]string, 0, len(seen))
	for img := range seen {
		images = append(images, img)
	}
	sort.Strings(images)
	return images
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func imageForPath(p string) string {
	const prefix = "docker/containers/"
	if !strings.HasPrefix(p, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(p, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		return ""
	}
	return parts[0]
}
