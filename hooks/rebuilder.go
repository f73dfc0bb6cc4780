package hooks

import (
	"context"

	"github.com/forgeci/forge/build"
	"github.com/forgeci/forge/history"
	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
)

// Rebuilder periodically rebuilds the configured images. Builds always pull
// base layers and skip the cache, so a scheduled run picks up patched bases.
type Rebuilder struct {
	log     logr.Logger
	builder build.Builder
	store   history.Store
	params  *build.Params
	cron    *cron.Cron
}

func NewRebuilder(log logr.Logger, builder build.Builder, store history.Store, params *build.Params) *Rebuilder {
	return &Rebuilder{
		log:     log,
		builder: builder,
		store:   store,
		params:  params,
		cron:    cron.New(),
	}
}

// Cron schedules rebuilds; schedule is a standard cron expression.
func (r *Rebuilder) Cron(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		if err := r.Rebuild(context.Background()); err != nil {
			r.log.Error(err, "scheduled rebuild failed")
		}
	})
	return err
}

func (r *Rebuilder) Start() {
	r.cron.Start()
	for _, e := range r.cron.Entries() {
		r.log.Info("rebuild scheduled", "job", e.ID, "next", e.Next)
	}
}

func (r *Rebuilder) Stop() {
	r.cron.Stop()
}

// Rebuild runs one full build of the configured images and records the
// results.
func (r *Rebuilder) Rebuild(ctx context.Context) error {
	r.log.Info("rebuilding images", "images", r.params.Images)
	res, err := r.builder.Build(ctx, r.params)
	if res != nil {
		for _, b := range res.Builds {
			rec := &history.Record{
				Image:     b.Image,
				Tag:       b.Tag,
				BuildDate: b.BuildDate,
				Duration:  b.Duration,
				Succeeded: true,
			}
			if putErr := r.store.Put(ctx, rec); putErr != nil {
				r.log.Error(putErr, "failed to store build record", "image", b.Image)
			}
		}
	}
	if err != nil {
		return err
	}
	r.log.Info("rebuild complete", "images", len(res.Builds))
	return nil
}
