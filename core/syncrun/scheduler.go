package syncrun

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/wtlassist/backend/core"
)

// ticker is a suture.Service running one sync kind every interval.
type ticker struct {
	kind     string
	interval time.Duration
	rec      Recorder
	logger   core.Logger
}

func (t *ticker) Serve(ctx context.Context) error {
	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			run, err := t.rec.Run(ctx, t.kind)
			switch {
			case err == ErrAlreadyRunning:
				t.logger.Debug("sync skipped, already running", map[string]interface{}{"kind": t.kind})
			case err != nil:
				// Track logged it; keep ticking
			default:
				t.logger.Info("scheduled sync done", map[string]interface{}{"kind": t.kind, "run": run.ID})
			}
		}
	}
}

func (t *ticker) String() string { return "sync-" + t.kind }

// NewScheduler returns a supervisor running the recorder's jobs periodically.
// Kinds with a zero interval are not scheduled.
func NewScheduler(conf *core.Config, rec Recorder, logger core.Logger) *suture.Supervisor {
	sup := suture.New("sync-scheduler", suture.Spec{
		EventHook: func(ev suture.Event) {
			logger.Warn("sync scheduler: "+ev.String(), ev.Map())
		},
		Timeout: conf.Server.ShutdownTimeout,
	})

	intervals := map[string]time.Duration{
		KindUsers:   conf.Sync.UsersInterval,
		KindCourses: conf.Sync.CoursesInterval,
		KindSurveys: conf.Sync.SurveysInterval,
	}
	for _, kind := range rec.Kinds() {
		if interval := intervals[kind]; interval > 0 {
			sup.Add(&ticker{kind: kind, interval: interval, rec: rec, logger: logger})
		}
	}
	return sup
}
