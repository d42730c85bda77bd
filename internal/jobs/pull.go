package jobs

import (
	"context"
	"time"

	"github.com/emrgen/pagenote/internal/service"
	"github.com/sirupsen/logrus"
)

// PullJob periodically pulls the remote document and merges it, so a device
// that missed a broadcast still converges.
type PullJob struct {
	sync     *service.SyncService
	schedule string
	timeout  time.Duration
}

func NewPullJob(sync *service.SyncService, schedule string) *PullJob {
	if schedule == "" {
		schedule = "@every 5m"
	}
	return &PullJob{
		sync:     sync,
		schedule: schedule,
		timeout:  2 * time.Minute,
	}
}

func (j *PullJob) Schedule() string {
	return j.schedule
}

func (j *PullJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.sync.PullFromRemote(ctx); err != nil {
		logrus.Errorf("periodic pull failed: %v", err)
	}
}
