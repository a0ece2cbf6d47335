package lifecycle

import (
	"time"

	"github.com/go-co-op/gocron/v2"
)

// RegisterSweeper runs Sweep every minute as a backstop behind the
// per-member timers, mirroring how lost timers are recovered.
func RegisterSweeper(scheduler gocron.Scheduler, l *Lifecycle) {
	_, _ = scheduler.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(l.Sweep),
	)
}
