package retention

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs Sweep in-process on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
}

// NewScheduler parses spec (standard five field cron syntax or descriptors
// such as "@daily") and registers the sweep.
func NewScheduler(s *Sweeper, spec string) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	sch := &Scheduler{cron: c, sweeper: s}
	if _, err := c.AddFunc(spec, sch.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	return sch, nil
}

func (s *Scheduler) run() {
	if _, err := s.sweeper.Sweep(context.Background()); err != nil {
		s.sweeper.logger.Error("retention: scheduled sweep failed", slog.Any("err", err))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running sweep to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
