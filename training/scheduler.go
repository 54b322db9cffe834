package training

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers Job runs on a cron expression.
type Scheduler struct {
	cron   *cron.Cron
	job    *Job
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses expr in standard five-field form (or descriptors such
// as "@weekly").
func NewScheduler(expr string, job *Job, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(),
		job:    job,
		logger: logger.Named("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := s.cron.AddFunc(expr, s.trigger); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) trigger() {
	s.logger.Info("scheduled retraining started")
	if _, err := s.job.Run(s.ctx); errors.Is(err, ErrAlreadyRunning) {
		s.logger.Info("skipping scheduled retraining, a run is in progress")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels an in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
