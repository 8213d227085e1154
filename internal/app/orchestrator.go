package app

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/autopost/internal/service"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const taskTimeout = 10 * time.Minute

type Orchestrator struct {
	spec         string
	cron         *cron.Cron
	reconcileSvc *service.ReconcileService
}

type orchestratorTask struct {
	name string
	run  func(context.Context) error
}

// NewOrchestrator schedules background tasks on a cron spec such as
// "@every 1m". A run that is still going when the next one is due is
// skipped.
func NewOrchestrator(spec string, reconcileSvc *service.ReconcileService) *Orchestrator {
	return &Orchestrator{
		spec:         spec,
		cron:         cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reconcileSvc: reconcileSvc,
	}
}

func (o *Orchestrator) Start() error {
	if _, err := o.cron.AddFunc(o.spec, o.runTasks); err != nil {
		return fmt.Errorf("parsing schedule %q: %w", o.spec, err)
	}
	o.cron.Start()
	log.WithFields(log.Fields{
		"component": "orchestrator",
		"schedule":  o.spec,
	}).Info("started background task scheduler")
	return nil
}

// Stop waits for a running task to finish or ctx to expire.
func (o *Orchestrator) Stop(ctx context.Context) {
	done := o.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	log.WithField("component", "orchestrator").Info("stopping background task scheduler")
}

func (o *Orchestrator) runTasks() {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	tasks := []orchestratorTask{
		{name: "requeue", run: o.retryPending},
	}

	for _, task := range tasks {
		if err := task.run(ctx); err != nil {
			log.WithFields(log.Fields{
				"task":  task.name,
				"error": err,
			}).Error("scheduled task failed")
		}
	}
}

func (o *Orchestrator) retryPending(ctx context.Context) error {
	return o.reconcileSvc.RetryPending(ctx)
}
