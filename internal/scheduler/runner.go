package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/panjf2000/ants/v2"

	"stakegate/internal/domain"
	"stakegate/internal/executor"
	"stakegate/internal/logging"
)

// Runner drives jobs from the scheduler through an executor on a bounded
// worker pool. No scheduler or ledger lock is held while a job executes.
type Runner struct {
	sched   *Scheduler
	exec    executor.Executor
	timeout time.Duration
	log     log15.Logger

	pool  *ants.PoolWithFunc
	slots chan struct{}
	wg    sync.WaitGroup
}

type runTask struct {
	ctx context.Context
	job *domain.Job
}

// NewRunner creates a runner with the given number of workers. A zero
// timeout waits for the executor indefinitely.
func NewRunner(s *Scheduler, exec executor.Executor, workers int, timeout time.Duration, logger log15.Logger) (*Runner, error) {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewLog("runner")
	}
	r := &Runner{
		sched:   s,
		exec:    exec,
		timeout: timeout,
		log:     logger,
		slots:   make(chan struct{}, workers),
	}
	pool, err := ants.NewPoolWithFunc(workers, func(i interface{}) {
		t := i.(*runTask)
		defer func() {
			<-r.slots
			r.wg.Done()
		}()
		r.execute(t)
	}, ants.WithPanicHandler(func(p interface{}) {
		logger.Error("runner worker panic", "panic", p)
	}))
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return r, nil
}

// Run dequeues jobs until ctx is done or the scheduler is closed and
// drained, then waits for in-flight jobs.
func (r *Runner) Run(ctx context.Context) error {
	defer r.pool.Release()
	for {
		select {
		case r.slots <- struct{}{}:
		case <-ctx.Done():
			r.wg.Wait()
			return nil
		}

		job, err := r.sched.Next(ctx)
		if err != nil {
			<-r.slots
			r.wg.Wait()
			if errors.Is(err, domain.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		r.wg.Add(1)
		if err := r.pool.Invoke(&runTask{ctx: ctx, job: job}); err != nil {
			<-r.slots
			r.wg.Done()
			r.log.Error("worker pool rejected job", "job", job.ID, "err", err)
			r.settle(job, executor.Failure(err))
		}
	}
}

func (r *Runner) execute(t *runTask) {
	ctx := t.ctx
	cancel := func() {}
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	var res executor.Result
	select {
	case got, ok := <-r.exec.Execute(ctx, executor.SpecFor(t.job)):
		if ok {
			res = got
		} else {
			res = executor.Failure(errors.New("executor closed without a result"))
		}
	case <-ctx.Done():
		res = executor.Failure(ctx.Err())
	}

	if !res.Success && t.ctx.Err() != nil {
		// Shutdown, not a job failure. The job stays Running and is queued
		// again by Restore on the next start.
		r.log.Warn("job interrupted by shutdown", "job", t.job.ID)
		return
	}
	r.settle(t.job, res)
}

func (r *Runner) settle(job *domain.Job, res executor.Result) {
	if _, err := r.sched.Complete(job.ID, res); err != nil {
		r.log.Error("settle job", "job", job.ID, "err", err)
	}
}
